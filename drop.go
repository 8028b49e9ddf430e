package mtp

import "math/rand"

// dropMessage decides whether to silently discard a received datagram.
// Loss injection hook used to exercise the retransmission path.
func dropMessage(rnd *rand.Rand, p float64) bool {
	if p <= 0 {
		return false
	}
	return rnd.Float64() < p
}
