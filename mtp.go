// This package is a pure golang implementation of MTP, a reliable in-order
// message transport layered on top of UDP.
// The transport state lives inside a long running daemon process which owns
// every UDP socket; client processes manipulate their sockets through a
// small control protocol spoken over a unix domain socket.
package mtp

// Transport constants, required identical on both peers.
const (
	// Number of entries in the daemon socket table. The table index is the
	// client visible socket descriptor.
	MaxSockets = 25

	// Send and receive buffer depth, in message slots.
	MaxSendBufferSize    = 10
	MaxReceiveBufferSize = 5

	// Maximum payload carried by one message slot / data datagram.
	MessageSize = 1024

	// Size of the wire header preceding every datagram.
	MessageHeaderSize = 1

	// Sliding window width on both sides.
	MaxWindowSize = 5

	// Sequence numbers travel in a 4 bit header field and wrap every 16
	// messages. Window matching by seq%SeqModulo is unambiguous because the
	// advertised window never exceeds MaxWindowSize < SeqModulo/2.
	SeqModulo = 16
)

// SockMTP is the socket type accepted by Client.Socket.
const SockMTP = 7

// DefaultSocketPath is where the daemon listens for control connections
// unless configured otherwise.
const DefaultSocketPath = "/tmp/mtpd.sock"
