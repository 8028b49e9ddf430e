package mtp

import "sync"

// SocketTable owns the fixed array of socket entries. It is the single
// shared surface between the client facing control loop and the three
// workers: every method takes the table mutex for its full duration, so all
// entry state observes full mutual exclusion.
type SocketTable struct {
	mu      sync.Mutex
	entries [MaxSockets]SocketEntry
}

func NewSocketTable() *SocketTable {
	t := &SocketTable{}
	for i := range t.entries {
		t.entries[i].free = true
	}
	return t
}

// SocketInfo is a read only snapshot of one allocated entry.
type SocketInfo struct {
	Fd         int
	Handle     int
	OwnerPID   int
	SourceIP   string
	SourcePort int
	DestIP     string
	DestPort   int
}

// outbound is a datagram owed to the network, collected under the table
// mutex and written to the UDP socket after it is released.
type outbound struct {
	fd     int
	handle int
	ip     string
	port   int
	data   []byte
}

func validFd(fd int) bool {
	return fd >= 0 && fd < MaxSockets
}

// Allocate claims a free entry for pid with the given UDP handle and
// returns its index, the client visible descriptor.
func (t *SocketTable) Allocate(pid int, handle int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		if t.entries[i].free {
			t.entries[i].allocate(pid, handle)
			return i, nil
		}
	}
	return -1, ErrNoBufs
}

// Handle returns the UDP handle of an entry, ErrNotSock when the entry
// never obtained one.
func (t *SocketTable) Handle(fd int) (int, error) {
	if !validFd(fd) {
		return 0, ErrBadFd
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.entries[fd].udpSock
	if h == 0 {
		return 0, ErrNotSock
	}
	return h, nil
}

// SetEndpoints records the bound local endpoint and the fixed peer after a
// successful daemon side bind.
func (t *SocketTable) SetEndpoints(fd int, srcIP string, srcPort int, dstIP string, dstPort int) error {
	if !validFd(fd) {
		return ErrBadFd
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &t.entries[fd]
	e.sourceIP = srcIP
	e.sourcePort = srcPort
	e.destIP = dstIP
	e.destPort = dstPort
	return nil
}

// Enqueue implements the send path: validates the destination against the
// bound peer and buffers the payload with the next sequence number.
// Returns the byte count written into the slot.
func (t *SocketTable) Enqueue(fd int, payload []byte, dstIP string, dstPort int) (int, error) {
	if !validFd(fd) {
		return -1, ErrBadFd
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &t.entries[fd]
	if e.free {
		return -1, ErrBadFd
	}
	if !e.bound() || e.destIP != dstIP || e.destPort != dstPort {
		return -1, ErrNotConn
	}
	n, ok := e.enqueue(payload)
	if !ok {
		return -1, ErrNoBufs
	}
	return n, nil
}

// Deliver implements the receive path: extracts the lowest sequence number
// ready message, rotating the receive window forward.
func (t *SocketTable) Deliver(fd int) ([]byte, error) {
	if !validFd(fd) {
		return nil, ErrBadFd
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &t.entries[fd]
	if e.free {
		return nil, ErrBadFd
	}
	if !e.bound() {
		return nil, ErrNotConn
	}
	return e.deliver()
}

// Release frees an entry on client close and hands back its UDP handle so
// the daemon can drop the underlying socket. The peer is not notified.
func (t *SocketTable) Release(fd int) (int, error) {
	if !validFd(fd) {
		return 0, ErrBadFd
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &t.entries[fd]
	h := e.udpSock
	if h == 0 {
		return 0, ErrNotSock
	}
	e.clear()
	return h, nil
}

// Reap clears every non free entry whose owner process is gone, as decided
// by the alive probe, and returns the UDP handles that were abandoned.
func (t *SocketTable) Reap(alive func(pid int) bool) []outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	var reaped []outbound
	for i := range t.entries {
		e := &t.entries[i]
		if e.free || e.ownerPID == 0 {
			continue
		}
		if alive(e.ownerPID) {
			continue
		}
		reaped = append(reaped, outbound{fd: i, handle: e.udpSock})
		e.clear()
	}
	return reaped
}

// InfoFor snapshots every entry owned by pid.
func (t *SocketTable) InfoFor(pid int) []SocketInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	var infos []SocketInfo
	for i := range t.entries {
		e := &t.entries[i]
		if e.free || e.ownerPID != pid {
			continue
		}
		infos = append(infos, SocketInfo{
			Fd:         i,
			Handle:     e.udpSock,
			OwnerPID:   e.ownerPID,
			SourceIP:   e.sourceIP,
			SourcePort: e.sourcePort,
			DestIP:     e.destIP,
			DestPort:   e.destPort,
		})
	}
	return infos
}

// InUse counts allocated entries, for the daemon gauge.
func (t *SocketTable) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for i := range t.entries {
		if !t.entries[i].free {
			n++
		}
	}
	return n
}

// CollectTransmissions performs one sender tick over the whole table:
// rebuilds every send window and returns a data datagram for each window
// slot, addressed to the entry's fixed peer.
func (t *SocketTable) CollectTransmissions() []outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []outbound
	for i := range t.entries {
		e := &t.entries[i]
		if e.free || !e.bound() {
			continue
		}
		for _, tx := range e.pendingTransmissions() {
			data := make([]byte, 0, MessageHeaderSize+len(tx.payload))
			data = append(data, packHeader(tx.seq, 0, false))
			data = append(data, tx.payload...)
			out = append(out, outbound{fd: i, handle: e.udpSock, ip: e.destIP, port: e.destPort, data: data})
		}
	}
	return out
}

// CollectProbes performs the receiver timeout sweep: for every bound entry
// a duplicate cumulative ACK advertising the refreshed free slot count.
func (t *SocketTable) CollectProbes() []outbound {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []outbound
	for i := range t.entries {
		e := &t.entries[i]
		if e.free || !e.bound() {
			continue
		}
		ackSeq, wnd := e.probeAck()
		out = append(out, outbound{fd: i, handle: e.udpSock, ip: e.destIP, port: e.destPort,
			data: []byte{packHeader(ackSeq, wnd, true)}})
	}
	return out
}

// HandleAck applies an incoming ACK to the entry's send side. duplicate
// reports whether no window slot matched.
func (t *SocketTable) HandleAck(fd int, wireSeq int, winLen int) (duplicate bool, ok bool) {
	if !validFd(fd) {
		return false, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &t.entries[fd]
	if e.free {
		return false, false
	}
	removed := e.applyAck(wireSeq, winLen)
	return !removed, true
}

// HandleData files an incoming data payload and builds the answering ACK.
// Out of window or duplicate data is dropped but still acknowledged with
// the current window state.
func (t *SocketTable) HandleData(fd int, wireSeq int, payload []byte) (ack outbound, accepted bool, ok bool) {
	if !validFd(fd) {
		return outbound{}, false, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &t.entries[fd]
	if e.free || !e.bound() {
		return outbound{}, false, false
	}
	accepted = e.acceptData(wireSeq, payload)
	ack = outbound{fd: fd, handle: e.udpSock, ip: e.destIP, port: e.destPort,
		data: []byte{packHeader(wireSeq, e.rwnd.size, true)}}
	return ack, accepted, true
}
