package mtp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func bindTestEntry(t *SocketTable, fd int) {
	t.SetEndpoints(fd, "127.0.0.1", 5000+fd, "127.0.0.1", 6000+fd)
}

func TestAllocateExhaustion(t *testing.T) {
	table := NewSocketTable()
	for i := 0; i < MaxSockets; i++ {
		fd, err := table.Allocate(100, i+1)
		assert.Nil(t, err)
		assert.Equal(t, i, fd)
	}
	_, err := table.Allocate(100, 99)
	assert.Equal(t, ErrNoBufs, err)
}

func TestAllocateReusesReleasedEntry(t *testing.T) {
	table := NewSocketTable()
	fd, _ := table.Allocate(100, 1)
	_, err := table.Release(fd)
	assert.Nil(t, err)
	again, err := table.Allocate(200, 2)
	assert.Nil(t, err)
	assert.Equal(t, fd, again)
}

func TestEnqueueValidations(t *testing.T) {
	table := NewSocketTable()
	fd, _ := table.Allocate(100, 1)

	// Unbound socket is not connected
	_, err := table.Enqueue(fd, []byte("x"), "127.0.0.1", 6000)
	assert.Equal(t, ErrNotConn, err)

	bindTestEntry(table, fd)
	// Wrong peer
	_, err = table.Enqueue(fd, []byte("x"), "127.0.0.1", 7777)
	assert.Equal(t, ErrNotConn, err)

	// Free entry
	_, err = table.Enqueue(5, []byte("x"), "127.0.0.1", 6005)
	assert.Equal(t, ErrBadFd, err)

	// Out of range descriptor
	_, err = table.Enqueue(MaxSockets, []byte("x"), "127.0.0.1", 6000)
	assert.Equal(t, ErrBadFd, err)
}

func TestEnqueueFillsBufferInOrder(t *testing.T) {
	table := NewSocketTable()
	fd, _ := table.Allocate(100, 1)
	bindTestEntry(table, fd)
	for i := 0; i < MaxSendBufferSize; i++ {
		n, err := table.Enqueue(fd, []byte("abc"), "127.0.0.1", 6000+fd)
		assert.Nil(t, err)
		assert.Equal(t, 3, n)
	}
	_, err := table.Enqueue(fd, []byte("abc"), "127.0.0.1", 6000+fd)
	assert.Equal(t, ErrNoBufs, err)
}

func TestDeliverValidations(t *testing.T) {
	table := NewSocketTable()
	fd, _ := table.Allocate(100, 1)
	_, err := table.Deliver(fd)
	assert.Equal(t, ErrNotConn, err)

	bindTestEntry(table, fd)
	_, err = table.Deliver(fd)
	assert.Equal(t, ErrNoMsg, err)
}

func TestReleaseTwice(t *testing.T) {
	table := NewSocketTable()
	fd, _ := table.Allocate(100, 7)
	handle, err := table.Release(fd)
	assert.Nil(t, err)
	assert.Equal(t, 7, handle)
	_, err = table.Release(fd)
	assert.Equal(t, ErrNotSock, err)
}

func TestReap(t *testing.T) {
	table := NewSocketTable()
	fd, _ := table.Allocate(4242, 7)
	bindTestEntry(table, fd)
	table.Enqueue(fd, []byte("pending"), "127.0.0.1", 6000+fd)

	// Owner still alive: nothing happens
	reaped := table.Reap(func(pid int) bool { return true })
	assert.Len(t, reaped, 0)

	reaped = table.Reap(func(pid int) bool { return pid != 4242 })
	assert.Len(t, reaped, 1)
	assert.Equal(t, fd, reaped[0].fd)
	assert.Equal(t, 7, reaped[0].handle)

	// Entry is fully reclaimed
	assert.Equal(t, 0, table.InUse())
	again, err := table.Allocate(1, 8)
	assert.Nil(t, err)
	assert.Equal(t, fd, again)
}

func TestInfoFor(t *testing.T) {
	table := NewSocketTable()
	fd, _ := table.Allocate(100, 1)
	bindTestEntry(table, fd)
	table.Allocate(200, 2)

	infos := table.InfoFor(100)
	assert.Len(t, infos, 1)
	assert.Equal(t, fd, infos[0].Fd)
	assert.Equal(t, "127.0.0.1", infos[0].SourceIP)
	assert.Equal(t, 6000+fd, infos[0].DestPort)
}

func TestCollectTransmissions(t *testing.T) {
	table := NewSocketTable()
	fd, _ := table.Allocate(100, 9)
	bindTestEntry(table, fd)
	table.Enqueue(fd, []byte("hello"), "127.0.0.1", 6000+fd)
	table.Enqueue(fd, []byte("world"), "127.0.0.1", 6000+fd)

	txs := table.CollectTransmissions()
	assert.Len(t, txs, 2)
	assert.Equal(t, 9, txs[0].handle)
	assert.Equal(t, "127.0.0.1", txs[0].ip)
	assert.Equal(t, 6000+fd, txs[0].port)

	seq, _, isAck := parseHeader(txs[0].data[0])
	assert.Equal(t, 1, seq)
	assert.False(t, isAck)
	assert.Equal(t, []byte("hello"), txs[0].data[1:])

	// Retransmission is blind: the next tick sends them again
	again := table.CollectTransmissions()
	assert.Len(t, again, 2)
}

func TestCollectProbes(t *testing.T) {
	table := NewSocketTable()
	fd, _ := table.Allocate(100, 9)

	// Unbound entries are skipped
	assert.Len(t, table.CollectProbes(), 0)

	bindTestEntry(table, fd)
	probes := table.CollectProbes()
	assert.Len(t, probes, 1)
	seq, wnd, isAck := parseHeader(probes[0].data[0])
	assert.True(t, isAck)
	assert.Equal(t, 0, seq)
	assert.Equal(t, MaxWindowSize, wnd)
}

func TestHandleDataAndAck(t *testing.T) {
	table := NewSocketTable()
	sender, _ := table.Allocate(100, 1)
	bindTestEntry(table, sender)
	receiver, _ := table.Allocate(100, 2)
	bindTestEntry(table, receiver)

	table.Enqueue(sender, []byte("payload"), "127.0.0.1", 6000+sender)
	table.CollectTransmissions()

	// Data lands on the receiving entry, the ACK answers with the
	// shrunken window
	ack, accepted, ok := table.HandleData(receiver, 1, []byte("payload"))
	assert.True(t, ok)
	assert.True(t, accepted)
	seq, wnd, isAck := parseHeader(ack.data[0])
	assert.True(t, isAck)
	assert.Equal(t, 1, seq)
	assert.Equal(t, MaxWindowSize-1, wnd)

	// The ACK clears the sender's slot
	duplicate, ok := table.HandleAck(sender, seq, wnd)
	assert.True(t, ok)
	assert.False(t, duplicate)
	assert.Len(t, table.CollectTransmissions(), 0)

	// Replaying it is a duplicate but still resizes the window
	duplicate, _ = table.HandleAck(sender, seq, 3)
	assert.True(t, duplicate)

	data, err := table.Deliver(receiver)
	assert.Nil(t, err)
	assert.Equal(t, []byte("payload"), data)
}
