package mtp

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Client is the user process side of the transport. It holds one control
// connection to the daemon; every operation is a synchronous request that
// the daemon executes against the shared socket table. The client never
// touches a UDP socket itself.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	pid  int
}

// Dial connects to the daemon's control socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, pid: os.Getpid()}, nil
}

// Disconnect drops the control connection. Sockets created by this process
// stay alive until closed or reaped.
func (c *Client) Disconnect() error {
	return c.conn.Close()
}

func decodeError(code int32) error {
	switch {
	case code == 0:
		return nil
	case code < 0:
		return MTPError(code)
	default:
		return unix.Errno(code)
	}
}

func (c *Client) roundTrip(req *controlRequest, payload []byte) (*controlResponse, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req.Pid = int32(c.pid)
	if err := writeFrame(c.conn, req, payload); err != nil {
		return nil, nil, err
	}
	resp := new(controlResponse)
	respPayload, err := readFrame(c.conn, resp)
	if err != nil {
		return nil, nil, err
	}
	if err := decodeError(resp.Code); err != nil {
		return nil, nil, err
	}
	return resp, respPayload, nil
}

// Socket creates a new MTP socket and returns its descriptor. The type
// must be SockMTP.
func (c *Client) Socket(domain int, sockType int, protocol int) (int, error) {
	if sockType != SockMTP {
		return -1, ErrNotSup
	}
	resp, _, err := c.roundTrip(&controlRequest{Op: opSocket}, nil)
	if err != nil {
		return -1, err
	}
	return int(resp.Value), nil
}

// Bind fixes the local endpoint and the single permitted peer of a socket
// for its whole lifetime. The daemon performs the actual UDP bind.
func (c *Client) Bind(fd int, srcIP string, srcPort int, dstIP string, dstPort int) error {
	if !validFd(fd) {
		return ErrBadFd
	}
	req := &controlRequest{
		Op:      opBind,
		Fd:      int32(fd),
		SrcIP:   ipToField(srcIP),
		SrcPort: int32(srcPort),
		DstIP:   ipToField(dstIP),
		DstPort: int32(dstPort),
	}
	_, _, err := c.roundTrip(req, nil)
	return err
}

// SendTo buffers a message for the bound peer and returns the number of
// bytes accepted, at most MessageSize. The message is transmitted and
// retransmitted by the daemon until the peer acknowledges it.
func (c *Client) SendTo(fd int, buf []byte, dstIP string, dstPort int) (int, error) {
	if !validFd(fd) {
		return -1, ErrBadFd
	}
	if len(buf) > MessageSize {
		buf = buf[:MessageSize]
	}
	req := &controlRequest{
		Op:      opSend,
		Fd:      int32(fd),
		DstIP:   ipToField(dstIP),
		DstPort: int32(dstPort),
		Len:     uint16(len(buf)),
	}
	resp, _, err := c.roundTrip(req, buf)
	if err != nil {
		return -1, err
	}
	return int(resp.Value), nil
}

// RecvFrom copies the next in-order message into buf and returns its
// length. ErrNoMsg when the next message has not arrived yet; the call
// never blocks.
func (c *Client) RecvFrom(fd int, buf []byte) (int, error) {
	if !validFd(fd) {
		return -1, ErrBadFd
	}
	_, payload, err := c.roundTrip(&controlRequest{Op: opRecv, Fd: int32(fd)}, nil)
	if err != nil {
		return -1, err
	}
	return copy(buf, payload), nil
}

// Close releases the socket. The peer is not notified.
func (c *Client) Close(fd int) error {
	if !validFd(fd) {
		return ErrBadFd
	}
	_, _, err := c.roundTrip(&controlRequest{Op: opClose, Fd: int32(fd)}, nil)
	return err
}

// Info returns a snapshot of every socket owned by this process.
func (c *Client) Info() ([]SocketInfo, error) {
	resp, payload, err := c.roundTrip(&controlRequest{Op: opInfo}, nil)
	if err != nil {
		return nil, err
	}
	infos := make([]SocketInfo, 0, resp.Value)
	reader := bytes.NewReader(payload)
	for i := 0; i < int(resp.Value); i++ {
		rec := new(infoRecord)
		if err := binary.Read(reader, binary.BigEndian, rec); err != nil {
			return nil, err
		}
		infos = append(infos, SocketInfo{
			Fd:         int(rec.Fd),
			Handle:     int(rec.Handle),
			OwnerPID:   c.pid,
			SourceIP:   fieldToIP(rec.SrcIP),
			SourcePort: int(rec.SrcPort),
			DestIP:     fieldToIP(rec.DstIP),
			DestPort:   int(rec.DstPort),
		})
	}
	return infos, nil
}
