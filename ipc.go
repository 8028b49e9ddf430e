package mtp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Control protocol between the client library and the daemon, the
// generalization of the original one shot control record plus two slot
// rendezvous: each operation is one fixed size request record written to
// the daemon's unix socket, answered by one response record. Records use
// fixed size fields only.
const (
	opSocket uint8 = iota + 1
	opBind
	opSend
	opRecv
	opClose
	opInfo
)

// Frames are length prefixed; a frame never exceeds one record plus either
// one message payload or one info record per table entry.
const maxFrameSize = 4 + 64 + MessageSize + MaxSockets*64

type controlRequest struct {
	Op      uint8
	Fd      int32
	Pid     int32
	SrcIP   [16]byte
	SrcPort int32
	DstIP   [16]byte
	DstPort int32
	Len     uint16 // payload bytes following the record (opSend only)
}

type controlResponse struct {
	Code  int32  // 0 on success, <0 an MTPError, >0 a daemon side errno
	Value int32  // descriptor (opSocket) or byte count (opSend, opRecv)
	Len   uint16 // payload bytes following the record (opRecv, opInfo)
}

// One entry of an opInfo response payload.
type infoRecord struct {
	Fd      int32
	Handle  int32
	SrcIP   [16]byte
	SrcPort int32
	DstIP   [16]byte
	DstPort int32
}

func ipToField(ip string) [16]byte {
	var f [16]byte
	copy(f[:], ip)
	return f
}

func fieldToIP(f [16]byte) string {
	n := bytes.IndexByte(f[:], 0)
	if n < 0 {
		n = len(f)
	}
	return string(f[:n])
}

// appendRecord serializes one fixed size record onto dst.
func appendRecord(dst []byte, record any) []byte {
	buf := new(bytes.Buffer)
	// Records are fixed size structs, this cannot fail.
	binary.Write(buf, binary.BigEndian, record)
	return append(dst, buf.Bytes()...)
}

// writeFrame serializes a record plus optional payload with a length prefix
// in a single write.
func writeFrame(w io.Writer, record any, payload []byte) error {
	body := new(bytes.Buffer)
	err := binary.Write(body, binary.BigEndian, record)
	if err != nil {
		return err
	}
	bodyBytes := append(body.Bytes(), payload...)
	frame := make([]byte, 4, 4+len(bodyBytes))
	binary.BigEndian.PutUint32(frame, uint32(len(bodyBytes)))
	frame = append(frame, bodyBytes...)
	_, err = w.Write(frame)
	return err
}

// readFrame reads one length prefixed frame, decodes the fixed record and
// returns the remaining bytes as payload.
func readFrame(r io.Reader, record any) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxFrameSize {
		return nil, fmt.Errorf("frame of %v bytes exceeds limit %v: %w", length, maxFrameSize, ErrProto)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	buf := bytes.NewReader(body)
	if err := binary.Read(buf, binary.BigEndian, record); err != nil {
		return nil, err
	}
	payload := make([]byte, buf.Len())
	if _, err := io.ReadFull(buf, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
