package mtp

// MTPError is a transport level error code. Negative values are produced by
// the transport itself; operating system errors encountered inside the
// daemon are reported separately as errno values (see ipc.go).
type MTPError int8

func (e MTPError) Error() string {
	errStr, ok := MTP_ERRORS[e]
	if ok {
		return errStr
	}
	return "Unknown error"
}

const (
	ErrNone    MTPError = 0
	ErrNotSup  MTPError = -1 // socket type is not SOCK_MTP
	ErrNoBufs  MTPError = -2 // no free table entry or no free send slot
	ErrBadFd   MTPError = -3 // descriptor out of range or entry is free
	ErrNotSock MTPError = -4 // entry has no underlying UDP socket
	ErrNotConn MTPError = -5 // destination does not match the bound peer
	ErrNoMsg   MTPError = -6 // no in-order message ready in the receive buffer
	ErrProto   MTPError = -7 // malformed control exchange with the daemon
)

// A map between the errors and the description
var MTP_ERRORS = map[MTPError]string{
	ErrNone:    "Operation completed successfully",
	ErrNotSup:  "Socket type not supported, use SOCK_MTP",
	ErrNoBufs:  "No buffer space available",
	ErrBadFd:   "Bad socket descriptor",
	ErrNotSock: "Descriptor has no underlying UDP socket",
	ErrNotConn: "Destination is not the bound peer",
	ErrNoMsg:   "No message of desired type",
	ErrProto:   "Malformed control protocol exchange",
}
