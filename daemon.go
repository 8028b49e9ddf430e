package mtp

import (
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// datagram is one raw UDP message handed from a reception pump to the
// receiver worker, tagged with the table index it belongs to.
type datagram struct {
	fd   int
	data []byte
}

// Daemon owns the socket table and every UDP socket, and runs the three
// workers plus the control loop that services client requests.
type Daemon struct {
	cfg     Config
	table   *SocketTable
	metrics *daemonMetrics
	rnd     *rand.Rand

	listener   net.Listener
	metricsSrv *http.Server

	// Guards the UDP conn registry and the set of open control
	// connections. Never held together with the table mutex.
	mu         sync.Mutex
	conns      map[int]*net.UDPConn
	nextHandle int
	ctrlConns  map[net.Conn]struct{}

	incoming chan datagram
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewDaemon(cfg Config) *Daemon {
	table := NewSocketTable()
	return &Daemon{
		cfg:       cfg,
		table:     table,
		metrics:   newDaemonMetrics(table),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		conns:     map[int]*net.UDPConn{},
		ctrlConns: map[net.Conn]struct{}{},
		incoming:  make(chan datagram, MaxSockets),
		stop:      make(chan struct{}),
	}
}

// Start listens on the control socket and launches the control loop and the
// sender, receiver and reaper workers.
func (d *Daemon) Start() error {
	// The daemon owns its socket path; a leftover file from a previous
	// run would make Listen fail.
	os.Remove(d.cfg.SocketPath)
	listener, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return err
	}
	d.listener = listener
	log.Infof("[DAEMON] listening on %v", d.cfg.SocketPath)

	if d.cfg.MetricsAddr != "" {
		d.metricsSrv = &http.Server{Addr: d.cfg.MetricsAddr, Handler: d.metrics.handler()}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			err := d.metricsSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("[DAEMON] metrics server stopped : %v", err)
			}
		}()
	}

	d.wg.Add(4)
	go d.acceptLoop()
	go d.senderWorker()
	go d.receiverWorker()
	go d.reaperWorker()
	return nil
}

// Stop terminates the workers, drops every UDP socket and removes the
// control socket.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.shutdown)
}

func (d *Daemon) shutdown() {
	close(d.stop)
	if d.listener != nil {
		d.listener.Close()
	}
	if d.metricsSrv != nil {
		d.metricsSrv.Close()
	}
	d.mu.Lock()
	for _, conn := range d.conns {
		if conn != nil {
			conn.Close()
		}
	}
	for conn := range d.ctrlConns {
		conn.Close()
	}
	d.mu.Unlock()
	d.wg.Wait()
	os.Remove(d.cfg.SocketPath)
	log.Info("[DAEMON] stopped")
}

// ------------------------------------------ control loop ------------------------------------------

func (d *Daemon) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.stop:
			default:
				if !errors.Is(err, net.ErrClosed) {
					log.Errorf("[CONTROL] accept failed : %v", err)
				}
			}
			return
		}
		d.mu.Lock()
		d.ctrlConns[conn] = struct{}{}
		d.mu.Unlock()
		d.wg.Add(1)
		go d.serveConn(conn)
	}
}

// serveConn answers requests from one client process, one at a time: the
// stream exchange is the two phase rendezvous of the original design.
func (d *Daemon) serveConn(conn net.Conn) {
	defer d.wg.Done()
	session := xid.New()
	log.Debugf("[CONTROL][%s] client connected", session)
	defer func() {
		conn.Close()
		d.mu.Lock()
		delete(d.ctrlConns, conn)
		d.mu.Unlock()
		log.Debugf("[CONTROL][%s] client disconnected", session)
	}()
	for {
		req := new(controlRequest)
		payload, err := readFrame(conn, req)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Errorf("[CONTROL][%s] bad request : %v", session, err)
			}
			return
		}
		resp, respPayload := d.dispatch(session, req, payload)
		if err := writeFrame(conn, resp, respPayload); err != nil {
			log.Errorf("[CONTROL][%s] response failed : %v", session, err)
			return
		}
	}
}

func errCode(err error) int32 {
	if err == nil {
		return 0
	}
	var mtpErr MTPError
	if errors.As(err, &mtpErr) {
		return int32(mtpErr)
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	return int32(unix.EIO)
}

func errResponse(err error) *controlResponse {
	return &controlResponse{Code: errCode(err), Value: -1}
}

func (d *Daemon) dispatch(session xid.ID, req *controlRequest, payload []byte) (*controlResponse, []byte) {
	switch req.Op {
	case opSocket:
		log.Debugf("[CONTROL][%s] socket requested by pid %v", session, req.Pid)
		return d.handleSocket(int(req.Pid)), nil
	case opBind:
		log.Debugf("[CONTROL][%s] bind requested for socket %v", session, req.Fd)
		return d.handleBind(req), nil
	case opSend:
		if int(req.Len) != len(payload) {
			return errResponse(ErrProto), nil
		}
		n, err := d.table.Enqueue(int(req.Fd), payload, fieldToIP(req.DstIP), int(req.DstPort))
		if err != nil {
			return errResponse(err), nil
		}
		return &controlResponse{Value: int32(n)}, nil
	case opRecv:
		data, err := d.table.Deliver(int(req.Fd))
		if err != nil {
			return errResponse(err), nil
		}
		return &controlResponse{Value: int32(len(data)), Len: uint16(len(data))}, data
	case opClose:
		handle, err := d.table.Release(int(req.Fd))
		if err != nil {
			return errResponse(err), nil
		}
		d.dropConn(handle)
		log.Debugf("[CONTROL][%s] socket %v closed", session, req.Fd)
		return &controlResponse{}, nil
	case opInfo:
		return d.handleInfo(int(req.Pid))
	default:
		return errResponse(ErrProto), nil
	}
}

func (d *Daemon) handleSocket(pid int) *controlResponse {
	handle := d.reserveHandle()
	fd, err := d.table.Allocate(pid, handle)
	if err != nil {
		d.dropConn(handle)
		return errResponse(err)
	}
	log.Infof("[CONTROL] socket created %v=>%v pid:%v", fd, handle, pid)
	return &controlResponse{Value: int32(fd)}
}

func (d *Daemon) handleBind(req *controlRequest) *controlResponse {
	fd := int(req.Fd)
	handle, err := d.table.Handle(fd)
	if err != nil {
		return errResponse(err)
	}
	srcIP := fieldToIP(req.SrcIP)
	ip := net.ParseIP(srcIP)
	if ip == nil {
		return errResponse(unix.EINVAL)
	}
	d.mu.Lock()
	bound := d.conns[handle] != nil
	d.mu.Unlock()
	if bound {
		return errResponse(unix.EINVAL)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: ip, Port: int(req.SrcPort)})
	if err != nil {
		log.Errorf("[CONTROL] bind failed : %v", err)
		return errResponse(err)
	}
	d.mu.Lock()
	d.conns[handle] = conn
	d.mu.Unlock()
	d.table.SetEndpoints(fd, srcIP, int(req.SrcPort), fieldToIP(req.DstIP), int(req.DstPort))
	d.wg.Add(1)
	go d.pump(fd, conn)
	log.Infof("[CONTROL] socket %v bound %v:%v -> %v:%v", fd, srcIP, req.SrcPort, fieldToIP(req.DstIP), req.DstPort)
	return &controlResponse{}
}

func (d *Daemon) handleInfo(pid int) (*controlResponse, []byte) {
	infos := d.table.InfoFor(pid)
	var payload []byte
	for _, info := range infos {
		rec := infoRecord{
			Fd:      int32(info.Fd),
			Handle:  int32(info.Handle),
			SrcIP:   ipToField(info.SourceIP),
			SrcPort: int32(info.SourcePort),
			DstIP:   ipToField(info.DestIP),
			DstPort: int32(info.DestPort),
		}
		payload = appendRecord(payload, &rec)
	}
	return &controlResponse{Value: int32(len(infos)), Len: uint16(len(payload))}, payload
}

// ------------------------------------------ UDP handle registry ------------------------------------------

// reserveHandle allocates a daemon local handle. The real UDP socket is
// attached at bind time, since a UDP socket cannot exist unbound here.
func (d *Daemon) reserveHandle() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextHandle++
	d.conns[d.nextHandle] = nil
	return d.nextHandle
}

func (d *Daemon) conn(handle int) *net.UDPConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[handle]
}

func (d *Daemon) dropConn(handle int) {
	d.mu.Lock()
	conn := d.conns[handle]
	delete(d.conns, handle)
	d.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// pump forwards every datagram received on one UDP socket to the receiver
// worker. Exits when the socket is dropped.
func (d *Daemon) pump(fd int, conn *net.UDPConn) {
	defer d.wg.Done()
	buf := make([]byte, MessageHeaderSize+MessageSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-d.stop:
				return
			default:
			}
			log.Errorf("[RECEIVER] recvfrom failed on socket %v : %v", fd, err)
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case d.incoming <- datagram{fd: fd, data: data}:
		case <-d.stop:
			return
		}
	}
}

// transmit writes one collected datagram to the peer of its entry.
func (d *Daemon) transmit(o outbound) error {
	conn := d.conn(o.handle)
	if conn == nil {
		return nil
	}
	ip := net.ParseIP(o.ip)
	if ip == nil {
		return nil
	}
	_, err := conn.WriteToUDP(o.data, &net.UDPAddr{IP: ip, Port: o.port})
	return err
}
