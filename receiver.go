package mtp

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// receiverWorker consumes datagrams from the reception pumps. Every period,
// whether or not datagrams arrived, it also sweeps every bound socket with a
// duplicate cumulative ACK, which advertises freed receive space and acts as
// keepalive.
func (d *Daemon) receiverWorker() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.RetransmitPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case dg := <-d.incoming:
			d.metrics.received.Inc()
			if dropMessage(d.rnd, d.cfg.LossProbability) {
				d.metrics.dropped.Inc()
				log.Debugf("[RECEIVER] dropped message on socket %v", dg.fd)
				continue
			}
			d.handleDatagram(dg)
		case <-ticker.C:
			log.Debug("[RECEIVER] Woke up")
			for _, probe := range d.table.CollectProbes() {
				if err := d.transmit(probe); err != nil {
					log.Errorf("[RECEIVER] ack not sent on socket %v : %v", probe.fd, err)
					continue
				}
				d.metrics.acksSent.Inc()
			}
		}
	}
}

func (d *Daemon) handleDatagram(dg datagram) {
	if len(dg.data) < MessageHeaderSize {
		return
	}
	seqNum, winLen, isAck := parseHeader(dg.data[0])
	log.Debugf("[RECEIVER] socket:%v seq_num:%v win_len:%v is_ack:%v", dg.fd, seqNum, winLen, isAck)
	if isAck {
		duplicate, ok := d.table.HandleAck(dg.fd, seqNum, winLen)
		if ok && duplicate {
			d.metrics.duplicateAcks.Inc()
			log.Debugf("[RECEIVER] duplicate ack on socket %v", dg.fd)
		}
		return
	}
	ack, accepted, ok := d.table.HandleData(dg.fd, seqNum, dg.data[MessageHeaderSize:])
	if !ok {
		return
	}
	if !accepted {
		log.Debugf("[RECEIVER] out of window or duplicate data on socket %v, seq %v", dg.fd, seqNum)
	}
	if err := d.transmit(ack); err != nil {
		log.Errorf("[RECEIVER] ack not sent on socket %v : %v", dg.fd, err)
		return
	}
	d.metrics.acksSent.Inc()
}
