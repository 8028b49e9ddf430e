package mtp

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// senderWorker drives retransmission: every tick it rebuilds the send
// window of every socket and blindly retransmits each windowed message to
// the entry's fixed peer. A message stops being sent once an ACK removed it
// from the buffer or the advertised window shrank below its position.
func (d *Daemon) senderWorker() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.RetransmitPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
		}
		log.Debug("[SENDER] Woke up")
		for _, tx := range d.table.CollectTransmissions() {
			seq, _, _ := parseHeader(tx.data[0])
			log.Debugf("[SENDER] message in socket:%2d seq:%2d", tx.fd, seq)
			if err := d.transmit(tx); err != nil {
				// The slot stays buffered, next tick retries.
				log.Errorf("[SENDER] message not sent on socket %v : %v", tx.fd, err)
				continue
			}
			d.metrics.dataSent.Inc()
		}
	}
}
