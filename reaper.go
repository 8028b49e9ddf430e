package mtp

import (
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// pidAlive probes a process with the null signal.
func pidAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

// reaperWorker reclaims entries whose owner process died without closing,
// dropping their UDP sockets with them.
func (d *Daemon) reaperWorker() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
		}
		for _, reaped := range d.table.Reap(pidAlive) {
			log.Infof("[REAPER] owner process gone, cleaning up MTP socket %v", reaped.fd)
			d.dropConn(reaped.handle)
			d.metrics.reaped.Inc()
		}
	}
}
