package mtp

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Per daemon prometheus instrumentation. Each daemon carries its own
// registry so several instances can coexist in one process (tests).
type daemonMetrics struct {
	registry *prometheus.Registry

	dataSent      prometheus.Counter
	acksSent      prometheus.Counter
	received      prometheus.Counter
	dropped       prometheus.Counter
	duplicateAcks prometheus.Counter
	reaped        prometheus.Counter
	socketsInUse  prometheus.GaugeFunc
}

func newDaemonMetrics(table *SocketTable) *daemonMetrics {
	m := &daemonMetrics{registry: prometheus.NewRegistry()}
	m.dataSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mtp_data_datagrams_sent_total",
		Help: "Data datagrams transmitted, retransmissions included.",
	})
	m.acksSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mtp_ack_datagrams_sent_total",
		Help: "ACK datagrams transmitted, periodic probes included.",
	})
	m.received = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mtp_datagrams_received_total",
		Help: "Datagrams received across all sockets.",
	})
	m.dropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mtp_datagrams_dropped_total",
		Help: "Datagrams discarded by the loss injector.",
	})
	m.duplicateAcks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mtp_duplicate_acks_total",
		Help: "ACKs that matched no send window entry.",
	})
	m.reaped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mtp_sockets_reaped_total",
		Help: "Entries reclaimed from dead owner processes.",
	})
	m.socketsInUse = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mtp_sockets_in_use",
		Help: "Allocated socket table entries.",
	}, func() float64 { return float64(table.InUse()) })

	m.registry.MustRegister(m.dataSent, m.acksSent, m.received, m.dropped,
		m.duplicateAcks, m.reaped, m.socketsInUse)
	return m
}

func (m *daemonMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
