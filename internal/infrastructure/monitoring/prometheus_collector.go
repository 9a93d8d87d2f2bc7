package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	clientsConnected    prometheus.Gauge
	controllerElections prometheus.Counter

	messagesRelayed *prometheus.CounterVec
	messagesQueued  *prometheus.CounterVec
	messagesDropped *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		clientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "synthnet_clients_connected",
			Help: "Number of clients currently registered on the signaling relay",
		}),

		controllerElections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synthnet_controller_elections_total",
			Help: "Total number of controller registrations",
		}),

		messagesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synthnet_signal_messages_relayed_total",
			Help: "Signaling messages delivered directly to a connected target",
		}, []string{"type"}),

		messagesQueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synthnet_signal_messages_queued_total",
			Help: "Signaling messages parked in the mailbox for an offline target",
		}, []string{"type"}),

		messagesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synthnet_signal_messages_dropped_total",
			Help: "Signaling messages dropped as malformed or unroutable",
		}, []string{"reason"}),

		rateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "synthnet_signal_messages_rate_limited_total",
			Help: "Signaling messages discarded by the per-connection rate limiter",
		}),
	}
}

func (p *PrometheusCollector) RecordClientConnected()    { p.clientsConnected.Inc() }
func (p *PrometheusCollector) RecordClientDisconnected() { p.clientsConnected.Dec() }
func (p *PrometheusCollector) RecordControllerElection() { p.controllerElections.Inc() }

func (p *PrometheusCollector) RecordRelayed(msgType string) {
	p.messagesRelayed.WithLabelValues(msgType).Inc()
}

func (p *PrometheusCollector) RecordQueued(msgType string) {
	p.messagesQueued.WithLabelValues(msgType).Inc()
}

func (p *PrometheusCollector) RecordDropped(reason string) {
	p.messagesDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordRateLimited() { p.rateLimited.Inc() }
