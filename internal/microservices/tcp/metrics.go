package tcp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the server's Prometheus collectors.
type Metrics struct {
	Connections       prometheus.Gauge
	Subscribers       prometheus.Gauge
	Handshakes        *prometheus.CounterVec // result=accepted|rejected
	Broadcasts        prometheus.Counter
	Deliveries        prometheus.Counter
	DeliveryFailures  prometheus.Counter
	ProtocolErrors    *prometheus.CounterVec // kind=framing|decode|unexpected_packet
	BroadcastDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "newsdist",
			Name:      "open_connections",
			Help:      "TCP connections currently open, subscribed or not.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "newsdist",
			Name:      "subscribers",
			Help:      "Sessions currently in the registry.",
		}),
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdist",
			Name:      "handshakes_total",
			Help:      "Subscribe handshakes by result.",
		}, []string{"result"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdist",
			Name:      "broadcasts_total",
			Help:      "News broadcasts started.",
		}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdist",
			Name:      "deliveries_total",
			Help:      "News packets written to subscribers.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "newsdist",
			Name:      "delivery_failures_total",
			Help:      "News packet writes that failed and removed the subscriber.",
		}),
		ProtocolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "newsdist",
			Name:      "protocol_errors_total",
			Help:      "Connections dropped for protocol violations, by kind.",
		}, []string{"kind"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "newsdist",
			Name:      "broadcast_duration_seconds",
			Help:      "Time to deliver one broadcast to its whole snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Connections,
			m.Subscribers,
			m.Handshakes,
			m.Broadcasts,
			m.Deliveries,
			m.DeliveryFailures,
			m.ProtocolErrors,
			m.BroadcastDuration,
		)
	}
	return m
}
