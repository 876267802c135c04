package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "just_us"

const (
	PushDelivered = "delivered"
	PushPruned    = "pruned"
	PushFailed    = "failed"
)

// Metrics - счетчики сервиса. Регистрируются в собственном реестре,
// чтобы тесты могли создавать сколько угодно экземпляров.
type Metrics struct {
	MessagesSent      prometheus.Counter
	MessagesEdited    prometheus.Counter
	MessagesUnsent    prometheus.Counter
	Reactions         prometheus.Counter
	Uploads           *prometheus.CounterVec
	PushDeliveries    *prometheus.CounterVec
	SnapshotBroadcast prometheus.Counter
	Connections       prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total", Help: "Messages created.",
		}),
		MessagesEdited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_edited_total", Help: "Messages edited.",
		}),
		MessagesUnsent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_unsent_total", Help: "Messages soft-deleted.",
		}),
		Reactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reactions_total", Help: "Reactions set.",
		}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "uploads_total", Help: "Media uploads by kind.",
		}, []string{"kind"}),
		PushDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "push_deliveries_total", Help: "Web push attempts by outcome.",
		}, []string{"outcome"}),
		SnapshotBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshot_broadcasts_total", Help: "Live window snapshots pushed to subscribers.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "websocket_connections", Help: "Open websocket connections.",
		}),
		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSent, m.MessagesEdited, m.MessagesUnsent, m.Reactions,
		m.Uploads, m.PushDeliveries, m.SnapshotBroadcast, m.Connections,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
