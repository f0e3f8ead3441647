package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/msgslot/msgslot-go/pkg/slot"
	"github.com/msgslot/msgslot-go/pkg/wire"
)

// metrics holds the Prometheus collectors of a SlotService.
type metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	messageBytes    *prometheus.CounterVec
	connections     prometheus.Gauge
	reaped          prometheus.Counter
}

// newMetrics creates the service collectors on reg. Registry usage is
// exported through gauge functions so it is always current. openHandles
// is called on every scrape.
func newMetrics(reg prometheus.Registerer, registry *slot.Registry, openHandles func() int) *metrics {
	factory := promauto.With(reg)

	m := &metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgslot_requests_total",
				Help: "Total number of requests by operation and status",
			},
			[]string{"op", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msgslot_request_duration_seconds",
				Help:    "Request processing time in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"op"},
		),
		messageBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgslot_message_bytes_total",
				Help: "Message bytes written to and read from channels",
			},
			[]string{"direction"},
		),
		connections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "msgslot_connections",
				Help: "Number of connected clients",
			},
		),
		reaped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "msgslot_idle_connections_closed_total",
				Help: "Connections closed by the idle reaper",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "msgslot_open_handles",
			Help: "Number of open sessions across all connections",
		},
		func() float64 { return float64(openHandles()) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "msgslot_channels",
			Help: "Number of channels in the registry",
		},
		func() float64 { return float64(registry.Stats().Channels) },
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "msgslot_stored_bytes",
			Help: "Total size of stored messages",
		},
		func() float64 { return float64(registry.Stats().StoredBytes) },
	)

	return m
}

// observe records one handled request.
func (m *metrics) observe(op wire.Operation, status wire.Status, length *int, elapsed time.Duration) {
	m.requests.WithLabelValues(op.String(), status.String()).Inc()
	m.requestDuration.WithLabelValues(op.String()).Observe(elapsed.Seconds())

	if length == nil || !status.IsSuccess() {
		return
	}
	switch op {
	case wire.OpWrite:
		m.messageBytes.WithLabelValues("write").Add(float64(*length))
	case wire.OpRead:
		m.messageBytes.WithLabelValues("read").Add(float64(*length))
	}
}
