package rest

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/conduit-lang/restdecl/pkg/cache"
)

// Metrics provides Prometheus metrics for declared method invocations.
// A nil *Metrics records nothing. It is safe for concurrent use.
type Metrics struct {
	invocations       *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	transportDuration *prometheus.HistogramVec
	inFlight          *prometheus.GaugeVec
}

// NewMetrics registers the collectors with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restdecl_invocations_total",
				Help: "Total number of declared method invocations",
			},
			[]string{"definition", "member", "outcome"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "restdecl_cache_lookups_total",
				Help: "Total number of response cache lookups by result",
			},
			[]string{"definition", "member", "result"},
		),
		transportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "restdecl_transport_duration_seconds",
				Help:    "Duration of transport calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"definition", "member", "status"},
		),
		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "restdecl_in_flight",
				Help: "Number of invocations currently in flight",
			},
			[]string{"definition", "member"},
		),
	}
}

func (m *Metrics) begin(definition, member string) func() {
	if m == nil {
		return func() {}
	}
	g := m.inFlight.WithLabelValues(definition, member)
	g.Inc()
	return g.Dec
}

func (m *Metrics) recordInvocation(definition, member string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.invocations.WithLabelValues(definition, member, outcome).Inc()
}

func (m *Metrics) recordCache(definition, member string, outcome cache.Outcome) {
	if m == nil || outcome == cache.OutcomeBypass {
		return
	}
	m.cacheLookups.WithLabelValues(definition, member, outcome.String()).Inc()
}

func (m *Metrics) recordTransport(definition, member string, resp *Response, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "error"
	switch {
	case resp != nil:
		status = strconv.Itoa(resp.Status)
	case StatusOf(err) != 0:
		status = strconv.Itoa(StatusOf(err))
	}
	m.transportDuration.WithLabelValues(definition, member, status).Observe(d.Seconds())
}
