package observability

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quotecraft/drew/pkg/domain"
)

// Metrics records engine lifecycle events as Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	stateEntries  *prometheus.CounterVec
	collaborators *prometheus.HistogramVec
	clarify       *prometheus.CounterVec
	turns         *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry, so that several
// engines (or tests) never collide on the global one.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stateEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drew_state_entries_total",
				Help: "Total number of conversation state entries",
			},
			[]string{"state", "automatic"},
		),
		collaborators: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "drew_collaborator_duration_seconds",
				Help:    "Duration of collaborator calls",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"collaborator", "outcome"},
		),
		clarify: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drew_clarify_total",
				Help: "Total number of turns routed to clarify",
			},
			[]string{"previous", "escalated"},
		),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "drew_turns_total",
				Help: "Total number of dispatched turns by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
	}
	m.registry.MustRegister(
		m.stateEntries,
		m.collaborators,
		m.clarify,
		m.turns,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(_ context.Context, e *domain.StateEvent) {
			m.stateEntries.WithLabelValues(string(e.State), strconv.FormatBool(e.Automatic)).Inc()
		},
		OnCollaborator: func(_ context.Context, e *domain.CollaboratorEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.collaborators.WithLabelValues(e.Name, outcome).Observe(e.Duration.Seconds())
		},
		OnClarify: func(_ context.Context, e *domain.ClarifyEvent) {
			m.clarify.WithLabelValues(string(e.Previous), strconv.FormatBool(e.Escalated)).Inc()
		},
	}
}

// ObserveTurn counts one dispatched turn for a transport ("http", "mcp", "chat").
func (m *Metrics) ObserveTurn(transport string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.turns.WithLabelValues(transport, outcome).Inc()
}
