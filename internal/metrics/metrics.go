// Package metrics exposes exploration progress as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// Recorder turns exploration events into metrics. It implements
// events.Publisher so it can be attached to the engine's fan-out.
type Recorder struct {
	registry *prometheus.Registry

	nodes    prometheus.Counter
	edges    *prometheus.CounterVec
	actions  *prometheus.CounterVec
	scores   prometheus.Histogram
	resets   *prometheus.CounterVec
	sessions *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		nodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "murphy_nodes_discovered_total",
			Help: "Number of distinct states added to the journal.",
		}),
		edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "murphy_edges_recorded_total",
			Help: "Number of transitions committed to the journal.",
		}, []string{"change"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "murphy_actions_performed_total",
			Help: "Number of actions performed on the device.",
		}, []string{"kind"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "murphy_action_score",
			Help:    "Score of the actions at the time they were chosen.",
			Buckets: prometheus.LinearBuckets(1, 1, 5),
		}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "murphy_resets_total",
			Help: "Number of device restores to the initial snapshot.",
		}, []string{"reason"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "murphy_sessions_total",
			Help: "Number of finished exploration sessions.",
		}, []string{"policy", "reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "murphy_session_duration_seconds",
			Help:    "Wall clock duration of exploration sessions.",
			Buckets: prometheus.ExponentialBuckets(60, 2, 8),
		}),
	}
	r.registry.MustRegister(r.nodes, r.edges, r.actions, r.scores, r.resets, r.sessions, r.duration)
	return r
}

// Registry returns the registry holding the exploration metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the metrics in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Publish records event. Unknown events are ignored.
func (r *Recorder) Publish(_ context.Context, _ schemas.EventTopic, event any) error {
	switch e := event.(type) {
	case schemas.NodeEvent:
		r.nodes.Inc()
	case schemas.EdgeEvent:
		change := "added"
		if e.Replaced {
			change = "replaced"
		}
		r.edges.WithLabelValues(change).Inc()
	case schemas.ActionEvent:
		r.actions.WithLabelValues(e.Kind).Inc()
		r.scores.Observe(float64(e.Score))
	case schemas.ResetEvent:
		r.resets.WithLabelValues(e.Reason).Inc()
	case schemas.SessionEvent:
		r.sessions.WithLabelValues(e.Policy, e.Reason).Inc()
		r.duration.Observe(e.Duration.Seconds())
	}
	return nil
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }
