// Package metrics provides Prometheus instrumentation for the toxfilter
// moderation service: counters for evaluations and verdicts, failure
// counters per pipeline step, and an evaluation latency histogram.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesEvaluated counts processed messages, labeled by result:
	// "clean", "violation", or "skipped" (commands, empty text, dupes).
	MessagesEvaluated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toxfilter_messages_evaluated_total",
		Help: "Total number of messages run through the moderation pipeline",
	}, []string{"result"})

	// Verdicts counts violation verdicts by reason:
	// "lexical_match" or "category_threshold".
	Verdicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toxfilter_verdicts_total",
		Help: "Total number of violation verdicts by reason",
	}, []string{"reason"})

	// ActionFailures counts executor sub-step failures, labeled by step:
	// "record", "delete", or "warn".
	ActionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toxfilter_action_failures_total",
		Help: "Total number of failed moderation action steps",
	}, []string{"step"})

	// ClassifierErrors counts classifier failures by kind:
	// "unavailable" or "scoring".
	ClassifierErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "toxfilter_classifier_errors_total",
		Help: "Total number of classifier failures by kind",
	}, []string{"kind"})

	// EvaluationLatency records end-to-end per-message pipeline latency.
	EvaluationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "toxfilter_evaluation_latency_seconds",
		Help:    "Moderation pipeline latency per message in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
)

func init() {
	prometheus.MustRegister(
		MessagesEvaluated,
		Verdicts,
		ActionFailures,
		ClassifierErrors,
		EvaluationLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
