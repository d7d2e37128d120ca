package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the wizard engine.
type Metrics struct {
	// Sessions started and finished by flow; finished carries the end reason
	SessionsStarted  *prometheus.CounterVec
	SessionsFinished *prometheus.CounterVec

	// Step transitions by flow, kind (advance/retreat/jump) and result
	Transitions *prometheus.CounterVec

	// Validation failures by flow and step
	ValidationFailures *prometheus.CounterVec

	// Attachment rejections by flow and reason
	AttachmentRejections *prometheus.CounterVec

	// Submission outcomes by flow and classification
	SubmissionOutcomes *prometheus.CounterVec

	// Registration call latency including ingestion
	SubmissionLatency *prometheus.HistogramVec

	// Late completions discarded because their session moved on
	StaleCompletions *prometheus.CounterVec
}

// New registers the wizard metrics with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		SessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sprout_wizard_sessions_started_total",
			Help: "Total wizard sessions started by flow",
		}, []string{"flow"}),

		SessionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sprout_wizard_sessions_finished_total",
			Help: "Total wizard sessions finished by flow and reason",
		}, []string{"flow", "reason"}), // reason: "completed", "abandoned", "already_registered"

		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sprout_wizard_step_transitions_total",
			Help: "Step transitions by flow, kind and result",
		}, []string{"flow", "kind", "result"}),

		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sprout_wizard_validation_failures_total",
			Help: "Validation failures by flow and step",
		}, []string{"flow", "step"}),

		AttachmentRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sprout_wizard_attachment_rejections_total",
			Help: "Rejected attachments by flow and reason",
		}, []string{"flow", "reason"}),

		SubmissionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sprout_wizard_submission_outcomes_total",
			Help: "Submission outcomes by flow and classification",
		}, []string{"flow", "classification"}),

		SubmissionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sprout_wizard_submission_duration_seconds",
			Help:    "Duration of submissions including attachment ingestion",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"flow"}),

		StaleCompletions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sprout_wizard_stale_completions_total",
			Help: "Asynchronous completions discarded for stale or missing sessions",
		}, []string{"kind"}), // kind: "preview", "submission"
	}
}

func (m *Metrics) IncSessionStarted(flow string) {
	if m != nil {
		m.SessionsStarted.WithLabelValues(flow).Inc()
	}
}

func (m *Metrics) IncSessionFinished(flow, reason string) {
	if m != nil {
		m.SessionsFinished.WithLabelValues(flow, reason).Inc()
	}
}

// IncTransition records a navigation attempt; result is "ok" or the refusal reason.
func (m *Metrics) IncTransition(flow, kind, result string) {
	if m != nil {
		m.Transitions.WithLabelValues(flow, kind, result).Inc()
	}
}

func (m *Metrics) IncValidationFailure(flow, step string) {
	if m != nil {
		m.ValidationFailures.WithLabelValues(flow, step).Inc()
	}
}

func (m *Metrics) IncAttachmentRejected(flow, reason string) {
	if m != nil {
		m.AttachmentRejections.WithLabelValues(flow, reason).Inc()
	}
}

// ObserveSubmission records a resolved submission.
func (m *Metrics) ObserveSubmission(flow, classification string, d time.Duration) {
	if m != nil {
		m.SubmissionOutcomes.WithLabelValues(flow, classification).Inc()
		m.SubmissionLatency.WithLabelValues(flow).Observe(d.Seconds())
	}
}

func (m *Metrics) IncStaleCompletion(kind string) {
	if m != nil {
		m.StaleCompletions.WithLabelValues(kind).Inc()
	}
}
