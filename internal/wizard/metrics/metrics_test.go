package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	t.Run("counters are labelled by flow", func(t *testing.T) {
		m := New(prometheus.NewRegistry())
		m.IncSessionStarted("farmer_registration")
		m.IncSessionStarted("farmer_registration")
		m.IncTransition("farmer_registration", "advance", "step_invalid")
		m.ObserveSubmission("farmer_registration", "succeeded", 120*time.Millisecond)

		assert.Equal(t, 2.0, value(t, m.SessionsStarted.WithLabelValues("farmer_registration")))
		assert.Equal(t, 1.0, value(t, m.Transitions.WithLabelValues("farmer_registration", "advance", "step_invalid")))
		assert.Equal(t, 1.0, value(t, m.SubmissionOutcomes.WithLabelValues("farmer_registration", "succeeded")))
	})

	t.Run("separate registries do not collide", func(t *testing.T) {
		assert.NotPanics(t, func() {
			New(prometheus.NewRegistry())
			New(prometheus.NewRegistry())
		})
	})

	t.Run("nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.IncSessionStarted("x")
			m.IncSessionFinished("x", "abandoned")
			m.IncValidationFailure("x", "y")
			m.IncAttachmentRejected("x", "too_large")
			m.ObserveSubmission("x", "retryable", time.Second)
			m.IncStaleCompletion("preview")
		})
	})
}
