package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprout/internal/platform/config"
	id "sprout/pkg/domain"
	audit "sprout/pkg/platform/audit"
)

func TestNewProducer_Unconfigured(t *testing.T) {
	p, err := NewProducer(config.KafkaConfig{})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.EqualError(t, err, "kafka topic is required")
}

func TestAuditRecord(t *testing.T) {
	sessionID := id.NewSessionID()
	ts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rec, err := auditRecord(audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: ts,
		SessionID: sessionID,
		Flow:      "farmer_registration",
		Action:    string(audit.EventSubmissionResolved),
		Decision:  "succeeded",
	})
	require.NoError(t, err)

	assert.Equal(t, sessionID.String(), string(rec.Key))
	assert.Equal(t, ts, rec.Timestamp)
	require.Len(t, rec.Headers, 2)
	assert.Equal(t, "submission_resolved", string(rec.Headers[0].Value))

	var decoded audit.Event
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, sessionID, decoded.SessionID)
	assert.Equal(t, "succeeded", decoded.Decision)
}
