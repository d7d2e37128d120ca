package audit

import (
	"context"
	"time"

	id "sprout/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// apply different retention.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance: what was
	// submitted and what the registration service answered.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine wizard activity useful for funnel
	// analysis and debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted by the wizard service on every lifecycle transition. It is
// transport-agnostic so stores and sinks can fan out. Field values entered by
// the user are never carried.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	SessionID id.SessionID  `json:"session_id"`
	Flow      id.FlowID     `json:"flow"`
	Step      string        `json:"step,omitempty"`
	Field     string        `json:"field,omitempty"`
	Action    string        `json:"action"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	EntityID  string        `json:"entity_id,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

type AuditEvent string

const (
	// Session lifecycle
	EventSessionStarted   AuditEvent = "session_started"
	EventSessionAbandoned AuditEvent = "session_abandoned"
	EventSessionCompleted AuditEvent = "session_completed"

	// Navigation
	EventStepCommitted AuditEvent = "step_committed"
	EventStepAdvanced  AuditEvent = "step_advanced"
	EventStepRetreated AuditEvent = "step_retreated"
	EventStepJumped    AuditEvent = "step_jumped"

	// Attachments
	EventAttachmentAdded    AuditEvent = "attachment_added"
	EventAttachmentRemoved  AuditEvent = "attachment_removed"
	EventAttachmentRejected AuditEvent = "attachment_rejected"

	// Submission
	EventSubmissionStarted  AuditEvent = "submission_started"
	EventSubmissionResolved AuditEvent = "submission_resolved"
	EventStaleCompletion    AuditEvent = "stale_completion_discarded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventSubmissionStarted:  CategoryCompliance,
	EventSubmissionResolved: CategoryCompliance,
	EventSessionCompleted:   CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
