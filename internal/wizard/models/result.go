package models

import (
	"time"

	id "sprout/pkg/domain"
)

// Result is the registration service's tagged result. The set of variants is
// closed: only this package can implement it.
type Result interface {
	isResult()
}

// Success carries the ID of the created entity.
type Success struct {
	EntityID id.EntityID
}

// Errored is a generic failure; the message is surfaced verbatim.
type Errored struct {
	Message string
}

// AlreadyRegistered means the subject already has an entity.
type AlreadyRegistered struct {
	EntityID id.EntityID
}

// InvalidData means the backend rejected the payload; the reason is surfaced verbatim.
type InvalidData struct {
	Reason string
}

func (Success) isResult()           {}
func (Errored) isResult()           {}
func (AlreadyRegistered) isResult() {}
func (InvalidData) isResult()       {}

// Classification decides the retry affordance of a submission outcome.
type Classification string

const (
	ClassSucceeded   Classification = "succeeded"
	ClassTerminal    Classification = "terminal"    // not retryable
	ClassCorrectable Classification = "correctable" // retryable after local correction
	ClassRetryable   Classification = "retryable"
)

// Affordance is what the UI offers next.
type Affordance string

const (
	AffordanceDashboard     Affordance = "go_to_dashboard"
	AffordanceRetry         Affordance = "retry"
	AffordanceCorrectFields Affordance = "correct_fields"
)

// Outcome is a Result mapped into UI-visible terms.
type Outcome struct {
	State          SubmissionState `json:"state"`
	Classification Classification  `json:"classification"`
	Affordance     Affordance      `json:"affordance"`
	EntityID       id.EntityID     `json:"entity_id,omitempty"`
	Message        string          `json:"message,omitempty"`
	ResolvedAt     time.Time       `json:"resolved_at"`
}

// Retryable reports whether another submission attempt is allowed.
func (o Outcome) Retryable() bool {
	return o.Classification == ClassRetryable || o.Classification == ClassCorrectable
}

// RegistrationStatus is the read model's view of an existing registration.
type RegistrationStatus struct {
	Registered bool
	EntityID   id.EntityID
}
