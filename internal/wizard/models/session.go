package models

import (
	"time"

	id "sprout/pkg/domain"
)

// SubmissionState is the submission lifecycle: idle -> submitting ->
// {succeeded | failed}; failed -> submitting is a retry; succeeded is terminal.
type SubmissionState string

const (
	SubmissionIdle       SubmissionState = "idle"
	SubmissionSubmitting SubmissionState = "submitting"
	SubmissionSucceeded  SubmissionState = "succeeded"
	SubmissionFailed     SubmissionState = "failed"
)

// StepStatus is derived from the aggregate; Valid is recomputed, never set by callers.
type StepStatus struct {
	Valid   bool `json:"valid"`
	Touched bool `json:"touched"`
}

// ErrorInfo is the last error surfaced to the user.
type ErrorInfo struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Session is one run of a flow. It is a plain serializable value: transition
// functions take a *Session and return a fresh copy instead of mutating it.
//
// AlreadyRegistered is set when the read model reports an existing registration
// before any data is entered. Generation increases on every stored transition;
// late asynchronous completions compare against it to detect stale sessions.
type Session struct {
	ID                id.SessionID          `json:"id"`
	Flow              id.FlowID             `json:"flow"`
	CurrentStep       int                   `json:"current_step"`
	Steps             map[StepID]StepStatus `json:"steps"`
	Data              Aggregate             `json:"data"`
	Attachments       map[string]Attachment `json:"attachments"`
	Submission        SubmissionState       `json:"submission"`
	LastError         *ErrorInfo            `json:"last_error,omitempty"`
	Outcome           *Outcome              `json:"outcome,omitempty"`
	Completed         bool                  `json:"completed"`
	AlreadyRegistered bool                  `json:"already_registered"`
	Generation        int64                 `json:"generation"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// NewSession starts flow at step 0 with an empty aggregate.
func NewSession(flow *Flow, now time.Time) *Session {
	steps := make(map[StepID]StepStatus, len(flow.Steps))
	for _, st := range flow.Steps {
		steps[st.ID] = StepStatus{}
	}
	return &Session{
		ID:          id.NewSessionID(),
		Flow:        flow.ID,
		Steps:       steps,
		Data:        NewAggregate(),
		Attachments: map[string]Attachment{},
		Submission:  SubmissionIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	out := *s
	out.Steps = make(map[StepID]StepStatus, len(s.Steps))
	for k, v := range s.Steps {
		out.Steps[k] = v
	}
	out.Data = s.Data.Clone()
	out.Attachments = make(map[string]Attachment, len(s.Attachments))
	for k, v := range s.Attachments {
		out.Attachments[k] = v
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	if s.Outcome != nil {
		o := *s.Outcome
		out.Outcome = &o
	}
	return &out
}

// Attachment returns the attachment bound to field.
func (s *Session) Attachment(field string) (Attachment, bool) {
	a, ok := s.Attachments[field]
	return a, ok
}

// Locked reports whether the session accepts no further edits or submissions.
func (s *Session) Locked() bool {
	return s.Completed || s.AlreadyRegistered || s.Submission == SubmissionSubmitting
}
