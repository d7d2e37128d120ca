package models

import (
	"errors"
	"fmt"

	id "sprout/pkg/domain"
)

// Sentinel errors for the wizard error taxonomy. The typed errors below unwrap
// to these so callers can use errors.Is for the reason and errors.As for detail.
var (
	ErrStepInvalid       = errors.New("step invalid")
	ErrSkipNotAllowed    = errors.New("skip not allowed")
	ErrCannotRemoveLast  = errors.New("cannot remove last item")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrTooLarge          = errors.New("file too large")
	ErrAlreadyInFlight   = errors.New("submission already in flight")
	ErrIncompleteSession = errors.New("session incomplete")
	ErrAlreadySubmitted  = errors.New("session already submitted")
	ErrSessionLocked     = errors.New("session locked")

	// Programmer errors: the caller named something the flow does not define.
	ErrUnknownStep  = errors.New("unknown step")
	ErrUnknownField = errors.New("unknown field")
	ErrUnknownGroup = errors.New("unknown group")
	ErrUnknownItem  = errors.New("unknown group item")
)

// NavigationReason classifies a refused transition.
type NavigationReason string

const (
	NavStepInvalid    NavigationReason = "step_invalid"
	NavSkipNotAllowed NavigationReason = "skip_not_allowed"
)

// NavigationError reports a transition that violates the step state machine.
type NavigationError struct {
	Reason     NavigationReason
	From       int
	To         int
	Step       StepID            // the step that blocked the transition
	Validation *ValidationResult // set for NavStepInvalid
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation %d -> %d refused [%s] at step %s", e.From, e.To, e.Reason, e.Step)
}

func (e *NavigationError) Unwrap() error {
	if e.Reason == NavSkipNotAllowed {
		return ErrSkipNotAllowed
	}
	return ErrStepInvalid
}

// RemovalError reports a refused group item removal.
type RemovalError struct {
	Group  string
	ItemID id.ItemID
}

func (e *RemovalError) Error() string {
	return fmt.Sprintf("cannot remove the last item of %s", e.Group)
}

func (e *RemovalError) Unwrap() error {
	return ErrCannotRemoveLast
}

// AttachmentReason classifies a rejected file.
type AttachmentReason string

const (
	AttachUnsupportedType AttachmentReason = "unsupported_type"
	AttachTooLarge        AttachmentReason = "too_large"
)

// AttachmentError is scoped to one attachment field; other fields are unaffected.
type AttachmentError struct {
	Reason   AttachmentReason
	Field    string
	MimeType string
	Size     int64
	Limit    int64
	Message  string
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment %s [%s]: %s", e.Field, e.Reason, e.Message)
}

func (e *AttachmentError) Unwrap() error {
	if e.Reason == AttachTooLarge {
		return ErrTooLarge
	}
	return ErrUnsupportedType
}

// SubmissionReason classifies a refused or failed submission.
type SubmissionReason string

const (
	SubmitAlreadyInFlight   SubmissionReason = "already_in_flight"
	SubmitIncompleteSession SubmissionReason = "incomplete_session"
	SubmitAlreadySubmitted  SubmissionReason = "already_submitted"
)

// SubmissionError is returned when submit is refused before any network call.
type SubmissionError struct {
	Reason       SubmissionReason
	InvalidSteps []StepID
}

func (e *SubmissionError) Error() string {
	if len(e.InvalidSteps) > 0 {
		return fmt.Sprintf("submission refused [%s]: invalid steps %v", e.Reason, e.InvalidSteps)
	}
	return fmt.Sprintf("submission refused [%s]", e.Reason)
}

func (e *SubmissionError) Unwrap() error {
	switch e.Reason {
	case SubmitAlreadyInFlight:
		return ErrAlreadyInFlight
	case SubmitIncompleteSession:
		return ErrIncompleteSession
	default:
		return ErrAlreadySubmitted
	}
}
