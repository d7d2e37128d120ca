package domain

import (
	"regexp"

	dErrors "sprout/pkg/domain-errors"
)

// FlowID names a guided submission flow (e.g. "farmer_registration").
// Invariant: lowercase snake_case, 3-64 characters.
//
// Usage: construct via ParseFlowID at trust boundaries; direct casting bypasses
// validation and is reserved for constants.
type FlowID string

var flowIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{2,63}$`)

// ParseFlowID constructs a FlowID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or malformed.
func ParseFlowID(s string) (FlowID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "flow id cannot be empty")
	}
	if !flowIDPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid flow id: "+s)
	}
	return FlowID(s), nil
}

func (f FlowID) String() string {
	return string(f)
}

// EntityID is the identifier the registration service assigns to a created
// entity. It is opaque to the wizard.
type EntityID string

func (e EntityID) String() string {
	return string(e)
}
