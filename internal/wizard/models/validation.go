package models

import (
	"strings"

	id "sprout/pkg/domain"
	dErrors "sprout/pkg/domain-errors"
)

// FieldError is a local, immediately correctable failure of one field rule.
// Group and ItemID are set when the field belongs to a group item.
type FieldError struct {
	Field   string    `json:"field"`
	Group   string    `json:"group,omitempty"`
	ItemID  id.ItemID `json:"item_id"`
	Rule    RuleKind  `json:"rule"`
	Message string    `json:"message"`
}

// CrossFieldError names the violated invariant, not just the failing fields.
type CrossFieldError struct {
	RuleID  string        `json:"rule_id"`
	Kind    CrossRuleKind `json:"kind"`
	Fields  []string      `json:"fields"`
	Message string        `json:"message"`
}

// ValidationResult collects the errors of one step evaluation.
type ValidationResult struct {
	Step             StepID            `json:"step"`
	FieldErrors      []FieldError      `json:"field_errors,omitempty"`
	CrossFieldErrors []CrossFieldError `json:"cross_field_errors,omitempty"`
}

// OK reports whether the evaluation found no errors.
func (r ValidationResult) OK() bool {
	return len(r.FieldErrors) == 0 && len(r.CrossFieldErrors) == 0
}

// ErrorsFor returns the field errors reported for key.
func (r ValidationResult) ErrorsFor(key string) []FieldError {
	var out []FieldError
	for _, fe := range r.FieldErrors {
		if fe.Field == key {
			out = append(out, fe)
		}
	}
	return out
}

// HasCrossRule reports whether the invariant with the given ID failed.
func (r ValidationResult) HasCrossRule(ruleID string) bool {
	for _, ce := range r.CrossFieldErrors {
		if ce.RuleID == ruleID {
			return true
		}
	}
	return false
}

// Merge appends other's errors.
func (r *ValidationResult) Merge(other ValidationResult) {
	r.FieldErrors = append(r.FieldErrors, other.FieldErrors...)
	r.CrossFieldErrors = append(r.CrossFieldErrors, other.CrossFieldErrors...)
}

// Messages returns every message in evaluation order.
func (r ValidationResult) Messages() []string {
	msgs := make([]string, 0, len(r.FieldErrors)+len(r.CrossFieldErrors))
	for _, fe := range r.FieldErrors {
		msgs = append(msgs, fe.Message)
	}
	for _, ce := range r.CrossFieldErrors {
		msgs = append(msgs, ce.Message)
	}
	return msgs
}

// Err converts a failed result into a CodeValidation error; nil when OK.
func (r ValidationResult) Err() error {
	if r.OK() {
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, "step "+string(r.Step)+": "+strings.Join(r.Messages(), "; "))
}
