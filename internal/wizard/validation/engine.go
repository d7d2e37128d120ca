// Package validation evaluates field rules and cross-field invariants for a
// step's slice of the aggregate. Everything here is pure: no I/O, no mutation.
package validation

import (
	"fmt"

	"sprout/internal/wizard/models"
)

// Engine validates steps of a flow.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// ValidateStep applies every field rule of the step, then group rules, then every
// cross-field rule of the flow whose scope intersects the step's keys.
func (e *Engine) ValidateStep(flow *models.Flow, step *models.StepDefinition, agg models.Aggregate) models.ValidationResult {
	res := models.ValidationResult{Step: step.ID}

	for _, f := range step.Fields {
		rules := ApplicableRules(f.Rules, agg.Fields)
		res.FieldErrors = append(res.FieldErrors, ValidateField(f.Key, agg.Fields[f.Key], rules)...)
	}

	for i := range step.Groups {
		spec := &step.Groups[i]
		res.Merge(e.validateGroup(spec, agg.Group(spec.Key), true))
	}

	res.CrossFieldErrors = append(res.CrossFieldErrors, e.CheckInvariants(flow, step, agg)...)
	return res
}

// ValidateKeys applies field rules for the given keys only. Groups named in keys
// have their items validated; the minimum item count is left to ValidateStep.
// Cross-field rules are not evaluated.
func (e *Engine) ValidateKeys(step *models.StepDefinition, agg models.Aggregate, keys []string) models.ValidationResult {
	res := models.ValidationResult{Step: step.ID}
	for _, key := range keys {
		if f, ok := step.Field(key); ok {
			rules := ApplicableRules(f.Rules, agg.Fields)
			res.FieldErrors = append(res.FieldErrors, ValidateField(key, agg.Fields[key], rules)...)
			continue
		}
		if g, ok := step.Group(key); ok {
			res.Merge(e.validateGroup(g, agg.Group(key), false))
		}
	}
	return res
}

// ValidateItem validates one group item against the group's item field rules.
// Conditions on item rules are evaluated against the item's own values.
func (e *Engine) ValidateItem(spec *models.GroupSpec, item models.Item) []models.FieldError {
	var errs []models.FieldError
	for _, f := range spec.ItemFields {
		rules := ApplicableRules(f.Rules, item.Values)
		for _, fe := range ValidateField(f.Key, item.Values[f.Key], rules) {
			fe.Group = spec.Key
			fe.ItemID = item.ID
			errs = append(errs, fe)
		}
	}
	return errs
}

// CheckInvariants evaluates the flow's cross-field rules that touch the step.
func (e *Engine) CheckInvariants(flow *models.Flow, step *models.StepDefinition, agg models.Aggregate) []models.CrossFieldError {
	var errs []models.CrossFieldError
	for _, r := range flow.CrossRules {
		if !intersects(r.Scope(), step) {
			continue
		}
		if ce, violated := CheckInvariant(r, agg); violated {
			errs = append(errs, ce)
		}
	}
	return errs
}

func (e *Engine) validateGroup(spec *models.GroupSpec, g *models.Group, checkMin bool) models.ValidationResult {
	var res models.ValidationResult
	if checkMin && g.Len() < spec.MinItems {
		msg := spec.MinItemsMessage
		if msg == "" {
			msg = fmt.Sprintf("%s requires at least %d item(s)", spec.Key, spec.MinItems)
		}
		res.FieldErrors = append(res.FieldErrors, models.FieldError{
			Field:   spec.Key,
			Group:   spec.Key,
			Rule:    models.RuleRequired,
			Message: msg,
		})
	}
	if g == nil {
		return res
	}
	for _, item := range g.Items {
		res.FieldErrors = append(res.FieldErrors, e.ValidateItem(spec, item)...)
	}
	return res
}

func intersects(scope []string, step *models.StepDefinition) bool {
	for _, key := range scope {
		if step.Owns(key) {
			return true
		}
	}
	return false
}
