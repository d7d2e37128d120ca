// Package sequencer moves a session between the steps of its flow.
//
// States are step indices 0..N-1; the last step is the terminal review step.
// Advancing re-validates the current step, retreating never does, and a
// forward jump needs every step it passes over to be valid.
package sequencer

import (
	"errors"
	"fmt"

	"sprout/internal/wizard/models"
	"sprout/internal/wizard/validation"
	dErrors "sprout/pkg/domain-errors"
)

// AttachmentGate reports required attachments a step is still missing.
type AttachmentGate interface {
	Missing(step *models.StepDefinition, session *models.Session) []models.FieldError
}

// Sequencer enforces the step state machine.
type Sequencer struct {
	engine *validation.Engine
	gate   AttachmentGate
}

func New(engine *validation.Engine, gate AttachmentGate) (*Sequencer, error) {
	if engine == nil {
		return nil, errors.New("validation engine is required")
	}
	if gate == nil {
		return nil, errors.New("attachment gate is required")
	}
	return &Sequencer{engine: engine, gate: gate}, nil
}

// Validate evaluates the step at index against the session: field rules,
// group rules, cross-field invariants and required attachments. The terminal
// step is valid when every step before it is.
func (q *Sequencer) Validate(flow *models.Flow, session *models.Session, index int) (models.ValidationResult, error) {
	step := flow.Step(index)
	if step == nil {
		return models.ValidationResult{}, fmt.Errorf("%w: index %d", models.ErrUnknownStep, index)
	}
	if step.Terminal {
		res := models.ValidationResult{Step: step.ID}
		for i := 0; i < index; i++ {
			prior, _ := q.Validate(flow, session, i)
			res.Merge(prior)
		}
		return res, nil
	}
	res := q.engine.ValidateStep(flow, step, session.Data)
	res.FieldErrors = append(res.FieldErrors, q.gate.Missing(step, session)...)
	return res, nil
}

// CanAdvance reports whether the current step validates cleanly.
func (q *Sequencer) CanAdvance(flow *models.Flow, session *models.Session) bool {
	res, err := q.Validate(flow, session, session.CurrentStep)
	return err == nil && res.OK()
}

// Advance moves to the next step, capped at the last one. An invalid current
// step fails with a NavigationError and the session is returned unchanged.
func (q *Sequencer) Advance(flow *models.Flow, session *models.Session) (*models.Session, error) {
	if session.Locked() {
		return session, models.ErrSessionLocked
	}
	from := session.CurrentStep
	to := min(from+1, flow.LastIndex())

	res, err := q.Validate(flow, session, from)
	if err != nil {
		return session, err
	}
	if !res.OK() {
		return session, &models.NavigationError{
			Reason:     models.NavStepInvalid,
			From:       from,
			To:         to,
			Step:       flow.Step(from).ID,
			Validation: &res,
		}
	}

	next := session.Clone()
	st := next.Steps[res.Step]
	st.Valid = true
	st.Touched = true
	next.Steps[res.Step] = st
	next.CurrentStep = to
	return next, nil
}

// Retreat moves back one step without validating anything.
func (q *Sequencer) Retreat(flow *models.Flow, session *models.Session) (*models.Session, error) {
	if session.Locked() {
		return session, models.ErrSessionLocked
	}
	if session.CurrentStep <= 0 {
		return session, dErrors.New(dErrors.CodeInvalidState, "already at the first step")
	}
	next := session.Clone()
	next.CurrentStep--
	return next, nil
}

// JumpTo moves directly to target. Backward jumps behave like Retreat. A
// forward jump validates the current step, every step strictly between it and
// target, and the target's DependsOn steps; the first invalid one refuses the
// jump with SkipNotAllowed (or StepInvalid when it is the current step).
func (q *Sequencer) JumpTo(flow *models.Flow, session *models.Session, target int) (*models.Session, error) {
	if session.Locked() {
		return session, models.ErrSessionLocked
	}
	if flow.Step(target) == nil {
		return session, fmt.Errorf("%w: index %d", models.ErrUnknownStep, target)
	}
	from := session.CurrentStep
	if target == from {
		return session, nil
	}

	next := session.Clone()
	if target > from {
		for i := from; i < target; i++ {
			res, err := q.Validate(flow, session, i)
			if err != nil {
				return session, err
			}
			if !res.OK() {
				reason := models.NavSkipNotAllowed
				if i == from {
					reason = models.NavStepInvalid
				}
				return session, &models.NavigationError{
					Reason:     reason,
					From:       from,
					To:         target,
					Step:       flow.Step(i).ID,
					Validation: &res,
				}
			}
			st := next.Steps[res.Step]
			st.Valid = true
			next.Steps[res.Step] = st
		}
		if err := q.checkDependencies(flow, session, from, target); err != nil {
			return session, err
		}
	}
	next.CurrentStep = target
	return next, nil
}

// checkDependencies validates the target's DependsOn steps that the forward
// walk from..target did not already cover.
func (q *Sequencer) checkDependencies(flow *models.Flow, session *models.Session, from, target int) error {
	for _, dep := range flow.Step(target).DependsOn {
		i, ok := flow.StepIndex(dep)
		if !ok {
			return fmt.Errorf("%w: %s", models.ErrUnknownStep, dep)
		}
		if i >= from && i < target {
			continue
		}
		res, err := q.Validate(flow, session, i)
		if err != nil {
			return err
		}
		if !res.OK() {
			return &models.NavigationError{
				Reason:     models.NavSkipNotAllowed,
				From:       from,
				To:         target,
				Step:       dep,
				Validation: &res,
			}
		}
	}
	return nil
}

// Refresh recomputes every step's validity from the current aggregate.
// Validity is derived state; callers never set it directly.
func (q *Sequencer) Refresh(flow *models.Flow, session *models.Session) *models.Session {
	next := session.Clone()
	for i := range flow.Steps {
		res, err := q.Validate(flow, session, i)
		st := next.Steps[flow.Steps[i].ID]
		st.Valid = err == nil && res.OK()
		next.Steps[flow.Steps[i].ID] = st
	}
	return next
}

// InvalidSteps lists the non-terminal steps that currently fail validation.
func (q *Sequencer) InvalidSteps(flow *models.Flow, session *models.Session) []models.StepID {
	var invalid []models.StepID
	for i := range flow.Steps {
		if flow.Steps[i].Terminal {
			continue
		}
		if res, err := q.Validate(flow, session, i); err != nil || !res.OK() {
			invalid = append(invalid, flow.Steps[i].ID)
		}
	}
	return invalid
}
