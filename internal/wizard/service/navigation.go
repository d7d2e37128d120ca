package service

import (
	"context"
	"errors"
	"fmt"

	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
	audit "sprout/pkg/platform/audit"
)

// ValidateStep evaluates a step without changing the session.
func (s *Service) ValidateStep(ctx context.Context, sessionID id.SessionID, stepID models.StepID) (models.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return models.ValidationResult{}, err
	}
	index, ok := flow.StepIndex(stepID)
	if !ok {
		return models.ValidationResult{}, fmt.Errorf("%w: %s", models.ErrUnknownStep, stepID)
	}
	return s.sequencer.Validate(flow, session, index)
}

func (s *Service) Advance(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	return s.navigate(ctx, sessionID, "advance", audit.EventStepAdvanced, func(flow *models.Flow, session *models.Session) (*models.Session, error) {
		return s.sequencer.Advance(flow, session)
	})
}

func (s *Service) Retreat(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	return s.navigate(ctx, sessionID, "retreat", audit.EventStepRetreated, func(flow *models.Flow, session *models.Session) (*models.Session, error) {
		return s.sequencer.Retreat(flow, session)
	})
}

func (s *Service) JumpTo(ctx context.Context, sessionID id.SessionID, target int) (*models.Session, error) {
	return s.navigate(ctx, sessionID, "jump", audit.EventStepJumped, func(flow *models.Flow, session *models.Session) (*models.Session, error) {
		return s.sequencer.JumpTo(flow, session, target)
	})
}

type transition func(flow *models.Flow, session *models.Session) (*models.Session, error)

func (s *Service) navigate(ctx context.Context, sessionID id.SessionID, kind string, event audit.AuditEvent, move transition) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := move(flow, session)
	if err != nil {
		result := "refused"
		var nav *models.NavigationError
		if errors.As(err, &nav) {
			result = string(nav.Reason)
			s.metrics.IncValidationFailure(flow.ID.String(), string(nav.Step))
		}
		s.metrics.IncTransition(flow.ID.String(), kind, result)
		return session, err
	}
	next, err = s.save(ctx, flow, next)
	if err != nil {
		return session, err
	}
	s.metrics.IncTransition(flow.ID.String(), kind, "ok")
	s.logAudit(ctx, next, event, "step", stepName(flow, next.CurrentStep))
	return next, nil
}
