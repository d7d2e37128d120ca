package service

import (
	"context"
	"errors"

	"sprout/internal/wizard/accumulator"
	"sprout/internal/wizard/attachment"
	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
	audit "sprout/pkg/platform/audit"
)

// CommitStep merges a step's partial data into the session. On validation
// failure the stored session is unchanged and the result lists every error.
func (s *Service) CommitStep(ctx context.Context, sessionID id.SessionID, stepID models.StepID, partial accumulator.Partial) (*models.Session, models.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, models.ValidationResult{}, err
	}
	next, res, err := s.accumulator.CommitStep(flow, session, stepID, partial)
	if err != nil {
		if !res.OK() {
			s.metrics.IncValidationFailure(flow.ID.String(), string(stepID))
		}
		return session, res, err
	}
	next, err = s.save(ctx, flow, next)
	if err != nil {
		return session, res, err
	}
	s.logAudit(ctx, next, audit.EventStepCommitted, "step", string(stepID))
	return next, res, nil
}

func (s *Service) AddGroupItem(ctx context.Context, sessionID id.SessionID, groupKey string) (*models.Session, id.ItemID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, id.ItemID{}, err
	}
	next, itemID, err := s.accumulator.AddGroupItem(flow, session, groupKey)
	if err != nil {
		return session, id.ItemID{}, err
	}
	next, err = s.save(ctx, flow, next)
	if err != nil {
		return session, id.ItemID{}, err
	}
	return next, itemID, nil
}

func (s *Service) UpdateGroupItem(ctx context.Context, sessionID id.SessionID, groupKey string, itemID id.ItemID, values map[string]any) (*models.Session, models.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, models.ValidationResult{}, err
	}
	next, res, err := s.accumulator.UpdateGroupItem(flow, session, groupKey, itemID, values)
	if err != nil {
		return session, res, err
	}
	next, err = s.save(ctx, flow, next)
	if err != nil {
		return session, res, err
	}
	return next, res, nil
}

// RemoveGroupItem refuses to drop the last item of a group that needs one.
func (s *Service) RemoveGroupItem(ctx context.Context, sessionID id.SessionID, groupKey string, itemID id.ItemID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := s.accumulator.RemoveGroupItem(flow, session, groupKey, itemID)
	if err != nil {
		return session, err
	}
	return s.save(ctx, flow, next)
}

func (s *Service) RecalculateDerived(ctx context.Context, sessionID id.SessionID, groupKey string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := s.accumulator.RecalculateDerived(flow, session, groupKey)
	if err != nil {
		return session, err
	}
	return s.save(ctx, flow, next)
}

// Attach validates and binds a file. A rejection leaves the session and every
// other attachment untouched.
func (s *Service) Attach(ctx context.Context, sessionID id.SessionID, field string, file attachment.File) (*models.Session, models.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, models.Attachment{}, err
	}
	next, att, err := s.attachments.Attach(ctx, flow, session, field, file)
	if err != nil {
		var ae *models.AttachmentError
		if errors.As(err, &ae) {
			s.metrics.IncAttachmentRejected(flow.ID.String(), string(ae.Reason))
			s.logAudit(ctx, session, audit.EventAttachmentRejected,
				"step", attachmentStep(flow, field), "field", field, "reason", string(ae.Reason))
		}
		return session, models.Attachment{}, err
	}
	next, err = s.save(ctx, flow, next)
	if err != nil {
		return session, models.Attachment{}, err
	}
	s.logAudit(ctx, next, audit.EventAttachmentAdded, "step", attachmentStep(flow, field), "field", field)
	return next, att, nil
}

func (s *Service) Detach(ctx context.Context, sessionID id.SessionID, field string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	_, had := session.Attachment(field)
	next, err := s.attachments.Detach(flow, session, field)
	if err != nil {
		return session, err
	}
	if !had {
		return session, nil
	}
	next, err = s.save(ctx, flow, next)
	if err != nil {
		return session, err
	}
	s.logAudit(ctx, next, audit.EventAttachmentRemoved, "step", attachmentStep(flow, field), "field", field)
	return next, nil
}
