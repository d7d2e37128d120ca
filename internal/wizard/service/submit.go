package service

import (
	"context"
	"errors"
	"time"

	"sprout/internal/wizard/attachment"
	"sprout/internal/wizard/models"
	"sprout/internal/wizard/store"
	id "sprout/pkg/domain"
	dErrors "sprout/pkg/domain-errors"
	audit "sprout/pkg/platform/audit"
)

// Submit starts the registration call and returns a channel that delivers the
// mapped outcome once. Refusals (in flight, incomplete, already submitted) are
// returned synchronously and never reach the registration service. The channel
// is closed without a value when the result arrives for a session that was
// abandoned or has moved on.
func (s *Service) Submit(ctx context.Context, sessionID id.SessionID) (<-chan models.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	next, err := s.coordinator.Begin(ctx, flow, session)
	if err != nil {
		return nil, err
	}
	next, err = s.save(ctx, flow, next)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, next, audit.EventSubmissionStarted)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancels[sessionID] = cancel
	generation := next.Generation
	out := make(chan models.Outcome, 1)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(out)
		defer cancel()

		start := time.Now()
		result := s.coordinator.Execute(runCtx, flow, next)
		if outcome, live := s.resolve(runCtx, flow, sessionID, generation, result, time.Since(start)); live {
			out <- outcome
		}
	}()
	return out, nil
}

// resolve applies a registration result if the session is still the one that
// started the submission.
func (s *Service) resolve(ctx context.Context, flow *models.Flow, sessionID id.SessionID, generation int64, result models.Result, elapsed time.Duration) (models.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancels, sessionID)

	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.ErrorContext(ctx, "failed to load session for submission result",
				"session_id", sessionID.String(),
				"error", err,
			)
		}
		s.discard(ctx, "submission", sessionID, flow.ID)
		return models.Outcome{}, false
	}
	if session.Generation != generation || session.Submission != models.SubmissionSubmitting {
		s.discard(ctx, "submission", sessionID, flow.ID)
		return models.Outcome{}, false
	}

	next, outcome, applyErr := s.coordinator.Apply(ctx, flow, session, result)
	if applyErr != nil {
		s.logger.ErrorContext(ctx, "registration result not applied cleanly",
			"session_id", sessionID.String(),
			"error", applyErr,
		)
	}
	if _, err := s.save(ctx, flow, next); err != nil {
		s.logger.ErrorContext(ctx, "failed to save submission outcome",
			"session_id", sessionID.String(),
			"error", err,
		)
	}
	s.metrics.ObserveSubmission(flow.ID.String(), string(outcome.Classification), elapsed)
	s.logAudit(ctx, next, audit.EventSubmissionResolved,
		"decision", string(outcome.Classification),
		"reason", outcome.Message,
		"entity_id", outcome.EntityID.String(),
	)
	return outcome, true
}

// onPreview records a finished preview on the session that still holds the
// attachment. Previews are not user transitions and leave the generation alone.
func (s *Service) onPreview(res attachment.PreviewResult) {
	ctx := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.sessions.Load(ctx, res.SessionID)
	if err != nil {
		s.discard(ctx, "preview", res.SessionID, "")
		return
	}
	att, ok := session.Attachment(res.Field)
	if !ok || att.ID != res.AttachmentID {
		s.discard(ctx, "preview", res.SessionID, session.Flow)
		return
	}
	next := session.Clone()
	if res.Err != nil {
		att.PreviewStatus = models.PreviewFailed
	} else {
		att.PreviewStatus = models.PreviewReady
		att.PreviewHandle = res.Handle
	}
	next.Attachments[res.Field] = att
	if err := s.sessions.Save(ctx, next); err != nil {
		s.logger.Error("failed to save preview",
			"session_id", res.SessionID.String(),
			"error", err,
		)
	}
}

func (s *Service) discard(ctx context.Context, kind string, sessionID id.SessionID, flowID id.FlowID) {
	s.metrics.IncStaleCompletion(kind)
	s.logAudit(ctx, &models.Session{ID: sessionID, Flow: flowID}, audit.EventStaleCompletion, "reason", kind)
}

// Abandon destroys the session, cancels its in-flight submission and frees its
// attachment bytes. A result that arrives later is discarded.
func (s *Service) Abandon(ctx context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, _, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if cancel, ok := s.cancels[sessionID]; ok {
		cancel()
		delete(s.cancels, sessionID)
	}
	if err := s.end(ctx, session); err != nil {
		return err
	}
	s.metrics.IncSessionFinished(session.Flow.String(), "abandoned")
	s.logAudit(ctx, session, audit.EventSessionAbandoned)
	return nil
}

// Complete destroys a session that reached its end: a successful submission or
// the already-registered informational state.
func (s *Service) Complete(ctx context.Context, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, _, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Completed && !session.AlreadyRegistered {
		return dErrors.New(dErrors.CodeInvalidState, "session has not completed")
	}
	if err := s.end(ctx, session); err != nil {
		return err
	}
	reason := "completed"
	if session.AlreadyRegistered {
		reason = "already_registered"
	}
	s.metrics.IncSessionFinished(session.Flow.String(), reason)
	s.logAudit(ctx, session, audit.EventSessionCompleted, "entity_id", entityOf(session))
	return nil
}

func (s *Service) end(ctx context.Context, session *models.Session) error {
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete session")
	}
	s.attachments.Release(session.ID)
	return nil
}

func entityOf(session *models.Session) string {
	if session.Outcome == nil {
		return ""
	}
	return session.Outcome.EntityID.String()
}
