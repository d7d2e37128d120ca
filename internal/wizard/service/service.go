// Package service is the single owner of wizard sessions. Every transition runs
// under one mutex as load, transition, refresh and save, so the session value
// in the store is always the result of a complete transition.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"sprout/internal/wizard/accumulator"
	"sprout/internal/wizard/attachment"
	"sprout/internal/wizard/metrics"
	"sprout/internal/wizard/models"
	"sprout/internal/wizard/sequencer"
	"sprout/internal/wizard/store"
	"sprout/internal/wizard/submission"
	"sprout/pkg/attrs"
	id "sprout/pkg/domain"
	dErrors "sprout/pkg/domain-errors"
	audit "sprout/pkg/platform/audit"
	"sprout/pkg/requestcontext"
)

type FlowSource interface {
	Get(flowID id.FlowID) (*models.Flow, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates the wizard engine for every session.
type Service struct {
	mu sync.Mutex

	flows       FlowSource
	sessions    store.Store
	accumulator *accumulator.Accumulator
	sequencer   *sequencer.Sequencer
	attachments *attachment.Manager
	coordinator *submission.Coordinator

	status         submission.StatusProvider
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger

	inflight sync.WaitGroup
	cancels  map[id.SessionID]context.CancelFunc
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStatusProvider lets Start consult the read model for an existing
// registration.
func WithStatusProvider(p submission.StatusProvider) Option {
	return func(s *Service) {
		s.status = p
	}
}

// Components are the engine parts the service drives.
type Components struct {
	Accumulator *accumulator.Accumulator
	Sequencer   *sequencer.Sequencer
	Attachments *attachment.Manager
	Coordinator *submission.Coordinator
}

// New wires the service and registers it for preview completions.
func New(flows FlowSource, sessions store.Store, c Components, opts ...Option) (*Service, error) {
	switch {
	case flows == nil:
		return nil, errors.New("flow source is required")
	case sessions == nil:
		return nil, errors.New("session store is required")
	case c.Accumulator == nil:
		return nil, errors.New("accumulator is required")
	case c.Sequencer == nil:
		return nil, errors.New("sequencer is required")
	case c.Attachments == nil:
		return nil, errors.New("attachment manager is required")
	case c.Coordinator == nil:
		return nil, errors.New("submission coordinator is required")
	}
	s := &Service{
		flows:       flows,
		sessions:    sessions,
		accumulator: c.Accumulator,
		sequencer:   c.Sequencer,
		attachments: c.Attachments,
		coordinator: c.Coordinator,
		logger:      slog.Default(),
		cancels:     make(map[id.SessionID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	c.Attachments.SetPreviewCallback(s.onPreview)
	return s, nil
}

// StartOptions carries the read-model precondition for a new session.
type StartOptions struct {
	// Subject identifies the user to the read model (phone, email, wallet).
	Subject string
	// AlreadyRegistered short-circuits the read model lookup.
	AlreadyRegistered bool
	EntityID          id.EntityID
}

// Start creates a session at step 0. When the subject is already registered the
// session goes straight to the informational terminal state with submission
// disabled.
func (s *Service) Start(ctx context.Context, flowID id.FlowID, opts StartOptions) (*models.Session, error) {
	flow, err := s.flows.Get(flowID)
	if err != nil {
		return nil, err
	}
	registered, entityID := opts.AlreadyRegistered, opts.EntityID
	if !registered && s.status != nil && opts.Subject != "" {
		st, err := s.status.RegistrationStatus(ctx, flowID, opts.Subject)
		if err != nil {
			s.logger.WarnContext(ctx, "registration status lookup failed",
				"flow", flowID.String(),
				"error", err,
			)
		} else {
			registered, entityID = st.Registered, st.EntityID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := requestcontext.Now(ctx)
	session := models.NewSession(flow, now)
	if registered {
		session.AlreadyRegistered = true
		session.CurrentStep = flow.LastIndex()
		session.Outcome = &models.Outcome{
			State:          models.SubmissionFailed,
			Classification: models.ClassTerminal,
			Affordance:     models.AffordanceDashboard,
			EntityID:       entityID,
			Message:        "already registered",
			ResolvedAt:     now,
		}
	}
	session, err = s.save(ctx, flow, session)
	if err != nil {
		return nil, err
	}
	s.metrics.IncSessionStarted(flowID.String())
	decision := "new"
	if registered {
		decision = "already_registered"
	}
	s.logAudit(ctx, session, audit.EventSessionStarted, "decision", decision)
	return session, nil
}

// Get returns the current session value.
func (s *Service) Get(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, _, err := s.load(ctx, sessionID)
	return session, err
}

// CanSubmit reports whether the submit control should be enabled.
func (s *Service) CanSubmit(ctx context.Context, sessionID id.SessionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, flow, err := s.load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return submission.CanSubmit(session) && len(s.sequencer.InvalidSteps(flow, session)) == 0, nil
}

// Close waits for in-flight submissions and previews to settle.
func (s *Service) Close() {
	s.inflight.Wait()
	s.attachments.Wait()
}

func (s *Service) load(ctx context.Context, sessionID id.SessionID) (*models.Session, *models.Flow, error) {
	session, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		if errors.Is(err, store.ErrUnavailable) {
			return nil, nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "session store unavailable")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	flow, err := s.flows.Get(session.Flow)
	if err != nil {
		return nil, nil, err
	}
	return session, flow, nil
}

// save recomputes step validity, bumps the generation and persists.
func (s *Service) save(ctx context.Context, flow *models.Flow, session *models.Session) (*models.Session, error) {
	next := s.sequencer.Refresh(flow, session)
	next.Generation++
	next.UpdatedAt = requestcontext.Now(ctx)
	if err := s.sessions.Save(ctx, next); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "session store unavailable")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
	return next, nil
}

func (s *Service) logAudit(ctx context.Context, session *models.Session, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes,
		"event", string(event),
		"session_id", session.ID.String(),
		"flow", session.Flow.String(),
		"log_type", "audit",
	)
	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event), args...)
	}
	if s.auditPublisher == nil {
		return
	}
	err := s.auditPublisher.Emit(ctx, audit.Event{
		SessionID: session.ID,
		Flow:      session.Flow,
		Action:    string(event),
		Step:      attrs.ExtractString(attributes, "step"),
		Field:     attrs.ExtractString(attributes, "field"),
		Decision:  attrs.ExtractString(attributes, "decision"),
		Reason:    attrs.ExtractString(attributes, "reason"),
		EntityID:  attrs.ExtractString(attributes, "entity_id"),
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "audit event not recorded",
			"event", string(event),
			"session_id", session.ID.String(),
			"error", err,
		)
	}
}

// attachmentStep names the step owning an attachment field.
func attachmentStep(flow *models.Flow, field string) string {
	if _, step, ok := flow.AttachmentSpec(field); ok {
		return string(step.ID)
	}
	return ""
}

func stepName(flow *models.Flow, index int) string {
	if st := flow.Step(index); st != nil {
		return string(st.ID)
	}
	return ""
}
