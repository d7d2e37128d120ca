// Package submission turns a finished session into one registration call and
// maps the tagged result back onto the session.
//
// The lifecycle is idle -> submitting -> {succeeded | failed}. A failed session
// may be submitted again; a succeeded one never is.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"sprout/internal/wizard/models"
	dErrors "sprout/pkg/domain-errors"
	"sprout/pkg/requestcontext"
)

const (
	defaultTimeout           = 30 * time.Second
	defaultIngestConcurrency = 4

	// TimeoutMessage is surfaced when the registration call does not resolve in time.
	TimeoutMessage = "submission timed out"
)

// Validator reports the steps of a session that currently fail validation.
type Validator interface {
	InvalidSteps(flow *models.Flow, session *models.Session) []models.StepID
}

// Coordinator runs submissions.
type Coordinator struct {
	registrar         Registrar
	ingestor          Ingestor
	blobs             BlobSource
	validator         Validator
	timeout           time.Duration
	ingestConcurrency int
	tracer            trace.Tracer
	logger            *slog.Logger
}

type Option func(*Coordinator)

// WithTimeout bounds the whole execution: ingestion plus the registration call.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithIngestConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.ingestConcurrency = n
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func New(registrar Registrar, ingestor Ingestor, blobs BlobSource, validator Validator, opts ...Option) (*Coordinator, error) {
	if registrar == nil {
		return nil, errors.New("registrar is required")
	}
	if ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if blobs == nil {
		return nil, errors.New("blob source is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	c := &Coordinator{
		registrar:         registrar,
		ingestor:          ingestor,
		blobs:             blobs,
		validator:         validator,
		timeout:           defaultTimeout,
		ingestConcurrency: defaultIngestConcurrency,
		tracer:            otel.Tracer("sprout/internal/wizard/submission"),
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CanSubmit reports whether the submit control should be enabled. It is
// disabled while a submission is in flight and forever after success or a
// terminal already-registered outcome.
func CanSubmit(session *models.Session) bool {
	return refusal(session) == nil
}

func refusal(session *models.Session) *models.SubmissionError {
	switch {
	case session.Submission == models.SubmissionSubmitting:
		return &models.SubmissionError{Reason: models.SubmitAlreadyInFlight}
	case session.Submission == models.SubmissionSucceeded,
		session.Completed,
		session.AlreadyRegistered,
		session.Outcome != nil && session.Outcome.Classification == models.ClassTerminal:
		return &models.SubmissionError{Reason: models.SubmitAlreadySubmitted}
	}
	return nil
}

// Begin checks the submission guards and moves the session to submitting. It
// never calls out: a refused submission costs no network traffic.
func (c *Coordinator) Begin(ctx context.Context, flow *models.Flow, session *models.Session) (*models.Session, error) {
	if err := refusal(session); err != nil {
		return session, err
	}
	if invalid := c.validator.InvalidSteps(flow, session); len(invalid) > 0 {
		return session, &models.SubmissionError{Reason: models.SubmitIncompleteSession, InvalidSteps: invalid}
	}
	next := session.Clone()
	next.Submission = models.SubmissionSubmitting
	next.LastError = nil
	next.UpdatedAt = requestcontext.Now(ctx)
	return next, nil
}

// Execute ingests the session's attachments, shapes the payload and calls the
// registrar exactly once. It always returns a result: transport failures,
// ingestion failures and timeouts become Errored so the session can never stay
// in submitting.
func (c *Coordinator) Execute(ctx context.Context, flow *models.Flow, session *models.Session) models.Result {
	ctx, span := c.tracer.Start(ctx, "submission.execute", trace.WithAttributes(
		attribute.String("flow", flow.ID.String()),
		attribute.String("session_id", session.ID.String()),
		attribute.Int("attachments", len(session.Attachments)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	refs, err := c.ingest(ctx, session)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.fail(span, session, TimeoutMessage, err)
		}
		return c.fail(span, session, "attachment ingestion failed: "+err.Error(), err)
	}

	payload := BuildPayload(flow, session.Data, refs)
	result, err := c.register(ctx, flow, payload)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return c.fail(span, session, TimeoutMessage, err)
	case err != nil:
		return c.fail(span, session, err.Error(), err)
	case result == nil:
		return c.fail(span, session, "registration service returned no result", nil)
	}
	span.SetAttributes(attribute.String("result", fmt.Sprintf("%T", result)))
	return result
}

// register runs the call on its own goroutine so a registrar that ignores
// cancellation still cannot hold the session past the deadline.
func (c *Coordinator) register(ctx context.Context, flow *models.Flow, payload models.Payload) (models.Result, error) {
	type reply struct {
		result models.Result
		err    error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := c.registrar.Register(ctx, flow.ID, payload)
		done <- reply{result: res, err: err}
	}()

	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) ingest(ctx context.Context, session *models.Session) (map[string]models.Reference, error) {
	refs := make(map[string]models.Reference, len(session.Attachments))
	if len(session.Attachments) == 0 {
		return refs, nil
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.ingestConcurrency)
	for field, att := range session.Attachments {
		g.Go(func() error {
			data, ok := c.blobs.Blob(att.ID)
			if !ok {
				return fmt.Errorf("%s: file is no longer available", field)
			}
			ref, err := c.ingestor.Ingest(ctx, att, data)
			if err != nil {
				return fmt.Errorf("%s: %w", field, err)
			}
			mu.Lock()
			refs[field] = ref
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return refs, nil
}

func (c *Coordinator) fail(span trace.Span, session *models.Session, msg string, err error) models.Result {
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, msg)
	c.logger.Warn("submission failed",
		"session_id", session.ID.String(),
		"flow", session.Flow.String(),
		"reason", msg,
	)
	return models.Errored{Message: msg}
}

// Apply maps the tagged result onto the session. This is the only place
// results are interpreted; the switch is exhaustive and an unrecognized
// variant is an error. The session must still be submitting.
func (c *Coordinator) Apply(ctx context.Context, flow *models.Flow, session *models.Session, result models.Result) (*models.Session, models.Outcome, error) {
	if session.Submission != models.SubmissionSubmitting {
		return session, models.Outcome{}, dErrors.New(dErrors.CodeInvalidState, "session is not submitting")
	}
	now := requestcontext.Now(ctx)
	next := session.Clone()
	next.UpdatedAt = now
	outcome := models.Outcome{ResolvedAt: now}

	switch r := result.(type) {
	case models.Success:
		outcome.State = models.SubmissionSucceeded
		outcome.Classification = models.ClassSucceeded
		outcome.Affordance = models.AffordanceDashboard
		outcome.EntityID = r.EntityID
		next.CurrentStep = flow.LastIndex()
		next.Completed = true
		next.LastError = nil
	case models.AlreadyRegistered:
		outcome.State = models.SubmissionFailed
		outcome.Classification = models.ClassTerminal
		outcome.Affordance = models.AffordanceDashboard
		outcome.EntityID = r.EntityID
		outcome.Message = "already registered"
		next.LastError = &models.ErrorInfo{Kind: "already_registered", Message: outcome.Message}
	case models.InvalidData:
		outcome.State = models.SubmissionFailed
		outcome.Classification = models.ClassCorrectable
		outcome.Affordance = models.AffordanceCorrectFields
		outcome.Message = r.Reason
		next.LastError = &models.ErrorInfo{Kind: "invalid_data", Message: r.Reason, Retryable: true}
	case models.Errored:
		outcome.State = models.SubmissionFailed
		outcome.Classification = models.ClassRetryable
		outcome.Affordance = models.AffordanceRetry
		outcome.Message = r.Message
		next.LastError = &models.ErrorInfo{Kind: "error", Message: r.Message, Retryable: true}
	default:
		// Unknown variants fail the session as retryable and surface an error.
		outcome.State = models.SubmissionFailed
		outcome.Classification = models.ClassRetryable
		outcome.Affordance = models.AffordanceRetry
		outcome.Message = "unrecognized registration result"
		next.LastError = &models.ErrorInfo{Kind: "error", Message: outcome.Message, Retryable: true}
		next.Submission = outcome.State
		next.Outcome = &outcome
		return next, outcome, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("unrecognized registration result %T", result))
	}

	next.Submission = outcome.State
	next.Outcome = &outcome
	return next, outcome, nil
}
