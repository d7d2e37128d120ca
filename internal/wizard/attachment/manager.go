// Package attachment owns the files users attach during a flow.
//
// Raw bytes stay in the manager's blob table until submission, where only an
// ingestion reference crosses into the payload. Sessions carry metadata.
// Preview generation runs off the caller's path and reports back through a
// callback so navigation never waits on it.
package attachment

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
	dErrors "sprout/pkg/domain-errors"
	"sprout/pkg/requestcontext"
)

const defaultPreviewTimeout = 30 * time.Second

// File is a file picked by the user.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Previewer renders a preview for an attached file and returns an opaque handle.
type Previewer interface {
	Preview(ctx context.Context, att models.Attachment, data []byte) (string, error)
}

// PreviewResult reports a finished preview. Err is set when generation failed.
type PreviewResult struct {
	SessionID    id.SessionID
	Field        string
	AttachmentID id.AttachmentID
	Handle       string
	Err          error
}

type blob struct {
	session id.SessionID
	data    []byte
	preview string
}

// Manager validates, stores and previews attachments.
type Manager struct {
	mu        sync.Mutex
	blobs     map[id.AttachmentID]*blob
	previewer Previewer
	onPreview func(PreviewResult)
	timeout   time.Duration
	logger    *slog.Logger
	inflight  sync.WaitGroup
}

type Option func(*Manager)

func WithPreviewer(p Previewer) Option {
	return func(m *Manager) {
		m.previewer = p
	}
}

// WithPreviewCallback registers the function receiving preview completions.
// It runs on the preview goroutine.
func WithPreviewCallback(fn func(PreviewResult)) Option {
	return func(m *Manager) {
		m.onPreview = fn
	}
}

func WithPreviewTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func New(opts ...Option) *Manager {
	m := &Manager{
		blobs:     map[id.AttachmentID]*blob{},
		previewer: HandlePreviewer{},
		timeout:   defaultPreviewTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetPreviewCallback replaces the preview callback. Owners that are built after
// the manager (the controller) register themselves here.
func (m *Manager) SetPreviewCallback(fn func(PreviewResult)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPreview = fn
}

// Attach validates file against the field's constraints and binds it to the
// field, replacing any previous attachment. Rejections are AttachmentErrors
// scoped to the field; the session is returned unchanged.
func (m *Manager) Attach(ctx context.Context, flow *models.Flow, session *models.Session, field string, file File) (*models.Session, models.Attachment, error) {
	spec, step, ok := flow.AttachmentSpec(field)
	if !ok {
		return session, models.Attachment{}, fmt.Errorf("%w: %s", models.ErrUnknownField, field)
	}
	if session.Locked() {
		return session, models.Attachment{}, models.ErrSessionLocked
	}
	if len(file.Data) == 0 {
		return session, models.Attachment{}, dErrors.New(dErrors.CodeInvalidInput, "file is empty")
	}
	if err := check(spec, file); err != nil {
		return session, models.Attachment{}, err
	}

	sum := blake2b.Sum256(file.Data)
	att := models.Attachment{
		ID:            id.NewAttachmentID(),
		Field:         field,
		FileName:      file.Name,
		MimeType:      normalizeMime(file.MimeType),
		SizeBytes:     int64(len(file.Data)),
		Digest:        hex.EncodeToString(sum[:]),
		PreviewStatus: models.PreviewPending,
		AttachedAt:    requestcontext.Now(ctx),
	}

	data := make([]byte, len(file.Data))
	copy(data, file.Data)

	m.mu.Lock()
	if prev, had := session.Attachments[field]; had {
		delete(m.blobs, prev.ID)
	}
	m.blobs[att.ID] = &blob{session: session.ID, data: data}
	m.mu.Unlock()

	next := session.Clone()
	next.Attachments[field] = att
	st := next.Steps[step.ID]
	st.Touched = true
	next.Steps[step.ID] = st

	m.startPreview(session.ID, att, data)
	return next, att, nil
}

// Detach releases the field's attachment and preview. The field reverts to
// having no file. Detaching an empty field is a no-op.
func (m *Manager) Detach(flow *models.Flow, session *models.Session, field string) (*models.Session, error) {
	if _, _, ok := flow.AttachmentSpec(field); !ok {
		return session, fmt.Errorf("%w: %s", models.ErrUnknownField, field)
	}
	if session.Locked() {
		return session, models.ErrSessionLocked
	}
	att, had := session.Attachments[field]
	if !had {
		return session, nil
	}

	m.mu.Lock()
	delete(m.blobs, att.ID)
	m.mu.Unlock()

	next := session.Clone()
	delete(next.Attachments, field)
	return next, nil
}

// Missing lists required attachments of step that the session lacks.
func (m *Manager) Missing(step *models.StepDefinition, session *models.Session) []models.FieldError {
	var errs []models.FieldError
	for _, spec := range step.Attachments {
		if !spec.Required {
			continue
		}
		if _, ok := session.Attachments[spec.Key]; ok {
			continue
		}
		errs = append(errs, models.FieldError{
			Field:   spec.Key,
			Rule:    models.RuleRequired,
			Message: label(&spec) + " is required",
		})
	}
	return errs
}

// IsStepSatisfied reports whether every required attachment of step is present.
func (m *Manager) IsStepSatisfied(step *models.StepDefinition, session *models.Session) bool {
	return len(m.Missing(step, session)) == 0
}

// Blob returns the bytes held for an attachment.
func (m *Manager) Blob(attachmentID id.AttachmentID) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[attachmentID]
	if !ok {
		return nil, false
	}
	return b.data, true
}

// PreviewHandle returns the preview handle recorded for an attachment.
func (m *Manager) PreviewHandle(attachmentID id.AttachmentID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[attachmentID]
	if !ok || b.preview == "" {
		return "", false
	}
	return b.preview, true
}

// Release drops every blob owned by the session.
func (m *Manager) Release(sessionID id.SessionID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	released := 0
	for attID, b := range m.blobs {
		if b.session == sessionID {
			delete(m.blobs, attID)
			released++
		}
	}
	return released
}

// Wait blocks until in-flight previews finish.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

func (m *Manager) startPreview(sessionID id.SessionID, att models.Attachment, data []byte) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		handle, err := m.previewer.Preview(ctx, att, data)
		if err != nil {
			m.logger.Warn("attachment preview failed",
				"session_id", sessionID.String(),
				"field", att.Field,
				"error", err,
			)
		}

		m.mu.Lock()
		if b, ok := m.blobs[att.ID]; ok && err == nil {
			b.preview = handle
		}
		callback := m.onPreview
		m.mu.Unlock()

		if callback != nil {
			callback(PreviewResult{
				SessionID:    sessionID,
				Field:        att.Field,
				AttachmentID: att.ID,
				Handle:       handle,
				Err:          err,
			})
		}
	}()
}

func check(spec *models.AttachmentSpec, file File) error {
	mime := normalizeMime(file.MimeType)
	accepted := false
	for _, prefix := range spec.Accept {
		if strings.HasPrefix(mime, prefix) {
			accepted = true
			break
		}
	}
	if !accepted {
		return &models.AttachmentError{
			Reason:   models.AttachUnsupportedType,
			Field:    spec.Key,
			MimeType: mime,
			Message:  fmt.Sprintf("%s must be one of: %s", label(spec), strings.Join(spec.Accept, ", ")),
		}
	}

	size := int64(len(file.Data))
	if size > spec.MaxBytes {
		return &models.AttachmentError{
			Reason:   models.AttachTooLarge,
			Field:    spec.Key,
			MimeType: mime,
			Size:     size,
			Limit:    spec.MaxBytes,
			Message:  fmt.Sprintf("%s must be at most %s", label(spec), humanBytes(spec.MaxBytes)),
		}
	}
	return nil
}

// normalizeMime lowercases and drops parameters: "Image/JPEG; q=1" -> "image/jpeg".
func normalizeMime(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

func label(spec *models.AttachmentSpec) string {
	if spec.Label != "" {
		return spec.Label
	}
	return spec.Key
}

func humanBytes(n int64) string {
	const mb = 1 << 20
	if n%mb == 0 {
		return fmt.Sprintf("%d MB", n/mb)
	}
	return fmt.Sprintf("%d bytes", n)
}
