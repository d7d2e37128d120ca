package submission

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
)

// Registrar is the per-flow registration or creation service. It returns
// exactly one tagged result; a non-nil error is a transport failure.
type Registrar interface {
	Register(ctx context.Context, flow id.FlowID, payload models.Payload) (models.Result, error)
}

// Ingestor turns raw attachment bytes into a stable reference.
type Ingestor interface {
	Ingest(ctx context.Context, att models.Attachment, data []byte) (models.Reference, error)
}

// StatusProvider is the read model reporting pre-existing registrations.
type StatusProvider interface {
	RegistrationStatus(ctx context.Context, flow id.FlowID, subject string) (models.RegistrationStatus, error)
}

// BlobSource yields the bytes held for an attachment.
type BlobSource interface {
	Blob(attachmentID id.AttachmentID) ([]byte, bool)
}
