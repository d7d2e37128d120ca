package models

import (
	"time"

	id "sprout/pkg/domain"
)

// PreviewStatus tracks asynchronous preview generation.
type PreviewStatus string

const (
	PreviewPending PreviewStatus = "pending"
	PreviewReady   PreviewStatus = "ready"
	PreviewFailed  PreviewStatus = "failed"
)

// Attachment is a validated, locally held file. The raw bytes are owned by the
// attachment manager and never stored on the session.
type Attachment struct {
	ID            id.AttachmentID `json:"id"`
	Field         string          `json:"field"`
	FileName      string          `json:"file_name"`
	MimeType      string          `json:"mime_type"`
	SizeBytes     int64           `json:"size_bytes"`
	Digest        string          `json:"digest"`
	PreviewHandle string          `json:"preview_handle,omitempty"`
	PreviewStatus PreviewStatus   `json:"preview_status"`
	AttachedAt    time.Time       `json:"attached_at"`
}

// Reference is the opaque handle attachment ingestion returns. Only references,
// never bytes, cross the submission boundary.
type Reference string
