package attachment

import (
	"context"

	"sprout/internal/wizard/models"
)

// HandlePreviewer derives the preview handle from the attachment's digest.
// Presentation code resolves the handle to a rendered thumbnail.
type HandlePreviewer struct{}

func (HandlePreviewer) Preview(ctx context.Context, att models.Attachment, _ []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "preview/" + att.Digest[:16], nil
}

// PreviewerFunc adapts a function to Previewer.
type PreviewerFunc func(ctx context.Context, att models.Attachment, data []byte) (string, error)

func (f PreviewerFunc) Preview(ctx context.Context, att models.Attachment, data []byte) (string, error) {
	return f(ctx, att, data)
}
