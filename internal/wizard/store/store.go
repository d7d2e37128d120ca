// Package store keeps session snapshots between transitions. Sessions are
// plain values, so a store only ever sees whole snapshots.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
	"sprout/pkg/platform/sentinel"
)

// ErrNotFound is returned when no snapshot exists for a session ID.
var ErrNotFound = fmt.Errorf("session snapshot %w", sentinel.ErrNotFound)

// ErrUnavailable wraps backend failures so callers can tell them from misses.
var ErrUnavailable = fmt.Errorf("session store %w", sentinel.ErrUnavailable)

// Store persists session snapshots.
type Store interface {
	Save(ctx context.Context, session *models.Session) error
	Load(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	Delete(ctx context.Context, sessionID id.SessionID) error
}

func encode(session *models.Session) ([]byte, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	return data, nil
}

func decode(data []byte) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if session.Steps == nil {
		session.Steps = map[models.StepID]models.StepStatus{}
	}
	if session.Attachments == nil {
		session.Attachments = map[string]models.Attachment{}
	}
	if session.Data.Fields == nil {
		session.Data.Fields = map[string]any{}
	}
	if session.Data.Groups == nil {
		session.Data.Groups = map[string]*models.Group{}
	}
	return &session, nil
}
