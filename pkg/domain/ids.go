package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "sprout/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so a SessionID can never be passed where an
// ItemID is expected. Construct from external input via the Parse* functions,
// which reject empty, malformed and nil UUIDs.
type (
	SessionID    uuid.UUID
	ItemID       uuid.UUID
	AttachmentID uuid.UUID
)

func NewSessionID() SessionID       { return SessionID(uuid.New()) }
func NewItemID() ItemID             { return ItemID(uuid.New()) }
func NewAttachmentID() AttachmentID { return AttachmentID(uuid.New()) }

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s, "session_id")
	return SessionID(u), err
}

func ParseItemID(s string) (ItemID, error) {
	u, err := parseUUID(s, "item_id")
	return ItemID(u), err
}

func ParseAttachmentID(s string) (AttachmentID, error) {
	u, err := parseUUID(s, "attachment_id")
	return AttachmentID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

func (id SessionID) String() string    { return uuid.UUID(id).String() }
func (id ItemID) String() string       { return uuid.UUID(id).String() }
func (id AttachmentID) String() string { return uuid.UUID(id).String() }

func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ItemID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id AttachmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshaling lets typed IDs serialize as strings in JSON session snapshots.

func (id SessionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *SessionID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id ItemID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *ItemID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id AttachmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *AttachmentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
