package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Message kinds. Call events share the message stream so call history stays
// chronologically interleaved with regular chat.
const (
	KindText = "text"
	KindCall = "call"
)

// TombstoneText replaces the ciphertext of a message deleted for everyone.
// The row survives for conversational continuity.
const TombstoneText = "This message was deleted"

type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID         uuid.UUID `bun:",pk,type:uuid"`
	SenderID   int64     `bun:",notnull"`
	ReceiverID int64     `bun:",notnull"`

	Ciphertext string `bun:",notnull"`
	IV         string `bun:"iv,notnull"`
	Kind       string `bun:",notnull,default:'text'"`

	Read bool `bun:",notnull,default:false"`

	// Per-side soft delete. Once both flags are true the row is purged.
	DeletedBySender   bool `bun:",notnull,default:false"`
	DeletedByReceiver bool `bun:",notnull,default:false"`
	// Terminal: ciphertext is replaced by the tombstone, edits are rejected.
	DeletedForAll bool `bun:",notnull,default:false"`

	CreatedAt time.Time  `bun:",nullzero,notnull"`
	EditedAt  *time.Time `bun:",nullzero"`
}

// DeletedFor reports whether viewer has removed this message for themselves.
func (m *Message) DeletedFor(viewerID int64) bool {
	switch viewerID {
	case m.SenderID:
		return m.DeletedBySender
	case m.ReceiverID:
		return m.DeletedByReceiver
	}
	return false
}
