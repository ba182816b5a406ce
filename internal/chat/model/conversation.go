package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Conversation is the canonical-pair row for a 1:1 thread: one row per
// unordered pair, lower user id stored first. Sends in either direction
// resolve to the same row.
//
// Unique index in migrations:
//
//	CREATE UNIQUE INDEX idx_conversations_pair ON conversations (user_a_id, user_b_id);
type Conversation struct {
	bun.BaseModel `bun:"table:conversations,alias:c"`

	ID      uuid.UUID `bun:",pk,type:uuid"`
	UserAID int64     `bun:"user_a_id,notnull"`
	UserBID int64     `bun:"user_b_id,notnull"`

	LastMessageID *uuid.UUID `bun:",nullzero,type:uuid"`
	LastMessageAt *time.Time `bun:",nullzero"`

	// Unread counters, one slot per pair position. UnreadA counts messages
	// waiting for user A (i.e. sent by B), and vice versa. Use the accessors
	// below instead of touching the slots directly.
	UnreadA int64 `bun:"unread_a,notnull,default:0"`
	UnreadB int64 `bun:"unread_b,notnull,default:0"`

	CreatedAt time.Time `bun:",nullzero,notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull"`
}

// CanonicalPair orders two user ids into the fixed (a, b) storage order.
func CanonicalPair(x, y int64) (int64, int64) {
	if x < y {
		return x, y
	}
	return y, x
}

// UnreadFor resolves the slot belonging to userID.
func (c *Conversation) UnreadFor(userID int64) int64 {
	if userID == c.UserAID {
		return c.UnreadA
	}
	if userID == c.UserBID {
		return c.UnreadB
	}
	return 0
}

// PeerOf returns the other participant of the pair.
func (c *Conversation) PeerOf(userID int64) int64 {
	if userID == c.UserAID {
		return c.UserBID
	}
	return c.UserAID
}
