package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TombstoneText replaces the ciphertext of a group message deleted for
// everyone.
const TombstoneText = "This message was deleted"

type GroupMessage struct {
	bun.BaseModel `bun:"table:group_messages,alias:gm"`

	ID       uuid.UUID `bun:",pk,type:uuid"`
	GroupID  uuid.UUID `bun:",notnull,type:uuid"`
	SenderID int64     `bun:",notnull"`

	Ciphertext string `bun:",notnull"`
	IV         string `bun:"iv,notnull"`

	// Terminal for-all deletion: tombstone content, edits rejected.
	DeletedForAll bool       `bun:",notnull,default:false"`
	DeletedAt     *time.Time `bun:",nullzero"`

	CreatedAt time.Time  `bun:",nullzero,notnull"`
	EditedAt  *time.Time `bun:",nullzero"`
}

// GroupMessageSuppression is the per-viewer "deleted for me" row. A side
// table rather than a flag because any number of members may hide the same
// message independently.
type GroupMessageSuppression struct {
	bun.BaseModel `bun:"table:group_message_suppressions,alias:s"`

	MessageID uuid.UUID `bun:",pk,type:uuid"`
	UserID    int64     `bun:",pk"`
	CreatedAt time.Time `bun:",nullzero,notnull"`
}

// GroupMessageReceipt records that a member has read a message.
type GroupMessageReceipt struct {
	bun.BaseModel `bun:"table:group_message_receipts,alias:r"`

	MessageID uuid.UUID `bun:",pk,type:uuid"`
	UserID    int64     `bun:",pk"`
	ReadAt    time.Time `bun:",nullzero,notnull"`
}

// GroupHidden soft-hides a group from one user's listing. Independent of
// membership and cleared for the whole group when someone posts.
type GroupHidden struct {
	bun.BaseModel `bun:"table:group_hidden,alias:gh"`

	GroupID   uuid.UUID `bun:",pk,type:uuid"`
	UserID    int64     `bun:",pk"`
	CreatedAt time.Time `bun:",nullzero,notnull"`
}
