package chat

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-service/internal/chat/model"
)

// Repository owns message rows and their canonical-pair conversation index.
// Mutating methods that return a row count use conditional updates: the
// write only takes effect if the row still matches the expected prior
// state, so a lost race is a no-op rather than corruption.
type Repository interface {
	Insert(ctx context.Context, msg *model.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Message, error)

	// Edit rewrites content iff the row exists, belongs to senderID and has
	// not been deleted for everyone.
	Edit(ctx context.Context, id uuid.UUID, senderID int64, ciphertext, iv string, at time.Time) (int64, error)

	// MarkDeletedForAll replaces content with the tombstone iff the row
	// belongs to senderID and is not already tombstoned. Terminal.
	MarkDeletedForAll(ctx context.Context, id uuid.UUID, senderID int64) (int64, error)

	// SetSideDeleted flips one per-side flag iff it was still false.
	SetSideDeleted(ctx context.Context, id uuid.UUID, bySender bool) (int64, error)

	// PurgeIfBothDeleted removes the row iff both side flags are observed
	// true at write time, irrespective of deletion order.
	PurgeIfBothDeleted(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkConversationRead flags every unread message from senderID to
	// receiverID and returns how many rows flipped.
	MarkConversationRead(ctx context.Context, receiverID, senderID int64) (int64, error)

	// History returns ascending-timestamp messages of the pair, excluding
	// only rows the viewer deleted for themselves.
	History(ctx context.Context, viewerID, peerID int64, limit, offset int) ([]*model.Message, error)

	// LastVisible recomputes the newest message the viewer may still see.
	LastVisible(ctx context.Context, viewerID, peerID int64) (*model.Message, error)

	// UpsertConversation targets the canonical pair row for (senderID,
	// receiverID), updates the last-message pointer and increments the
	// receiver's unread slot.
	UpsertConversation(ctx context.Context, senderID, receiverID int64, msgID uuid.UUID, at time.Time) (*model.Conversation, error)

	GetConversation(ctx context.Context, userX, userY int64) (*model.Conversation, error)
	ResetUnread(ctx context.Context, readerID, peerID int64) error
	ListConversations(ctx context.Context, userID int64) ([]*model.Conversation, error)
}
