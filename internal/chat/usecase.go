package chat

import (
	"context"

	usermodel "github.com/fathima-sithara/realtime-service/internal/user/model"
)

type Usecase interface {
	Send(ctx context.Context, cmd SendMessageCommand) (*MessageDTO, error)
	Edit(ctx context.Context, cmd EditMessageCommand) (*MessageDTO, error)
	Delete(ctx context.Context, cmd DeleteMessageCommand) (*DeleteResult, error)

	// MarkRead bulk-flags everything peerID sent to readerID and resets the
	// reader's unread slot.
	MarkRead(ctx context.Context, readerID, peerID int64) (int64, error)

	History(ctx context.Context, viewerID, peerID int64, limit, offset int) ([]*MessageDTO, error)
	UnreadCount(ctx context.Context, userID, peerID int64) (int64, error)
	Conversations(ctx context.Context, userID int64) ([]*ConversationDTO, error)

	// AppendCallEvent drops a system-style entry into the ordinary message
	// stream so call history stays in chronological order with chat.
	AppendCallEvent(ctx context.Context, fromID, toID int64, body string) (*MessageDTO, error)
}

// Notifier is the targeted delivery surface the usecase publishes to.
// Implemented by the realtime router; delivery is best-effort.
type Notifier interface {
	Unicast(userID int64, event string, data any)
}

// UserDirectory resolves peer identity fields for conversation summaries.
type UserDirectory interface {
	GetByIDs(ctx context.Context, ids []int64) ([]*usermodel.User, error)
}

// Cipher is the symmetric codec applied to every stored message body.
type Cipher interface {
	Encrypt(plaintext string) (ciphertext, iv string, err error)
	Decrypt(ciphertext, iv string) (string, error)
}
