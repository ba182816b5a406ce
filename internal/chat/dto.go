package chat

import (
	"time"

	"github.com/google/uuid"
)

// Commands travel from handler to usecase, DTOs travel back out.

type SendMessageCommand struct {
	SenderID   int64
	ReceiverID int64
	Content    string
}

type EditMessageCommand struct {
	MessageID uuid.UUID
	EditorID  int64
	Content   string
}

type DeleteMessageCommand struct {
	MessageID uuid.UUID
	UserID    int64
	ForAll    bool
}

type MessageDTO struct {
	ID         uuid.UUID  `json:"id"`
	SenderID   int64      `json:"sender_id"`
	ReceiverID int64      `json:"receiver_id"`
	Content    string     `json:"content"`
	Kind       string     `json:"kind"`
	Read       bool       `json:"read"`
	Edited     bool       `json:"edited"`
	Deleted    bool       `json:"deleted"`
	CreatedAt  time.Time  `json:"created_at"`
	EditedAt   *time.Time `json:"edited_at,omitempty"`
}

// DeleteResult tells the caller what actually happened so the boundary can
// decide whether the counterpart needs a notification.
type DeleteResult struct {
	MessageID uuid.UUID `json:"message_id"`
	ForAll    bool      `json:"for_all"`
	Purged    bool      `json:"purged"`
}

type ConversationDTO struct {
	ID             uuid.UUID   `json:"id"`
	PeerID         int64       `json:"peer_id"`
	PeerUsername   string      `json:"peer_username"`
	PeerName       string      `json:"peer_name"`
	PeerAvatar     string      `json:"peer_avatar,omitempty"`
	LastMessage    *MessageDTO `json:"last_message,omitempty"`
	UnreadCount    int64       `json:"unread_count"`
	LastActivityAt *time.Time  `json:"last_activity_at,omitempty"`
}
