package group

import (
	"time"

	"github.com/google/uuid"
)

type CreateGroupCommand struct {
	CreatorID   int64
	Name        string
	Description string
	Avatar      string
	MemberIDs   []int64
}

type UpdateGroupCommand struct {
	GroupID     uuid.UUID
	ActorID     int64
	Name        string
	Description string
	Avatar      string
}

type MemberCommand struct {
	GroupID uuid.UUID
	ActorID int64
	UserID  int64
}

type SendMessageCommand struct {
	GroupID  uuid.UUID
	SenderID int64
	Content  string
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

type GroupDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	CreatorID   int64     `json:"creator_id"`
	MemberCount int       `json:"member_count"`
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type MessageDTO struct {
	ID        uuid.UUID  `json:"id"`
	GroupID   uuid.UUID  `json:"group_id"`
	SenderID  int64      `json:"sender_id"`
	Content   string     `json:"content"`
	Edited    bool       `json:"edited"`
	Deleted   bool       `json:"deleted"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

type DeleteResult struct {
	MessageID uuid.UUID `json:"message_id"`
	GroupID   uuid.UUID `json:"group_id"`
	ForAll    bool      `json:"for_all"`
}

// MessageInfoDTO is the read-receipt summary: who has read a message,
// measured against the group's current active headcount.
type MessageInfoDTO struct {
	MessageID         uuid.UUID `json:"message_id"`
	ReadCount         int       `json:"read_count"`
	ActiveMemberCount int       `json:"active_member_count"`
	ReaderIDs         []int64   `json:"reader_ids"`
}

type SearchHitDTO struct {
	Message        *MessageDTO `json:"message"`
	SenderUsername string      `json:"sender_username"`
	SenderName     string      `json:"sender_name"`
}

type MemberDTO struct {
	UserID   int64     `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
