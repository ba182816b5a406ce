package group

import (
	"context"

	"github.com/google/uuid"
)

type Usecase interface {
	CreateGroup(ctx context.Context, cmd CreateGroupCommand) (*GroupDTO, error)
	UpdateGroup(ctx context.Context, cmd UpdateGroupCommand) (*GroupDTO, error)

	AddMember(ctx context.Context, cmd MemberCommand) (*MemberDTO, error)
	RemoveMember(ctx context.Context, cmd MemberCommand) error
	// Leave rejects the sole active admin of a group that still has other
	// active members.
	Leave(ctx context.Context, groupID uuid.UUID, userID int64) error
	PromoteAdmin(ctx context.Context, cmd MemberCommand) error
	Members(ctx context.Context, groupID uuid.UUID, viewerID int64) ([]*MemberDTO, error)

	SendMessage(ctx context.Context, cmd SendMessageCommand) (*MessageDTO, error)
	EditMessage(ctx context.Context, cmd EditMessageCommand) (*MessageDTO, error)
	DeleteMessage(ctx context.Context, cmd DeleteMessageCommand) (*DeleteResult, error)
	History(ctx context.Context, groupID uuid.UUID, viewerID int64, limit, offset int) ([]*MessageDTO, error)
	MarkRead(ctx context.Context, groupID uuid.UUID, userID int64) (int64, error)
	MessageInfo(ctx context.Context, messageID uuid.UUID, viewerID int64) (*MessageInfoDTO, error)
	Search(ctx context.Context, groupID uuid.UUID, viewerID int64, term string, limit int) ([]*SearchHitDTO, error)

	Hide(ctx context.Context, groupID uuid.UUID, userID int64) error
	Unhide(ctx context.Context, groupID uuid.UUID, userID int64) error
	ListGroups(ctx context.Context, userID int64) ([]*GroupDTO, error)

	// ActiveMemberIDs backs targeted fan-out (typing, call invites) at the
	// boundary without re-deriving membership there.
	ActiveMemberIDs(ctx context.Context, groupID uuid.UUID) ([]int64, error)
}

// Notifier fans events out to the group's connected members.
type Notifier interface {
	Unicast(userID int64, event string, data any)
	Multicast(userIDs []int64, event string, data any)
}

// Cipher matches the chat codec; group bodies use the same key material.
type Cipher interface {
	Encrypt(plaintext string) (ciphertext, iv string, err error)
	Decrypt(ciphertext, iv string) (string, error)
}
