package group

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-service/internal/group/model"
)

// SearchHit carries a matched message together with the sender identity
// fields the match ran against.
type SearchHit struct {
	Message        *model.GroupMessage
	SenderUsername string
	SenderName     string
}

// Repository owns group, membership and group-message rows. Membership
// mutations are conditional on the row still being active so concurrent
// leave/remove races degrade to no-ops.
type Repository interface {
	InsertGroup(ctx context.Context, g *model.Group) error
	GetGroup(ctx context.Context, id uuid.UUID) (*model.Group, error)
	UpdateGroupInfo(ctx context.Context, id uuid.UUID, name, description, avatar string, at time.Time) error
	// TouchGroup bumps updated_at so listings sort by latest activity.
	TouchGroup(ctx context.Context, id uuid.UUID, at time.Time) error

	InsertMember(ctx context.Context, m *model.GroupMember) error
	// ActiveMember returns the membership row with left_at null, carrying
	// the joined_at that anchors the member's visibility window.
	ActiveMember(ctx context.Context, groupID uuid.UUID, userID int64) (*model.GroupMember, error)
	ActiveMembers(ctx context.Context, groupID uuid.UUID) ([]*model.GroupMember, error)
	CountActiveMembers(ctx context.Context, groupID uuid.UUID) (int, error)
	CountActiveAdmins(ctx context.Context, groupID uuid.UUID, excludeUserID int64) (int, error)
	// CloseMembership stamps left_at iff the row is still active.
	CloseMembership(ctx context.Context, memberRowID uuid.UUID, at time.Time) (int64, error)
	// SetMemberRole updates the active row's role.
	SetMemberRole(ctx context.Context, groupID uuid.UUID, userID int64, role string) (int64, error)

	InsertMessage(ctx context.Context, msg *model.GroupMessage) error
	GetMessage(ctx context.Context, id uuid.UUID) (*model.GroupMessage, error)
	EditMessage(ctx context.Context, id uuid.UUID, senderID int64, ciphertext, iv string, at time.Time) (int64, error)
	MarkMessageDeletedForAll(ctx context.Context, id uuid.UUID, senderID int64, at time.Time) (int64, error)
	SuppressMessage(ctx context.Context, messageID uuid.UUID, userID int64) error

	// History applies the member's visibility window (created_at >= since)
	// and the viewer's suppression rows.
	History(ctx context.Context, groupID uuid.UUID, viewerID int64, since time.Time, limit, offset int) ([]*model.GroupMessage, error)
	// Search matches substrings of sender identity fields or raw ciphertext
	// within the viewer's visibility window.
	Search(ctx context.Context, groupID uuid.UUID, viewerID int64, since time.Time, term string, limit int) ([]*SearchHit, error)

	// UpsertReceipts inserts missing read receipts for every message
	// visible to the member; existing receipts are left untouched.
	UpsertReceipts(ctx context.Context, groupID uuid.UUID, userID int64, since time.Time, at time.Time) (int64, error)
	ReaderIDs(ctx context.Context, messageID uuid.UUID) ([]int64, error)
	UnreadCount(ctx context.Context, groupID uuid.UUID, userID int64, since time.Time) (int, error)

	HideGroup(ctx context.Context, groupID uuid.UUID, userID int64, at time.Time) error
	UnhideGroup(ctx context.Context, groupID uuid.UUID, userID int64) error
	// UnhideGroupForAll clears the hide rows of the group's active members;
	// a fresh message resurfaces the conversation for them. Hides of former
	// members are left alone.
	UnhideGroupForAll(ctx context.Context, groupID uuid.UUID) error
	// ListGroupsFor returns groups where userID is an active member and has
	// not personally hidden the group.
	ListGroupsFor(ctx context.Context, userID int64) ([]*model.Group, error)
}
