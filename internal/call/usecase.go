package call

import (
	"context"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-service/internal/chat"
)

type Usecase interface {
	Invite(ctx context.Context, callerID, calleeID int64) (*CallDTO, error)
	Answer(ctx context.Context, callID uuid.UUID, userID int64) (*CallDTO, error)
	Reject(ctx context.Context, callID uuid.UUID, userID int64) (*CallDTO, error)
	End(ctx context.Context, callID uuid.UUID, userID int64, reason string) (*CallDTO, error)
	// EndByDisconnect reconciles a dropped connection: it resolves whatever
	// 1:1 call the user had registered and closes open group-call roster
	// rows. Returns nil when there was nothing to reconcile.
	EndByDisconnect(ctx context.Context, userID int64) (*CallDTO, error)

	InviteGroup(ctx context.Context, groupID uuid.UUID, starterID int64) (*GroupCallDTO, error)
	JoinGroupCall(ctx context.Context, groupCallID uuid.UUID, userID int64) (*GroupJoinDTO, error)
	LeaveGroupCall(ctx context.Context, groupCallID uuid.UUID, userID int64) error
}

type Notifier interface {
	Unicast(userID int64, event string, data any)
	Multicast(userIDs []int64, event string, data any)
}

// EventAppender drops call termination entries into the 1:1 message stream
// so call history stays chronologically ordered with chat.
type EventAppender interface {
	AppendCallEvent(ctx context.Context, fromID, toID int64, body string) (*chat.MessageDTO, error)
}

// RoomProvider is the external video collaborator: get-or-create a room by
// name and mint a short-lived signed access token for it.
type RoomProvider interface {
	GetOrCreateRoom(ctx context.Context, name string) (string, error)
	MintToken(room string, userID int64) (string, error)
}

// PresenceChecker answers whether a user currently holds a live connection.
type PresenceChecker interface {
	IsOnline(userID int64) bool
}

// GroupDirectory resolves a group's active member ids for roster checks and
// call fan-out.
type GroupDirectory interface {
	ActiveMemberIDs(ctx context.Context, groupID uuid.UUID) ([]int64, error)
}
