package call

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-service/internal/call/model"
)

// Repository persists call rows. Status transitions are conditional on the
// prior status so racing answer/reject/end writes degrade to no-ops.
type Repository interface {
	InsertCall(ctx context.Context, c *model.Call) error
	GetCall(ctx context.Context, id uuid.UUID) (*model.Call, error)
	// SetAnswered flips missed -> answered.
	SetAnswered(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	// SetRejected flips missed -> rejected. Terminal.
	SetRejected(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	// SetEnded closes any non-terminal call with its duration and reason.
	SetEnded(ctx context.Context, id uuid.UUID, at time.Time, durationSeconds int64, reason string) (int64, error)

	InsertGroupCall(ctx context.Context, gc *model.GroupCall) error
	GetGroupCall(ctx context.Context, id uuid.UUID) (*model.GroupCall, error)
	// EndGroupCall stamps ended_at once the roster empties.
	EndGroupCall(ctx context.Context, id uuid.UUID, at time.Time) error

	InsertParticipant(ctx context.Context, p *model.GroupCallParticipant) error
	ActiveParticipant(ctx context.Context, groupCallID uuid.UUID, userID int64) (*model.GroupCallParticipant, error)
	ActiveParticipants(ctx context.Context, groupCallID uuid.UUID) ([]*model.GroupCallParticipant, error)
	// ActiveParticipations lists every open roster row of one user, used by
	// disconnect reconciliation.
	ActiveParticipations(ctx context.Context, userID int64) ([]*model.GroupCallParticipant, error)
	// CloseParticipant stamps left_at iff the row is still open.
	CloseParticipant(ctx context.Context, participantRowID uuid.UUID, at time.Time) (int64, error)
}
