package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// 1:1 call statuses. A row starts as missed so an invite that is never
// acted on needs no further write.
const (
	StatusMissed   = "missed"
	StatusAnswered = "answered"
	StatusRejected = "rejected"
	StatusEnded    = "ended"
)

const (
	EndReasonHangup     = "hangup"
	EndReasonDisconnect = "disconnect"
)

type Call struct {
	bun.BaseModel `bun:"table:calls,alias:cl"`

	ID       uuid.UUID `bun:",pk,type:uuid"`
	CallerID int64     `bun:",notnull"`
	CalleeID int64     `bun:",notnull"`

	Status string `bun:",notnull,default:'missed'"`

	StartedAt       time.Time  `bun:",nullzero,notnull"`
	AnsweredAt      *time.Time `bun:",nullzero"`
	EndedAt         *time.Time `bun:",nullzero"`
	DurationSeconds int64      `bun:",notnull,default:0"`
	EndReason       string     `bun:",nullzero"`
}

type GroupCall struct {
	bun.BaseModel `bun:"table:group_calls,alias:gc"`

	ID        uuid.UUID `bun:",pk,type:uuid"`
	GroupID   uuid.UUID `bun:",notnull,type:uuid"`
	StarterID int64     `bun:",notnull"`
	RoomName  string    `bun:",notnull"`

	StartedAt time.Time  `bun:",nullzero,notnull"`
	EndedAt   *time.Time `bun:",nullzero"`
}

// GroupCallParticipant is one roster episode; join/leave cycles append new
// rows, mirroring group membership history.
type GroupCallParticipant struct {
	bun.BaseModel `bun:"table:group_call_participants,alias:gcp"`

	ID          uuid.UUID `bun:",pk,type:uuid"`
	GroupCallID uuid.UUID `bun:",notnull,type:uuid"`
	UserID      int64     `bun:",notnull"`

	JoinedAt time.Time  `bun:",nullzero,notnull"`
	LeftAt   *time.Time `bun:",nullzero"`
}
