package call

import (
	"time"

	"github.com/google/uuid"
)

type CallDTO struct {
	ID              uuid.UUID  `json:"id"`
	CallerID        int64      `json:"caller_id"`
	CalleeID        int64      `json:"callee_id"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	EndReason       string     `json:"end_reason,omitempty"`
	CalleeOnline    bool       `json:"callee_online,omitempty"`
}

type GroupCallDTO struct {
	ID        uuid.UUID `json:"id"`
	GroupID   uuid.UUID `json:"group_id"`
	StarterID int64     `json:"starter_id"`
	RoomURL   string    `json:"room_url"`
	Token     string    `json:"token,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

type GroupJoinDTO struct {
	GroupCallID uuid.UUID `json:"group_call_id"`
	RoomURL     string    `json:"room_url"`
	Token       string    `json:"token"`
}
