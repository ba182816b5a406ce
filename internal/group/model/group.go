package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

type Group struct {
	bun.BaseModel `bun:"table:groups,alias:g"`

	ID          uuid.UUID `bun:",pk,type:uuid"`
	Name        string    `bun:",notnull"`
	Description string    `bun:",nullzero"`
	Avatar      string    `bun:",nullzero"`

	// CreatorID is the owner-admin; further admins are promoted members.
	CreatorID int64 `bun:",notnull"`

	CreatedAt time.Time `bun:",nullzero,notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull"`
}

// GroupMember is one membership episode. Leave/rejoin cycles produce
// multiple historical rows per (group, user); the active row is the one
// with left_at still null. Message visibility for a member starts at the
// joined_at of their latest active row.
type GroupMember struct {
	bun.BaseModel `bun:"table:group_members,alias:gmb"`

	ID      uuid.UUID `bun:",pk,type:uuid"`
	GroupID uuid.UUID `bun:",notnull,type:uuid"`
	UserID  int64     `bun:",notnull"`
	Role    string    `bun:",notnull,default:'member'"`

	JoinedAt time.Time  `bun:",nullzero,notnull"`
	LeftAt   *time.Time `bun:",nullzero"`
}

func (m *GroupMember) Active() bool { return m.LeftAt == nil }

func (m *GroupMember) IsAdmin() bool { return m.Role == RoleAdmin }
