package model

import (
	"time"

	"github.com/uptrace/bun"
)

// User mirrors the account row owned by the auth service. The realtime core
// only reads identity fields for display/search and stamps last_seen_at.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID       int64  `bun:",pk,autoincrement"`
	Username string `bun:",notnull,unique"`
	Name     string `bun:",notnull"`
	Avatar   string `bun:",nullzero"`

	LastSeenAt *time.Time `bun:",nullzero"`
	CreatedAt  time.Time  `bun:",nullzero,notnull"`
}
