package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/fathima-sithara/realtime-service/internal/user/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

type UserRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u := new(model.User)
	err := r.db.NewSelect().Model(u).Where("u.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, errors.Wrap(err, "userRepo.GetByID.Scan")
	}
	return u, nil
}

func (r *UserRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []*model.User
	err := r.db.NewSelect().Model(&users).Where("u.id IN (?)", bun.In(ids)).Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "userRepo.GetByIDs.Scan")
	}
	return users, nil
}

// StampLastSeen records the moment a user's connection dropped.
func (r *UserRepository) StampLastSeen(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*model.User)(nil)).
		Set("last_seen_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "userRepo.StampLastSeen.Exec")
	}
	return nil
}
