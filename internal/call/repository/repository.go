package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/fathima-sithara/realtime-service/internal/call/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

type CallRepository struct {
	db *bun.DB
}

func NewCallRepository(db *bun.DB) *CallRepository {
	return &CallRepository{db: db}
}

func (r *CallRepository) InsertCall(ctx context.Context, c *model.Call) error {
	_, err := r.db.NewInsert().Model(c).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "callRepo.InsertCall.Exec")
	}
	return nil
}

func (r *CallRepository) GetCall(ctx context.Context, id uuid.UUID) (*model.Call, error) {
	c := new(model.Call)
	err := r.db.NewSelect().Model(c).Where("cl.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrCallNotFound
		}
		return nil, errors.Wrap(err, "callRepo.GetCall.Scan")
	}
	return c, nil
}

func (r *CallRepository) SetAnswered(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.Call)(nil)).
		Set("status = ?", model.StatusAnswered).
		Set("answered_at = ?", at).
		Where("id = ? AND status = ?", id, model.StatusMissed).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "callRepo.SetAnswered.Exec")
	}
	return rowsAffected(res)
}

func (r *CallRepository) SetRejected(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.Call)(nil)).
		Set("status = ?", model.StatusRejected).
		Set("ended_at = ?", at).
		Where("id = ? AND status = ?", id, model.StatusMissed).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "callRepo.SetRejected.Exec")
	}
	return rowsAffected(res)
}

func (r *CallRepository) SetEnded(ctx context.Context, id uuid.UUID, at time.Time, durationSeconds int64, reason string) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.Call)(nil)).
		Set("status = ?", model.StatusEnded).
		Set("ended_at = ?", at).
		Set("duration_seconds = ?", durationSeconds).
		Set("end_reason = ?", reason).
		Where("id = ? AND status NOT IN (?, ?)", id, model.StatusEnded, model.StatusRejected).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "callRepo.SetEnded.Exec")
	}
	return rowsAffected(res)
}

func (r *CallRepository) InsertGroupCall(ctx context.Context, gc *model.GroupCall) error {
	_, err := r.db.NewInsert().Model(gc).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "callRepo.InsertGroupCall.Exec")
	}
	return nil
}

func (r *CallRepository) GetGroupCall(ctx context.Context, id uuid.UUID) (*model.GroupCall, error) {
	gc := new(model.GroupCall)
	err := r.db.NewSelect().Model(gc).Where("gc.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrGroupCallNotFound
		}
		return nil, errors.Wrap(err, "callRepo.GetGroupCall.Scan")
	}
	return gc, nil
}

func (r *CallRepository) EndGroupCall(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*model.GroupCall)(nil)).
		Set("ended_at = ?", at).
		Where("id = ? AND ended_at IS NULL", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "callRepo.EndGroupCall.Exec")
	}
	return nil
}

func (r *CallRepository) InsertParticipant(ctx context.Context, p *model.GroupCallParticipant) error {
	_, err := r.db.NewInsert().Model(p).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "callRepo.InsertParticipant.Exec")
	}
	return nil
}

func (r *CallRepository) ActiveParticipant(ctx context.Context, groupCallID uuid.UUID, userID int64) (*model.GroupCallParticipant, error) {
	p := new(model.GroupCallParticipant)
	err := r.db.NewSelect().
		Model(p).
		Where("gcp.group_call_id = ? AND gcp.user_id = ? AND gcp.left_at IS NULL", groupCallID, userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "callRepo.ActiveParticipant.Scan")
	}
	return p, nil
}

func (r *CallRepository) ActiveParticipants(ctx context.Context, groupCallID uuid.UUID) ([]*model.GroupCallParticipant, error) {
	var ps []*model.GroupCallParticipant
	err := r.db.NewSelect().
		Model(&ps).
		Where("gcp.group_call_id = ? AND gcp.left_at IS NULL", groupCallID).
		Order("joined_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "callRepo.ActiveParticipants.Scan")
	}
	return ps, nil
}

func (r *CallRepository) ActiveParticipations(ctx context.Context, userID int64) ([]*model.GroupCallParticipant, error) {
	var ps []*model.GroupCallParticipant
	err := r.db.NewSelect().
		Model(&ps).
		Where("gcp.user_id = ? AND gcp.left_at IS NULL", userID).
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "callRepo.ActiveParticipations.Scan")
	}
	return ps, nil
}

func (r *CallRepository) CloseParticipant(ctx context.Context, participantRowID uuid.UUID, at time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.GroupCallParticipant)(nil)).
		Set("left_at = ?", at).
		Where("id = ? AND left_at IS NULL", participantRowID).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "callRepo.CloseParticipant.Exec")
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}
