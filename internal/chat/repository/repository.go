package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"

	"github.com/fathima-sithara/realtime-service/internal/chat/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

type ChatRepository struct {
	db *bun.DB
}

func NewChatRepository(db *bun.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Insert(ctx context.Context, msg *model.Message) error {
	_, err := r.db.NewInsert().Model(msg).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "chatRepo.Insert.Exec")
	}
	return nil
}

func (r *ChatRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	msg := new(model.Message)
	err := r.db.NewSelect().Model(msg).Where("m.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, errors.Wrap(err, "chatRepo.GetByID.Scan")
	}
	return msg, nil
}

func (r *ChatRepository) Edit(ctx context.Context, id uuid.UUID, senderID int64, ciphertext, iv string, at time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.Message)(nil)).
		Set("ciphertext = ?", ciphertext).
		Set("iv = ?", iv).
		Set("edited_at = ?", at).
		Where("id = ? AND sender_id = ? AND deleted_for_all = ?", id, senderID, false).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "chatRepo.Edit.Exec")
	}
	return rowsAffected(res)
}

func (r *ChatRepository) MarkDeletedForAll(ctx context.Context, id uuid.UUID, senderID int64) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.Message)(nil)).
		Set("deleted_for_all = ?", true).
		Set("ciphertext = ?", model.TombstoneText).
		Set("iv = ?", "").
		Where("id = ? AND sender_id = ? AND deleted_for_all = ?", id, senderID, false).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "chatRepo.MarkDeletedForAll.Exec")
	}
	return rowsAffected(res)
}

func (r *ChatRepository) SetSideDeleted(ctx context.Context, id uuid.UUID, bySender bool) (int64, error) {
	column := "deleted_by_receiver"
	if bySender {
		column = "deleted_by_sender"
	}
	res, err := r.db.NewUpdate().
		Model((*model.Message)(nil)).
		Set(column+" = ?", true).
		Where("id = ? AND "+column+" = ?", id, false).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "chatRepo.SetSideDeleted.Exec")
	}
	return rowsAffected(res)
}

func (r *ChatRepository) PurgeIfBothDeleted(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*model.Message)(nil)).
		Where("id = ? AND deleted_by_sender = ? AND deleted_by_receiver = ?", id, true, true).
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, "chatRepo.PurgeIfBothDeleted.Exec")
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (r *ChatRepository) MarkConversationRead(ctx context.Context, receiverID, senderID int64) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.Message)(nil)).
		Set("read = ?", true).
		Where("receiver_id = ? AND sender_id = ? AND read = ?", receiverID, senderID, false).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "chatRepo.MarkConversationRead.Exec")
	}
	return rowsAffected(res)
}

// pairVisible restricts a message query to the (viewer, peer) pair and
// drops only the rows the viewer deleted for themselves. The counterpart's
// flags and for-all tombstones are the renderer's concern.
func pairVisible(q *bun.SelectQuery, viewerID, peerID int64) *bun.SelectQuery {
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("m.sender_id = ? AND m.receiver_id = ? AND m.deleted_by_sender = ?", viewerID, peerID, false)
			}).
			WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("m.sender_id = ? AND m.receiver_id = ? AND m.deleted_by_receiver = ?", peerID, viewerID, false)
			})
	})
}

func (r *ChatRepository) History(ctx context.Context, viewerID, peerID int64, limit, offset int) ([]*model.Message, error) {
	var msgs []*model.Message
	q := r.db.NewSelect().Model(&msgs)
	err := pairVisible(q, viewerID, peerID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.History.Scan")
	}
	return msgs, nil
}

func (r *ChatRepository) LastVisible(ctx context.Context, viewerID, peerID int64) (*model.Message, error) {
	msg := new(model.Message)
	q := r.db.NewSelect().Model(msg)
	err := pairVisible(q, viewerID, peerID).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "chatRepo.LastVisible.Scan")
	}
	return msg, nil
}

func (r *ChatRepository) UpsertConversation(ctx context.Context, senderID, receiverID int64, msgID uuid.UUID, at time.Time) (*model.Conversation, error) {
	a, b := model.CanonicalPair(senderID, receiverID)
	unreadCol := "unread_a"
	if receiverID == b {
		unreadCol = "unread_b"
	}

	var conv *model.Conversation
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(model.Conversation)
		err := tx.NewSelect().Model(existing).Where("user_a_id = ? AND user_b_id = ?", a, b).Scan(ctx)
		switch {
		case err == nil:
			_, err = tx.NewUpdate().
				Model((*model.Conversation)(nil)).
				Set("last_message_id = ?", msgID).
				Set("last_message_at = ?", at).
				Set(unreadCol+" = "+unreadCol+" + 1").
				Set("updated_at = ?", at).
				Where("id = ?", existing.ID).
				Exec(ctx)
			if err != nil {
				return errors.Wrap(err, "update")
			}
			conv = existing
			return tx.NewSelect().Model(conv).Where("id = ?", existing.ID).Scan(ctx)
		case errors.Is(err, sql.ErrNoRows):
			fresh := &model.Conversation{
				ID:            uuid.New(),
				UserAID:       a,
				UserBID:       b,
				LastMessageID: &msgID,
				LastMessageAt: &at,
				CreatedAt:     at,
				UpdatedAt:     at,
			}
			if receiverID == b {
				fresh.UnreadB = 1
			} else {
				fresh.UnreadA = 1
			}
			if _, err := tx.NewInsert().Model(fresh).Exec(ctx); err != nil {
				return errors.Wrap(err, "insert")
			}
			conv = fresh
			return nil
		default:
			return errors.Wrap(err, "select")
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.UpsertConversation")
	}
	return conv, nil
}

func (r *ChatRepository) GetConversation(ctx context.Context, userX, userY int64) (*model.Conversation, error) {
	a, b := model.CanonicalPair(userX, userY)
	conv := new(model.Conversation)
	err := r.db.NewSelect().Model(conv).Where("user_a_id = ? AND user_b_id = ?", a, b).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, errors.Wrap(err, "chatRepo.GetConversation.Scan")
	}
	return conv, nil
}

func (r *ChatRepository) ResetUnread(ctx context.Context, readerID, peerID int64) error {
	a, b := model.CanonicalPair(readerID, peerID)
	unreadCol := "unread_a"
	if readerID == b {
		unreadCol = "unread_b"
	}
	_, err := r.db.NewUpdate().
		Model((*model.Conversation)(nil)).
		Set(unreadCol+" = 0").
		Where("user_a_id = ? AND user_b_id = ?", a, b).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "chatRepo.ResetUnread.Exec")
	}
	return nil
}

func (r *ChatRepository) ListConversations(ctx context.Context, userID int64) ([]*model.Conversation, error) {
	var convs []*model.Conversation
	err := r.db.NewSelect().
		Model(&convs).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("last_message_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "chatRepo.ListConversations.Scan")
	}
	return convs, nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}
