package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/uptrace/bun"

	"github.com/fathima-sithara/realtime-service/internal/group"
	"github.com/fathima-sithara/realtime-service/internal/group/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

type GroupRepository struct {
	db *bun.DB
}

func NewGroupRepository(db *bun.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) InsertGroup(ctx context.Context, g *model.Group) error {
	_, err := r.db.NewInsert().Model(g).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "groupRepo.InsertGroup.Exec")
	}
	return nil
}

func (r *GroupRepository) GetGroup(ctx context.Context, id uuid.UUID) (*model.Group, error) {
	g := new(model.Group)
	err := r.db.NewSelect().Model(g).Where("g.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrGroupNotFound
		}
		return nil, errors.Wrap(err, "groupRepo.GetGroup.Scan")
	}
	return g, nil
}

func (r *GroupRepository) UpdateGroupInfo(ctx context.Context, id uuid.UUID, name, description, avatar string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*model.Group)(nil)).
		Set("name = ?", name).
		Set("description = ?", description).
		Set("avatar = ?", avatar).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "groupRepo.UpdateGroupInfo.Exec")
	}
	return nil
}

func (r *GroupRepository) TouchGroup(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*model.Group)(nil)).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "groupRepo.TouchGroup.Exec")
	}
	return nil
}

func (r *GroupRepository) InsertMember(ctx context.Context, m *model.GroupMember) error {
	_, err := r.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "groupRepo.InsertMember.Exec")
	}
	return nil
}

func (r *GroupRepository) ActiveMember(ctx context.Context, groupID uuid.UUID, userID int64) (*model.GroupMember, error) {
	m := new(model.GroupMember)
	err := r.db.NewSelect().
		Model(m).
		Where("gmb.group_id = ? AND gmb.user_id = ? AND gmb.left_at IS NULL", groupID, userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotGroupMember
		}
		return nil, errors.Wrap(err, "groupRepo.ActiveMember.Scan")
	}
	return m, nil
}

func (r *GroupRepository) ActiveMembers(ctx context.Context, groupID uuid.UUID) ([]*model.GroupMember, error) {
	var members []*model.GroupMember
	err := r.db.NewSelect().
		Model(&members).
		Where("gmb.group_id = ? AND gmb.left_at IS NULL", groupID).
		Order("joined_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "groupRepo.ActiveMembers.Scan")
	}
	return members, nil
}

func (r *GroupRepository) CountActiveMembers(ctx context.Context, groupID uuid.UUID) (int, error) {
	count, err := r.db.NewSelect().
		Model((*model.GroupMember)(nil)).
		Where("group_id = ? AND left_at IS NULL", groupID).
		Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "groupRepo.CountActiveMembers.Count")
	}
	return count, nil
}

func (r *GroupRepository) CountActiveAdmins(ctx context.Context, groupID uuid.UUID, excludeUserID int64) (int, error) {
	count, err := r.db.NewSelect().
		Model((*model.GroupMember)(nil)).
		Where("group_id = ? AND left_at IS NULL AND role = ? AND user_id != ?", groupID, model.RoleAdmin, excludeUserID).
		Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "groupRepo.CountActiveAdmins.Count")
	}
	return count, nil
}

func (r *GroupRepository) CloseMembership(ctx context.Context, memberRowID uuid.UUID, at time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.GroupMember)(nil)).
		Set("left_at = ?", at).
		Where("id = ? AND left_at IS NULL", memberRowID).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "groupRepo.CloseMembership.Exec")
	}
	return rowsAffected(res)
}

func (r *GroupRepository) SetMemberRole(ctx context.Context, groupID uuid.UUID, userID int64, role string) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.GroupMember)(nil)).
		Set("role = ?", role).
		Where("group_id = ? AND user_id = ? AND left_at IS NULL", groupID, userID).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "groupRepo.SetMemberRole.Exec")
	}
	return rowsAffected(res)
}

func (r *GroupRepository) InsertMessage(ctx context.Context, msg *model.GroupMessage) error {
	_, err := r.db.NewInsert().Model(msg).Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "groupRepo.InsertMessage.Exec")
	}
	return nil
}

func (r *GroupRepository) GetMessage(ctx context.Context, id uuid.UUID) (*model.GroupMessage, error) {
	msg := new(model.GroupMessage)
	err := r.db.NewSelect().Model(msg).Where("gm.id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, errors.Wrap(err, "groupRepo.GetMessage.Scan")
	}
	return msg, nil
}

func (r *GroupRepository) EditMessage(ctx context.Context, id uuid.UUID, senderID int64, ciphertext, iv string, at time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.GroupMessage)(nil)).
		Set("ciphertext = ?", ciphertext).
		Set("iv = ?", iv).
		Set("edited_at = ?", at).
		Where("id = ? AND sender_id = ? AND deleted_for_all = ?", id, senderID, false).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "groupRepo.EditMessage.Exec")
	}
	return rowsAffected(res)
}

func (r *GroupRepository) MarkMessageDeletedForAll(ctx context.Context, id uuid.UUID, senderID int64, at time.Time) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*model.GroupMessage)(nil)).
		Set("deleted_for_all = ?", true).
		Set("deleted_at = ?", at).
		Set("ciphertext = ?", model.TombstoneText).
		Set("iv = ?", "").
		Where("id = ? AND sender_id = ? AND deleted_for_all = ?", id, senderID, false).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "groupRepo.MarkMessageDeletedForAll.Exec")
	}
	return rowsAffected(res)
}

func (r *GroupRepository) SuppressMessage(ctx context.Context, messageID uuid.UUID, userID int64) error {
	s := &model.GroupMessageSuppression{
		MessageID: messageID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.NewInsert().
		Model(s).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "groupRepo.SuppressMessage.Exec")
	}
	return nil
}

// visibleTo is the single place the per-viewer projection is expressed:
// the member's visibility window plus their suppression rows.
func visibleTo(q *bun.SelectQuery, viewerID int64, since time.Time) *bun.SelectQuery {
	return q.
		Where("gm.created_at >= ?", since).
		Where("NOT EXISTS (SELECT 1 FROM group_message_suppressions AS s WHERE s.message_id = gm.id AND s.user_id = ?)", viewerID)
}

func (r *GroupRepository) History(ctx context.Context, groupID uuid.UUID, viewerID int64, since time.Time, limit, offset int) ([]*model.GroupMessage, error) {
	var msgs []*model.GroupMessage
	q := r.db.NewSelect().Model(&msgs).Where("gm.group_id = ?", groupID)
	err := visibleTo(q, viewerID, since).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "groupRepo.History.Scan")
	}
	return msgs, nil
}

type searchRow struct {
	model.GroupMessage `bun:",extend"`

	SenderUsername string `bun:"sender_username,scanonly"`
	SenderName     string `bun:"sender_name,scanonly"`
}

func (r *GroupRepository) Search(ctx context.Context, groupID uuid.UUID, viewerID int64, since time.Time, term string, limit int) ([]*group.SearchHit, error) {
	pattern := "%" + term + "%"
	var rows []*searchRow
	q := r.db.NewSelect().
		Model(&rows).
		ColumnExpr("gm.*").
		ColumnExpr("u.username AS sender_username").
		ColumnExpr("u.name AS sender_name").
		Join("JOIN users AS u ON u.id = gm.sender_id").
		Where("gm.group_id = ?", groupID).
		Where("(u.username LIKE ? OR u.name LIKE ? OR gm.ciphertext LIKE ?)", pattern, pattern, pattern)
	err := visibleTo(q, viewerID, since).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "groupRepo.Search.Scan")
	}
	return lo.Map(rows, func(row *searchRow, _ int) *group.SearchHit {
		msg := row.GroupMessage
		return &group.SearchHit{
			Message:        &msg,
			SenderUsername: row.SenderUsername,
			SenderName:     row.SenderName,
		}
	}), nil
}

func (r *GroupRepository) UpsertReceipts(ctx context.Context, groupID uuid.UUID, userID int64, since time.Time, at time.Time) (int64, error) {
	// One receipt per (message, user); existing rows stay untouched so the
	// original read_at survives repeated mark-as-read calls.
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO group_message_receipts (message_id, user_id, read_at)
		SELECT gm.id, ?, ?
		FROM group_messages AS gm
		WHERE gm.group_id = ?
		  AND gm.sender_id != ?
		  AND gm.created_at >= ?
		  AND NOT EXISTS (
			SELECT 1 FROM group_message_receipts AS r
			WHERE r.message_id = gm.id AND r.user_id = ?
		  )`,
		userID, at, groupID, userID, since, userID)
	if err != nil {
		return 0, errors.Wrap(err, "groupRepo.UpsertReceipts.Exec")
	}
	return rowsAffected(res)
}

func (r *GroupRepository) ReaderIDs(ctx context.Context, messageID uuid.UUID) ([]int64, error) {
	var ids []int64
	err := r.db.NewSelect().
		Model((*model.GroupMessageReceipt)(nil)).
		Column("user_id").
		Where("message_id = ?", messageID).
		Order("read_at ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, errors.Wrap(err, "groupRepo.ReaderIDs.Scan")
	}
	return ids, nil
}

func (r *GroupRepository) UnreadCount(ctx context.Context, groupID uuid.UUID, userID int64, since time.Time) (int, error) {
	q := r.db.NewSelect().
		Model((*model.GroupMessage)(nil)).
		Where("gm.group_id = ?", groupID).
		Where("gm.sender_id != ?", userID).
		Where("NOT EXISTS (SELECT 1 FROM group_message_receipts AS r WHERE r.message_id = gm.id AND r.user_id = ?)", userID)
	count, err := visibleTo(q, userID, since).Count(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "groupRepo.UnreadCount.Count")
	}
	return count, nil
}

func (r *GroupRepository) HideGroup(ctx context.Context, groupID uuid.UUID, userID int64, at time.Time) error {
	h := &model.GroupHidden{GroupID: groupID, UserID: userID, CreatedAt: at}
	_, err := r.db.NewInsert().
		Model(h).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "groupRepo.HideGroup.Exec")
	}
	return nil
}

func (r *GroupRepository) UnhideGroup(ctx context.Context, groupID uuid.UUID, userID int64) error {
	_, err := r.db.NewDelete().
		Model((*model.GroupHidden)(nil)).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "groupRepo.UnhideGroup.Exec")
	}
	return nil
}

func (r *GroupRepository) UnhideGroupForAll(ctx context.Context, groupID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*model.GroupHidden)(nil)).
		Where("group_id = ?", groupID).
		Where("user_id IN (SELECT gmb.user_id FROM group_members AS gmb WHERE gmb.group_id = ? AND gmb.left_at IS NULL)", groupID).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "groupRepo.UnhideGroupForAll.Exec")
	}
	return nil
}

func (r *GroupRepository) ListGroupsFor(ctx context.Context, userID int64) ([]*model.Group, error) {
	var groups []*model.Group
	err := r.db.NewSelect().
		Model(&groups).
		Where("EXISTS (SELECT 1 FROM group_members AS gmb WHERE gmb.group_id = g.id AND gmb.user_id = ? AND gmb.left_at IS NULL)", userID).
		Where("NOT EXISTS (SELECT 1 FROM group_hidden AS gh WHERE gh.group_id = g.id AND gh.user_id = ?)", userID).
		Order("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "groupRepo.ListGroupsFor.Scan")
	}
	return groups, nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}
