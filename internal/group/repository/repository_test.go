package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/fathima-sithara/realtime-service/internal/group/model"
	usermodel "github.com/fathima-sithara/realtime-service/internal/user/model"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, m := range []any{
		(*model.Group)(nil),
		(*model.GroupMember)(nil),
		(*model.GroupMessage)(nil),
		(*model.GroupMessageSuppression)(nil),
		(*model.GroupMessageReceipt)(nil),
		(*model.GroupHidden)(nil),
		(*usermodel.User)(nil),
	} {
		_, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedGroup(t *testing.T, repo *GroupRepository) *model.Group {
	t.Helper()
	now := time.Now().UTC()
	g := &model.Group{ID: uuid.New(), Name: "devs", CreatorID: 1, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.InsertGroup(context.Background(), g))
	return g
}

func seedMember(t *testing.T, repo *GroupRepository, groupID uuid.UUID, userID int64, role string, joinedAt time.Time) *model.GroupMember {
	t.Helper()
	m := &model.GroupMember{ID: uuid.New(), GroupID: groupID, UserID: userID, Role: role, JoinedAt: joinedAt}
	require.NoError(t, repo.InsertMember(context.Background(), m))
	return m
}

func seedGroupMessage(t *testing.T, repo *GroupRepository, groupID uuid.UUID, senderID int64, at time.Time) *model.GroupMessage {
	t.Helper()
	msg := &model.GroupMessage{
		ID:         uuid.New(),
		GroupID:    groupID,
		SenderID:   senderID,
		Ciphertext: "aabb",
		IV:         "0011",
		CreatedAt:  at,
	}
	require.NoError(t, repo.InsertMessage(context.Background(), msg))
	return msg
}

func TestHistoryRespectsVisibilityWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepository(newTestDB(t))
	g := seedGroup(t, repo)
	base := time.Now().UTC()

	seedGroupMessage(t, repo, g.ID, 1, base.Add(-time.Hour))
	inWindow := seedGroupMessage(t, repo, g.ID, 1, base.Add(time.Minute))

	// Member joined after the first message was sent.
	seedMember(t, repo, g.ID, 2, model.RoleMember, base)

	msgs, err := repo.History(ctx, g.ID, 2, base, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, inWindow.ID, msgs[0].ID)
}

func TestHistoryExcludesSuppressedRows(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepository(newTestDB(t))
	g := seedGroup(t, repo)
	base := time.Now().UTC()

	kept := seedGroupMessage(t, repo, g.ID, 1, base.Add(time.Second))
	hidden := seedGroupMessage(t, repo, g.ID, 1, base.Add(2*time.Second))
	require.NoError(t, repo.SuppressMessage(ctx, hidden.ID, 2))
	// Suppression is idempotent.
	require.NoError(t, repo.SuppressMessage(ctx, hidden.ID, 2))

	msgs, err := repo.History(ctx, g.ID, 2, base, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, kept.ID, msgs[0].ID)

	// Other viewers are unaffected.
	msgs, err = repo.History(ctx, g.ID, 3, base, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestSearchMatchesSenderIdentityAndStoredBody(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGroupRepository(db)
	g := seedGroup(t, repo)
	base := time.Now().UTC()

	_, err := db.NewInsert().Model(&usermodel.User{
		ID: 1, Username: "asha", Name: "Asha K", CreatedAt: base,
	}).Exec(ctx)
	require.NoError(t, err)

	msg := seedGroupMessage(t, repo, g.ID, 1, base.Add(time.Second))

	hits, err := repo.Search(ctx, g.ID, 2, base, "asha", 25)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, msg.ID, hits[0].Message.ID)
	require.Equal(t, "asha", hits[0].SenderUsername)

	// Body matching runs against the stored ciphertext column.
	hits, err = repo.Search(ctx, g.ID, 2, base, "aab", 25)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = repo.Search(ctx, g.ID, 2, base, "plaintext-word", 25)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestUpsertReceiptsSkipsOwnAndExisting(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepository(newTestDB(t))
	g := seedGroup(t, repo)
	base := time.Now().UTC()

	seedGroupMessage(t, repo, g.ID, 2, base.Add(time.Second))
	seedGroupMessage(t, repo, g.ID, 1, base.Add(2*time.Second))

	n, err := repo.UpsertReceipts(ctx, g.ID, 2, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Second pass inserts nothing new.
	n, err = repo.UpsertReceipts(ctx, g.ID, 2, base, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Zero(t, n)

	unread, err := repo.UnreadCount(ctx, g.ID, 2, base)
	require.NoError(t, err)
	require.Zero(t, unread)
}

func TestCloseMembershipIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepository(newTestDB(t))
	g := seedGroup(t, repo)
	m := seedMember(t, repo, g.ID, 2, model.RoleMember, time.Now().UTC())

	n, err := repo.CloseMembership(ctx, m.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = repo.CloseMembership(ctx, m.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestListGroupsForExcludesHiddenAndLeft(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepository(newTestDB(t))
	now := time.Now().UTC()

	visible := seedGroup(t, repo)
	hidden := seedGroup(t, repo)
	left := seedGroup(t, repo)

	seedMember(t, repo, visible.ID, 2, model.RoleMember, now)
	seedMember(t, repo, hidden.ID, 2, model.RoleMember, now)
	m := seedMember(t, repo, left.ID, 2, model.RoleMember, now)

	require.NoError(t, repo.HideGroup(ctx, hidden.ID, 2, now))
	_, err := repo.CloseMembership(ctx, m.ID, now)
	require.NoError(t, err)

	groups, err := repo.ListGroupsFor(ctx, 2)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, visible.ID, groups[0].ID)
}

func TestUnhideGroupForAllClearsActiveMembersOnly(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewGroupRepository(db)
	g := seedGroup(t, repo)
	now := time.Now().UTC()

	seedMember(t, repo, g.ID, 2, model.RoleMember, now)
	seedMember(t, repo, g.ID, 3, model.RoleMember, now)
	gone := seedMember(t, repo, g.ID, 4, model.RoleMember, now)
	_, err := repo.CloseMembership(ctx, gone.ID, now)
	require.NoError(t, err)

	for _, userID := range []int64{2, 3, 4} {
		require.NoError(t, repo.HideGroup(ctx, g.ID, userID, now))
	}

	require.NoError(t, repo.UnhideGroupForAll(ctx, g.ID))

	for _, userID := range []int64{2, 3} {
		groups, err := repo.ListGroupsFor(ctx, userID)
		require.NoError(t, err)
		require.Len(t, groups, 1)
	}

	// The former member's hide row stays until they unhide themselves.
	count, err := db.NewSelect().
		Model((*model.GroupHidden)(nil)).
		Where("group_id = ? AND user_id = ?", g.ID, 4).
		Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
