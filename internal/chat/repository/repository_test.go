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

	"github.com/fathima-sithara/realtime-service/internal/chat/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, m := range []any{(*model.Message)(nil), (*model.Conversation)(nil)} {
		_, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedMessage(t *testing.T, repo *ChatRepository, sender, receiver int64, at time.Time) *model.Message {
	t.Helper()
	msg := &model.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Ciphertext: "aabbcc",
		IV:         "001122",
		Kind:       model.KindText,
		CreatedAt:  at,
	}
	require.NoError(t, repo.Insert(context.Background(), msg))
	return msg
}

func TestPurgeOnlyWhenBothSidesDeleted(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	msg := seedMessage(t, repo, 1, 2, time.Now().UTC())

	_, err := repo.SetSideDeleted(ctx, msg.ID, true)
	require.NoError(t, err)
	purged, err := repo.PurgeIfBothDeleted(ctx, msg.ID)
	require.NoError(t, err)
	require.False(t, purged)

	_, err = repo.SetSideDeleted(ctx, msg.ID, false)
	require.NoError(t, err)
	purged, err = repo.PurgeIfBothDeleted(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, purged)

	_, err = repo.GetByID(ctx, msg.ID)
	require.ErrorIs(t, err, apperrors.ErrMessageNotFound)
}

func TestPurgeReceiverFirstThenSender(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	msg := seedMessage(t, repo, 1, 2, time.Now().UTC())

	_, err := repo.SetSideDeleted(ctx, msg.ID, false)
	require.NoError(t, err)
	purged, err := repo.PurgeIfBothDeleted(ctx, msg.ID)
	require.NoError(t, err)
	require.False(t, purged)

	_, err = repo.SetSideDeleted(ctx, msg.ID, true)
	require.NoError(t, err)
	purged, err = repo.PurgeIfBothDeleted(ctx, msg.ID)
	require.NoError(t, err)
	require.True(t, purged)
}

func TestUpsertConversationConvergesOnCanonicalPair(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	now := time.Now().UTC()

	m1 := seedMessage(t, repo, 7, 3, now)
	conv1, err := repo.UpsertConversation(ctx, 7, 3, m1.ID, now)
	require.NoError(t, err)

	m2 := seedMessage(t, repo, 3, 7, now.Add(time.Second))
	conv2, err := repo.UpsertConversation(ctx, 3, 7, m2.ID, now.Add(time.Second))
	require.NoError(t, err)

	require.Equal(t, conv1.ID, conv2.ID)
	require.Equal(t, int64(3), conv2.UserAID)
	require.Equal(t, int64(7), conv2.UserBID)

	// First send was 7 -> 3 (receiver is A), second was 3 -> 7.
	require.Equal(t, int64(1), conv2.UnreadA)
	require.Equal(t, int64(1), conv2.UnreadB)
	require.Equal(t, m2.ID, *conv2.LastMessageID)
}

func TestResetUnreadClearsOnlyReaderSlot(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	now := time.Now().UTC()

	m := seedMessage(t, repo, 7, 3, now)
	_, err := repo.UpsertConversation(ctx, 7, 3, m.ID, now)
	require.NoError(t, err)
	m2 := seedMessage(t, repo, 3, 7, now.Add(time.Second))
	_, err = repo.UpsertConversation(ctx, 3, 7, m2.ID, now.Add(time.Second))
	require.NoError(t, err)

	require.NoError(t, repo.ResetUnread(ctx, 3, 7))

	conv, err := repo.GetConversation(ctx, 3, 7)
	require.NoError(t, err)
	require.Equal(t, int64(0), conv.UnreadFor(3))
	require.Equal(t, int64(1), conv.UnreadFor(7))
}

func TestEditGuardsSenderAndTombstone(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	msg := seedMessage(t, repo, 1, 2, time.Now().UTC())

	n, err := repo.Edit(ctx, msg.ID, 2, "ff", "00", time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = repo.MarkDeletedForAll(ctx, msg.ID, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Tombstoned rows reject edits even from the sender.
	n, err = repo.Edit(ctx, msg.ID, 1, "ff", "00", time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, n)

	// And a second for-all delete is a no-op.
	n, err = repo.MarkDeletedForAll(ctx, msg.ID, 1)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestHistoryHidesOnlyViewerDeletions(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	now := time.Now().UTC()

	mine := seedMessage(t, repo, 1, 2, now)
	theirs := seedMessage(t, repo, 2, 1, now.Add(time.Second))

	// Viewer 1 deletes their own message for themselves.
	_, err := repo.SetSideDeleted(ctx, mine.ID, true)
	require.NoError(t, err)

	own, err := repo.History(ctx, 1, 2, 50, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, theirs.ID, own[0].ID)

	// The counterpart still sees both.
	peer, err := repo.History(ctx, 2, 1, 50, 0)
	require.NoError(t, err)
	require.Len(t, peer, 2)
}

func TestLastVisibleSkipsViewerDeletedRows(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	now := time.Now().UTC()

	older := seedMessage(t, repo, 1, 2, now)
	newest := seedMessage(t, repo, 1, 2, now.Add(time.Second))

	_, err := repo.SetSideDeleted(ctx, newest.ID, true)
	require.NoError(t, err)

	last, err := repo.LastVisible(ctx, 1, 2)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, older.ID, last.ID)

	// Receiver's preview still points at the newest row.
	last, err = repo.LastVisible(ctx, 2, 1)
	require.NoError(t, err)
	require.Equal(t, newest.ID, last.ID)
}

func TestMarkConversationReadFlagsInboundOnly(t *testing.T) {
	ctx := context.Background()
	repo := NewChatRepository(newTestDB(t))
	now := time.Now().UTC()

	inbound := seedMessage(t, repo, 2, 1, now)
	outbound := seedMessage(t, repo, 1, 2, now.Add(time.Second))

	n, err := repo.MarkConversationRead(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := repo.GetByID(ctx, inbound.ID)
	require.NoError(t, err)
	require.True(t, got.Read)

	got, err = repo.GetByID(ctx, outbound.ID)
	require.NoError(t, err)
	require.False(t, got.Read)
}
