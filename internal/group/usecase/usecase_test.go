package usecase

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/crypto"
	"github.com/fathima-sithara/realtime-service/internal/group"
	"github.com/fathima-sithara/realtime-service/internal/group/model"
	"github.com/fathima-sithara/realtime-service/internal/group/repository"
	usermodel "github.com/fathima-sithara/realtime-service/internal/user/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

type sentEvent struct {
	UserIDs []int64
	Event   string
}

type fakeNotifier struct {
	events []sentEvent
}

func (f *fakeNotifier) Unicast(userID int64, event string, _ any) {
	f.events = append(f.events, sentEvent{UserIDs: []int64{userID}, Event: event})
}

func (f *fakeNotifier) Multicast(userIDs []int64, event string, _ any) {
	f.events = append(f.events, sentEvent{UserIDs: userIDs, Event: event})
}

func newTestUsecase(t *testing.T) (*GroupUsecase, *bun.DB) {
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

	codec, err := crypto.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	uc := NewGroupUsecase(repository.NewGroupRepository(db), codec, &fakeNotifier{}, zap.NewNop().Sugar())
	return uc, db
}

func createGroup(t *testing.T, uc *GroupUsecase, creatorID int64, memberIDs ...int64) *group.GroupDTO {
	t.Helper()
	dto, err := uc.CreateGroup(context.Background(), group.CreateGroupCommand{
		CreatorID: creatorID,
		Name:      "devs",
		MemberIDs: memberIDs,
	})
	require.NoError(t, err)
	return dto
}

func TestCreateGroupSeedsCreatorAsAdmin(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2, 3)

	require.Equal(t, 3, g.MemberCount)

	members, err := uc.Members(ctx, g.ID, 1)
	require.NoError(t, err)
	require.Len(t, members, 3)
	for _, m := range members {
		if m.UserID == 1 {
			require.Equal(t, model.RoleAdmin, m.Role)
		} else {
			require.Equal(t, model.RoleMember, m.Role)
		}
	}
}

func TestSoleAdminCannotLeaveUntilPromotion(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2)

	err := uc.Leave(ctx, g.ID, 1)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	require.NoError(t, uc.PromoteAdmin(ctx, group.MemberCommand{GroupID: g.ID, ActorID: 1, UserID: 2}))
	require.NoError(t, uc.Leave(ctx, g.ID, 1))

	// Last remaining member may always leave.
	require.NoError(t, uc.Leave(ctx, g.ID, 2))
}

func TestMembershipPermissions(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2)

	// Non-admin cannot add.
	_, err := uc.AddMember(ctx, group.MemberCommand{GroupID: g.ID, ActorID: 2, UserID: 3})
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	// Duplicate active membership is a conflict.
	_, err = uc.AddMember(ctx, group.MemberCommand{GroupID: g.ID, ActorID: 1, UserID: 2})
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	// Admins remove themselves via leave, not remove.
	err = uc.RemoveMember(ctx, group.MemberCommand{GroupID: g.ID, ActorID: 1, UserID: 1})
	require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))
}

func TestRejoinGapStaysDark(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2)

	_, err := uc.SendMessage(ctx, group.SendMessageCommand{GroupID: g.ID, SenderID: 1, Content: "before leave"})
	require.NoError(t, err)

	require.NoError(t, uc.Leave(ctx, g.ID, 2))

	_, err = uc.SendMessage(ctx, group.SendMessageCommand{GroupID: g.ID, SenderID: 1, Content: "during gap"})
	require.NoError(t, err)

	// Removed members cannot post.
	_, err = uc.SendMessage(ctx, group.SendMessageCommand{GroupID: g.ID, SenderID: 2, Content: "nope"})
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	time.Sleep(5 * time.Millisecond)
	_, err = uc.AddMember(ctx, group.MemberCommand{GroupID: g.ID, ActorID: 1, UserID: 2})
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, group.SendMessageCommand{GroupID: g.ID, SenderID: 1, Content: "after rejoin"})
	require.NoError(t, err)

	msgs, err := uc.History(ctx, g.ID, 2, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "after rejoin", msgs[0].Content)

	// The admin who never left still sees everything.
	msgs, err = uc.History(ctx, g.ID, 1, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestSendResurfacesHiddenGroupForEveryone(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2, 3)

	require.NoError(t, uc.Hide(ctx, g.ID, 2))
	require.NoError(t, uc.Hide(ctx, g.ID, 3))

	groups, err := uc.ListGroups(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, groups)

	_, err = uc.SendMessage(ctx, group.SendMessageCommand{GroupID: g.ID, SenderID: 1, Content: "ping"})
	require.NoError(t, err)

	for _, userID := range []int64{2, 3} {
		groups, err := uc.ListGroups(ctx, userID)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		require.Equal(t, 1, groups[0].UnreadCount)
	}
}

func TestUnhideRestoresListing(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2)

	require.NoError(t, uc.Hide(ctx, g.ID, 2))
	groups, err := uc.ListGroups(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, groups)

	require.NoError(t, uc.Unhide(ctx, g.ID, 2))
	groups, err = uc.ListGroups(ctx, 2)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	// Hiding never affects anyone else's listing.
	groups, err = uc.ListGroups(ctx, 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
}

func TestDeleteForAllTombstonesGroupMessage(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2)

	msg, err := uc.SendMessage(ctx, group.SendMessageCommand{GroupID: g.ID, SenderID: 1, Content: "oops"})
	require.NoError(t, err)

	_, err = uc.DeleteMessage(ctx, group.DeleteMessageCommand{MessageID: msg.ID, UserID: 2, ForAll: true})
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	res, err := uc.DeleteMessage(ctx, group.DeleteMessageCommand{MessageID: msg.ID, UserID: 1, ForAll: true})
	require.NoError(t, err)
	require.True(t, res.ForAll)

	_, err = uc.EditMessage(ctx, group.EditMessageCommand{MessageID: msg.ID, EditorID: 1, Content: "rewrite"})
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	msgs, err := uc.History(ctx, g.ID, 2, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, model.TombstoneText, msgs[0].Content)
	require.True(t, msgs[0].Deleted)
}

func TestDeleteForMeRequiresMembership(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2)

	msg, err := uc.SendMessage(ctx, group.SendMessageCommand{GroupID: g.ID, SenderID: 1, Content: "hello"})
	require.NoError(t, err)

	_, err = uc.DeleteMessage(ctx, group.DeleteMessageCommand{MessageID: msg.ID, UserID: 9})
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	_, err = uc.DeleteMessage(ctx, group.DeleteMessageCommand{MessageID: msg.ID, UserID: 2})
	require.NoError(t, err)

	msgs, err := uc.History(ctx, g.ID, 2, 50, 0)
	require.NoError(t, err)
	require.Empty(t, msgs)

	msgs, err = uc.History(ctx, g.ID, 1, 50, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestMarkReadFeedsMessageInfo(t *testing.T) {
	ctx := context.Background()
	uc, _ := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2, 3)

	msg, err := uc.SendMessage(ctx, group.SendMessageCommand{GroupID: g.ID, SenderID: 1, Content: "status?"})
	require.NoError(t, err)

	n, err := uc.MarkRead(ctx, g.ID, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	info, err := uc.MessageInfo(ctx, msg.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, info.ReadCount)
	require.Equal(t, 3, info.ActiveMemberCount)
	require.Equal(t, []int64{2}, info.ReaderIDs)
}

func TestSearchRequiresActiveMembership(t *testing.T) {
	ctx := context.Background()
	uc, db := newTestUsecase(t)
	g := createGroup(t, uc, 1, 2)

	_, err := db.NewInsert().Model(&usermodel.User{
		ID: 1, Username: "asha", Name: "Asha K", CreatedAt: time.Now().UTC(),
	}).Exec(ctx)
	require.NoError(t, err)

	_, err = uc.SendMessage(ctx, group.SendMessageCommand{GroupID: g.ID, SenderID: 1, Content: "release notes"})
	require.NoError(t, err)

	_, err = uc.Search(ctx, g.ID, 9, "asha", 25)
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	hits, err := uc.Search(ctx, g.ID, 2, "asha", 25)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "asha", hits[0].SenderUsername)

	// Bodies are stored encrypted, so plaintext terms do not match them.
	hits, err = uc.Search(ctx, g.ID, 2, "release", 25)
	require.NoError(t, err)
	require.Empty(t, hits)
}
