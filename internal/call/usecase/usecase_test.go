package usecase

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/call/model"
	"github.com/fathima-sithara/realtime-service/internal/call/repository"
	"github.com/fathima-sithara/realtime-service/internal/chat"
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

func (f *fakeNotifier) count(userID int64, event string) int {
	n := 0
	for _, e := range f.events {
		if e.Event != event {
			continue
		}
		for _, id := range e.UserIDs {
			if id == userID {
				n++
			}
		}
	}
	return n
}

type appendedEvent struct {
	FromID, ToID int64
	Body         string
}

type fakeAppender struct {
	events []appendedEvent
}

func (f *fakeAppender) AppendCallEvent(_ context.Context, fromID, toID int64, body string) (*chat.MessageDTO, error) {
	f.events = append(f.events, appendedEvent{FromID: fromID, ToID: toID, Body: body})
	return &chat.MessageDTO{ID: uuid.New(), SenderID: fromID, ReceiverID: toID, Content: body}, nil
}

type fakeRooms struct{}

func (fakeRooms) GetOrCreateRoom(_ context.Context, name string) (string, error) {
	return "https://rooms.example.com/" + name, nil
}

func (fakeRooms) MintToken(room string, userID int64) (string, error) {
	return room + "-token", nil
}

type fakePresence struct {
	online map[int64]bool
}

func (f *fakePresence) IsOnline(userID int64) bool { return f.online[userID] }

type fakeGroups struct {
	members map[uuid.UUID][]int64
}

func (f *fakeGroups) ActiveMemberIDs(_ context.Context, groupID uuid.UUID) ([]int64, error) {
	return f.members[groupID], nil
}

type harness struct {
	uc       *CallCoordinator
	notifier *fakeNotifier
	appender *fakeAppender
	presence *fakePresence
	groups   *fakeGroups
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	for _, m := range []any{
		(*model.Call)(nil),
		(*model.GroupCall)(nil),
		(*model.GroupCallParticipant)(nil),
	} {
		_, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		notifier: &fakeNotifier{},
		appender: &fakeAppender{},
		presence: &fakePresence{online: map[int64]bool{}},
		groups:   &fakeGroups{members: map[uuid.UUID][]int64{}},
	}
	h.uc = NewCallCoordinator(
		repository.NewCallRepository(db), h.appender, fakeRooms{}, h.groups,
		h.notifier, h.presence, zap.NewNop().Sugar())
	return h
}

func TestInviteMarksMissedAndSkipsOfflineCallee(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	dto, err := h.uc.Invite(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusMissed, dto.Status)
	require.False(t, dto.CalleeOnline)
	require.Zero(t, h.notifier.count(2, "call:incoming"))
}

func TestInviteNotifiesOnlineCallee(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.presence.online[2] = true

	dto, err := h.uc.Invite(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, dto.CalleeOnline)
	require.Equal(t, 1, h.notifier.count(2, "call:incoming"))
}

func TestAnswerRegistersBothPartiesSymmetrically(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	invite, err := h.uc.Invite(ctx, 1, 2)
	require.NoError(t, err)

	_, err = h.uc.Answer(ctx, invite.ID, 1)
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	answered, err := h.uc.Answer(ctx, invite.ID, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusAnswered, answered.Status)
	require.Equal(t, 1, h.notifier.count(1, "call:answered"))

	// Both sides are busy now.
	_, err = h.uc.Invite(ctx, 1, 3)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	other, err := h.uc.Invite(ctx, 3, 4)
	require.NoError(t, err)
	_, err = h.uc.Answer(ctx, other.ID, 4)
	require.NoError(t, err)
	_, err = h.uc.Answer(ctx, other.ID, 4)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestEndClearsBothEntriesAndAppendsEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	invite, err := h.uc.Invite(ctx, 1, 2)
	require.NoError(t, err)
	_, err = h.uc.Answer(ctx, invite.ID, 2)
	require.NoError(t, err)

	_, err = h.uc.End(ctx, invite.ID, 9, "")
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	ended, err := h.uc.End(ctx, invite.ID, 1, "")
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, ended.Status)
	require.Equal(t, model.EndReasonHangup, ended.EndReason)
	require.Equal(t, 1, h.notifier.count(2, "call:ended"))
	require.Len(t, h.appender.events, 1)

	// Neither side is registered anymore.
	dto, err := h.uc.EndByDisconnect(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, dto)
	dto, err = h.uc.EndByDisconnect(ctx, 2)
	require.NoError(t, err)
	require.Nil(t, dto)

	// Ending twice is a conflict.
	_, err = h.uc.End(ctx, invite.ID, 1, "")
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestStaleEndKeepsNewerCallRegistered(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.uc.Invite(ctx, 1, 2)
	require.NoError(t, err)
	_, err = h.uc.Answer(ctx, first.ID, 2)
	require.NoError(t, err)
	_, err = h.uc.End(ctx, first.ID, 1, "")
	require.NoError(t, err)

	second, err := h.uc.Invite(ctx, 1, 3)
	require.NoError(t, err)
	_, err = h.uc.Answer(ctx, second.ID, 3)
	require.NoError(t, err)

	// Replaying end on the finished call must not evict the entries both
	// parties have since registered for the newer call.
	_, err = h.uc.End(ctx, first.ID, 1, "")
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	_, err = h.uc.Invite(ctx, 1, 5)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
	_, err = h.uc.Invite(ctx, 3, 5)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	// The live call still ends normally.
	ended, err := h.uc.End(ctx, second.ID, 3, "")
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, ended.Status)
	dto, err := h.uc.EndByDisconnect(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, dto)
}

func TestRejectIsTerminal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	invite, err := h.uc.Invite(ctx, 1, 2)
	require.NoError(t, err)

	rejected, err := h.uc.Reject(ctx, invite.ID, 2)
	require.NoError(t, err)
	require.Equal(t, model.StatusRejected, rejected.Status)
	require.Equal(t, 1, h.notifier.count(1, "call:rejected"))

	_, err = h.uc.Answer(ctx, invite.ID, 2)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestDisconnectEndsRegisteredCallForCounterpart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	invite, err := h.uc.Invite(ctx, 1, 2)
	require.NoError(t, err)
	_, err = h.uc.Answer(ctx, invite.ID, 2)
	require.NoError(t, err)

	ended, err := h.uc.EndByDisconnect(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, ended)
	require.Equal(t, model.EndReasonDisconnect, ended.EndReason)
	require.Equal(t, 1, h.notifier.count(1, "call:ended"))

	// The counterpart's entry went away with the same end.
	dto, err := h.uc.EndByDisconnect(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, dto)
}

func TestGroupCallLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	groupID := uuid.New()
	h.groups.members[groupID] = []int64{1, 2, 3}

	_, err := h.uc.InviteGroup(ctx, groupID, 9)
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	gc, err := h.uc.InviteGroup(ctx, groupID, 1)
	require.NoError(t, err)
	require.NotEmpty(t, gc.RoomURL)
	require.NotEmpty(t, gc.Token)
	require.Equal(t, 1, h.notifier.count(2, "group:call-incoming"))
	require.Equal(t, 1, h.notifier.count(3, "group:call-incoming"))
	require.Zero(t, h.notifier.count(1, "group:call-incoming"))

	join, err := h.uc.JoinGroupCall(ctx, gc.ID, 2)
	require.NoError(t, err)
	require.NotEmpty(t, join.Token)

	// Rejoining just re-mints a token; the roster does not grow.
	_, err = h.uc.JoinGroupCall(ctx, gc.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 1, h.notifier.count(1, "group:call-joined"))

	_, err = h.uc.JoinGroupCall(ctx, gc.ID, 9)
	require.True(t, apperrors.IsCode(err, apperrors.CodePermissionDenied))

	require.NoError(t, h.uc.LeaveGroupCall(ctx, gc.ID, 2))
	require.NoError(t, h.uc.LeaveGroupCall(ctx, gc.ID, 1))

	// Roster emptied, the call is closed for further joins.
	_, err = h.uc.JoinGroupCall(ctx, gc.ID, 3)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestDisconnectClosesGroupCallRoster(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	groupID := uuid.New()
	h.groups.members[groupID] = []int64{1, 2}

	gc, err := h.uc.InviteGroup(ctx, groupID, 1)
	require.NoError(t, err)
	_, err = h.uc.JoinGroupCall(ctx, gc.ID, 2)
	require.NoError(t, err)

	dto, err := h.uc.EndByDisconnect(ctx, 2)
	require.NoError(t, err)
	require.Nil(t, dto)

	// Starter drops too; the roster is empty and the call ends.
	_, err = h.uc.EndByDisconnect(ctx, 1)
	require.NoError(t, err)
	_, err = h.uc.JoinGroupCall(ctx, gc.ID, 1)
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}
