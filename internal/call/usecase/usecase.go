package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/call"
	"github.com/fathima-sithara/realtime-service/internal/call/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

// activeCall is the ephemeral per-user entry. Always registered
// symmetrically under both participant ids so either side's disconnect can
// resolve the counterpart.
type activeCall struct {
	CallID        uuid.UUID
	CounterpartID int64
	StartedAt     time.Time
}

// CallCoordinator owns all in-memory 1:1 call state. Rebuilt empty on
// restart; active calls are intentionally not durable.
type CallCoordinator struct {
	repo     call.Repository
	chats    call.EventAppender
	rooms    call.RoomProvider
	groups   call.GroupDirectory
	notifier call.Notifier
	presence call.PresenceChecker
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	active map[int64]activeCall
}

func NewCallCoordinator(
	repo call.Repository,
	chats call.EventAppender,
	rooms call.RoomProvider,
	groups call.GroupDirectory,
	notifier call.Notifier,
	presence call.PresenceChecker,
	logger *zap.SugaredLogger,
) *CallCoordinator {
	return &CallCoordinator{
		repo:     repo,
		chats:    chats,
		rooms:    rooms,
		groups:   groups,
		notifier: notifier,
		presence: presence,
		logger:   logger,
		active:   make(map[int64]activeCall),
	}
}

func (c *CallCoordinator) Invite(ctx context.Context, callerID, calleeID int64) (*call.CallDTO, error) {
	if callerID == calleeID {
		return nil, apperrors.InvalidArg("cannot call yourself")
	}
	if c.hasActive(callerID) {
		return nil, apperrors.ErrAlreadyInCall
	}

	row := &model.Call{
		ID:        uuid.New(),
		CallerID:  callerID,
		CalleeID:  calleeID,
		Status:    model.StatusMissed,
		StartedAt: time.Now().UTC(),
	}
	if err := c.repo.InsertCall(ctx, row); err != nil {
		c.logger.Errorw("insert call failed", "err", err)
		return nil, apperrors.Internal("failed to start call")
	}

	dto := render(row)
	dto.CalleeOnline = c.presence.IsOnline(calleeID)
	if dto.CalleeOnline {
		c.notifier.Unicast(calleeID, "call:incoming", dto)
	}
	// No in-core timeout: deciding when an unanswered invite expires is the
	// caller's policy.
	return dto, nil
}

func (c *CallCoordinator) Answer(ctx context.Context, callID uuid.UUID, userID int64) (*call.CallDTO, error) {
	row, err := c.repo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if row.CalleeID != userID {
		return nil, apperrors.ErrNotCallParty
	}

	now := time.Now().UTC()
	// Reserve the symmetric entries before persisting so a second answer or
	// a competing call loses cleanly.
	if err := c.register(row.ID, row.CallerID, row.CalleeID, now); err != nil {
		return nil, err
	}

	n, err := c.repo.SetAnswered(ctx, callID, now)
	if err != nil {
		c.unregisterCall(row.ID, row.CallerID, row.CalleeID)
		c.logger.Errorw("set answered failed", "err", err, "call_id", callID)
		return nil, apperrors.Internal("failed to answer call")
	}
	if n == 0 {
		c.unregisterCall(row.ID, row.CallerID, row.CalleeID)
		return nil, apperrors.Conflict("call is no longer ringing")
	}

	row.Status = model.StatusAnswered
	row.AnsweredAt = &now
	dto := render(row)
	c.notifier.Unicast(row.CallerID, "call:answered", dto)
	return dto, nil
}

func (c *CallCoordinator) Reject(ctx context.Context, callID uuid.UUID, userID int64) (*call.CallDTO, error) {
	row, err := c.repo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if row.CalleeID != userID {
		return nil, apperrors.ErrNotCallParty
	}

	now := time.Now().UTC()
	n, err := c.repo.SetRejected(ctx, callID, now)
	if err != nil {
		c.logger.Errorw("set rejected failed", "err", err, "call_id", callID)
		return nil, apperrors.Internal("failed to reject call")
	}
	if n == 0 {
		return nil, apperrors.Conflict("call is no longer ringing")
	}

	row.Status = model.StatusRejected
	row.EndedAt = &now
	dto := render(row)
	c.notifier.Unicast(row.CallerID, "call:rejected", dto)
	return dto, nil
}

func (c *CallCoordinator) End(ctx context.Context, callID uuid.UUID, userID int64, reason string) (*call.CallDTO, error) {
	row, err := c.repo.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if row.CallerID != userID && row.CalleeID != userID {
		return nil, apperrors.ErrNotCallParty
	}
	if reason == "" {
		reason = model.EndReasonHangup
	}
	counterpartID := row.CallerID
	if userID == row.CallerID {
		counterpartID = row.CalleeID
	}
	return c.end(ctx, row, userID, counterpartID, reason)
}

func (c *CallCoordinator) EndByDisconnect(ctx context.Context, userID int64) (*call.CallDTO, error) {
	c.reconcileGroupCalls(ctx, userID)

	c.mu.Lock()
	entry, ok := c.active[userID]
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}

	row, err := c.repo.GetCall(ctx, entry.CallID)
	if err != nil {
		// Entry without a row: drop the stale state and move on.
		c.unregisterCall(entry.CallID, userID, entry.CounterpartID)
		return nil, err
	}
	return c.end(ctx, row, userID, entry.CounterpartID, model.EndReasonDisconnect)
}

// end persists termination, removes the active entries belonging to this
// call, notifies the counterpart and appends the call event to the 1:1
// stream.
func (c *CallCoordinator) end(ctx context.Context, row *model.Call, userID, counterpartID int64, reason string) (*call.CallDTO, error) {
	now := time.Now().UTC()
	var duration int64
	if row.AnsweredAt != nil {
		duration = int64(now.Sub(*row.AnsweredAt) / time.Second)
	}

	n, err := c.repo.SetEnded(ctx, row.ID, now, duration, reason)
	if err != nil {
		c.logger.Errorw("set ended failed", "err", err, "call_id", row.ID)
		return nil, apperrors.Internal("failed to end call")
	}
	c.unregisterCall(row.ID, row.CallerID, row.CalleeID)
	if n == 0 {
		return nil, apperrors.Conflict("call already ended")
	}

	row.Status = model.StatusEnded
	row.EndedAt = &now
	row.DurationSeconds = duration
	row.EndReason = reason
	dto := render(row)

	c.notifier.Unicast(counterpartID, "call:ended", dto)

	if _, err := c.chats.AppendCallEvent(ctx, userID, counterpartID, callEventBody(row)); err != nil {
		c.logger.Errorw("append call event failed", "err", err, "call_id", row.ID)
	}
	return dto, nil
}

func (c *CallCoordinator) InviteGroup(ctx context.Context, groupID uuid.UUID, starterID int64) (*call.GroupCallDTO, error) {
	memberIDs, err := c.groups.ActiveMemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !lo.Contains(memberIDs, starterID) {
		return nil, apperrors.ErrNotGroupMember
	}

	roomName := "group-" + groupID.String()
	roomURL, err := c.rooms.GetOrCreateRoom(ctx, roomName)
	if err != nil {
		c.logger.Errorw("room provisioning failed", "err", err, "group_id", groupID)
		return nil, apperrors.Internal("failed to provision call room")
	}

	now := time.Now().UTC()
	gc := &model.GroupCall{
		ID:        uuid.New(),
		GroupID:   groupID,
		StarterID: starterID,
		RoomName:  roomName,
		StartedAt: now,
	}
	if err := c.repo.InsertGroupCall(ctx, gc); err != nil {
		c.logger.Errorw("insert group call failed", "err", err, "group_id", groupID)
		return nil, apperrors.Internal("failed to start group call")
	}
	if err := c.repo.InsertParticipant(ctx, &model.GroupCallParticipant{
		ID:          uuid.New(),
		GroupCallID: gc.ID,
		UserID:      starterID,
		JoinedAt:    now,
	}); err != nil {
		c.logger.Errorw("insert participant failed", "err", err, "group_call_id", gc.ID)
		return nil, apperrors.Internal("failed to start group call")
	}

	token, err := c.rooms.MintToken(roomName, starterID)
	if err != nil {
		c.logger.Errorw("token mint failed", "err", err, "group_call_id", gc.ID)
		return nil, apperrors.Internal("failed to start group call")
	}

	dto := &call.GroupCallDTO{
		ID:        gc.ID,
		GroupID:   groupID,
		StarterID: starterID,
		RoomURL:   roomURL,
		Token:     token,
		StartedAt: now,
	}
	announce := &call.GroupCallDTO{ID: gc.ID, GroupID: groupID, StarterID: starterID, RoomURL: roomURL, StartedAt: now}
	c.notifier.Multicast(lo.Without(memberIDs, starterID), "group:call-incoming", announce)
	return dto, nil
}

func (c *CallCoordinator) JoinGroupCall(ctx context.Context, groupCallID uuid.UUID, userID int64) (*call.GroupJoinDTO, error) {
	gc, err := c.repo.GetGroupCall(ctx, groupCallID)
	if err != nil {
		return nil, err
	}
	if gc.EndedAt != nil {
		return nil, apperrors.Conflict("group call has ended")
	}
	memberIDs, err := c.groups.ActiveMemberIDs(ctx, gc.GroupID)
	if err != nil {
		return nil, err
	}
	if !lo.Contains(memberIDs, userID) {
		return nil, apperrors.ErrNotGroupMember
	}

	// Joining twice is idempotent: re-mint the token, keep the open row.
	existing, err := c.repo.ActiveParticipant(ctx, groupCallID, userID)
	if err != nil {
		c.logger.Errorw("participant lookup failed", "err", err, "group_call_id", groupCallID)
		return nil, apperrors.Internal("failed to join group call")
	}
	now := time.Now().UTC()
	if existing == nil {
		if err := c.repo.InsertParticipant(ctx, &model.GroupCallParticipant{
			ID:          uuid.New(),
			GroupCallID: groupCallID,
			UserID:      userID,
			JoinedAt:    now,
		}); err != nil {
			c.logger.Errorw("insert participant failed", "err", err, "group_call_id", groupCallID)
			return nil, apperrors.Internal("failed to join group call")
		}
		c.notifier.Multicast(lo.Without(memberIDs, userID), "group:call-joined", map[string]any{
			"group_call_id": groupCallID, "group_id": gc.GroupID, "user_id": userID,
		})
	}

	token, err := c.rooms.MintToken(gc.RoomName, userID)
	if err != nil {
		c.logger.Errorw("token mint failed", "err", err, "group_call_id", groupCallID)
		return nil, apperrors.Internal("failed to join group call")
	}
	roomURL, err := c.rooms.GetOrCreateRoom(ctx, gc.RoomName)
	if err != nil {
		c.logger.Errorw("room lookup failed", "err", err, "group_call_id", groupCallID)
		return nil, apperrors.Internal("failed to join group call")
	}
	return &call.GroupJoinDTO{GroupCallID: groupCallID, RoomURL: roomURL, Token: token}, nil
}

func (c *CallCoordinator) LeaveGroupCall(ctx context.Context, groupCallID uuid.UUID, userID int64) error {
	gc, err := c.repo.GetGroupCall(ctx, groupCallID)
	if err != nil {
		return err
	}
	p, err := c.repo.ActiveParticipant(ctx, groupCallID, userID)
	if err != nil {
		c.logger.Errorw("participant lookup failed", "err", err, "group_call_id", groupCallID)
		return apperrors.Internal("failed to leave group call")
	}
	if p == nil {
		return apperrors.ErrNotCallParty
	}
	return c.leaveRoster(ctx, gc, p)
}

// reconcileGroupCalls closes every open roster row of a dropped user.
func (c *CallCoordinator) reconcileGroupCalls(ctx context.Context, userID int64) {
	rows, err := c.repo.ActiveParticipations(ctx, userID)
	if err != nil {
		c.logger.Errorw("participation lookup failed", "err", err, "user_id", userID)
		return
	}
	for _, p := range rows {
		gc, err := c.repo.GetGroupCall(ctx, p.GroupCallID)
		if err != nil {
			continue
		}
		if err := c.leaveRoster(ctx, gc, p); err != nil {
			c.logger.Errorw("roster reconcile failed", "err", err, "group_call_id", p.GroupCallID)
		}
	}
}

func (c *CallCoordinator) leaveRoster(ctx context.Context, gc *model.GroupCall, p *model.GroupCallParticipant) error {
	now := time.Now().UTC()
	n, err := c.repo.CloseParticipant(ctx, p.ID, now)
	if err != nil {
		c.logger.Errorw("close participant failed", "err", err, "group_call_id", gc.ID)
		return apperrors.Internal("failed to leave group call")
	}
	if n == 0 {
		return nil
	}

	if memberIDs, err := c.groups.ActiveMemberIDs(ctx, gc.GroupID); err == nil {
		c.notifier.Multicast(lo.Without(memberIDs, p.UserID), "group:call-left", map[string]any{
			"group_call_id": gc.ID, "group_id": gc.GroupID, "user_id": p.UserID,
		})
	}

	remaining, err := c.repo.ActiveParticipants(ctx, gc.ID)
	if err != nil {
		c.logger.Errorw("roster check failed", "err", err, "group_call_id", gc.ID)
		return nil
	}
	if len(remaining) == 0 {
		if err := c.repo.EndGroupCall(ctx, gc.ID, now); err != nil {
			c.logger.Errorw("end group call failed", "err", err, "group_call_id", gc.ID)
		}
	}
	return nil
}

// register installs the symmetric entries, failing if either side already
// holds a 1:1 call.
func (c *CallCoordinator) register(callID uuid.UUID, callerID, calleeID int64, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.active[callerID]; busy {
		return apperrors.ErrAlreadyInCall
	}
	if _, busy := c.active[calleeID]; busy {
		return apperrors.ErrAlreadyInCall
	}
	c.active[callerID] = activeCall{CallID: callID, CounterpartID: calleeID, StartedAt: at}
	c.active[calleeID] = activeCall{CallID: callID, CounterpartID: callerID, StartedAt: at}
	return nil
}

// unregisterCall removes only the entries that still belong to callID. A
// replayed end for a finished call must not evict entries the parties have
// since re-registered for a newer call.
func (c *CallCoordinator) unregisterCall(callID uuid.UUID, a, b int64) {
	c.mu.Lock()
	for _, id := range []int64{a, b} {
		if entry, ok := c.active[id]; ok && entry.CallID == callID {
			delete(c.active, id)
		}
	}
	c.mu.Unlock()
}

func (c *CallCoordinator) hasActive(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[userID]
	return ok
}

func callEventBody(row *model.Call) string {
	if row.DurationSeconds <= 0 {
		return "Call ended"
	}
	d := time.Duration(row.DurationSeconds) * time.Second
	return fmt.Sprintf("Call ended after %s", d)
}

func render(row *model.Call) *call.CallDTO {
	return &call.CallDTO{
		ID:              row.ID,
		CallerID:        row.CallerID,
		CalleeID:        row.CalleeID,
		Status:          row.Status,
		StartedAt:       row.StartedAt,
		AnsweredAt:      row.AnsweredAt,
		EndedAt:         row.EndedAt,
		DurationSeconds: row.DurationSeconds,
		EndReason:       row.EndReason,
	}
}
