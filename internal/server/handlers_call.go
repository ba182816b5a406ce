package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

type callInvitePayload struct {
	CalleeID int64 `json:"callee_id" validate:"required,gt=0"`
}

type callIDPayload struct {
	CallID uuid.UUID `json:"call_id"`
	Reason string    `json:"reason"`
}

type groupCallIDPayload struct {
	GroupCallID uuid.UUID `json:"group_call_id"`
}

func (d *Dispatcher) handleCallInvite(ctx context.Context, env Envelope, userID int64) Reply {
	var p callInvitePayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	dto, err := d.calls.Invite(ctx, userID, p.CalleeID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleCallAnswer(ctx context.Context, env Envelope, userID int64) Reply {
	var p callIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if p.CallID == uuid.Nil {
		return fail(env.Event, apperrors.InvalidArg("call_id is required"))
	}
	dto, err := d.calls.Answer(ctx, p.CallID, userID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleCallReject(ctx context.Context, env Envelope, userID int64) Reply {
	var p callIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if p.CallID == uuid.Nil {
		return fail(env.Event, apperrors.InvalidArg("call_id is required"))
	}
	dto, err := d.calls.Reject(ctx, p.CallID, userID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleCallEnd(ctx context.Context, env Envelope, userID int64) Reply {
	var p callIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if p.CallID == uuid.Nil {
		return fail(env.Event, apperrors.InvalidArg("call_id is required"))
	}
	dto, err := d.calls.End(ctx, p.CallID, userID, p.Reason)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleGroupCallInvite(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	dto, err := d.calls.InviteGroup(ctx, p.GroupID, userID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleGroupCallJoin(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupCallIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if p.GroupCallID == uuid.Nil {
		return fail(env.Event, apperrors.InvalidArg("group_call_id is required"))
	}
	dto, err := d.calls.JoinGroupCall(ctx, p.GroupCallID, userID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleGroupCallLeave(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupCallIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if p.GroupCallID == uuid.Nil {
		return fail(env.Event, apperrors.InvalidArg("group_call_id is required"))
	}
	if err := d.calls.LeaveGroupCall(ctx, p.GroupCallID, userID); err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, map[string]any{"group_call_id": p.GroupCallID})
}
