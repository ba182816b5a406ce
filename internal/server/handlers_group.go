package server

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/fathima-sithara/realtime-service/internal/group"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

type groupCreatePayload struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description string  `json:"description" validate:"max=500"`
	Avatar      string  `json:"avatar"`
	MemberIDs   []int64 `json:"member_ids"`
}

type groupUpdatePayload struct {
	GroupID     uuid.UUID `json:"group_id"`
	Name        string    `json:"name" validate:"max=100"`
	Description string    `json:"description" validate:"max=500"`
	Avatar      string    `json:"avatar"`
}

type groupIDPayload struct {
	GroupID uuid.UUID `json:"group_id"`
}

type groupMemberPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	UserID  int64     `json:"user_id" validate:"required,gt=0"`
}

type groupSendPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	Content string    `json:"content"`
}

type groupEditPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type groupDeletePayload struct {
	MessageID uuid.UUID `json:"message_id"`
	ForAll    bool      `json:"for_all"`
}

type groupHistoryPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	Limit   int       `json:"limit" validate:"gte=0,lte=200"`
	Offset  int       `json:"offset" validate:"gte=0"`
}

type groupMessageIDPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type groupSearchPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	Term    string    `json:"term" validate:"required,min=1,max=100"`
	Limit   int       `json:"limit" validate:"gte=0,lte=100"`
}

func requireGroupID(id uuid.UUID) error {
	if id == uuid.Nil {
		return apperrors.InvalidArg("group_id is required")
	}
	return nil
}

func requireMessageID(id uuid.UUID) error {
	if id == uuid.Nil {
		return apperrors.InvalidArg("message_id is required")
	}
	return nil
}

func (d *Dispatcher) handleGroupCreate(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupCreatePayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	dto, err := d.groups.CreateGroup(ctx, group.CreateGroupCommand{
		CreatorID:   userID,
		Name:        p.Name,
		Description: p.Description,
		Avatar:      p.Avatar,
		MemberIDs:   p.MemberIDs,
	})
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleGroupUpdate(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupUpdatePayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	dto, err := d.groups.UpdateGroup(ctx, group.UpdateGroupCommand{
		GroupID:     p.GroupID,
		ActorID:     userID,
		Name:        p.Name,
		Description: p.Description,
		Avatar:      p.Avatar,
	})
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleGroupSend(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupSendPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	dto, err := d.groups.SendMessage(ctx, group.SendMessageCommand{
		GroupID:  p.GroupID,
		SenderID: userID,
		Content:  p.Content,
	})
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleGroupEdit(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupEditPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireMessageID(p.MessageID); err != nil {
		return fail(env.Event, err)
	}
	dto, err := d.groups.EditMessage(ctx, group.EditMessageCommand{
		MessageID: p.MessageID,
		EditorID:  userID,
		Content:   p.Content,
	})
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleGroupDelete(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupDeletePayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireMessageID(p.MessageID); err != nil {
		return fail(env.Event, err)
	}
	res, err := d.groups.DeleteMessage(ctx, group.DeleteMessageCommand{
		MessageID: p.MessageID,
		UserID:    userID,
		ForAll:    p.ForAll,
	})
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, res)
}

func (d *Dispatcher) handleGroupHistory(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupHistoryPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	msgs, err := d.groups.History(ctx, p.GroupID, userID, p.Limit, p.Offset)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, msgs)
}

func (d *Dispatcher) handleGroupMarkRead(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	n, err := d.groups.MarkRead(ctx, p.GroupID, userID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, map[string]any{"marked": n})
}

func (d *Dispatcher) handleGroupMessageInfo(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupMessageIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireMessageID(p.MessageID); err != nil {
		return fail(env.Event, err)
	}
	info, err := d.groups.MessageInfo(ctx, p.MessageID, userID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, info)
}

func (d *Dispatcher) handleGroupAddMember(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupMemberPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	m, err := d.groups.AddMember(ctx, group.MemberCommand{GroupID: p.GroupID, ActorID: userID, UserID: p.UserID})
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, m)
}

func (d *Dispatcher) handleGroupRemoveMember(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupMemberPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	if err := d.groups.RemoveMember(ctx, group.MemberCommand{GroupID: p.GroupID, ActorID: userID, UserID: p.UserID}); err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, map[string]any{"group_id": p.GroupID, "user_id": p.UserID})
}

func (d *Dispatcher) handleGroupLeave(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	if err := d.groups.Leave(ctx, p.GroupID, userID); err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, map[string]any{"group_id": p.GroupID})
}

func (d *Dispatcher) handleGroupPromote(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupMemberPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	if err := d.groups.PromoteAdmin(ctx, group.MemberCommand{GroupID: p.GroupID, ActorID: userID, UserID: p.UserID}); err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, map[string]any{"group_id": p.GroupID, "user_id": p.UserID})
}

func (d *Dispatcher) handleGroupHide(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	if err := d.groups.Hide(ctx, p.GroupID, userID); err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, map[string]any{"group_id": p.GroupID})
}

func (d *Dispatcher) handleGroupUnhide(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	if err := d.groups.Unhide(ctx, p.GroupID, userID); err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, map[string]any{"group_id": p.GroupID})
}

func (d *Dispatcher) handleGroupMembers(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	members, err := d.groups.Members(ctx, p.GroupID, userID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, members)
}

func (d *Dispatcher) handleGroupList(ctx context.Context, env Envelope, userID int64) Reply {
	groups, err := d.groups.ListGroups(ctx, userID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, groups)
}

func (d *Dispatcher) handleGroupSearch(ctx context.Context, env Envelope, userID int64) Reply {
	var p groupSearchPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if err := requireGroupID(p.GroupID); err != nil {
		return fail(env.Event, err)
	}
	hits, err := d.groups.Search(ctx, p.GroupID, userID, p.Term, p.Limit)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, hits)
}

func (d *Dispatcher) handleGroupTyping(ctx context.Context, env Envelope, userID int64) {
	var p groupIDPayload
	if err := d.bind(env.Data, &p); err != nil {
		return
	}
	if p.GroupID == uuid.Nil {
		return
	}
	ids, err := d.groups.ActiveMemberIDs(ctx, p.GroupID)
	if err != nil {
		return
	}
	if !lo.Contains(ids, userID) {
		return
	}
	d.router.Multicast(lo.Without(ids, userID), env.Event, map[string]any{
		"group_id": p.GroupID, "user_id": userID,
	})
}
