package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

type chatSendPayload struct {
	ReceiverID int64  `json:"receiver_id" validate:"required,gt=0"`
	Content    string `json:"content"`
}

type chatEditPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type chatDeletePayload struct {
	MessageID uuid.UUID `json:"message_id"`
	ForAll    bool      `json:"for_all"`
}

type chatHistoryPayload struct {
	PeerID int64 `json:"peer_id" validate:"required,gt=0"`
	Limit  int   `json:"limit" validate:"gte=0,lte=200"`
	Offset int   `json:"offset" validate:"gte=0"`
}

type chatPeerPayload struct {
	PeerID int64 `json:"peer_id" validate:"required,gt=0"`
}

func (d *Dispatcher) handleChatSend(ctx context.Context, env Envelope, userID int64) Reply {
	var p chatSendPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	dto, err := d.chats.Send(ctx, chat.SendMessageCommand{
		SenderID:   userID,
		ReceiverID: p.ReceiverID,
		Content:    p.Content,
	})
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleChatEdit(ctx context.Context, env Envelope, userID int64) Reply {
	var p chatEditPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if p.MessageID == uuid.Nil {
		return fail(env.Event, apperrors.InvalidArg("message_id is required"))
	}
	dto, err := d.chats.Edit(ctx, chat.EditMessageCommand{
		MessageID: p.MessageID,
		EditorID:  userID,
		Content:   p.Content,
	})
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, dto)
}

func (d *Dispatcher) handleChatDelete(ctx context.Context, env Envelope, userID int64) Reply {
	var p chatDeletePayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	if p.MessageID == uuid.Nil {
		return fail(env.Event, apperrors.InvalidArg("message_id is required"))
	}
	res, err := d.chats.Delete(ctx, chat.DeleteMessageCommand{
		MessageID: p.MessageID,
		UserID:    userID,
		ForAll:    p.ForAll,
	})
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, res)
}

func (d *Dispatcher) handleChatHistory(ctx context.Context, env Envelope, userID int64) Reply {
	var p chatHistoryPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	msgs, err := d.chats.History(ctx, userID, p.PeerID, p.Limit, p.Offset)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, msgs)
}

func (d *Dispatcher) handleChatMarkRead(ctx context.Context, env Envelope, userID int64) Reply {
	var p chatPeerPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	n, err := d.chats.MarkRead(ctx, userID, p.PeerID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, map[string]any{"marked": n})
}

func (d *Dispatcher) handleChatUnread(ctx context.Context, env Envelope, userID int64) Reply {
	var p chatPeerPayload
	if err := d.bind(env.Data, &p); err != nil {
		return fail(env.Event, err)
	}
	n, err := d.chats.UnreadCount(ctx, userID, p.PeerID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, map[string]any{"unread": n})
}

func (d *Dispatcher) handleConversations(ctx context.Context, env Envelope, userID int64) Reply {
	convs, err := d.chats.Conversations(ctx, userID)
	if err != nil {
		return fail(env.Event, err)
	}
	return ok(env.Event, convs)
}
