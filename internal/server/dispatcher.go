package server

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/realtime-service/internal/call"
	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/group"
	"github.com/fathima-sithara/realtime-service/internal/realtime"
	usermodel "github.com/fathima-sithara/realtime-service/internal/user/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

// UserGetter resolves a user row during authentication.
type UserGetter interface {
	GetByID(ctx context.Context, id int64) (*usermodel.User, error)
}

// Dispatcher owns one connection's lifecycle: read loop, event routing,
// and disconnect reconciliation. The acting user for every event is
// resolved through the registry, never taken from the payload.
type Dispatcher struct {
	reg      *realtime.Registry
	router   *realtime.Router
	chats    chat.Usecase
	groups   group.Usecase
	calls    call.Usecase
	users    UserGetter
	validate *validator.Validate
	logger   *zap.SugaredLogger
	limit    rate.Limit
	burst    int
	maxFrame int64
}

func NewDispatcher(
	reg *realtime.Registry,
	router *realtime.Router,
	chats chat.Usecase,
	groups group.Usecase,
	calls call.Usecase,
	users UserGetter,
	logger *zap.SugaredLogger,
	limit rate.Limit,
	burst int,
	maxFrame int64,
) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		router:   router,
		chats:    chats,
		groups:   groups,
		calls:    calls,
		users:    users,
		validate: validator.New(),
		logger:   logger,
		limit:    limit,
		burst:    burst,
		maxFrame: maxFrame,
	}
}

// HandleConn runs until the connection drops. Must be called from the
// websocket upgrade handler's goroutine.
func (d *Dispatcher) HandleConn(conn *websocket.Conn) {
	client := realtime.NewClient(conn, d.limit, d.burst)
	client.ReadLimit(d.maxFrame)
	go client.WritePump()
	defer d.disconnect(client)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		d.dispatch(client, raw)
	}
}

func (d *Dispatcher) disconnect(client *realtime.Client) {
	userID, bound := d.reg.Resolve(client)
	if bound {
		// End any registered call before presence flips so the counterpart
		// sees call:ended ahead of user:offline.
		if _, err := d.calls.EndByDisconnect(context.Background(), userID); err != nil {
			d.logger.Warnw("disconnect reconciliation failed", "err", err, "user_id", userID)
		}
		connectedSessions.Dec()
	}
	d.reg.Unbind(client)
	client.Close()
}

func (d *Dispatcher) dispatch(client *realtime.Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		d.reply(client, fail("error", apperrors.InvalidArg("malformed envelope")))
		return
	}

	if env.Event == "authenticate" {
		d.handleAuthenticate(client, env)
		return
	}

	userID, bound := d.reg.Resolve(client)
	if !bound {
		d.reply(client, fail(env.Event, apperrors.ErrNotAuthenticated))
		return
	}
	if !client.Allow() {
		rateLimitedEvents.Inc()
		d.logger.Warnw("rate limited", "event", env.Event, "user_id", userID)
		return
	}
	receivedEvents.WithLabelValues(env.Event).Inc()

	ctx := context.Background()
	switch env.Event {
	case "message:send", "chat:send-message":
		d.reply(client, d.handleChatSend(ctx, env, userID))
	case "chat:edit-message":
		d.reply(client, d.handleChatEdit(ctx, env, userID))
	case "chat:delete-message":
		d.reply(client, d.handleChatDelete(ctx, env, userID))
	case "chat:load-history":
		d.reply(client, d.handleChatHistory(ctx, env, userID))
	case "chat:mark-as-read":
		d.reply(client, d.handleChatMarkRead(ctx, env, userID))
	case "chat:get-unread-count":
		d.reply(client, d.handleChatUnread(ctx, env, userID))
	case "chat:list-conversations":
		d.reply(client, d.handleConversations(ctx, env, userID))
	case "typing:start", "typing:stop":
		d.handleTyping(env, userID)

	case "group:create":
		d.reply(client, d.handleGroupCreate(ctx, env, userID))
	case "group:update":
		d.reply(client, d.handleGroupUpdate(ctx, env, userID))
	case "group:send-message":
		d.reply(client, d.handleGroupSend(ctx, env, userID))
	case "group:edit-message":
		d.reply(client, d.handleGroupEdit(ctx, env, userID))
	case "group:delete-message":
		d.reply(client, d.handleGroupDelete(ctx, env, userID))
	case "group:load-history":
		d.reply(client, d.handleGroupHistory(ctx, env, userID))
	case "group:mark-as-read":
		d.reply(client, d.handleGroupMarkRead(ctx, env, userID))
	case "group:message-info":
		d.reply(client, d.handleGroupMessageInfo(ctx, env, userID))
	case "group:add-member":
		d.reply(client, d.handleGroupAddMember(ctx, env, userID))
	case "group:remove-member":
		d.reply(client, d.handleGroupRemoveMember(ctx, env, userID))
	case "group:leave":
		d.reply(client, d.handleGroupLeave(ctx, env, userID))
	case "group:promote-admin":
		d.reply(client, d.handleGroupPromote(ctx, env, userID))
	case "group:hide":
		d.reply(client, d.handleGroupHide(ctx, env, userID))
	case "group:unhide":
		d.reply(client, d.handleGroupUnhide(ctx, env, userID))
	case "group:members":
		d.reply(client, d.handleGroupMembers(ctx, env, userID))
	case "group:list":
		d.reply(client, d.handleGroupList(ctx, env, userID))
	case "group:search":
		d.reply(client, d.handleGroupSearch(ctx, env, userID))
	case "group:typing-start", "group:typing-stop":
		d.handleGroupTyping(ctx, env, userID)

	case "call:invite":
		d.reply(client, d.handleCallInvite(ctx, env, userID))
	case "call:answer":
		d.reply(client, d.handleCallAnswer(ctx, env, userID))
	case "call:reject":
		d.reply(client, d.handleCallReject(ctx, env, userID))
	case "call:end", "call:end-by-connection":
		d.reply(client, d.handleCallEnd(ctx, env, userID))
	case "group:call-invite":
		d.reply(client, d.handleGroupCallInvite(ctx, env, userID))
	case "group:call-join":
		d.reply(client, d.handleGroupCallJoin(ctx, env, userID))
	case "group:call-leave":
		d.reply(client, d.handleGroupCallLeave(ctx, env, userID))

	default:
		d.reply(client, fail(env.Event, apperrors.InvalidArg("unknown event")))
	}
}

type authenticatePayload struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

func (d *Dispatcher) handleAuthenticate(client *realtime.Client, env Envelope) {
	var p authenticatePayload
	if err := d.bind(env.Data, &p); err != nil {
		d.reply(client, fail(env.Event, err))
		return
	}
	u, err := d.users.GetByID(context.Background(), p.UserID)
	if err != nil {
		d.reply(client, fail(env.Event, err))
		return
	}
	if _, already := d.reg.Resolve(client); !already {
		connectedSessions.Inc()
	}
	d.reg.Bind(u.ID, client)
	d.reply(client, ok(env.Event, map[string]any{"user_id": u.ID, "username": u.Username}))
}

type typingPayload struct {
	PeerID int64 `json:"peer_id" validate:"required,gt=0"`
}

func (d *Dispatcher) handleTyping(env Envelope, userID int64) {
	var p typingPayload
	if err := d.bind(env.Data, &p); err != nil {
		return
	}
	d.router.Unicast(p.PeerID, env.Event, map[string]any{"user_id": userID})
}

// bind unmarshals and validates an event payload.
func (d *Dispatcher) bind(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperrors.InvalidArg("missing payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.InvalidArg("malformed payload")
	}
	if err := d.validate.Struct(v); err != nil {
		return apperrors.InvalidArg("invalid payload: " + err.Error())
	}
	return nil
}

func (d *Dispatcher) reply(client *realtime.Client, r Reply) {
	frame, err := json.Marshal(r)
	if err != nil {
		d.logger.Errorw("reply marshal failed", "event", r.Event, "err", err)
		return
	}
	client.Send(frame)
}
