package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/chat"
	"github.com/fathima-sithara/realtime-service/internal/chat/model"
	usermodel "github.com/fathima-sithara/realtime-service/internal/user/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

// DecryptionPlaceholder is rendered when stored ciphertext cannot be
// decrypted. Decryption failure is recoverable: log and keep going.
const DecryptionPlaceholder = "[message could not be decrypted]"

type ChatUsecase struct {
	repo     chat.Repository
	users    chat.UserDirectory
	cipher   chat.Cipher
	notifier chat.Notifier
	logger   *zap.SugaredLogger
}

func NewChatUsecase(repo chat.Repository, users chat.UserDirectory, cipher chat.Cipher, notifier chat.Notifier, logger *zap.SugaredLogger) *ChatUsecase {
	return &ChatUsecase{repo: repo, users: users, cipher: cipher, notifier: notifier, logger: logger}
}

func (uc *ChatUsecase) Send(ctx context.Context, cmd chat.SendMessageCommand) (*chat.MessageDTO, error) {
	if strings.TrimSpace(cmd.Content) == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	if cmd.SenderID == cmd.ReceiverID {
		return nil, apperrors.InvalidArg("cannot send a message to yourself")
	}

	ciphertext, iv, err := uc.cipher.Encrypt(cmd.Content)
	if err != nil {
		uc.logger.Errorw("encrypt failed", "err", err)
		return nil, apperrors.Internal("failed to store message")
	}

	msg := &model.Message{
		ID:         uuid.New(),
		SenderID:   cmd.SenderID,
		ReceiverID: cmd.ReceiverID,
		Ciphertext: ciphertext,
		IV:         iv,
		Kind:       model.KindText,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.repo.Insert(ctx, msg); err != nil {
		uc.logger.Errorw("insert message failed", "err", err)
		return nil, apperrors.Internal("failed to store message")
	}

	if _, err := uc.repo.UpsertConversation(ctx, cmd.SenderID, cmd.ReceiverID, msg.ID, msg.CreatedAt); err != nil {
		uc.logger.Errorw("conversation upsert failed", "err", err, "message_id", msg.ID)
		return nil, apperrors.Internal("failed to store message")
	}

	dto := uc.render(msg, cmd.Content)
	uc.notifier.Unicast(cmd.ReceiverID, "chat:new-message", dto)
	return dto, nil
}

func (uc *ChatUsecase) Edit(ctx context.Context, cmd chat.EditMessageCommand) (*chat.MessageDTO, error) {
	if strings.TrimSpace(cmd.Content) == "" {
		return nil, apperrors.ErrEmptyMessage
	}

	msg, err := uc.repo.GetByID(ctx, cmd.MessageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != cmd.EditorID {
		return nil, apperrors.ErrNotMessageSender
	}
	if msg.DeletedForAll {
		return nil, apperrors.ErrMessageDeleted
	}

	ciphertext, iv, err := uc.cipher.Encrypt(cmd.Content)
	if err != nil {
		uc.logger.Errorw("encrypt failed", "err", err)
		return nil, apperrors.Internal("failed to edit message")
	}

	now := time.Now().UTC()
	// Conditional update: the permission check above ran across a suspension
	// point, so the predicate re-verifies sender and tombstone state.
	n, err := uc.repo.Edit(ctx, cmd.MessageID, cmd.EditorID, ciphertext, iv, now)
	if err != nil {
		uc.logger.Errorw("edit message failed", "err", err, "message_id", cmd.MessageID)
		return nil, apperrors.Internal("failed to edit message")
	}
	if n == 0 {
		// Lost a race: re-read to report the reason accurately.
		current, err := uc.repo.GetByID(ctx, cmd.MessageID)
		if err != nil {
			return nil, err
		}
		if current.DeletedForAll {
			return nil, apperrors.ErrMessageDeleted
		}
		return nil, apperrors.ErrNotMessageSender
	}

	msg.Ciphertext = ciphertext
	msg.IV = iv
	msg.EditedAt = &now
	dto := uc.render(msg, cmd.Content)
	uc.notifier.Unicast(msg.ReceiverID, "chat:message-edited", dto)
	return dto, nil
}

func (uc *ChatUsecase) Delete(ctx context.Context, cmd chat.DeleteMessageCommand) (*chat.DeleteResult, error) {
	msg, err := uc.repo.GetByID(ctx, cmd.MessageID)
	if err != nil {
		return nil, err
	}

	if cmd.ForAll {
		if msg.SenderID != cmd.UserID {
			return nil, apperrors.ErrNotMessageSender
		}
		n, err := uc.repo.MarkDeletedForAll(ctx, cmd.MessageID, cmd.UserID)
		if err != nil {
			uc.logger.Errorw("delete for all failed", "err", err, "message_id", cmd.MessageID)
			return nil, apperrors.Internal("failed to delete message")
		}
		if n == 0 {
			return nil, apperrors.ErrMessageDeleted
		}
		res := &chat.DeleteResult{MessageID: cmd.MessageID, ForAll: true}
		uc.notifier.Unicast(msg.ReceiverID, "chat:message-deleted", res)
		return res, nil
	}

	var bySender bool
	switch cmd.UserID {
	case msg.SenderID:
		bySender = true
	case msg.ReceiverID:
		bySender = false
	default:
		return nil, apperrors.Forbidden("message does not belong to this user")
	}

	if _, err := uc.repo.SetSideDeleted(ctx, cmd.MessageID, bySender); err != nil {
		uc.logger.Errorw("delete for me failed", "err", err, "message_id", cmd.MessageID)
		return nil, apperrors.Internal("failed to delete message")
	}
	// Purge is predicate-guarded: it only fires once both flags are true at
	// write time, whichever side deleted last.
	purged, err := uc.repo.PurgeIfBothDeleted(ctx, cmd.MessageID)
	if err != nil {
		uc.logger.Errorw("purge check failed", "err", err, "message_id", cmd.MessageID)
		return nil, apperrors.Internal("failed to delete message")
	}
	return &chat.DeleteResult{MessageID: cmd.MessageID, Purged: purged}, nil
}

func (uc *ChatUsecase) MarkRead(ctx context.Context, readerID, peerID int64) (int64, error) {
	n, err := uc.repo.MarkConversationRead(ctx, readerID, peerID)
	if err != nil {
		uc.logger.Errorw("mark read failed", "err", err)
		return 0, apperrors.Internal("failed to mark messages read")
	}
	if err := uc.repo.ResetUnread(ctx, readerID, peerID); err != nil {
		uc.logger.Errorw("unread reset failed", "err", err)
		return 0, apperrors.Internal("failed to mark messages read")
	}
	uc.notifier.Unicast(peerID, "chat:messages-read", map[string]any{"reader_id": readerID})
	return n, nil
}

func (uc *ChatUsecase) History(ctx context.Context, viewerID, peerID int64, limit, offset int) ([]*chat.MessageDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	msgs, err := uc.repo.History(ctx, viewerID, peerID, limit, offset)
	if err != nil {
		uc.logger.Errorw("history query failed", "err", err)
		return nil, apperrors.Internal("failed to load history")
	}
	return lo.Map(msgs, func(m *model.Message, _ int) *chat.MessageDTO {
		return uc.decryptAndRender(m)
	}), nil
}

func (uc *ChatUsecase) UnreadCount(ctx context.Context, userID, peerID int64) (int64, error) {
	conv, err := uc.repo.GetConversation(ctx, userID, peerID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			return 0, nil
		}
		uc.logger.Errorw("unread count failed", "err", err)
		return 0, apperrors.Internal("failed to read unread count")
	}
	return conv.UnreadFor(userID), nil
}

func (uc *ChatUsecase) Conversations(ctx context.Context, userID int64) ([]*chat.ConversationDTO, error) {
	convs, err := uc.repo.ListConversations(ctx, userID)
	if err != nil {
		uc.logger.Errorw("list conversations failed", "err", err)
		return nil, apperrors.Internal("failed to list conversations")
	}

	peerIDs := lo.Map(convs, func(c *model.Conversation, _ int) int64 { return c.PeerOf(userID) })
	users, err := uc.users.GetByIDs(ctx, peerIDs)
	if err != nil {
		uc.logger.Errorw("peer lookup failed", "err", err)
		return nil, apperrors.Internal("failed to list conversations")
	}
	byID := lo.KeyBy(users, func(u *usermodel.User) int64 { return u.ID })

	out := make([]*chat.ConversationDTO, 0, len(convs))
	for _, conv := range convs {
		peerID := conv.PeerOf(userID)
		dto := &chat.ConversationDTO{
			ID:             conv.ID,
			PeerID:         peerID,
			UnreadCount:    conv.UnreadFor(userID),
			LastActivityAt: conv.LastMessageAt,
		}
		if peer, ok := byID[peerID]; ok {
			dto.PeerUsername = peer.Username
			dto.PeerName = peer.Name
			dto.PeerAvatar = peer.Avatar
		}
		// The stored last-message pointer is not trusted for previews: the
		// viewer may have deleted that message for themselves.
		last, err := uc.repo.LastVisible(ctx, userID, peerID)
		if err != nil {
			uc.logger.Errorw("last visible lookup failed", "err", err, "conversation_id", conv.ID)
			return nil, apperrors.Internal("failed to list conversations")
		}
		if last != nil {
			dto.LastMessage = uc.decryptAndRender(last)
		}
		out = append(out, dto)
	}
	return out, nil
}

func (uc *ChatUsecase) AppendCallEvent(ctx context.Context, fromID, toID int64, body string) (*chat.MessageDTO, error) {
	ciphertext, iv, err := uc.cipher.Encrypt(body)
	if err != nil {
		return nil, apperrors.Internal("failed to store call event")
	}
	msg := &model.Message{
		ID:         uuid.New(),
		SenderID:   fromID,
		ReceiverID: toID,
		Ciphertext: ciphertext,
		IV:         iv,
		Kind:       model.KindCall,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.repo.Insert(ctx, msg); err != nil {
		uc.logger.Errorw("insert call event failed", "err", err)
		return nil, apperrors.Internal("failed to store call event")
	}
	if _, err := uc.repo.UpsertConversation(ctx, fromID, toID, msg.ID, msg.CreatedAt); err != nil {
		uc.logger.Errorw("conversation upsert failed", "err", err, "message_id", msg.ID)
		return nil, apperrors.Internal("failed to store call event")
	}
	return uc.render(msg, body), nil
}

// decryptAndRender resolves the content a viewer should see: tombstone text
// for for-all deletions, the placeholder when decryption fails.
func (uc *ChatUsecase) decryptAndRender(m *model.Message) *chat.MessageDTO {
	if m.DeletedForAll {
		return uc.render(m, model.TombstoneText)
	}
	content, err := uc.cipher.Decrypt(m.Ciphertext, m.IV)
	if err != nil {
		uc.logger.Warnw("decrypt failed, substituting placeholder", "message_id", m.ID, "err", err)
		content = DecryptionPlaceholder
	}
	return uc.render(m, content)
}

func (uc *ChatUsecase) render(m *model.Message, content string) *chat.MessageDTO {
	return &chat.MessageDTO{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    content,
		Kind:       m.Kind,
		Read:       m.Read,
		Edited:     m.EditedAt != nil,
		Deleted:    m.DeletedForAll,
		CreatedAt:  m.CreatedAt,
		EditedAt:   m.EditedAt,
	}
}
