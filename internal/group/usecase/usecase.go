package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/group"
	"github.com/fathima-sithara/realtime-service/internal/group/model"
	"github.com/fathima-sithara/realtime-service/pkg/apperrors"
)

const DecryptionPlaceholder = "[message could not be decrypted]"

type GroupUsecase struct {
	repo     group.Repository
	cipher   group.Cipher
	notifier group.Notifier
	logger   *zap.SugaredLogger
}

func NewGroupUsecase(repo group.Repository, cipher group.Cipher, notifier group.Notifier, logger *zap.SugaredLogger) *GroupUsecase {
	return &GroupUsecase{repo: repo, cipher: cipher, notifier: notifier, logger: logger}
}

func (uc *GroupUsecase) CreateGroup(ctx context.Context, cmd group.CreateGroupCommand) (*group.GroupDTO, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, apperrors.InvalidArg("group name cannot be empty")
	}

	now := time.Now().UTC()
	g := &model.Group{
		ID:          uuid.New(),
		Name:        cmd.Name,
		Description: cmd.Description,
		Avatar:      cmd.Avatar,
		CreatorID:   cmd.CreatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.InsertGroup(ctx, g); err != nil {
		uc.logger.Errorw("insert group failed", "err", err)
		return nil, apperrors.Internal("failed to create group")
	}

	creator := &model.GroupMember{
		ID:       uuid.New(),
		GroupID:  g.ID,
		UserID:   cmd.CreatorID,
		Role:     model.RoleAdmin,
		JoinedAt: now,
	}
	if err := uc.repo.InsertMember(ctx, creator); err != nil {
		uc.logger.Errorw("insert creator membership failed", "err", err, "group_id", g.ID)
		return nil, apperrors.Internal("failed to create group")
	}

	memberIDs := lo.Uniq(cmd.MemberIDs)
	for _, id := range memberIDs {
		if id == cmd.CreatorID {
			continue
		}
		m := &model.GroupMember{
			ID:       uuid.New(),
			GroupID:  g.ID,
			UserID:   id,
			Role:     model.RoleMember,
			JoinedAt: now,
		}
		if err := uc.repo.InsertMember(ctx, m); err != nil {
			uc.logger.Errorw("insert membership failed", "err", err, "group_id", g.ID, "user_id", id)
			return nil, apperrors.Internal("failed to create group")
		}
	}

	dto := uc.renderGroup(g, len(memberIDs)+1, 0)
	uc.notifier.Multicast(memberIDs, "group:created", dto)
	return dto, nil
}

func (uc *GroupUsecase) UpdateGroup(ctx context.Context, cmd group.UpdateGroupCommand) (*group.GroupDTO, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, apperrors.InvalidArg("group name cannot be empty")
	}
	if err := uc.requireAdmin(ctx, cmd.GroupID, cmd.ActorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := uc.repo.UpdateGroupInfo(ctx, cmd.GroupID, cmd.Name, cmd.Description, cmd.Avatar, now); err != nil {
		uc.logger.Errorw("update group failed", "err", err, "group_id", cmd.GroupID)
		return nil, apperrors.Internal("failed to update group")
	}

	g, err := uc.repo.GetGroup(ctx, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	count, err := uc.repo.CountActiveMembers(ctx, cmd.GroupID)
	if err != nil {
		uc.logger.Errorw("member count failed", "err", err, "group_id", cmd.GroupID)
		return nil, apperrors.Internal("failed to update group")
	}
	dto := uc.renderGroup(g, count, 0)

	ids, err := uc.ActiveMemberIDs(ctx, cmd.GroupID)
	if err == nil {
		uc.notifier.Multicast(ids, "group:updated", dto)
	}
	return dto, nil
}

func (uc *GroupUsecase) AddMember(ctx context.Context, cmd group.MemberCommand) (*group.MemberDTO, error) {
	if err := uc.requireAdmin(ctx, cmd.GroupID, cmd.ActorID); err != nil {
		return nil, err
	}

	// A rejoin creates a brand-new row with a fresh joined_at: the member's
	// visibility window restarts, the gap stays dark.
	_, err := uc.repo.ActiveMember(ctx, cmd.GroupID, cmd.UserID)
	if err == nil {
		return nil, apperrors.ErrAlreadyGroupMember
	}
	if !apperrors.IsCode(err, apperrors.CodePermissionDenied) {
		return nil, err
	}

	m := &model.GroupMember{
		ID:       uuid.New(),
		GroupID:  cmd.GroupID,
		UserID:   cmd.UserID,
		Role:     model.RoleMember,
		JoinedAt: time.Now().UTC(),
	}
	if err := uc.repo.InsertMember(ctx, m); err != nil {
		uc.logger.Errorw("insert membership failed", "err", err, "group_id", cmd.GroupID, "user_id", cmd.UserID)
		return nil, apperrors.Internal("failed to add member")
	}

	dto := &group.MemberDTO{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
	uc.notifier.Unicast(cmd.UserID, "group:member-added", map[string]any{"group_id": cmd.GroupID, "user_id": cmd.UserID})
	if ids, err := uc.ActiveMemberIDs(ctx, cmd.GroupID); err == nil {
		uc.notifier.Multicast(ids, "group:member-added", map[string]any{"group_id": cmd.GroupID, "user_id": cmd.UserID})
	}
	return dto, nil
}

func (uc *GroupUsecase) RemoveMember(ctx context.Context, cmd group.MemberCommand) error {
	if cmd.ActorID == cmd.UserID {
		return apperrors.InvalidArg("use leave to remove yourself")
	}
	if err := uc.requireAdmin(ctx, cmd.GroupID, cmd.ActorID); err != nil {
		return err
	}

	target, err := uc.repo.ActiveMember(ctx, cmd.GroupID, cmd.UserID)
	if err != nil {
		return err
	}
	n, err := uc.repo.CloseMembership(ctx, target.ID, time.Now().UTC())
	if err != nil {
		uc.logger.Errorw("close membership failed", "err", err, "group_id", cmd.GroupID, "user_id", cmd.UserID)
		return apperrors.Internal("failed to remove member")
	}
	if n == 0 {
		// Concurrent leave/remove already closed the row.
		return apperrors.ErrNotGroupMember
	}

	uc.notifier.Unicast(cmd.UserID, "group:member-removed", map[string]any{"group_id": cmd.GroupID, "user_id": cmd.UserID})
	if ids, err := uc.ActiveMemberIDs(ctx, cmd.GroupID); err == nil {
		uc.notifier.Multicast(ids, "group:member-removed", map[string]any{"group_id": cmd.GroupID, "user_id": cmd.UserID})
	}
	return nil
}

func (uc *GroupUsecase) Leave(ctx context.Context, groupID uuid.UUID, userID int64) error {
	member, err := uc.repo.ActiveMember(ctx, groupID, userID)
	if err != nil {
		return err
	}

	if member.IsAdmin() {
		total, err := uc.repo.CountActiveMembers(ctx, groupID)
		if err != nil {
			uc.logger.Errorw("member count failed", "err", err, "group_id", groupID)
			return apperrors.Internal("failed to leave group")
		}
		if total > 1 {
			otherAdmins, err := uc.repo.CountActiveAdmins(ctx, groupID, userID)
			if err != nil {
				uc.logger.Errorw("admin count failed", "err", err, "group_id", groupID)
				return apperrors.Internal("failed to leave group")
			}
			if otherAdmins == 0 {
				return apperrors.ErrSoleAdminCannotLeave
			}
		}
	}

	n, err := uc.repo.CloseMembership(ctx, member.ID, time.Now().UTC())
	if err != nil {
		uc.logger.Errorw("close membership failed", "err", err, "group_id", groupID, "user_id", userID)
		return apperrors.Internal("failed to leave group")
	}
	if n == 0 {
		return apperrors.ErrNotGroupMember
	}

	if ids, err := uc.ActiveMemberIDs(ctx, groupID); err == nil {
		uc.notifier.Multicast(ids, "group:member-left", map[string]any{"group_id": groupID, "user_id": userID})
	}
	return nil
}

func (uc *GroupUsecase) PromoteAdmin(ctx context.Context, cmd group.MemberCommand) error {
	if err := uc.requireAdmin(ctx, cmd.GroupID, cmd.ActorID); err != nil {
		return err
	}
	n, err := uc.repo.SetMemberRole(ctx, cmd.GroupID, cmd.UserID, model.RoleAdmin)
	if err != nil {
		uc.logger.Errorw("promote failed", "err", err, "group_id", cmd.GroupID, "user_id", cmd.UserID)
		return apperrors.Internal("failed to promote member")
	}
	if n == 0 {
		return apperrors.ErrNotGroupMember
	}
	if ids, err := uc.ActiveMemberIDs(ctx, cmd.GroupID); err == nil {
		uc.notifier.Multicast(ids, "group:admin-promoted", map[string]any{"group_id": cmd.GroupID, "user_id": cmd.UserID})
	}
	return nil
}

func (uc *GroupUsecase) Members(ctx context.Context, groupID uuid.UUID, viewerID int64) ([]*group.MemberDTO, error) {
	if _, err := uc.repo.ActiveMember(ctx, groupID, viewerID); err != nil {
		return nil, err
	}
	members, err := uc.repo.ActiveMembers(ctx, groupID)
	if err != nil {
		uc.logger.Errorw("active members failed", "err", err, "group_id", groupID)
		return nil, apperrors.Internal("failed to list members")
	}
	return lo.Map(members, func(m *model.GroupMember, _ int) *group.MemberDTO {
		return &group.MemberDTO{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
	}), nil
}

func (uc *GroupUsecase) SendMessage(ctx context.Context, cmd group.SendMessageCommand) (*group.MessageDTO, error) {
	if strings.TrimSpace(cmd.Content) == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	if _, err := uc.repo.ActiveMember(ctx, cmd.GroupID, cmd.SenderID); err != nil {
		return nil, err
	}

	ciphertext, iv, err := uc.cipher.Encrypt(cmd.Content)
	if err != nil {
		uc.logger.Errorw("encrypt failed", "err", err)
		return nil, apperrors.Internal("failed to store message")
	}

	msg := &model.GroupMessage{
		ID:         uuid.New(),
		GroupID:    cmd.GroupID,
		SenderID:   cmd.SenderID,
		Ciphertext: ciphertext,
		IV:         iv,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.repo.InsertMessage(ctx, msg); err != nil {
		uc.logger.Errorw("insert group message failed", "err", err, "group_id", cmd.GroupID)
		return nil, apperrors.Internal("failed to store message")
	}

	// A fresh message resurfaces the conversation for everyone who had
	// hidden it, not just the sender.
	if err := uc.repo.UnhideGroupForAll(ctx, cmd.GroupID); err != nil {
		uc.logger.Errorw("unhide failed", "err", err, "group_id", cmd.GroupID)
	}
	if err := uc.repo.TouchGroup(ctx, cmd.GroupID, msg.CreatedAt); err != nil {
		uc.logger.Errorw("touch group failed", "err", err, "group_id", cmd.GroupID)
	}

	dto := uc.render(msg, cmd.Content)
	if ids, err := uc.ActiveMemberIDs(ctx, cmd.GroupID); err == nil {
		recipients := lo.Without(ids, cmd.SenderID)
		uc.notifier.Multicast(recipients, "group:new-message", dto)
	}
	return dto, nil
}

func (uc *GroupUsecase) EditMessage(ctx context.Context, cmd group.EditMessageCommand) (*group.MessageDTO, error) {
	if strings.TrimSpace(cmd.Content) == "" {
		return nil, apperrors.ErrEmptyMessage
	}
	msg, err := uc.repo.GetMessage(ctx, cmd.MessageID)
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
	n, err := uc.repo.EditMessage(ctx, cmd.MessageID, cmd.EditorID, ciphertext, iv, now)
	if err != nil {
		uc.logger.Errorw("edit group message failed", "err", err, "message_id", cmd.MessageID)
		return nil, apperrors.Internal("failed to edit message")
	}
	if n == 0 {
		current, err := uc.repo.GetMessage(ctx, cmd.MessageID)
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
	if ids, err := uc.ActiveMemberIDs(ctx, msg.GroupID); err == nil {
		uc.notifier.Multicast(lo.Without(ids, cmd.EditorID), "group:message-edited", dto)
	}
	return dto, nil
}

func (uc *GroupUsecase) DeleteMessage(ctx context.Context, cmd group.DeleteMessageCommand) (*group.DeleteResult, error) {
	msg, err := uc.repo.GetMessage(ctx, cmd.MessageID)
	if err != nil {
		return nil, err
	}

	if cmd.ForAll {
		if msg.SenderID != cmd.UserID {
			return nil, apperrors.ErrNotMessageSender
		}
		n, err := uc.repo.MarkMessageDeletedForAll(ctx, cmd.MessageID, cmd.UserID, time.Now().UTC())
		if err != nil {
			uc.logger.Errorw("delete for all failed", "err", err, "message_id", cmd.MessageID)
			return nil, apperrors.Internal("failed to delete message")
		}
		if n == 0 {
			return nil, apperrors.ErrMessageDeleted
		}
		res := &group.DeleteResult{MessageID: cmd.MessageID, GroupID: msg.GroupID, ForAll: true}
		if ids, err := uc.ActiveMemberIDs(ctx, msg.GroupID); err == nil {
			uc.notifier.Multicast(lo.Without(ids, cmd.UserID), "group:message-deleted", res)
		}
		return res, nil
	}

	// Delete-for-me is membership-scoped: only someone who can see the
	// message may suppress it.
	if _, err := uc.repo.ActiveMember(ctx, msg.GroupID, cmd.UserID); err != nil {
		return nil, err
	}
	if err := uc.repo.SuppressMessage(ctx, cmd.MessageID, cmd.UserID); err != nil {
		uc.logger.Errorw("suppress failed", "err", err, "message_id", cmd.MessageID)
		return nil, apperrors.Internal("failed to delete message")
	}
	return &group.DeleteResult{MessageID: cmd.MessageID, GroupID: msg.GroupID}, nil
}

func (uc *GroupUsecase) History(ctx context.Context, groupID uuid.UUID, viewerID int64, limit, offset int) ([]*group.MessageDTO, error) {
	member, err := uc.repo.ActiveMember(ctx, groupID, viewerID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	msgs, err := uc.repo.History(ctx, groupID, viewerID, member.JoinedAt, limit, offset)
	if err != nil {
		uc.logger.Errorw("group history failed", "err", err, "group_id", groupID)
		return nil, apperrors.Internal("failed to load history")
	}
	return lo.Map(msgs, func(m *model.GroupMessage, _ int) *group.MessageDTO {
		return uc.decryptAndRender(m)
	}), nil
}

func (uc *GroupUsecase) MarkRead(ctx context.Context, groupID uuid.UUID, userID int64) (int64, error) {
	member, err := uc.repo.ActiveMember(ctx, groupID, userID)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	n, err := uc.repo.UpsertReceipts(ctx, groupID, userID, member.JoinedAt, now)
	if err != nil {
		uc.logger.Errorw("receipt upsert failed", "err", err, "group_id", groupID)
		return 0, apperrors.Internal("failed to mark messages read")
	}
	if n > 0 {
		if ids, err := uc.ActiveMemberIDs(ctx, groupID); err == nil {
			uc.notifier.Multicast(lo.Without(ids, userID), "group:messages-read", map[string]any{"group_id": groupID, "reader_id": userID})
		}
	}
	return n, nil
}

func (uc *GroupUsecase) MessageInfo(ctx context.Context, messageID uuid.UUID, viewerID int64) (*group.MessageInfoDTO, error) {
	msg, err := uc.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := uc.repo.ActiveMember(ctx, msg.GroupID, viewerID); err != nil {
		return nil, err
	}
	readers, err := uc.repo.ReaderIDs(ctx, messageID)
	if err != nil {
		uc.logger.Errorw("reader lookup failed", "err", err, "message_id", messageID)
		return nil, apperrors.Internal("failed to load message info")
	}
	active, err := uc.repo.CountActiveMembers(ctx, msg.GroupID)
	if err != nil {
		uc.logger.Errorw("member count failed", "err", err, "group_id", msg.GroupID)
		return nil, apperrors.Internal("failed to load message info")
	}
	return &group.MessageInfoDTO{
		MessageID:         messageID,
		ReadCount:         len(readers),
		ActiveMemberCount: active,
		ReaderIDs:         readers,
	}, nil
}

func (uc *GroupUsecase) Search(ctx context.Context, groupID uuid.UUID, viewerID int64, term string, limit int) ([]*group.SearchHitDTO, error) {
	if strings.TrimSpace(term) == "" {
		return nil, apperrors.InvalidArg("search term cannot be empty")
	}
	member, err := uc.repo.ActiveMember(ctx, groupID, viewerID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	hits, err := uc.repo.Search(ctx, groupID, viewerID, member.JoinedAt, term, limit)
	if err != nil {
		uc.logger.Errorw("group search failed", "err", err, "group_id", groupID)
		return nil, apperrors.Internal("failed to search messages")
	}
	return lo.Map(hits, func(h *group.SearchHit, _ int) *group.SearchHitDTO {
		return &group.SearchHitDTO{
			Message:        uc.decryptAndRender(h.Message),
			SenderUsername: h.SenderUsername,
			SenderName:     h.SenderName,
		}
	}), nil
}

func (uc *GroupUsecase) Hide(ctx context.Context, groupID uuid.UUID, userID int64) error {
	if _, err := uc.repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	// Hiding is independent of membership: a former member can still tidy
	// their listing.
	if err := uc.repo.HideGroup(ctx, groupID, userID, time.Now().UTC()); err != nil {
		uc.logger.Errorw("hide failed", "err", err, "group_id", groupID)
		return apperrors.Internal("failed to hide group")
	}
	return nil
}

func (uc *GroupUsecase) Unhide(ctx context.Context, groupID uuid.UUID, userID int64) error {
	if _, err := uc.repo.GetGroup(ctx, groupID); err != nil {
		return err
	}
	if err := uc.repo.UnhideGroup(ctx, groupID, userID); err != nil {
		uc.logger.Errorw("unhide failed", "err", err, "group_id", groupID)
		return apperrors.Internal("failed to unhide group")
	}
	return nil
}

func (uc *GroupUsecase) ListGroups(ctx context.Context, userID int64) ([]*group.GroupDTO, error) {
	groups, err := uc.repo.ListGroupsFor(ctx, userID)
	if err != nil {
		uc.logger.Errorw("list groups failed", "err", err)
		return nil, apperrors.Internal("failed to list groups")
	}

	out := make([]*group.GroupDTO, 0, len(groups))
	for _, g := range groups {
		member, err := uc.repo.ActiveMember(ctx, g.ID, userID)
		if err != nil {
			// Listing raced a removal; skip rather than fail the page.
			continue
		}
		count, err := uc.repo.CountActiveMembers(ctx, g.ID)
		if err != nil {
			uc.logger.Errorw("member count failed", "err", err, "group_id", g.ID)
			return nil, apperrors.Internal("failed to list groups")
		}
		unread, err := uc.repo.UnreadCount(ctx, g.ID, userID, member.JoinedAt)
		if err != nil {
			uc.logger.Errorw("unread count failed", "err", err, "group_id", g.ID)
			return nil, apperrors.Internal("failed to list groups")
		}
		out = append(out, uc.renderGroup(g, count, unread))
	}
	return out, nil
}

func (uc *GroupUsecase) ActiveMemberIDs(ctx context.Context, groupID uuid.UUID) ([]int64, error) {
	members, err := uc.repo.ActiveMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return lo.Map(members, func(m *model.GroupMember, _ int) int64 { return m.UserID }), nil
}

func (uc *GroupUsecase) requireAdmin(ctx context.Context, groupID uuid.UUID, userID int64) error {
	member, err := uc.repo.ActiveMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !member.IsAdmin() {
		return apperrors.ErrNotGroupAdmin
	}
	return nil
}

func (uc *GroupUsecase) decryptAndRender(m *model.GroupMessage) *group.MessageDTO {
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

func (uc *GroupUsecase) render(m *model.GroupMessage, content string) *group.MessageDTO {
	return &group.MessageDTO{
		ID:        m.ID,
		GroupID:   m.GroupID,
		SenderID:  m.SenderID,
		Content:   content,
		Edited:    m.EditedAt != nil,
		Deleted:   m.DeletedForAll,
		CreatedAt: m.CreatedAt,
		EditedAt:  m.EditedAt,
	}
}

func (uc *GroupUsecase) renderGroup(g *model.Group, memberCount, unread int) *group.GroupDTO {
	return &group.GroupDTO{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Avatar:      g.Avatar,
		CreatorID:   g.CreatorID,
		MemberCount: memberCount,
		UnreadCount: unread,
		CreatedAt:   g.CreatedAt,
	}
}
