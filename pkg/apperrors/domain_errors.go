package apperrors

// Domain errors shared between usecases. One variable per condition so tests
// and boundary code can compare by identity instead of matching strings.
var (
	ErrMessageNotFound      = NotFound("message not found")
	ErrNotMessageSender     = Forbidden("only the sender can modify this message")
	ErrMessageDeleted       = Conflict("message has been deleted for everyone")
	ErrEmptyMessage         = InvalidArg("message content cannot be empty")
	ErrConversationNotFound = NotFound("conversation not found")

	ErrGroupNotFound        = NotFound("group not found")
	ErrNotGroupMember       = Forbidden("user is not an active member of this group")
	ErrNotGroupAdmin        = Forbidden("only a group admin can perform this action")
	ErrAlreadyGroupMember   = Conflict("user is already an active member of this group")
	ErrSoleAdminCannotLeave = Conflict("promote another admin before leaving the group")

	ErrCallNotFound      = NotFound("call not found")
	ErrAlreadyInCall     = Conflict("user already has an active call")
	ErrNotCallParty      = Forbidden("user is not a participant of this call")
	ErrGroupCallNotFound = NotFound("group call not found")

	ErrNotAuthenticated = Unauthenticated("connection is not authenticated")
	ErrUserNotFound     = NotFound("user not found")
)
