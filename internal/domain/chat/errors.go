package chat

import "errors"

var (
	ErrSelfChat              = errors.New("chat: cannot start a conversation with yourself")
	ErrNotParticipant        = errors.New("chat: sender is not a participant")
	ErrForbidden             = errors.New("chat: forbidden")
	ErrConversationNotFound  = errors.New("chat: conversation not found")
	ErrMessageNotFound       = errors.New("chat: message not found")
	ErrListingNotFound       = errors.New("chat: listing not found")
	ErrNotificationNotFound  = errors.New("chat: notification not found")
	ErrUserNotFound          = errors.New("chat: user not found")
	ErrEmptyMessage          = errors.New("chat: message text is empty")
	ErrBadRequest            = errors.New("chat: bad request")
	ErrDuplicateConversation = errors.New("chat: conversation already exists")
)

// Kind is the wire-level error code shared by the HTTP API and socket acks.
type Kind string

const (
	KindSelfChat       Kind = "self_chat_forbidden"
	KindNotParticipant Kind = "not_participant"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindBadRequest     Kind = "bad_request"
	KindEmptyMessage   Kind = "empty_message"
	KindServerError    Kind = "server_error"
)

// KindOf classifies err. Anything unrecognised is a server error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSelfChat):
		return KindSelfChat
	case errors.Is(err, ErrNotParticipant):
		return KindNotParticipant
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrListingNotFound),
		errors.Is(err, ErrNotificationNotFound),
		errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrEmptyMessage):
		return KindEmptyMessage
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest
	default:
		return KindServerError
	}
}
