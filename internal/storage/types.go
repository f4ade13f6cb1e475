package storage

import "errors"

const (
	CallTypeVoice = "voice"
	CallTypeVideo = "video"
)

const (
	CallStatusActive = "active"
	CallStatusEnded  = "ended"
)

const (
	NotificationStatusPending      = "pending"
	NotificationStatusAccepted     = "accepted"
	NotificationStatusProcessed    = "processed"
	NotificationStatusCallAccepted = "call_accepted"
)

// Who a call notification is addressed to: a fan-out recipient, or the
// call's original initiator (acceptance echo).
const (
	NotificationTargetRecipient = "recipient"
	NotificationTargetCaller    = "caller"
)

const (
	ChatKindDirect = "direct"
	ChatKindGroup  = "group"
)

const (
	ActionStartCall      = "start_call"
	ActionAcceptCall     = "accept_call"
	ActionEndCall        = "end_call"
	ActionNotifyCall     = "notify_call"
	ActionSendMessage    = "send_message"
	ActionCreateChat     = "create_chat"
	ActionRegister       = "register"
	ActionLogin          = "login"
	ActionUpdateProfile  = "update_profile"
	ActionUploadMedia    = "upload_media"
	ActionSetTyping      = "set_typing"
	ActionSetNickname    = "set_nickname"
	ActionForwardMessage = "forward_message"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUsernameExists = errors.New("username exists")
	ErrSessionInvalid = errors.New("session invalid")
	ErrSessionExpired = errors.New("session expired")
	ErrNotParticipant = errors.New("not a chat participant")
	ErrNoActiveCall   = errors.New("no active call")
	ErrNoRecipients   = errors.New("no recipients")
)

type UserRow struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	CreatedAtMs  int64
}

type SessionRow struct {
	Token       string
	UserID      string
	CreatedAtMs int64
	ExpiresAtMs int64
}

type ChatRow struct {
	ID              string
	Kind            string
	Name            *string
	CreatorID       string
	LastMessageText *string
	LastMessageAtMs *int64
	CreatedAtMs     int64
}

type MessageRow struct {
	ID          string
	ChatID      string
	SenderID    string
	Text        string
	CreatedAtMs int64
}

type CallRow struct {
	ID          string
	ChatID      string
	InitiatorID string
	ChannelName string
	MeetingID   string
	CallType    string
	CallUUID    string
	Token       string
	Status      string
	StartedAtMs int64
	EndedAtMs   *int64
}

type CallNotificationRow struct {
	ID          string
	ChatID      string
	CallerID    string
	RecipientID string
	Target      string
	CallerName  string
	ChannelName string
	MeetingID   string
	Token       string
	CallType    string
	CallUUID    string
	Status      string
	CreatedAtMs int64
}
