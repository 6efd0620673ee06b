package server

import (
	"net/http"
	"time"

	"github.com/mpmbugua/wakili-chat/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the envelope for every event a connection may send.
// Exactly one of the event fields is set per message.
type ClientMessage struct {
	BaseMessage
	Join              *JoinRoom              `json:"join_chat_room,omitempty"`
	Send              *SendMessage           `json:"send_message,omitempty"`
	Read              *MessageRead           `json:"message_read,omitempty"`
	TypingStart       *Typing                `json:"typing_start,omitempty"`
	TypingStop        *Typing                `json:"typing_stop,omitempty"`
	History           *HistoryRequest        `json:"get_chat_history,omitempty"`
	MarkNotifications *MarkNotificationsRead `json:"mark_notifications_read,omitempty"`
	SetStatus         *SetOnlineStatus       `json:"set_online_status,omitempty"`
	UserId            int                    `json:"-"`
	// auto marks the connect-time subscription pass: no activity bump,
	// no chat_room_joined reply.
	auto   bool
	client *Client
}

func (m *ClientMessage) GetUserId() int {
	if m == nil {
		return 0
	}
	return m.UserId
}

type JoinRoom struct {
	RoomId string `json:"room_id"`
}

type SendMessage struct {
	RoomId      string `json:"room_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type,omitempty"`
	FileUrl     string `json:"file_url,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	FileSize    int64  `json:"file_size,omitempty"`
}

type MessageRead struct {
	MessageId int `json:"message_id"`
}

type Typing struct {
	RoomId string `json:"room_id"`
}

type HistoryRequest struct {
	RoomId string `json:"room_id"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type MarkNotificationsRead struct {
	NotificationIds []int `json:"notification_ids"`
}

type SetOnlineStatus struct {
	Status string `json:"status"`
}

// ServerMessage is the envelope for every event emitted to a connection.
type ServerMessage struct {
	BaseMessage
	RoomJoined          *RoomJoined          `json:"chat_room_joined,omitempty"`
	NewMessage          *types.Message       `json:"new_message,omitempty"`
	ReadReceipt         *ReadReceipt         `json:"message_read,omitempty"`
	Typing              *UserTyping          `json:"user_typing,omitempty"`
	History             *ChatHistory         `json:"chat_history,omitempty"`
	NotificationsMarked *NotificationsMarked `json:"notifications_marked_read,omitempty"`
	Status              *UserStatus          `json:"user_status,omitempty"`
	NewNotification     *types.Notification  `json:"new_notification,omitempty"`
	RoomCreated         *RoomCreated         `json:"chat_room_created,omitempty"`
	StatusChanged       *UserStatusChanged   `json:"user_status_changed,omitempty"`
	Error               *ErrorEvent          `json:"error,omitempty"`
	// UserId targets the personal channel of a user; zero means the
	// message is room- or connection-scoped.
	UserId     int     `json:"-"`
	SkipClient *Client `json:"-"`
	// SkipUser excludes every connection of a user from a room broadcast.
	SkipUser int `json:"-"`
}

type RoomJoined struct {
	Room types.Room `json:"room"`
}

type ReadReceipt struct {
	MessageId int    `json:"message_id"`
	RoomId    string `json:"room_id"`
	ReaderId  int    `json:"reader_id"`
}

type UserTyping struct {
	RoomId string `json:"room_id"`
	UserId int    `json:"user_id"`
	Typing bool   `json:"typing"`
}

type ChatHistory struct {
	RoomId   string          `json:"room_id"`
	Page     int             `json:"page"`
	Limit    int             `json:"limit"`
	Messages []types.Message `json:"messages"`
}

type NotificationsMarked struct {
	NotificationIds []int `json:"notification_ids"`
}

type UserStatus struct {
	UserId   int       `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type RoomCreated struct {
	Room types.Room `json:"room"`
}

type UserStatusChanged struct {
	UserId   int       `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

type ErrorEvent struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func errEvent(id, code int, message string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Error: &ErrorEvent{
			Code:    code,
			Message: message,
		},
	}
}

func ErrNotAuthorized(id int, message string) *ServerMessage {
	return errEvent(id, http.StatusForbidden, message)
}

func ErrNotFound(id int, message string) *ServerMessage {
	return errEvent(id, http.StatusNotFound, message)
}

func ErrInternalError(id int) *ServerMessage {
	return errEvent(id, http.StatusInternalServerError, "internal server error")
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return errEvent(id, http.StatusServiceUnavailable, "service unavailable")
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := errEvent(0, http.StatusBadRequest, "invalid message format")
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
