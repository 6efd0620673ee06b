package types

import (
	"time"
)

// User statuses persisted on the accounts table and broadcast
// as user_status_changed events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusAway    = "away"
)

const (
	RoleClient   = "client"
	RoleAdvocate = "advocate"
)

const (
	RoomStatusActive = "ACTIVE"
	RoomStatusClosed = "CLOSED"
)

const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// Notification types pushed by the dispatcher.
const (
	NotificationMessageReceived = "MESSAGE_RECEIVED"
	NotificationRoomCreated     = "CHAT_ROOM_CREATED"
)

type User struct {
	Id        int       `json:"id"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role,omitempty"`
	Status    string    `json:"status,omitempty"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Room struct {
	Id           int       `json:"id"`
	ExternalId   string    `json:"external_id"`
	ClientId     int       `json:"client_id"`
	AdvocateId   int       `json:"advocate_id"`
	Status       string    `json:"status"`
	LastActivity time.Time `json:"last_activity"`
	Participants []User    `json:"participants,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id         int       `json:"id"`
	RoomId     string    `json:"room_id"`
	SenderId   int       `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	Type       string    `json:"message_type"`
	FileUrl    string    `json:"file_url,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	FileSize   int64     `json:"file_size,omitempty"`
	IsRead     bool      `json:"is_read"`
	Timestamp  time.Time `json:"timestamp"`
}

type Notification struct {
	Id        int            `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	IsRead    bool           `json:"is_read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}
