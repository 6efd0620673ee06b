package database

import "time"

type User struct {
	Id           int
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	Status       string
	LastSeen     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	Id           int
	ExternalId   string
	ClientId     int
	AdvocateId   int
	Status       string
	LastActivity time.Time
	CreatedAt    time.Time
}

// HasParticipant reports whether the user is one of the room's two
// participants. Every relay and membership check goes through this.
func (r Room) HasParticipant(userId int) bool {
	return userId == r.ClientId || userId == r.AdvocateId
}

// Counterpart returns the other participant of the room.
func (r Room) Counterpart(userId int) int {
	if userId == r.ClientId {
		return r.AdvocateId
	}
	return r.ClientId
}

type Message struct {
	Id        int
	RoomId    int
	SenderId  int
	Content   string
	Type      string
	FileUrl   string
	FileName  string
	FileSize  int64
	IsRead    bool
	CreatedAt time.Time
}

type Notification struct {
	Id          int
	RecipientId int
	Type        string
	Title       string
	Body        string
	Data        []byte
	IsRead      bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}

type CreateAccountParams struct {
	Email        string
	PasswordHash string
	FullName     string
	Role         string
}

type CreateRoomParams struct {
	ExternalId string
	ClientId   int
	AdvocateId int
}

type CreateMessageParams struct {
	RoomId   int
	SenderId int
	Content  string
	Type     string
	FileUrl  string
	FileName string
	FileSize int64
}

type CreateNotificationParams struct {
	RecipientId int
	Type        string
	Title       string
	Body        string
	Data        []byte
}
