package database

import "time"

type WakiliRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	UpdateAccountStatus(accountId int, status string, lastSeen time.Time) error
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomById(roomId int) (Room, error)
	GetRoomByExternalId(externalId string) (Room, error)
	ListRoomsByParticipant(accountId int, status string) ([]Room, error)
	UpdateRoomActivity(roomId int, at time.Time) error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageById(messageId int) (Message, error)
	MarkMessageRead(messageId int) error
	ListMessages(roomId, page, limit int) ([]Message, error)
	CreateNotification(params CreateNotificationParams) (Notification, error)
	ListNotifications(recipientId int, unreadOnly bool) ([]Notification, error)
	MarkNotificationsRead(recipientId int, notificationIds []int) ([]int, error)
}
