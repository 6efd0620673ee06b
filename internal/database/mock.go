package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockWakiliRepository struct {
	mock.Mock
}

func (m *MockWakiliRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockWakiliRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockWakiliRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockWakiliRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockWakiliRepository) UpdateAccountStatus(accountId int, status string, lastSeen time.Time) error {
	args := m.Called(accountId, status, lastSeen)
	return args.Error(0)
}
func (m *MockWakiliRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockWakiliRepository) GetRoomById(roomId int) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockWakiliRepository) GetRoomByExternalId(externalId string) (Room, error) {
	args := m.Called(externalId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockWakiliRepository) ListRoomsByParticipant(accountId int, status string) ([]Room, error) {
	args := m.Called(accountId, status)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockWakiliRepository) UpdateRoomActivity(roomId int, at time.Time) error {
	args := m.Called(roomId, at)
	return args.Error(0)
}
func (m *MockWakiliRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockWakiliRepository) GetMessageById(messageId int) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockWakiliRepository) MarkMessageRead(messageId int) error {
	args := m.Called(messageId)
	return args.Error(0)
}
func (m *MockWakiliRepository) ListMessages(roomId, page, limit int) ([]Message, error) {
	args := m.Called(roomId, page, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockWakiliRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	args := m.Called(params)
	return args.Get(0).(Notification), args.Error(1)
}
func (m *MockWakiliRepository) ListNotifications(recipientId int, unreadOnly bool) ([]Notification, error) {
	args := m.Called(recipientId, unreadOnly)
	return args.Get(0).([]Notification), args.Error(1)
}
func (m *MockWakiliRepository) MarkNotificationsRead(recipientId int, notificationIds []int) ([]int, error) {
	args := m.Called(recipientId, notificationIds)
	return args.Get(0).([]int), args.Error(1)
}
