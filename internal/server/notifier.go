package server

import (
	"encoding/json"

	"github.com/mpmbugua/wakili-chat/internal/database"
	"github.com/mpmbugua/wakili-chat/internal/types"
)

// NotificationPayload describes a notification to dispatch. Data is an
// arbitrary bag of event context persisted alongside the notification.
type NotificationPayload struct {
	Type  string
	Title string
	Body  string
	Data  map[string]any
}

// DispatchNotification persists a notification for the recipient and,
// when the recipient has live connections, pushes it to each of them.
// Persistence is unconditional so offline users see the notification
// on their next fetch.
func (cs *ChatServer) DispatchNotification(recipientId int, p NotificationPayload) (*types.Notification, error) {
	var data []byte
	if p.Data != nil {
		var err error
		if data, err = json.Marshal(p.Data); err != nil {
			cs.log.Println("failed to encode notification data:", err)
			return nil, err
		}
	}

	dbNotification, err := cs.db.CreateNotification(database.CreateNotificationParams{
		RecipientId: recipientId,
		Type:        p.Type,
		Title:       p.Title,
		Body:        p.Body,
		Data:        data,
	})
	if err != nil {
		cs.log.Println("failed to persist notification:", err)
		return nil, err
	}

	cs.stats.Incr(metricNotificationsDispatched)

	notification := &types.Notification{
		Id:        dbNotification.Id,
		Type:      dbNotification.Type,
		Title:     dbNotification.Title,
		Message:   dbNotification.Body,
		Data:      p.Data,
		IsRead:    false,
		CreatedAt: dbNotification.CreatedAt,
	}

	cs.broadcastToUser(recipientId, &ServerMessage{
		BaseMessage:     BaseMessage{Timestamp: Now()},
		NewNotification: notification,
	})

	return notification, nil
}

// AnnounceRoom tells both participants of a newly created room about
// it: a chat_room_created event on each personal channel plus a stored
// notification for the advocate, who did not initiate the room.
func (cs *ChatServer) AnnounceRoom(room database.Room) {
	announcement := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		RoomCreated: &RoomCreated{
			Room: types.Room{
				Id:           room.Id,
				ExternalId:   room.ExternalId,
				ClientId:     room.ClientId,
				AdvocateId:   room.AdvocateId,
				Status:       room.Status,
				LastActivity: room.LastActivity,
				CreatedAt:    room.CreatedAt,
			},
		},
	}

	cs.broadcastToUser(room.ClientId, announcement)
	cs.broadcastToUser(room.AdvocateId, announcement)

	if _, err := cs.DispatchNotification(room.AdvocateId, NotificationPayload{
		Type:  types.NotificationRoomCreated,
		Title: "New chat room",
		Body:  "A client opened a chat room with you",
		Data: map[string]any{
			"room_id": room.ExternalId,
		},
	}); err != nil {
		cs.log.Println("failed to dispatch room creation notification:", err)
	}
}
