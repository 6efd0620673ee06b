package server

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mpmbugua/wakili-chat/internal/database"
	"github.com/mpmbugua/wakili-chat/internal/types"
)

// idleRoomTimeout is how long a room actor with no connected clients
// stays loaded before it unloads itself.
const idleRoomTimeout = time.Minute

type exitReq struct {
	done chan struct{}
}

// Room is the actor for one chat room. It serializes all joins, sends
// and typing relays for the room, so two participants writing into the
// same room are ordered by this goroutine and the store's insert order.
type Room struct {
	id            int
	externalId    string
	clientId      int
	advocateId    int
	cs            *ChatServer
	joinChan      chan *ClientMessage
	leaveChan     chan *ClientMessage
	clientMsgChan chan *ClientMessage
	broadcastChan chan *ServerMessage
	clients       map[*Client]struct{}
	userMap       map[int]map[*Client]struct{}
	clientLock    sync.RWMutex
	log           *log.Logger
	// killTimer unloads the room once the last client leaves
	killTimer *time.Timer
	exit      chan exitReq
}

func (r *Room) hasParticipant(userId int) bool {
	return userId == r.clientId || userId == r.advocateId
}

func (r *Room) start() {
	r.log.Printf("starting room %q", r.externalId)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case join := <-r.joinChan:
			r.handleJoin(join)
		case leaveMsg := <-r.leaveChan:
			r.handleLeave(leaveMsg)
		case msg := <-r.clientMsgChan:
			switch {
			case msg.Send != nil:
				r.handleSend(msg)
			case msg.TypingStart != nil:
				r.handleTyping(msg, true)
			case msg.TypingStop != nil:
				r.handleTyping(msg, false)
			}
		case msg := <-r.broadcastChan:
			r.broadcast(msg)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q idle, unloading", r.externalId)
	if err := r.cs.UnloadRoom(context.Background(), r.externalId); err != nil {
		r.log.Println("UnloadRoom:", err)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.externalId)

	r.clientLock.Lock()
	for c := range r.clients {
		c.delRoom(r.externalId)
	}
	r.clientLock.Unlock()

	if e.done != nil {
		close(e.done)
	}
}

// handleJoin subscribes a connection to the room. Membership is
// re-checked against the store on every request; non-participants get
// an authorization error and are not subscribed. The connect-time auto
// pass neither bumps last_activity nor replies with a snapshot.
func (r *Room) handleJoin(join *ClientMessage) {
	r.killTimer.Stop()

	c := join.client
	dbRoom, err := r.cs.db.GetRoomByExternalId(r.externalId)
	if err != nil {
		r.log.Println("GetRoomByExternalId:", err)
		r.resetTimerIfEmpty()
		if !join.auto {
			if errors.Is(err, sql.ErrNoRows) {
				c.queueMessage(ErrNotFound(join.Id, "chat room not found"))
			} else {
				c.queueMessage(ErrInternalError(join.Id))
			}
		}
		return
	}

	if !dbRoom.HasParticipant(join.UserId) {
		r.log.Printf("user %d is not a participant of room %q", join.UserId, r.externalId)
		r.resetTimerIfEmpty()
		if !join.auto {
			c.queueMessage(ErrNotAuthorized(join.Id, "you are not a participant of this chat room"))
		}
		return
	}

	r.addClient(c)

	if join.auto {
		return
	}

	now := Now()
	if err := r.cs.db.UpdateRoomActivity(dbRoom.Id, now); err != nil {
		r.log.Println("UpdateRoomActivity:", err)
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: join.Id, Timestamp: now},
		RoomJoined: &RoomJoined{
			Room: types.Room{
				Id:           dbRoom.Id,
				ExternalId:   dbRoom.ExternalId,
				ClientId:     dbRoom.ClientId,
				AdvocateId:   dbRoom.AdvocateId,
				Status:       dbRoom.Status,
				LastActivity: now,
				CreatedAt:    dbRoom.CreatedAt,
			},
		},
	})
}

func (r *Room) handleLeave(leaveMsg *ClientMessage) {
	r.removeClient(leaveMsg.client)
}

// handleSend relays one message: re-verify membership against the
// store, persist, bump room activity, broadcast to every subscriber,
// then notify the counterpart. Persistence failure aborts before any
// broadcast; only the sender hears about it.
func (r *Room) handleSend(msg *ClientMessage) {
	sender := msg.client

	dbRoom, err := r.cs.db.GetRoomByExternalId(r.externalId)
	if err != nil {
		r.log.Println("GetRoomByExternalId:", err)
		if errors.Is(err, sql.ErrNoRows) {
			sender.queueMessage(ErrNotFound(msg.Id, "chat room not found"))
		} else {
			sender.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	if !dbRoom.HasParticipant(msg.UserId) {
		sender.queueMessage(ErrNotAuthorized(msg.Id, "you are not a participant of this chat room"))
		return
	}

	msgType := msg.Send.MessageType
	if msgType == "" {
		msgType = types.MessageTypeText
	}

	dbMsg, err := r.cs.db.CreateMessage(database.CreateMessageParams{
		RoomId:   dbRoom.Id,
		SenderId: msg.UserId,
		Content:  msg.Send.Content,
		Type:     msgType,
		FileUrl:  msg.Send.FileUrl,
		FileName: msg.Send.FileName,
		FileSize: msg.Send.FileSize,
	})
	if err != nil {
		r.log.Println("CreateMessage:", err)
		sender.queueMessage(ErrInternalError(msg.Id))
		return
	}

	if err := r.cs.db.UpdateRoomActivity(dbRoom.Id, dbMsg.CreatedAt); err != nil {
		r.log.Println("UpdateRoomActivity:", err)
	}

	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: dbMsg.CreatedAt},
		NewMessage: &types.Message{
			Id:         dbMsg.Id,
			RoomId:     r.externalId,
			SenderId:   dbMsg.SenderId,
			SenderName: sender.user.FullName,
			Content:    dbMsg.Content,
			Type:       dbMsg.Type,
			FileUrl:    dbMsg.FileUrl,
			FileName:   dbMsg.FileName,
			FileSize:   dbMsg.FileSize,
			IsRead:     dbMsg.IsRead,
			Timestamp:  dbMsg.CreatedAt,
		},
	})

	r.cs.stats.Incr(metricMessagesRelayed)

	counterpart := dbRoom.Counterpart(msg.UserId)
	r.cs.DispatchNotification(counterpart, NotificationPayload{
		Type:  types.NotificationMessageReceived,
		Title: "New message",
		Body:  sender.user.FullName + " sent you a message",
		Data: map[string]any{
			"room_id":    r.externalId,
			"message_id": dbMsg.Id,
			"sender_id":  dbMsg.SenderId,
		},
	})
}

// handleTyping relays a typing signal to every other subscriber. Not
// persisted and never echoed back to any of the sender's connections.
func (r *Room) handleTyping(msg *ClientMessage, typing bool) {
	r.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Typing: &UserTyping{
			RoomId: r.externalId,
			UserId: msg.UserId,
			Typing: typing,
		},
		SkipUser: msg.UserId,
	})
}

func (r *Room) addClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	r.clients[c] = struct{}{}
	if r.userMap[c.user.Id] == nil {
		r.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	r.userMap[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return
	}

	delete(r.clients, c)
	c.delRoom(r.externalId)

	if userClients, ok := r.userMap[c.user.Id]; ok {
		delete(userClients, c)
		if len(userClients) == 0 {
			delete(r.userMap, c.user.Id)
		}
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.externalId)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) resetTimerIfEmpty() {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	if len(r.clients) == 0 {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) broadcast(msg *ServerMessage) {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	for client := range r.clients {
		if client == msg.SkipClient {
			continue
		}
		if msg.SkipUser != 0 && client.user.Id == msg.SkipUser {
			continue
		}

		client.queueMessage(msg)
	}
}
