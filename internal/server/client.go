package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mpmbugua/wakili-chat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client is one live connection for one authenticated user. The user
// identity is attached once by the gateway and never changes for the
// lifetime of the connection.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan *ServerMessage
	rooms      map[string]*Room
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         uuid.NewString(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]*Room),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		c.joinRoom(msg)
	case msg.Send != nil:
		c.routeToRoom(msg, msg.Send.RoomId)
	case msg.TypingStart != nil:
		c.routeToRoom(msg, msg.TypingStart.RoomId)
	case msg.TypingStop != nil:
		c.routeToRoom(msg, msg.TypingStop.RoomId)
	case msg.Read != nil:
		c.handleMessageRead(msg)
	case msg.History != nil:
		c.handleChatHistory(msg)
	case msg.MarkNotifications != nil:
		c.handleMarkNotifications(msg)
	case msg.SetStatus != nil:
		c.handleSetStatus(msg)
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
	}
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.DeRegisterClient(c)
	c.leaveAllRooms()
	c.stopClient()
}

func (c *Client) leaveAllRooms() {
	c.roomsLock.RLock()
	rooms := make([]*Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.roomsLock.RUnlock()

	for _, room := range rooms {
		room.leaveChan <- &ClientMessage{
			UserId: c.user.Id,
			client: c,
		}
	}
}

func (c *Client) joinRoom(msg *ClientMessage) {
	select {
	case c.chatServer.joinChan <- msg:
	default:
		c.log.Printf("joinChan full")
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

// routeToRoom forwards a room-scoped event to the room actor the
// connection is subscribed to. A connection that never subscribed is
// by construction not a participant; it gets an authorization error.
func (c *Client) routeToRoom(msg *ClientMessage, roomId string) {
	r := c.getRoom(roomId)
	if r == nil {
		c.queueMessage(ErrNotAuthorized(msg.Id, "you are not a participant of this chat room"))
		return
	}

	select {
	case r.clientMsgChan <- msg:
	default:
		c.log.Printf("clientMsgChan full for room %q", r.externalId)
		c.queueMessage(ErrServiceUnavailable(msg.Id))
	}
}

// handleMessageRead flips a message's read flag and broadcasts a read
// receipt to the whole room, not just the reader.
func (c *Client) handleMessageRead(msg *ClientMessage) {
	db := c.chatServer.db

	dbMsg, err := db.GetMessageById(msg.Read.MessageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrNotFound(msg.Id, "message not found"))
		} else {
			c.log.Println("GetMessageById:", err)
			c.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	if err := db.MarkMessageRead(dbMsg.Id); err != nil {
		c.log.Println("MarkMessageRead:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	room, err := db.GetRoomById(dbMsg.RoomId)
	if err != nil {
		c.log.Println("GetRoomById:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.chatServer.broadcastToRoom(room.ExternalId, &ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: Now()},
		ReadReceipt: &ReadReceipt{
			MessageId: dbMsg.Id,
			RoomId:    room.ExternalId,
			ReaderId:  c.user.Id,
		},
	})
}

// handleChatHistory replies with one page of the room's messages,
// oldest first, to the requesting connection only.
func (c *Client) handleChatHistory(msg *ClientMessage) {
	db := c.chatServer.db

	dbRoom, err := db.GetRoomByExternalId(msg.History.RoomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.queueMessage(ErrNotFound(msg.Id, "chat room not found"))
		} else {
			c.log.Println("GetRoomByExternalId:", err)
			c.queueMessage(ErrInternalError(msg.Id))
		}
		return
	}

	if !dbRoom.HasParticipant(c.user.Id) {
		c.queueMessage(ErrNotAuthorized(msg.Id, "you are not a participant of this chat room"))
		return
	}

	page, limit := msg.History.Page, msg.History.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	dbMessages, err := db.ListMessages(dbRoom.Id, page, limit)
	if err != nil {
		c.log.Println("ListMessages:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	// store returns newest first; history is delivered oldest first
	messages := make([]types.Message, len(dbMessages))
	for i, m := range dbMessages {
		messages[len(dbMessages)-1-i] = types.Message{
			Id:        m.Id,
			RoomId:    dbRoom.ExternalId,
			SenderId:  m.SenderId,
			Content:   m.Content,
			Type:      m.Type,
			FileUrl:   m.FileUrl,
			FileName:  m.FileName,
			FileSize:  m.FileSize,
			IsRead:    m.IsRead,
			Timestamp: m.CreatedAt,
		}
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: Now()},
		History: &ChatHistory{
			RoomId:   dbRoom.ExternalId,
			Page:     page,
			Limit:    limit,
			Messages: messages,
		},
	})
}

// handleMarkNotifications bulk-flips the caller's notifications. Ids
// owned by other users are silently excluded by the store query; the
// ack lists only the ids actually processed.
func (c *Client) handleMarkNotifications(msg *ClientMessage) {
	processed, err := c.chatServer.db.MarkNotificationsRead(c.user.Id, msg.MarkNotifications.NotificationIds)
	if err != nil {
		c.log.Println("MarkNotificationsRead:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: Now()},
		NotificationsMarked: &NotificationsMarked{
			NotificationIds: processed,
		},
	})
}

// handleSetStatus persists the user's presence and broadcasts the
// change to every room they participate in.
func (c *Client) handleSetStatus(msg *ClientMessage) {
	status := msg.SetStatus.Status
	switch status {
	case types.StatusOnline, types.StatusOffline, types.StatusAway:
	default:
		c.queueMessage(ErrInvalidMessage(msg.Id))
		return
	}

	now := Now()
	if err := c.chatServer.db.UpdateAccountStatus(c.user.Id, status, now); err != nil {
		c.log.Println("UpdateAccountStatus:", err)
		c.queueMessage(ErrInternalError(msg.Id))
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: now},
		Status: &UserStatus{
			UserId:   c.user.Id,
			Status:   status,
			LastSeen: now,
		},
	})

	c.chatServer.broadcastStatusChange(c.user.Id, status, now)
}

func (c *Client) delRoom(id string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.externalId] = r
}

func (c *Client) getRoom(id string) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	if room, ok := c.rooms[id]; ok {
		return room
	}

	return nil
}
