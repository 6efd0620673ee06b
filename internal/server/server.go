package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mpmbugua/wakili-chat/internal/database"
	"github.com/mpmbugua/wakili-chat/internal/stats"
	"github.com/mpmbugua/wakili-chat/internal/types"
)

const (
	metricActiveClients           = "NumActiveClients"
	metricActiveRooms             = "NumActiveRooms"
	metricMessagesRelayed         = "NumMessagesRelayed"
	metricNotificationsDispatched = "NumNotificationsDispatched"
)

type unloadRoomRequest struct {
	roomId string
}

type stopRequest struct {
	done chan struct{}
}

// ChatServer owns the two connection registries and the set of loaded
// room actors. Registries are only mutated by RegisterClient and
// DeRegisterClient; everything else reads them under the lock.
type ChatServer struct {
	log            *log.Logger
	db             database.WakiliRepository
	stats          stats.StatsProvider
	joinChan       chan *ClientMessage
	broadcastChan  chan *ServerMessage
	unloadRoomChan chan unloadRoomRequest
	clients        map[*Client]struct{}
	userMap        map[int]map[*Client]struct{}
	clientsLock    sync.RWMutex
	rooms          map[string]*Room
	roomsLock      sync.RWMutex
	numRooms       int
	stop           chan stopRequest
}

func NewChatServer(logger *log.Logger, db database.WakiliRepository, su stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          su,
		joinChan:       make(chan *ClientMessage, 256),
		broadcastChan:  make(chan *ServerMessage, 256),
		unloadRoomChan: make(chan unloadRoomRequest, 256),
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[int]map[*Client]struct{}),
		rooms:          make(map[string]*Room),
		stop:           make(chan stopRequest),
	}

	for _, name := range []string{
		metricActiveClients,
		metricActiveRooms,
		metricMessagesRelayed,
		metricNotificationsDispatched,
	} {
		su.RegisterMetric(name)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case joinMsg := <-cs.joinChan:
			cs.handleJoinRoom(joinMsg)
		case msg := <-cs.broadcastChan:
			cs.handleBroadcast(msg)
		case req := <-cs.unloadRoomChan:
			cs.unloadRoom(req.roomId)
		case req := <-cs.stop:
			cs.log.Println("shutting down rooms")
			cs.unloadAllRooms()
			cs.stopAllClients()
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopRequest{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterClient adds an authenticated connection to the registries,
// marks the user online if this is their first live connection, and
// subscribes the connection to every ACTIVE room the user belongs to.
func (cs *ChatServer) RegisterClient(c *Client) {
	first := cs.addClient(c)

	if first {
		now := Now()
		if err := cs.db.UpdateAccountStatus(c.user.Id, types.StatusOnline, now); err != nil {
			cs.log.Println("UpdateAccountStatus:", err)
		}
		cs.broadcastStatusChange(c.user.Id, types.StatusOnline, now)
	}

	dbRooms, err := cs.db.ListRoomsByParticipant(c.user.Id, types.RoomStatusActive)
	if err != nil {
		cs.log.Println("ListRoomsByParticipant:", err)
		return
	}

	for _, dbRoom := range dbRooms {
		room, ok := cs.getRoom(dbRoom.ExternalId)
		if !ok {
			room = cs.buildRoom(dbRoom)
			cs.addRoom(room.externalId, room)
			go room.start()
		}

		autoJoin := &ClientMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Join:        &JoinRoom{RoomId: dbRoom.ExternalId},
			UserId:      c.user.Id,
			auto:        true,
			client:      c,
		}

		select {
		case room.joinChan <- autoJoin:
		default:
			cs.log.Printf("join channel full on room %q", room.externalId)
		}
	}
}

// DeRegisterClient removes a connection from the registries. If it was
// the user's last live connection, the user is persisted offline with a
// fresh last-seen stamp and the change is broadcast to their rooms.
func (cs *ChatServer) DeRegisterClient(c *Client) {
	last := cs.removeClient(c)

	if last {
		now := Now()
		if err := cs.db.UpdateAccountStatus(c.user.Id, types.StatusOffline, now); err != nil {
			cs.log.Println("UpdateAccountStatus:", err)
		}
		cs.broadcastStatusChange(c.user.Id, types.StatusOffline, now)
	}
}

func (cs *ChatServer) addClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	cs.clients[c] = struct{}{}
	first := cs.userMap[c.user.Id] == nil
	if first {
		cs.userMap[c.user.Id] = make(map[*Client]struct{})
	}
	cs.userMap[c.user.Id][c] = struct{}{}

	cs.stats.Incr(metricActiveClients)
	return first
}

func (cs *ChatServer) removeClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return false
	}

	delete(cs.clients, c)
	cs.stats.Decr(metricActiveClients)

	userClients, ok := cs.userMap[c.user.Id]
	if !ok {
		return false
	}

	delete(userClients, c)
	if len(userClients) == 0 {
		delete(cs.userMap, c.user.Id)
		return true
	}

	return false
}

func (cs *ChatServer) getClients(userId int) []*Client {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(cs.userMap[userId]))
	for c := range cs.userMap[userId] {
		clients = append(clients, c)
	}

	return clients
}

func (cs *ChatServer) addRoom(roomId string, r *Room) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	cs.rooms[roomId] = r
	cs.numRooms++
	cs.stats.Incr(metricActiveRooms)
}

func (cs *ChatServer) getRoom(roomId string) (*Room, bool) {
	cs.roomsLock.RLock()
	defer cs.roomsLock.RUnlock()

	r, ok := cs.rooms[roomId]
	return r, ok
}

func (cs *ChatServer) removeRoom(roomId string) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	if _, ok := cs.rooms[roomId]; ok {
		delete(cs.rooms, roomId)
		cs.numRooms--
		cs.stats.Decr(metricActiveRooms)
	}
}

func (cs *ChatServer) buildRoom(dbRoom database.Room) *Room {
	return &Room{
		id:            dbRoom.Id,
		externalId:    dbRoom.ExternalId,
		clientId:      dbRoom.ClientId,
		advocateId:    dbRoom.AdvocateId,
		cs:            cs,
		joinChan:      make(chan *ClientMessage, 256),
		leaveChan:     make(chan *ClientMessage, 256),
		clientMsgChan: make(chan *ClientMessage, 256),
		broadcastChan: make(chan *ServerMessage, 256),
		clients:       make(map[*Client]struct{}),
		userMap:       make(map[int]map[*Client]struct{}),
		log:           cs.log,
		exit:          make(chan exitReq, 1),
	}
}

// handleJoinRoom routes an explicit join_chat_room request, loading the
// room actor from the store if it is not already active. Membership is
// validated by the room actor itself.
func (cs *ChatServer) handleJoinRoom(joinMsg *ClientMessage) {
	if room, ok := cs.getRoom(joinMsg.Join.RoomId); ok {
		select {
		case room.joinChan <- joinMsg:
		default:
			cs.log.Printf("join channel full on room %q", room.externalId)
			joinMsg.client.queueMessage(ErrServiceUnavailable(joinMsg.Id))
		}
		return
	}

	dbRoom, err := cs.db.GetRoomByExternalId(joinMsg.Join.RoomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			joinMsg.client.queueMessage(ErrNotFound(joinMsg.Id, "chat room not found"))
		} else {
			cs.log.Println("GetRoomByExternalId:", err)
			joinMsg.client.queueMessage(ErrInternalError(joinMsg.Id))
		}
		return
	}

	room := cs.buildRoom(dbRoom)
	cs.addRoom(room.externalId, room)
	room.joinChan <- joinMsg
	go room.start()
}

// handleBroadcast delivers a personal-channel message to every live
// connection of the target user.
func (cs *ChatServer) handleBroadcast(msg *ServerMessage) {
	cs.broadcastToUser(msg.UserId, msg)
}

func (cs *ChatServer) broadcastToUser(userId int, msg *ServerMessage) {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	for c := range cs.userMap[userId] {
		if c == msg.SkipClient {
			continue
		}

		c.queueMessage(msg)
	}
}

// broadcastToRoom hands a server-originated event to a loaded room actor.
// Rooms with no live subscribers are not loaded and need no delivery.
func (cs *ChatServer) broadcastToRoom(roomId string, msg *ServerMessage) {
	room, ok := cs.getRoom(roomId)
	if !ok {
		return
	}

	select {
	case room.broadcastChan <- msg:
	default:
		cs.log.Printf("broadcast channel full on room %q", room.externalId)
	}
}

// broadcastStatusChange emits user_status_changed to every loaded room
// the user participates in.
func (cs *ChatServer) broadcastStatusChange(userId int, status string, lastSeen time.Time) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		StatusChanged: &UserStatusChanged{
			UserId:   userId,
			Status:   status,
			LastSeen: lastSeen,
		},
	}

	cs.roomsLock.RLock()
	rooms := make([]*Room, 0, len(cs.rooms))
	for _, r := range cs.rooms {
		if r.hasParticipant(userId) {
			rooms = append(rooms, r)
		}
	}
	cs.roomsLock.RUnlock()

	for _, r := range rooms {
		select {
		case r.broadcastChan <- msg:
		default:
			cs.log.Printf("broadcast channel full on room %q", r.externalId)
		}
	}
}

func (cs *ChatServer) UnloadRoom(ctx context.Context, roomId string) error {
	if roomId == "" {
		return fmt.Errorf("roomId cannot be empty")
	}

	select {
	case cs.unloadRoomChan <- unloadRoomRequest{roomId: roomId}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) unloadRoom(roomId string) {
	r, ok := cs.getRoom(roomId)
	if !ok {
		return
	}

	req := exitReq{done: make(chan struct{})}
	r.exit <- req
	<-req.done

	cs.removeRoom(roomId)
}

func (cs *ChatServer) unloadAllRooms() {
	cs.roomsLock.RLock()
	roomIds := make([]string, 0, len(cs.rooms))
	for id := range cs.rooms {
		roomIds = append(roomIds, id)
	}
	cs.roomsLock.RUnlock()

	for _, id := range roomIds {
		cs.unloadRoom(id)
	}
}

func (cs *ChatServer) stopAllClients() {
	cs.clientsLock.RLock()
	defer cs.clientsLock.RUnlock()

	for c := range cs.clients {
		c.stopClient()
	}
}
