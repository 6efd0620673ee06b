package database

import (
	"time"

	"github.com/lib/pq"
)

func (db *PgWakiliRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (email, password_hash, full_name, role, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, email, full_name, role, status, last_seen, created_at, updated_at",
		params.Email,
		params.PasswordHash,
		params.FullName,
		params.Role,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Email,
		&u.FullName,
		&u.Role,
		&u.Status,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgWakiliRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, password_hash, full_name, role, status, last_seen, created_at, updated_at "+
			"FROM accounts WHERE id = $1 LIMIT 1",
		accountId,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&u.Role,
		&u.Status,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgWakiliRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, email, password_hash, full_name, role, status, last_seen, created_at, updated_at "+
			"FROM accounts WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&u.Role,
		&u.Status,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgWakiliRepository) UpdateAccountStatus(accountId int, status string, lastSeen time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE accounts SET status = $2, last_seen = $3, updated_at = $3 WHERE id = $1",
		accountId,
		status,
		lastSeen,
	)

	return err
}

func (db *PgWakiliRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO rooms (external_id, client_id, advocate_id, last_activity, created_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, external_id, client_id, advocate_id, status, last_activity, created_at",
		params.ExternalId,
		params.ClientId,
		params.AdvocateId,
		time.Now().UTC(),
	)

	var room Room
	err := res.Scan(
		&room.Id,
		&room.ExternalId,
		&room.ClientId,
		&room.AdvocateId,
		&room.Status,
		&room.LastActivity,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgWakiliRepository) GetRoomById(roomId int) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, client_id, advocate_id, status, last_activity, created_at "+
			"FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.ClientId,
		&room.AdvocateId,
		&room.Status,
		&room.LastActivity,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgWakiliRepository) GetRoomByExternalId(externalId string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, client_id, advocate_id, status, last_activity, created_at "+
			"FROM rooms WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.ExternalId,
		&room.ClientId,
		&room.AdvocateId,
		&room.Status,
		&room.LastActivity,
		&room.CreatedAt,
	)

	return room, err
}

func (db *PgWakiliRepository) ListRoomsByParticipant(accountId int, status string) ([]Room, error) {
	query := "SELECT id, external_id, client_id, advocate_id, status, last_activity, created_at " +
		"FROM rooms WHERE (client_id = $1 OR advocate_id = $1)"
	args := []any{accountId}
	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}
	query += " ORDER BY last_activity DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err = rows.Scan(
			&room.Id,
			&room.ExternalId,
			&room.ClientId,
			&room.AdvocateId,
			&room.Status,
			&room.LastActivity,
			&room.CreatedAt,
		); err != nil {
			break
		}

		rooms = append(rooms, room)
	}

	return rooms, err
}

func (db *PgWakiliRepository) UpdateRoomActivity(roomId int, at time.Time) error {
	_, err := db.conn.Exec("UPDATE rooms SET last_activity = $2 WHERE id = $1", roomId, at)

	return err
}

func (db *PgWakiliRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (room_id, sender_id, content, message_type, file_url, file_name, file_size, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) "+
			"RETURNING id, room_id, sender_id, content, message_type, file_url, file_name, file_size, is_read, created_at",
		params.RoomId,
		params.SenderId,
		params.Content,
		params.Type,
		params.FileUrl,
		params.FileName,
		params.FileSize,
		time.Now().UTC(),
	)

	var msg Message
	err := res.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.SenderId,
		&msg.Content,
		&msg.Type,
		&msg.FileUrl,
		&msg.FileName,
		&msg.FileSize,
		&msg.IsRead,
		&msg.CreatedAt,
	)

	return msg, err
}

func (db *PgWakiliRepository) GetMessageById(messageId int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT id, room_id, sender_id, content, message_type, file_url, file_name, file_size, is_read, created_at "+
			"FROM messages WHERE id = $1 LIMIT 1",
		messageId,
	)

	var msg Message
	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.SenderId,
		&msg.Content,
		&msg.Type,
		&msg.FileUrl,
		&msg.FileName,
		&msg.FileSize,
		&msg.IsRead,
		&msg.CreatedAt,
	)

	return msg, err
}

func (db *PgWakiliRepository) MarkMessageRead(messageId int) error {
	_, err := db.conn.Exec("UPDATE messages SET is_read = TRUE WHERE id = $1", messageId)

	return err
}

// ListMessages returns one page of a room's messages, newest first.
// Callers reverse the page before emitting chat_history.
func (db *PgWakiliRepository) ListMessages(roomId, page, limit int) ([]Message, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, room_id, sender_id, content, message_type, file_url, file_name, file_size, is_read, created_at "+
			"FROM messages WHERE room_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		roomId,
		limit,
		(page-1)*limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err = rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.SenderId,
			&msg.Content,
			&msg.Type,
			&msg.FileUrl,
			&msg.FileName,
			&msg.FileSize,
			&msg.IsRead,
			&msg.CreatedAt,
		); err != nil {
			break
		}

		messages = append(messages, msg)
	}

	return messages, err
}

func (db *PgWakiliRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	res := db.conn.QueryRow(
		"INSERT INTO notifications (recipient_id, ntype, title, body, data, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, recipient_id, ntype, title, body, data, is_read, read_at, created_at",
		params.RecipientId,
		params.Type,
		params.Title,
		params.Body,
		params.Data,
		time.Now().UTC(),
	)

	var n Notification
	err := res.Scan(
		&n.Id,
		&n.RecipientId,
		&n.Type,
		&n.Title,
		&n.Body,
		&n.Data,
		&n.IsRead,
		&n.ReadAt,
		&n.CreatedAt,
	)

	return n, err
}

func (db *PgWakiliRepository) ListNotifications(recipientId int, unreadOnly bool) ([]Notification, error) {
	query := "SELECT id, recipient_id, ntype, title, body, data, is_read, read_at, created_at " +
		"FROM notifications WHERE recipient_id = $1"
	if unreadOnly {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.conn.Query(query, recipientId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err = rows.Scan(
			&n.Id,
			&n.RecipientId,
			&n.Type,
			&n.Title,
			&n.Body,
			&n.Data,
			&n.IsRead,
			&n.ReadAt,
			&n.CreatedAt,
		); err != nil {
			break
		}

		notifications = append(notifications, n)
	}

	return notifications, err
}

// MarkNotificationsRead flips the read flag on the given notifications,
// restricted to rows the recipient owns. Ids belonging to other users are
// silently excluded. The returned slice lists the ids actually updated.
func (db *PgWakiliRepository) MarkNotificationsRead(recipientId int, notificationIds []int) ([]int, error) {
	rows, err := db.conn.Query(
		"UPDATE notifications SET is_read = TRUE, read_at = $3 "+
			"WHERE recipient_id = $1 AND id = ANY($2) RETURNING id",
		recipientId,
		pq.Array(notificationIds),
		time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updated = make([]int, 0, len(notificationIds))
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			break
		}

		updated = append(updated, id)
	}

	return updated, err
}
