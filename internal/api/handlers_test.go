package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mpmbugua/wakili-chat/internal/config"
	"github.com/mpmbugua/wakili-chat/internal/database"
	"github.com/mpmbugua/wakili-chat/internal/server"
	"github.com/mpmbugua/wakili-chat/internal/stats"
	"github.com/mpmbugua/wakili-chat/internal/testutil"
	"github.com/mpmbugua/wakili-chat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// newTestApp wires a WakiliApp with mocked storage and stats.
func newTestApp(t *testing.T, db database.WakiliRepository, su *stats.MockStatsUpdater) *WakiliApp {
	t.Helper()
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)

	logger := testutil.TestLogger(t)
	cs, err := server.NewChatServer(logger, db, su)
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}

	cfg := &config.Config{
		ServerAddr:     "localhost:0",
		SigningKey:     []byte("test-signing-key"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	return NewWakiliApp(http.NewServeMux(), logger, cs, db, su, cfg)
}

// findCookie is a helper function to find a cookie by name in the response recorder.
// It returns the cookie if found, or nil if not found.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockWakiliRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func TestCreateAccountHandler(t *testing.T) {
	expectedUser := database.User{
		Id:        1,
		Email:     "client@example.com",
		FullName:  "Test Client",
		Role:      types.RoleClient,
		Status:    types.StatusOffline,
		CreatedAt: time.Now().UTC(),
	}

	tcases := []struct {
		name        string
		body        any
		success     bool
		mockUser    database.User
		mockErr     error
		expectedErr *ApiError
	}{
		{
			name: "successfully creates a new account",
			body: RegisterRequest{
				Email:    expectedUser.Email,
				FullName: expectedUser.FullName,
				Role:     types.RoleClient,
				Password: "password",
			},
			success:  true,
			mockUser: expectedUser,
		},
		{
			name:        "failed with invalid json body",
			body:        "invalid json",
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with missing full name",
			body: RegisterRequest{
				Email:    expectedUser.Email,
				Role:     types.RoleClient,
				Password: "password",
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails with unknown role",
			body: RegisterRequest{
				Email:    expectedUser.Email,
				FullName: expectedUser.FullName,
				Role:     "paralegal",
				Password: "password",
			},
			expectedErr: NewBadRequestError(),
		},
		{
			name: "fails when store rejects the account",
			body: RegisterRequest{
				Email:    expectedUser.Email,
				FullName: expectedUser.FullName,
				Role:     types.RoleClient,
				Password: "password",
			},
			mockErr:     errors.New("db error"),
			expectedErr: NewInternalServerError(errors.New("db error")),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockWakiliRepository{}
			defer mockRepo.AssertExpectations(t)
			if tc.success || tc.mockErr != nil {
				mockRepo.On("CreateAccount", mock.MatchedBy(func(params database.CreateAccountParams) bool {
					return params.Email == expectedUser.Email &&
						params.FullName == expectedUser.FullName &&
						params.Role == types.RoleClient &&
						params.PasswordHash != ""
				})).Return(tc.mockUser, tc.mockErr).Once()
			}

			app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

			body, err := json.Marshal(tc.body)
			if err != nil {
				t.Fatalf("failed to marshal body: %v", err)
			}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
			app.createAccount(rr, req)

			if tc.expectedErr != nil {
				assert.Equal(t, tc.expectedErr.StatusCode, rr.Code, "expected error status code")
				return
			}

			assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

			var u types.User
			assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u), "expected valid json response")
			assert.Equal(t, expectedUser.Id, u.Id, "expected user id in response")
			assert.Equal(t, expectedUser.Email, u.Email, "expected email in response")
			assert.Equal(t, expectedUser.Role, u.Role, "expected role in response")
		})
	}
}

func TestLoginHandler(t *testing.T) {
	passwordHash, err := hashPassword("password")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	dbUser := database.User{
		Id:           1,
		Email:        "client@example.com",
		FullName:     "Test Client",
		Role:         types.RoleClient,
		PasswordHash: passwordHash,
	}

	t.Run("successful login sets session cookie", func(t *testing.T) {
		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByEmail", dbUser.Email).Return(dbUser, nil).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		body, _ := json.Marshal(LoginRequest{Email: dbUser.Email, Password: "password"})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		app.login(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		cookie := findCookie(rr, tokenCookieKey)
		assert.NotNil(t, cookie, "expected session cookie to be set")
		assert.NotEmpty(t, cookie.Value, "expected token in session cookie")

		userId, err := app.extractUserIdFromToken(cookie.Value)
		assert.NoError(t, err, "expected cookie token to verify")
		assert.Equal(t, dbUser.Id, userId, "expected user id in token")
	})

	t.Run("wrong password", func(t *testing.T) {
		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByEmail", dbUser.Email).Return(dbUser, nil).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		body, _ := json.Marshal(LoginRequest{Email: dbUser.Email, Password: "wrong"})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		app.login(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "expected status code to be 401")
	})

	t.Run("unknown email", func(t *testing.T) {
		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountByEmail", "missing@example.com").Return(database.User{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		body, _ := json.Marshal(LoginRequest{Email: "missing@example.com", Password: "password"})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
		app.login(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})
}

func TestSessionHandler(t *testing.T) {
	dbUser := database.User{
		Id:       1,
		Email:    "client@example.com",
		FullName: "Test Client",
		Role:     types.RoleClient,
		Status:   types.StatusOnline,
	}

	mockRepo := &database.MockWakiliRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("GetAccountById", dbUser.Id).Return(dbUser, nil).Once()

	app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req = req.WithContext(WithUserId(req.Context(), dbUser.Id))
	app.session(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	var u types.User
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &u), "expected valid json response")
	assert.Equal(t, dbUser.Id, u.Id, "expected user id in response")
	assert.Equal(t, dbUser.FullName, u.FullName, "expected full name in response")
}

func TestCreateRoomHandler(t *testing.T) {
	caller := database.User{Id: 1, FullName: "Test Client", Role: types.RoleClient}
	advocate := database.User{Id: 2, FullName: "Test Advocate", Role: types.RoleAdvocate}

	t.Run("successfully creates a room", func(t *testing.T) {
		newRoom := database.Room{
			Id:         10,
			ExternalId: "EoGKUXPHg",
			ClientId:   caller.Id,
			AdvocateId: advocate.Id,
			Status:     types.RoomStatusActive,
			CreatedAt:  time.Now().UTC(),
		}

		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountById", caller.Id).Return(caller, nil).Once()
		mockRepo.On("GetAccountById", advocate.Id).Return(advocate, nil).Once()
		mockRepo.On("CreateRoom", database.CreateRoomParams{
			ExternalId: newRoom.ExternalId,
			ClientId:   caller.Id,
			AdvocateId: advocate.Id,
		}).Return(newRoom, nil).Once()
		// announcing the room stores a notification for the advocate
		mockRepo.On("CreateNotification", mock.MatchedBy(func(params database.CreateNotificationParams) bool {
			return params.RecipientId == advocate.Id && params.Type == types.NotificationRoomCreated
		})).Return(database.Notification{Id: 1, RecipientId: advocate.Id}, nil).Once()

		su := &stats.MockStatsUpdater{}
		su.On("Incr", "NumNotificationsDispatched").Once()

		app := newTestApp(t, mockRepo, su)
		app.generateShortId = func() (string, error) {
			return newRoom.ExternalId, nil
		}

		body, _ := json.Marshal(CreateRoomRequest{AdvocateId: advocate.Id})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))
		req = req.WithContext(WithUserId(req.Context(), caller.Id))
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

		var room types.Room
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &room), "expected valid json response")
		assert.Equal(t, newRoom.ExternalId, room.ExternalId, "expected external id in response")
		assert.Equal(t, caller.Id, room.ClientId, "expected client id in response")
		assert.Equal(t, advocate.Id, room.AdvocateId, "expected advocate id in response")
	})

	t.Run("advocates cannot open rooms", func(t *testing.T) {
		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountById", advocate.Id).Return(advocate, nil).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		body, _ := json.Marshal(CreateRoomRequest{AdvocateId: caller.Id})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))
		req = req.WithContext(WithUserId(req.Context(), advocate.Id))
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")
	})

	t.Run("unknown advocate", func(t *testing.T) {
		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountById", caller.Id).Return(caller, nil).Once()
		mockRepo.On("GetAccountById", 99).Return(database.User{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		body, _ := json.Marshal(CreateRoomRequest{AdvocateId: 99})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))
		req = req.WithContext(WithUserId(req.Context(), caller.Id))
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})

	t.Run("counterpart must be an advocate", func(t *testing.T) {
		otherClient := database.User{Id: 3, FullName: "Other Client", Role: types.RoleClient}

		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetAccountById", caller.Id).Return(caller, nil).Once()
		mockRepo.On("GetAccountById", otherClient.Id).Return(otherClient, nil).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		body, _ := json.Marshal(CreateRoomRequest{AdvocateId: otherClient.Id})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", bytes.NewReader(body))
		req = req.WithContext(WithUserId(req.Context(), caller.Id))
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})
}

func TestListRoomsHandler(t *testing.T) {
	dbRooms := []database.Room{
		{Id: 10, ExternalId: "room-1", ClientId: 1, AdvocateId: 2, Status: types.RoomStatusActive},
		{Id: 11, ExternalId: "room-2", ClientId: 1, AdvocateId: 3, Status: types.RoomStatusActive},
	}

	mockRepo := &database.MockWakiliRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("ListRoomsByParticipant", 1, types.RoomStatusActive).Return(dbRooms, nil).Once()

	app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/rooms", nil)
	req = req.WithContext(WithUserId(req.Context(), 1))
	app.listRooms(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	var rooms []types.Room
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rooms), "expected valid json response")
	assert.Len(t, rooms, 2, "expected both rooms in response")
	assert.Equal(t, "room-1", rooms[0].ExternalId, "expected external id in response")
}

func TestGetMessagesHandler(t *testing.T) {
	dbRoom := database.Room{Id: 10, ExternalId: "room-1", ClientId: 1, AdvocateId: 2}

	t.Run("returns messages oldest first", func(t *testing.T) {
		now := time.Now().UTC()
		dbMessages := []database.Message{
			{Id: 2, RoomId: dbRoom.Id, SenderId: 1, Content: "second", CreatedAt: now},
			{Id: 1, RoomId: dbRoom.Id, SenderId: 2, Content: "first", CreatedAt: now.Add(-time.Minute)},
		}

		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", dbRoom.ExternalId).Return(dbRoom, nil).Once()
		mockRepo.On("ListMessages", dbRoom.Id, 1, 50).Return(dbMessages, nil).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id="+dbRoom.ExternalId, nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var messages []types.Message
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &messages), "expected valid json response")
		assert.Len(t, messages, 2, "expected both messages in response")
		assert.Equal(t, 1, messages[0].Id, "expected oldest message first")
		assert.Equal(t, dbRoom.ExternalId, messages[0].RoomId, "expected external room id on messages")
	})

	t.Run("non-participant is rejected", func(t *testing.T) {
		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetRoomByExternalId", dbRoom.ExternalId).Return(dbRoom, nil).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages?room_id="+dbRoom.ExternalId, nil)
		req = req.WithContext(WithUserId(req.Context(), 99))
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")
	})

	t.Run("missing room id", func(t *testing.T) {
		app := newTestApp(t, &database.MockWakiliRepository{}, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
		req = req.WithContext(WithUserId(req.Context(), 1))
		app.getMessages(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})
}

func TestGetNotificationsHandler(t *testing.T) {
	readAt := time.Now().UTC()
	dbNotifications := []database.Notification{
		{
			Id:          1,
			RecipientId: 2,
			Type:        types.NotificationMessageReceived,
			Title:       "New message",
			Body:        "Test Client sent you a message",
			Data:        []byte(`{"room_id":"room-1"}`),
		},
		{
			Id:          2,
			RecipientId: 2,
			Type:        types.NotificationRoomCreated,
			Title:       "New chat room",
			IsRead:      true,
			ReadAt:      &readAt,
		},
	}

	t.Run("lists all notifications", func(t *testing.T) {
		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("ListNotifications", 2, false).Return(dbNotifications, nil).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req = req.WithContext(WithUserId(req.Context(), 2))
		app.getNotifications(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var notifications []types.Notification
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &notifications), "expected valid json response")
		assert.Len(t, notifications, 2, "expected both notifications in response")
		assert.Equal(t, "room-1", notifications[0].Data["room_id"], "expected decoded data payload")
		assert.True(t, notifications[1].IsRead, "expected read flag preserved")
	})

	t.Run("filters to unread", func(t *testing.T) {
		mockRepo := &database.MockWakiliRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("ListNotifications", 2, true).Return(dbNotifications[:1], nil).Once()

		app := newTestApp(t, mockRepo, &stats.MockStatsUpdater{})

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/notifications?unread=true", nil)
		req = req.WithContext(WithUserId(req.Context(), 2))
		app.getNotifications(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var notifications []types.Notification
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &notifications), "expected valid json response")
		assert.Len(t, notifications, 1, "expected only unread notifications")
	})
}
