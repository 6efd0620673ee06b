package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorEvents(t *testing.T) {
	tcases := []struct {
		name         string
		msg          *ServerMessage
		expectedCode int
	}{
		{
			name:         "not authorized",
			msg:          ErrNotAuthorized(1, "nope"),
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "not found",
			msg:          ErrNotFound(2, "missing"),
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "internal error",
			msg:          ErrInternalError(3),
			expectedCode: http.StatusInternalServerError,
		},
		{
			name:         "service unavailable",
			msg:          ErrServiceUnavailable(4),
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotNil(t, tc.msg.Error, "expected error event")
			assert.Equal(t, tc.expectedCode, tc.msg.Error.Code, "expected error code")
			assert.False(t, tc.msg.Timestamp.IsZero(), "expected timestamp set")
		})
	}
}

func TestErrInvalidMessage(t *testing.T) {
	msg := ErrInvalidMessage(7)
	assert.Equal(t, 7, msg.Id, "expected request id carried on reply")

	msg = ErrInvalidMessage(-1)
	assert.Equal(t, 0, msg.Id, "expected unparseable request to get no id")
}

func TestClientMessageUnmarshal(t *testing.T) {
	raw := `{"id":12,"send_message":{"room_id":"room-1","content":"hello","message_type":"text"}}`

	var msg ClientMessage
	err := json.Unmarshal([]byte(raw), &msg)
	assert.NoError(t, err, "expected valid envelope to parse")
	assert.Equal(t, 12, msg.Id, "expected id parsed")
	assert.NotNil(t, msg.Send, "expected send_message event set")
	assert.Nil(t, msg.Join, "expected other events unset")
	assert.Equal(t, "room-1", msg.Send.RoomId, "expected room id parsed")
	assert.Equal(t, "hello", msg.Send.Content, "expected content parsed")
}

func TestServerMessageMarshal_omitsUnsetEvents(t *testing.T) {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
		Typing: &UserTyping{
			RoomId: "room-1",
			UserId: 2,
			Typing: true,
		},
	}

	data, err := json.Marshal(msg)
	assert.NoError(t, err, "expected message to serialize")

	var decoded map[string]any
	err = json.Unmarshal(data, &decoded)
	assert.NoError(t, err, "expected output to be valid json")
	assert.Contains(t, decoded, "user_typing", "expected set event present")
	assert.NotContains(t, decoded, "new_message", "expected unset events omitted")
	assert.NotContains(t, decoded, "error", "expected unset events omitted")
}
