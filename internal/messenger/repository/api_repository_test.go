package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"messenger_sync/internal/messenger/domain"
	errprocess "messenger_sync/pkg/err"
	"messenger_sync/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T, h http.HandlerFunc) (MessengerRepository, *int32) {
	t.Helper()
	logger.SetNewNop()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	var unauthorized int32
	client := &http.Client{Transport: &AuthTransport{
		Source:         StaticToken("tok-1"),
		OnUnauthorized: func() { atomic.AddInt32(&unauthorized, 1) },
	}}
	return NewAPIRepository(srv.URL, client, StaticToken("tok-1")), &unauthorized
}

func TestListRooms(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rooms", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"rooms":[` +
			`{"matrix_room_id":"!r1","display_name":"General","room_type":"general","unread_count":0},` +
			`{"matrix_room_id":"!r2","display_name":null,"topic":"ops","last_message":"hey","last_message_ts":"2025-01-23T10:00:00Z"}]}`))
	})

	rooms, err := repo.ListRooms(context.Background())

	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "General", rooms[0].DisplayName)
	assert.Equal(t, domain.MembershipJoined, rooms[0].Membership)
	assert.Equal(t, "!r2", rooms[1].DisplayName)
	assert.Equal(t, "ops", rooms[1].Topic)
	assert.Equal(t, "hey", rooms[1].LastMessage)
	assert.Equal(t, domain.RoomTypeGeneral, rooms[1].RoomType)
	assert.False(t, rooms[1].LastMessageTS.IsZero())
}

func TestFetchHistory(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/messages/history/!r1", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "t_100", r.URL.Query().Get("from_token"))
		_, _ = w.Write([]byte(`{"messages":[` +
			`{"event_id":"$2","room_id":"!r1","sender":"@a","body":"second","timestamp":"2025-01-23T10:00:02Z"},` +
			`{"event_id":"$1","room_id":"!r1","sender":"@a","body":"first","timestamp":"2025-01-23T10:00:01Z"}],` +
			`"end_token":"t_98","has_more":true}`))
	})

	page, err := repo.FetchHistory(context.Background(), "!r1", 50, "t_100")

	require.NoError(t, err)
	assert.Equal(t, "t_98", page.EndToken)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	// newest-first, untouched by the repository
	assert.Equal(t, "$2", page.Messages[0].EventID)
	assert.Equal(t, domain.MsgTypeText, page.Messages[0].MsgType)
}

func TestSendMessage(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "!r1", req["room_id"])
		assert.Equal(t, "hello", req["body"])
		assert.NotEmpty(t, req["txn_id"])
		_, _ = w.Write([]byte(`{"event_id":"$9","room_id":"!r1","sender":"@me","body":"hello","timestamp":"2025-01-23T10:00:00Z"}`))
	})

	msg, err := repo.SendMessage(context.Background(), "!r1", "hello")

	require.NoError(t, err)
	assert.Equal(t, "$9", msg.EventID)
	assert.Equal(t, "hello", msg.Body)
}

func TestErrors(t *testing.T) {
	t.Run("401", func(t *testing.T) {
		repo, unauthorized := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid token"}`))
		})

		_, err := repo.ListRooms(context.Background())

		assert.ErrorIs(t, err, errprocess.ErrUnauthorized)
		assert.Equal(t, int32(1), atomic.LoadInt32(unauthorized))
	})

	t.Run("502 detail", func(t *testing.T) {
		repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"detail":"Failed to send message: upstream"}`))
		})

		err := repo.JoinRoom(context.Background(), "!r1")

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.Status)
		assert.Equal(t, "Failed to send message: upstream", apiErr.Message)
	})
}

func TestPollEvents(t *testing.T) {
	repo, _ := newTestRepo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/events/poll", r.URL.Path)
		assert.Equal(t, "tok-1", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`[{"type":"keepalive"},{"type":"new_message","room_id":"!r1","event_id":"$1","body":"x"}]`))
	})

	frames, err := repo.PollEvents(context.Background())

	require.NoError(t, err)
	assert.Len(t, frames, 2)
}

func TestEventURL(t *testing.T) {
	u, err := EventURL("https://chat.example.com/", "ws", StaticToken("a b"))
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/api/v1/events/ws?token=a+b", u)

	u, err = EventURL("http://localhost:8090", "stream", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8090/api/v1/events/stream", u)
}
