package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	t.Run("keepalive 與 connected", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"keepalive"}`))
		require.NoError(t, err)
		assert.Equal(t, KeepaliveEvent{}, ev)
		assert.True(t, IsControl(ev))

		ev, err = ParseEvent([]byte(`{"type":"connected"}`))
		require.NoError(t, err)
		assert.True(t, IsControl(ev))
	})

	t.Run("new_message", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"new_message","room_id":"!r1","event_id":"$e1",` +
			`"sender":"@bob:hub","sender_display_name":"Bob","body":"hi","msg_type":"m.text",` +
			`"file_url":"mxc://hub/abc","filename":"a.png","file_size":42}`))
		require.NoError(t, err)

		me, ok := ev.(MessageEvent)
		require.True(t, ok)
		assert.False(t, IsControl(ev))
		assert.Equal(t, "!r1", me.Message.RoomID)
		assert.Equal(t, "$e1", me.Message.EventID)
		assert.Equal(t, "Bob", me.Message.SenderDisplayName)
		assert.True(t, me.Message.Timestamp.IsZero())
		require.NotNil(t, me.Message.Attachment)
		assert.Equal(t, int64(42), me.Message.Attachment.Size)
	})

	t.Run("notification", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"notification","source_app":"crm","title":"Deal won","room_id":"!r2"}`))
		require.NoError(t, err)
		n, ok := ev.(NotificationEvent)
		require.True(t, ok)
		assert.Equal(t, "crm", n.SourceApp)
		assert.Equal(t, KindNotification, n.Kind())
	})

	t.Run("未知類型", func(t *testing.T) {
		ev, err := ParseEvent([]byte(`{"type":"typing","room_id":"!r1"}`))
		require.NoError(t, err)
		u, ok := ev.(UnrecognizedEvent)
		require.True(t, ok)
		assert.Equal(t, EventKind("typing"), u.Kind())
		assert.JSONEq(t, `{"type":"typing","room_id":"!r1"}`, string(u.Raw))
	})

	t.Run("格式錯誤", func(t *testing.T) {
		for _, raw := range []string{`not json`, `{}`, `{"type":"new_message","room_id":"!r1"}`, `{"type":"new_message","event_id":5}`} {
			_, err := ParseEvent([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedEvent, raw)
		}
	})
}

func TestMessageFrame(t *testing.T) {
	ts := time.Date(2025, 1, 23, 10, 0, 0, 0, time.UTC)
	msg := Message{EventID: "$e1", RoomID: "!r1", Sender: "@a:hub", Body: "hello", MsgType: MsgTypeText, Timestamp: ts}

	frame, err := MessageFrame(msg)
	require.NoError(t, err)

	ev, err := ParseEvent(frame)
	require.NoError(t, err)
	assert.Equal(t, MessageEvent{Message: msg}, ev)
}
