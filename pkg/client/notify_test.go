package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gridexplore/explorer/pkg/retry"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecodeNotification(t *testing.T) {
	ev, err := DecodeNotification([]byte(`{
		"headers": {"directoryUuid": "d1", "isRootDirectory": "true", "notificationType": "UPDATE_DIRECTORY", "userId": "alice"},
		"payload": {"x": 1}
	}`))
	require.NoError(t, err)
	require.Equal(t, "d1", ev.DirectoryUUID)
	require.True(t, ev.IsRootDirectory)
	require.Equal(t, NotificationUpdateDirectory, ev.NotificationType)
	require.Equal(t, "alice", ev.UserID)
	require.JSONEq(t, `{"x": 1}`, string(ev.Payload))

	ev, err = DecodeNotification([]byte(`{"headers": {"directoryUuid": "d2", "isRootDirectory": false, "error": "denied"}}`))
	require.NoError(t, err)
	require.False(t, ev.IsRootDirectory)
	require.Equal(t, "denied", ev.Error)

	_, err = DecodeNotification([]byte(`{"payload": 1}`))
	require.Error(t, err)
	_, err = DecodeNotification([]byte(`nope`))
	require.Error(t, err)
}

func TestNotifier_Subscribe(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan *http.Request, 4)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(
			`{"headers":{"directoryUuid":"d1","isRootDirectory":false,"notificationType":"ADD_DIRECTORY"}}`))
		// keep the socket open until the client goes away
		conn.ReadMessage()
	}))
	defer ts.Close()

	n := NewNotifier(NotifierConfig{
		URL:    "ws" + strings.TrimPrefix(ts.URL, "http"),
		Token:  func() string { return "tok" },
		Logger: zap.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	events, _ := n.Subscribe(ctx)

	select {
	case ev := <-events:
		require.Equal(t, "d1", ev.DirectoryUUID)
		require.Equal(t, NotificationAddDirectory, ev.NotificationType)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	r := <-received
	require.Equal(t, "/notify", r.URL.Path)
	require.Equal(t, "directories", r.URL.Query().Get("updateType"))
	require.Equal(t, "tok", r.URL.Query().Get("access_token"))
	require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

	cancel()
	select {
	case _, ok := <-events:
		for ok {
			_, ok = <-events
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}

func TestNotifier_ReconnectsAfterDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var sessions int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		id := "first"
		if atomic.AddInt32(&sessions, 1) > 1 {
			id = "second"
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`{"headers":{"directoryUuid":"`+id+`"}}`))
		conn.Close()
	}))
	defer ts.Close()

	n := NewNotifier(NotifierConfig{
		URL:       "ws" + strings.TrimPrefix(ts.URL, "http"),
		Logger:    zap.NewNop(),
		Reconnect: retry.Config{InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, errs := n.Subscribe(ctx)

	var got []string
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev.DirectoryUUID)
		case <-errs:
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", got)
		}
	}
	require.Equal(t, []string{"first", "second"}, got)
}
