package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/litterally/internal/model"
	"github.com/mmeshcher/litterally/internal/scanflow"
)

func dial(t *testing.T, hub *Hub, profileID string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, profileID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return hub.clientCount(profileID) > 0
	}, time.Second, 10*time.Millisecond)
	return conn
}

func TestNotifierDeliversEventsToProfile(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	conn := dial(t, hub, "p1")

	profile := model.UserProfile{ID: "p1", Points: 20}
	hub.Notifier("p1").Notify(scanflow.Event{
		Type:     scanflow.EventProfileUpdated,
		Snapshot: scanflow.Snapshot{State: scanflow.StateIdle},
		Profile:  &profile,
	})
	hub.Notifier("someone-else").Notify(scanflow.Event{Type: scanflow.EventStateChanged})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string `json:"type"`
		Data struct {
			Snapshot scanflow.Snapshot `json:"snapshot"`
			Profile  model.UserProfile `json:"profile"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))

	assert.Equal(t, "profile_updated", msg.Type)
	assert.Equal(t, scanflow.StateIdle, msg.Data.Snapshot.State)
	assert.Equal(t, 20, msg.Data.Profile.Points)
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := NewHub(nil)
	c := &Client{hub: hub, profileID: "p1", send: make(chan []byte, 1)}
	require.True(t, hub.register(c))

	hub.Publish("p1", "scan_state", nil)
	assert.Equal(t, 1, hub.clientCount("p1"))

	hub.Publish("p1", "scan_state", nil)
	assert.Equal(t, 0, hub.clientCount("p1"))

	// повторное отключение не должно паниковать на закрытом канале
	hub.unregister(c)
}

func TestClosedHubRejectsClients(t *testing.T) {
	hub := NewHub(nil)
	conn := dial(t, hub, "p1")

	hub.Close()
	assert.Equal(t, 0, hub.clientCount("p1"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived),
		"unexpected error: %v", err)

	c := &Client{hub: hub, profileID: "p2", send: make(chan []byte, 1)}
	assert.False(t, hub.register(c))
}
