package stream

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBroadcast_NoViewers(t *testing.T) {
	s := NewServer("localhost:0", discardLogger())
	// must not panic or block
	s.Broadcast(map[string]int{"x": 1})
	assert.Zero(t, s.ViewerCount())
}

func TestBroadcast_DeliversJSON(t *testing.T) {
	s := NewServer("localhost:0", discardLogger())

	srv := httptest.NewServer(s.http.Handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/debug"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return s.ViewerCount() == 1
	}, time.Second, 5*time.Millisecond)

	s.Broadcast(map[string]any{"sessionId": 7, "speed": 88})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, float64(7), payload["sessionId"])
	assert.Equal(t, float64(88), payload["speed"])
}

func TestViewerDisconnect(t *testing.T) {
	s := NewServer("localhost:0", discardLogger())

	srv := httptest.NewServer(s.http.Handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/debug"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.ViewerCount() == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return s.ViewerCount() == 0
	}, time.Second, 5*time.Millisecond)
}
