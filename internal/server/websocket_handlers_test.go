package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"

	"hiss/internal/notifications"
	"hiss/internal/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listen serves the full app on a loopback port and returns its host:port.
func listen(t *testing.T, s *Server) string {
	t.Helper()
	app := s.NewApp()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return ln.Addr().String()
}

func feedURL(addr, token string) string {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/api/ws/feed"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

func TestFeedWebsocket_RejectsMissingToken(t *testing.T) {
	s, _, _ := newIntegrationServer(t, nil)
	addr := listen(t, s)

	conn, resp, err := websocket.DefaultDialer.Dial(feedURL(addr, ""), nil)
	if conn != nil {
		_ = conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFeedWebsocket_DeliversEventsAndClosesOnShutdown(t *testing.T) {
	s, _, db := newIntegrationServer(t, nil)
	aliceID, token := tokenFor(t, db, "alice")
	addr := listen(t, s)

	conn, _, err := websocket.DefaultDialer.Dial(feedURL(addr, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return s.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	post, err := s.postService.CreatePost(context.Background(), service.CreatePostInput{
		AuthorID: aliceID,
		Body:     "live",
	})
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev struct {
		Type    string `json:"type"`
		Payload struct {
			ID   uint   `json:"id"`
			Body string `json:"body"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, notifications.EventPostCreated, ev.Type)
	assert.Equal(t, post.ID, ev.Payload.ID)
	assert.Equal(t, "live", ev.Payload.Body)

	require.NoError(t, s.hub.Shutdown(context.Background()))

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
