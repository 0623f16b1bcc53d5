package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/trailsafe/internal/models"
)

func wsServer(t *testing.T, handle func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsDevice(srv *httptest.Server) models.DeviceDescriptor {
	return models.DeviceDescriptor{
		ID:          "ws-tracker",
		Transport:   models.TransportWebSocket,
		Format:      models.FormatGPSText,
		EndpointURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func TestWebSocketForwardsTextFrames(t *testing.T) {
	release := make(chan struct{})
	srv := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("GPS: 47.6, -122.3"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		<-release
	})
	defer close(release)

	opener := NewWebSocketOpener(time.Second, testLogger)
	sub, err := opener.Open(context.Background(), wsDevice(srv))
	require.NoError(t, err)
	defer sub.Close()

	first := nextEvent(t, sub)
	require.NoError(t, first.Err)
	assert.Equal(t, "GPS: 47.6, -122.3", first.Payload.Raw)
	assert.False(t, first.Payload.ReceivedAt.IsZero())

	second := nextEvent(t, sub)
	require.NoError(t, second.Err)
	assert.Equal(t, "hello", second.Payload.Raw)
}

func TestWebSocketServerCloseIsLinkDropped(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("GPS: 1, 2"))
	})

	sub, err := NewWebSocketOpener(time.Second, testLogger).Open(context.Background(), wsDevice(srv))
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, "GPS: 1, 2", nextEvent(t, sub).Payload.Raw)
	ev := nextEvent(t, sub)
	assert.ErrorIs(t, ev.Err, ErrLinkDropped)
}

func TestWebSocketCloseStopsDelivery(t *testing.T) {
	release := make(chan struct{})
	srv := wsServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(release)
				return
			}
		}
	})

	sub, err := NewWebSocketOpener(time.Second, testLogger).Open(context.Background(), wsDevice(srv))
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	select {
	case <-release:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close")
	}
	assert.Empty(t, sub.Events())
}

func TestWebSocketDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewWebSocketOpener(time.Second, testLogger).Open(context.Background(), models.DeviceDescriptor{
		ID:          "gone",
		Transport:   models.TransportWebSocket,
		EndpointURL: "ws://" + addr,
	})
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestWebSocketMissingEndpoint(t *testing.T) {
	_, err := NewWebSocketOpener(0, testLogger).Open(context.Background(), models.DeviceDescriptor{ID: "x"})
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}
