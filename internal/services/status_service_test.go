package services

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

	"github.com/benmeehan/trailsafe/internal/models"
	"github.com/benmeehan/trailsafe/internal/session"
)

func TestStatusServiceHTTP(t *testing.T) {
	opener := newSubsOpener()
	manager := session.NewManager(opener, testOptions(), testLogger)
	_, err := manager.Open(wsDevice("dev1"))
	require.NoError(t, err)
	t.Cleanup(manager.CloseAll)

	srv := httptest.NewServer(NewStatusService("", manager, testLogger).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/sessions")
	require.NoError(t, err)
	var snaps []models.SessionSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snaps))
	resp.Body.Close()
	require.Len(t, snaps, 1)
	assert.Equal(t, "dev1", snaps[0].Device.ID)

	resp, err = http.Get(srv.URL + "/sessions/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStatusServiceStream(t *testing.T) {
	opener := newSubsOpener()
	manager := session.NewManager(opener, testOptions(), testLogger)
	s, err := manager.Open(wsDevice("dev1"))
	require.NoError(t, err)

	srv := httptest.NewServer(NewStatusService("", manager, testLogger).Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/dev1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	opener.sub(t, "dev1").send("GPS: 3.5, 4.5")

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var snap models.SessionSnapshot
		require.NoError(t, conn.ReadJSON(&snap))
		if snap.Current != nil {
			assert.Equal(t, 3.5, snap.Current.Latitude)
			break
		}
	}

	require.NoError(t, s.Close())
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var snap models.SessionSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
			break
		}
	}
}

func TestStatusServiceLifecycle(t *testing.T) {
	manager := session.NewManager(newSubsOpener(), testOptions(), testLogger)
	status := NewStatusService("127.0.0.1:0", manager, testLogger)

	assert.EqualError(t, status.Stop(), "status service is not running")
	require.NoError(t, status.Start())
	assert.EqualError(t, status.Start(), "status service is already running")

	resp, err := http.Get("http://" + status.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, status.Stop())
}
