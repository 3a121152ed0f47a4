package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wireEvent is a superset of every outbound message, for decoding
// whatever the gateway sends next.
type wireEvent struct {
	Type      string        `json:"type"`
	RoomID    string        `json:"roomId"`
	RoomCode  string        `json:"roomCode"`
	PlayerID  string        `json:"playerId"`
	Message   string        `json:"message"`
	Countdown int           `json:"countdown"`
	WinnerID  string        `json:"winnerId"`
	Status    string        `json:"status"`
	Players   []PlayerState `json:"players"`
	Player    *PlayerState  `json:"player"`
	Image     *NasaImage    `json:"image"`
}

func newGatewayServer(t *testing.T, cfg *Config) *httptest.Server {
	t.Helper()

	provider := imageProviderFunc(func(ctx context.Context) (*NasaImage, error) {
		return &NasaImage{URL: "https://example.com/apod.jpg", Title: "Test Image"}, nil
	})

	coord := NewCoordinator(cfg, provider, clockwork.NewRealClock())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go coord.Run(ctx)

	mux := httprouter.New()
	registerPuzzleGame(cfg, mux, coord)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	target := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readWire(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var event wireEvent
	require.NoError(t, conn.ReadJSON(&event))

	return event
}

func TestGatewayCreateAndJoin(t *testing.T) {
	srv := newGatewayServer(t, testConfig())

	host := dialGateway(t, srv)
	require.NoError(t, host.WriteJSON(ClientCommand{Type: CmdCreateRoom, PlayerName: "Alice"}))

	created := readWire(t, host)
	require.Equal(t, "room-created", created.Type)
	assert.NotEmpty(t, created.RoomID)
	assert.Len(t, created.RoomCode, 6)
	require.NotNil(t, created.Image)
	assert.Equal(t, "Test Image", created.Image.Title)

	guest := dialGateway(t, srv)
	require.NoError(t, guest.WriteJSON(ClientCommand{Type: CmdJoinRoom, PlayerName: "Bob", RoomCode: created.RoomCode}))

	joined := readWire(t, guest)
	require.Equal(t, "room-joined", joined.Type)
	assert.Equal(t, created.RoomID, joined.RoomID)
	assert.Equal(t, "waiting", joined.Status)
	require.Len(t, joined.Players, 2)
	assert.Equal(t, "Alice", joined.Players[0].Name)
	assert.True(t, joined.Players[0].IsHost)

	notice := readWire(t, host)
	require.Equal(t, "player-joined", notice.Type)
	require.NotNil(t, notice.Player)
	assert.Equal(t, "Bob", notice.Player.Name)
}

func TestGatewayJoinUnknownRoom(t *testing.T) {
	srv := newGatewayServer(t, testConfig())

	conn := dialGateway(t, srv)
	require.NoError(t, conn.WriteJSON(ClientCommand{Type: CmdJoinRoom, PlayerName: "Bob", RoomCode: "ZZZZZZ"}))

	event := readWire(t, conn)
	assert.Equal(t, "error", event.Type)
	assert.Equal(t, "Room not found", event.Message)
}

func TestGatewayIgnoresUnknownCommands(t *testing.T) {
	srv := newGatewayServer(t, testConfig())

	conn := dialGateway(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "self-destruct"}))

	// The connection stays up and later commands still work.
	require.NoError(t, conn.WriteJSON(ClientCommand{Type: CmdCreateRoom, PlayerName: "Alice"}))

	created := readWire(t, conn)
	assert.Equal(t, "room-created", created.Type)
}

func TestQRCodeRoute(t *testing.T) {
	srv := newGatewayServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/room/abc123/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestStatsRoute(t *testing.T) {
	srv := newGatewayServer(t, testConfig())

	conn := dialGateway(t, srv)
	require.NoError(t, conn.WriteJSON(ClientCommand{Type: CmdCreateRoom, PlayerName: "Alice"}))
	readWire(t, conn)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))

	assert.Equal(t, Stats{Rooms: 1, Players: 1, Sessions: 1}, stats)
}

func TestIndexRoute(t *testing.T) {
	srv := newGatewayServer(t, testConfig())

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
