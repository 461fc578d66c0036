package echo

import (
	"fmt"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	s := New(cfg, slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_Echoes(t *testing.T) {
	_, url := testServer(t, Config{})
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	require.Equal(t, "ping", string(msg))
}

func TestServer_ActiveGauge(t *testing.T) {
	s, url := testServer(t, Config{})

	c1 := dial(t, url)
	c2 := dial(t, url)
	require.Eventually(t, func() bool { return s.Active() == 2 },
		time.Second, 10*time.Millisecond)

	c1.Close()
	c2.Close()
	require.Eventually(t, func() bool { return s.Active() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestServer_MutesOverCap(t *testing.T) {
	_, url := testServer(t, Config{MaxConns: 1})

	first := dial(t, url)
	second := dial(t, url)

	// The first connection keeps echoing.
	require.NoError(t, first.WriteMessage(websocket.TextMessage, []byte("a")))
	first.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := first.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "a", string(msg))

	// The over-cap connection is accepted but never answered.
	require.NoError(t, second.WriteMessage(websocket.TextMessage, []byte("b")))
	second.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = second.ReadMessage()
	require.Error(t, err)
}

func TestServer_DelaysReplies(t *testing.T) {
	_, url := testServer(t, Config{Delay: 100 * time.Millisecond})
	conn := dial(t, url)

	start := time.Now()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("x")))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestServer_StartAndClose(t *testing.T) {
	s := New(Config{Port: 0}, slog.New(slog.DiscardHandler))
	require.NoError(t, s.Start())
	require.NotNil(t, s.Addr())

	addr, ok := s.Addr().(*net.TCPAddr)
	require.True(t, ok)
	conn, _, err := websocket.DefaultDialer.Dial(
		fmt.Sprintf("ws://127.0.0.1:%d", addr.Port), nil)
	require.NoError(t, err)
	conn.Close()

	require.NoError(t, s.Close())
}
