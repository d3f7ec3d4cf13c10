package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

type fakeTickets struct{}

func (fakeTickets) VerifyRealtimeTicket(ticket string) (domain.RealtimeOptions, error) {
	if ticket != "good" {
		return domain.RealtimeOptions{}, domain.ErrInvalidToken
	}
	return domain.RealtimeOptions{UserID: "u1", Voice: "Puck"}, nil
}

// echoRunner answers every text frame with an echo and a turn_complete.
type echoRunner struct {
	started chan domain.RealtimeOptions
}

func (r *echoRunner) Execute(ctx context.Context, opts domain.RealtimeOptions, input <-chan domain.RealtimeFrame, output chan<- domain.RealtimeFrame) error {
	r.started <- opts
	for {
		select {
		case frame, ok := <-input:
			if !ok {
				return nil
			}
			if frame.Text == "fail" {
				output <- domain.RealtimeFrame{Type: domain.RealtimeError, Error: "boom"}
				return errors.New("boom")
			}
			output <- domain.RealtimeFrame{Type: domain.RealtimeText, Text: "re: " + frame.Text}
			output <- domain.RealtimeFrame{Type: domain.RealtimeTurnComplete}
		case <-ctx.Done():
			return nil
		}
	}
}

func startServer(t *testing.T, cfg ServerConfig) (*Server, *echoRunner, string) {
	t.Helper()
	runner := &echoRunner{started: make(chan domain.RealtimeOptions, 4)}
	s := NewServer(fakeTickets{}, runner, cfg)
	e := echo.New()
	e.GET("/ws/realtime", s.Handler)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return s, runner, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/realtime"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.RealtimeFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame domain.RealtimeFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHandler_RejectsBadTicket(t *testing.T) {
	_, _, url := startServer(t, ServerConfig{})
	_, resp, err := websocket.DefaultDialer.Dial(url+"?ticket=bad", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_BridgesFrames(t *testing.T) {
	s, runner, url := startServer(t, ServerConfig{})
	conn := dial(t, url+"?ticket=good")

	opts := <-runner.started
	assert.Equal(t, "u1", opts.UserID)
	assert.Equal(t, 1, s.GetHub().ClientCount())
	assert.Equal(t, 1, s.GetHub().SessionsFor("u1"))

	require.NoError(t, conn.WriteJSON(domain.RealtimeFrame{Type: domain.RealtimeText, Text: "hello"}))
	assert.Equal(t, domain.RealtimeFrame{Type: domain.RealtimeText, Text: "re: hello"}, readFrame(t, conn))
	assert.Equal(t, domain.RealtimeTurnComplete, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, domain.RealtimeFrame{Type: domain.RealtimeError, Error: "Invalid message"}, readFrame(t, conn))
}

func TestHandler_ErrorFrameThenClose(t *testing.T) {
	s, runner, url := startServer(t, ServerConfig{})
	conn := dial(t, url+"?ticket=good")
	<-runner.started

	require.NoError(t, conn.WriteJSON(domain.RealtimeFrame{Type: domain.RealtimeText, Text: "fail"}))
	assert.Equal(t, domain.RealtimeFrame{Type: domain.RealtimeError, Error: "boom"}, readFrame(t, conn))

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Eventually(t, func() bool { return s.GetHub().ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_SessionLimit(t *testing.T) {
	_, runner, url := startServer(t, ServerConfig{MaxSessionsPerUser: 1})
	dial(t, url+"?ticket=good")
	<-runner.started

	_, resp, err := websocket.DefaultDialer.Dial(url+"?ticket=good", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestServer_Shutdown(t *testing.T) {
	s, runner, url := startServer(t, ServerConfig{})
	conn := dial(t, url+"?ticket=good")
	<-runner.started

	s.Shutdown()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return s.GetHub().ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_TryAcquireIsAtomic(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup
	var granted atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if hub.TryAcquire("u1", 2) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(2), granted.Load())
	assert.Equal(t, 2, hub.SessionsFor("u1"))

	hub.Release("u1")
	assert.True(t, hub.TryAcquire("u1", 2))
	assert.True(t, hub.TryAcquire("u2", 0), "zero means no limit")
}

func TestHandler_SessionSlotReleasedOnClose(t *testing.T) {
	s, runner, url := startServer(t, ServerConfig{MaxSessionsPerUser: 1})
	conn := dial(t, url+"?ticket=good")
	<-runner.started
	assert.Equal(t, 1, s.GetHub().SessionsFor("u1"))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return s.GetHub().SessionsFor("u1") == 0 }, 2*time.Second, 10*time.Millisecond)

	dial(t, url+"?ticket=good")
	<-runner.started
}

func TestHandler_ChecksOrigin(t *testing.T) {
	_, runner, url := startServer(t, ServerConfig{AllowedOrigins: []string{"http://app.example.com/"}})

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url+"?ticket=good", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://app.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url+"?ticket=good", header)
	require.NoError(t, err)
	defer conn.Close()
	<-runner.started

	// Non-browser clients send no Origin.
	dial(t, url+"?ticket=good")
	<-runner.started
}
