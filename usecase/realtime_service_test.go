package usecase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

type fakeSession struct {
	mu       sync.Mutex
	sent     []domain.RealtimeFrame
	incoming chan domain.RealtimeFrame
	failWith error
	closed   chan struct{}
	once     sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{incoming: make(chan domain.RealtimeFrame, 8), closed: make(chan struct{})}
}

func (s *fakeSession) Send(frame domain.RealtimeFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, frame)
	// Echo text back as the provider's reply.
	if frame.Type == domain.RealtimeText {
		s.incoming <- domain.RealtimeFrame{Type: domain.RealtimeText, Text: "re: " + frame.Text}
		s.incoming <- domain.RealtimeFrame{Type: domain.RealtimeTurnComplete}
	}
	return nil
}

func (s *fakeSession) Receive() (domain.RealtimeFrame, error) {
	select {
	case f, ok := <-s.incoming:
		if !ok {
			if s.failWith != nil {
				return domain.RealtimeFrame{}, s.failWith
			}
			return domain.RealtimeFrame{}, io.EOF
		}
		return f, nil
	case <-s.closed:
		return domain.RealtimeFrame{}, io.EOF
	}
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeConnector struct {
	session *fakeSession
	err     error
	opts    domain.RealtimeOptions
}

func (c *fakeConnector) Connect(_ context.Context, opts domain.RealtimeOptions) (domain.RealtimeSession, error) {
	c.opts = opts
	if c.err != nil {
		return nil, c.err
	}
	return c.session, nil
}

func TestRealtime_BridgesFrames(t *testing.T) {
	session := newFakeSession()
	connector := &fakeConnector{session: session}
	svc := NewRealtimeService(connector)

	input := make(chan domain.RealtimeFrame)
	output := make(chan domain.RealtimeFrame, 8)
	done := make(chan error, 1)
	opts := domain.RealtimeOptions{UserID: "u1", Voice: "Kore"}
	go func() { done <- svc.Execute(context.Background(), opts, input, output) }()

	input <- domain.RealtimeFrame{Type: domain.RealtimeText, Text: "hello"}
	assert.Equal(t, domain.RealtimeFrame{Type: domain.RealtimeText, Text: "re: hello"}, <-output)
	assert.Equal(t, domain.RealtimeTurnComplete, (<-output).Type)

	input <- domain.RealtimeFrame{Type: "video"}
	bad := <-output
	assert.Equal(t, domain.RealtimeError, bad.Type)

	close(input)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("execute did not return")
	}
	assert.Equal(t, opts, connector.opts)
	session.mu.Lock()
	assert.Len(t, session.sent, 1, "invalid frames are never forwarded")
	session.mu.Unlock()
}

func TestRealtime_ProviderFailure(t *testing.T) {
	session := newFakeSession()
	session.failWith = &domain.ProviderError{HTTPStatus: http.StatusUnauthorized}
	close(session.incoming)

	output := make(chan domain.RealtimeFrame, 1)
	err := NewRealtimeService(&fakeConnector{session: session}).Execute(context.Background(), domain.RealtimeOptions{}, make(chan domain.RealtimeFrame), output)
	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindUnauthorized, cerr.Kind)
	assert.Equal(t, domain.RealtimeError, (<-output).Type)
}

func TestRealtime_ConnectFailure(t *testing.T) {
	svc := NewRealtimeService(&fakeConnector{err: errors.New("dial failed")})
	output := make(chan domain.RealtimeFrame, 1)
	err := svc.Execute(context.Background(), domain.RealtimeOptions{}, nil, output)
	var cerr *ClassifiedError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindGeneric, cerr.Kind)
	assert.Equal(t, domain.RealtimeFrame{Type: domain.RealtimeError, Error: cerr.Message}, <-output)
}

func TestRealtime_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewRealtimeService(&fakeConnector{session: newFakeSession()}).Execute(ctx, domain.RealtimeOptions{}, make(chan domain.RealtimeFrame), make(chan domain.RealtimeFrame))
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("execute did not return")
	}
}

// lateSession delivers one more frame after Close, like a provider message
// that fanned out into several buffered frames.
type lateSession struct {
	closed chan struct{}
	once   sync.Once
	late   sync.Once
}

func (s *lateSession) Send(domain.RealtimeFrame) error { return nil }

func (s *lateSession) Receive() (domain.RealtimeFrame, error) {
	time.Sleep(2 * time.Millisecond)
	select {
	case <-s.closed:
		delivered := false
		s.late.Do(func() { delivered = true })
		if !delivered {
			return domain.RealtimeFrame{}, io.EOF
		}
	default:
	}
	return domain.RealtimeFrame{Type: domain.RealtimeAudio, Data: "AAAA", MimeType: "audio/pcm"}, nil
}

func (s *lateSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestRealtime_StopsWritingBeforeReturn(t *testing.T) {
	for i := 0; i < 200; i++ {
		session := &lateSession{closed: make(chan struct{})}
		svc := NewRealtimeService(connectorFunc(func(context.Context, domain.RealtimeOptions) (domain.RealtimeSession, error) {
			return session, nil
		}))

		input := make(chan domain.RealtimeFrame)
		output := make(chan domain.RealtimeFrame)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for range output {
			}
		}()
		time.AfterFunc(time.Millisecond, func() { close(input) })

		require.NoError(t, svc.Execute(context.Background(), domain.RealtimeOptions{UserID: "u1"}, input, output))
		close(output)
		<-drained
	}
}

type connectorFunc func(context.Context, domain.RealtimeOptions) (domain.RealtimeSession, error)

func (f connectorFunc) Connect(ctx context.Context, opts domain.RealtimeOptions) (domain.RealtimeSession, error) {
	return f(ctx, opts)
}
