package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/hasher"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/memstore"
	"github.com/satriahrh/cocoa-fruit/gateway/adapters/token"
	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/usecase"
)

// scriptStream replays events and repeats the last one once exhausted.
type scriptStream struct {
	events []domain.ProviderStreamEvent
	next   int
}

func (s *scriptStream) Recv() domain.ProviderStreamEvent {
	if len(s.events) == 0 {
		return domain.ProviderStreamEvent{Type: domain.StreamCompleted}
	}
	ev := s.events[s.next]
	if s.next < len(s.events)-1 {
		s.next++
	}
	return ev
}

func (s *scriptStream) Close() error { return nil }

func deltas(parts ...string) []domain.ProviderStreamEvent {
	out := make([]domain.ProviderStreamEvent, 0, len(parts)+1)
	for _, p := range parts {
		out = append(out, domain.ProviderStreamEvent{Type: domain.StreamDelta, Delta: p})
	}
	return append(out, domain.ProviderStreamEvent{Type: domain.StreamCompleted})
}

type fakeProviders struct {
	mu         sync.Mutex
	chat       map[string]domain.ChatResult
	streams    map[string][]domain.ProviderStreamEvent
	streamErrs map[string]error
	calls      []string
	speech     []byte
	speechReq  domain.SpeechRequest
	upload     domain.TranscriptionRequest
}

func (f *fakeProviders) ChatOnce(_ context.Context, _ domain.Payload, model string) (domain.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	if r, ok := f.chat[model]; ok {
		return r, nil
	}
	return domain.ChatResult{}, &domain.ProviderError{Provider: "gemini", Model: model, HTTPStatus: http.StatusNotFound}
}

func (f *fakeProviders) ChatStream(_ context.Context, _ domain.Payload, model string) (domain.ChatStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	if err, ok := f.streamErrs[model]; ok {
		return nil, err
	}
	return &scriptStream{events: f.streams[model]}, nil
}

func (f *fakeProviders) SynthesizeSpeech(_ context.Context, req domain.SpeechRequest) ([]byte, error) {
	f.speechReq = req
	return f.speech, nil
}

func (f *fakeProviders) Transcribe(_ context.Context, req domain.TranscriptionRequest) (string, error) {
	f.upload = req
	return "hello from upload", nil
}

func (f *fakeProviders) TranscribeStreaming(_ context.Context, audio <-chan []byte) (string, error) {
	total := 0
	for chunk := range audio {
		total += len(chunk)
	}
	return fmt.Sprintf("%d bytes", total), nil
}

type fakeOAuth struct {
	profile domain.OAuthProfile
}

func (f fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f fakeOAuth) Exchange(_ context.Context, code string) (domain.OAuthProfile, error) {
	if code != "good-code" {
		return domain.OAuthProfile{}, domain.ErrInvalidCredentials
	}
	return f.profile, nil
}

type testServer struct {
	e         *echo.Echo
	providers *fakeProviders
	auth      *usecase.AuthService
	store     *memstore.Store
}

func newTestServer(t *testing.T, oauth domain.OAuthProvider) *testServer {
	t.Helper()
	issuer, err := token.NewJWTIssuer("test-secret")
	require.NoError(t, err)

	store := memstore.New()
	auth := usecase.NewAuthService(store, hasher.NewBcrypt(4), issuer, oauth, usecase.AuthConfig{})
	policy := usecase.NewFallbackPolicy(map[domain.Capability]usecase.ModelDefaults{
		domain.CapabilityText:   {Default: "m1", Fallbacks: []string{"m2"}},
		domain.CapabilitySpeech: {Default: "tts-1"},
	})
	providers := &fakeProviders{chat: map[string]domain.ChatResult{}, streams: map[string][]domain.ProviderStreamEvent{}, streamErrs: map[string]error{}}
	generation := usecase.NewGenerationService(usecase.Providers{
		Chat:        providers,
		Streamer:    providers,
		Speech:      providers,
		Transcriber: providers,
	}, policy, nil)

	e := NewRouter(RouterConfig{}, issuer, Handlers{
		AI:            NewAIHandler(generation, auth),
		Auth:          NewAuthHandler(auth, issuer, AuthHandlerConfig{FrontendURL: "http://app.test/"}),
		Conversations: NewConversationHandler(usecase.NewConversationService(store, policy)),
		Health:        NewHealthHandler(nil),
	})
	return &testServer{e: e, providers: providers, auth: auth, store: store}
}

// login registers a user and returns its bearer token.
func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	session, err := s.auth.Register(context.Background(), "Ada Lovelace", email, "secret-pass")
	require.NoError(t, err)
	return session.Token
}

func (s *testServer) do(method, path, body, bearer string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	return s.serve(req)
}

func (s *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	env := decode(t, rec)
	require.True(t, env.Success, rec.Body.String())
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
