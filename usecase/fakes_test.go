package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

func quotaErr(model string) error {
	return &domain.ProviderError{Provider: "gemini", Model: model, HTTPStatus: http.StatusTooManyRequests, Reason: "insufficient_quota"}
}

func rateErr(model string) error {
	return &domain.ProviderError{Provider: "gemini", Model: model, HTTPStatus: http.StatusTooManyRequests, RetryAfter: "12s"}
}

type chatReply struct {
	result domain.ChatResult
	err    error
}

type fakeChat struct {
	mu      sync.Mutex
	replies map[string]chatReply
	calls   []string
	payload domain.Payload
}

func (f *fakeChat) ChatOnce(_ context.Context, payload domain.Payload, model string) (domain.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, model)
	f.payload = payload
	r, ok := f.replies[model]
	if !ok {
		return domain.ChatResult{}, &domain.ProviderError{Model: model, HTTPStatus: http.StatusNotFound}
	}
	return r.result, r.err
}

func (f *fakeChat) VisionChat(_ context.Context, imageRef, prompt, model string) (domain.ChatResult, error) {
	return f.ChatOnce(context.Background(), domain.Payload{Messages: []domain.ChatMessage{{Role: domain.UserRole, Content: prompt + "|" + imageRef}}}, model)
}

// scriptedStream replays events; once a terminal event is reached it keeps
// returning it.
type scriptedStream struct {
	events []domain.ProviderStreamEvent
	next   int
	closed bool
	// onRecv runs before each event is returned.
	onRecv func(i int)
}

func (s *scriptedStream) Recv() domain.ProviderStreamEvent {
	if s.onRecv != nil {
		s.onRecv(s.next)
	}
	if s.next >= len(s.events) {
		return domain.ProviderStreamEvent{Type: domain.StreamCompleted}
	}
	ev := s.events[s.next]
	if ev.Type == domain.StreamDelta {
		s.next++
	}
	return ev
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}

type fakeStreamer struct {
	streams map[string]*scriptedStream
	errs    map[string]error
	calls   []string
}

func (f *fakeStreamer) ChatStream(_ context.Context, _ domain.Payload, model string) (domain.ChatStream, error) {
	f.calls = append(f.calls, model)
	if err, ok := f.errs[model]; ok {
		return nil, err
	}
	s, ok := f.streams[model]
	if !ok {
		return nil, &domain.ProviderError{Model: model, HTTPStatus: http.StatusNotFound}
	}
	return s, nil
}

func deltas(parts ...string) []domain.ProviderStreamEvent {
	out := make([]domain.ProviderStreamEvent, 0, len(parts))
	for _, p := range parts {
		out = append(out, domain.ProviderStreamEvent{Type: domain.StreamDelta, Delta: p})
	}
	return out
}

var errClientGone = errors.New("broken pipe")

type recordingSink struct {
	opened    bool
	committed bool
	events    []StreamEvent
	// failOn makes the n-th Send (1-based) fail.
	failOn int
}

func (s *recordingSink) Open()           { s.opened = true }
func (s *recordingSink) Committed() bool { return s.committed }

func (s *recordingSink) Send(ev StreamEvent) error {
	if s.failOn > 0 && len(s.events)+1 == s.failOn {
		s.committed = true
		return errClientGone
	}
	s.committed = true
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) terminals() int {
	n := 0
	for _, ev := range s.events {
		if ev.Terminal() {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []domain.TurnRecord
	err     error
	ctxErr  error
}

func (r *fakeRecorder) RecordTurns(ctx context.Context, record domain.TurnRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	r.ctxErr = ctx.Err()
	return r.err
}

type fakeImages struct {
	replies map[string]error
	calls   []string
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt, model string) (domain.ImageResult, error) {
	f.calls = append(f.calls, model)
	if err := f.replies[model]; err != nil {
		return domain.ImageResult{}, err
	}
	return domain.ImageResult{ImageURL: "data:image/png;base64,AAAA", ID: "img_1"}, nil
}

type fakeAudio struct {
	lastSpeech domain.SpeechRequest
	lastSTT    domain.TranscriptionRequest
	err        error
}

func (f *fakeAudio) SynthesizeSpeech(_ context.Context, req domain.SpeechRequest) ([]byte, error) {
	f.lastSpeech = req
	if f.err != nil {
		return nil, f.err
	}
	return []byte("mp3"), nil
}

func (f *fakeAudio) Transcribe(_ context.Context, req domain.TranscriptionRequest) (string, error) {
	f.lastSTT = req
	if f.err != nil {
		return "", f.err
	}
	return "hello world", nil
}

func (f *fakeAudio) TranscribeStreaming(_ context.Context, audio <-chan []byte) (string, error) {
	n := 0
	for chunk := range audio {
		n += len(chunk)
	}
	if f.err != nil {
		return "", f.err
	}
	if n == 0 {
		return "", nil
	}
	return "streamed", nil
}

func testPolicy() *FallbackPolicy {
	return NewFallbackPolicy(map[domain.Capability]ModelDefaults{
		domain.CapabilityText:          {Default: "m1", Fallbacks: []string{"m2"}},
		domain.CapabilityVision:        {Default: "v1", Fallbacks: []string{"v2", "v3"}},
		domain.CapabilityImage:         {Default: "i1", Fallbacks: []string{"i2"}},
		domain.CapabilitySpeech:        {Default: "en-US-Neural2"},
		domain.CapabilityTranscription: {Default: "latest_long"},
	})
}
