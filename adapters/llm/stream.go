package llm

import (
	"context"
	"iter"
	"sync"

	"google.golang.org/genai"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

// ChatStream opens a streamed call. The first chunk is pulled before returning
// so that failures to establish the stream surface here, where the caller may
// still fall back to another model.
func (g *GeminiClient) ChatStream(ctx context.Context, payload domain.Payload, model string) (domain.ChatStream, error) {
	contents, config := toContents(payload)
	return openStream(model, g.client.Models.GenerateContentStream(ctx, model, contents, config))
}

type geminiStream struct {
	model   string
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	once    sync.Once
	pending *genai.GenerateContentResponse
	final   *domain.ProviderStreamEvent
}

func openStream(model string, seq iter.Seq2[*genai.GenerateContentResponse, error]) (*geminiStream, error) {
	next, stop := iter.Pull2(seq)
	s := &geminiStream{model: model, next: next, stop: stop}

	first, err, ok := next()
	switch {
	case !ok:
		s.finish(domain.ProviderStreamEvent{Type: domain.StreamCompleted})
	case err != nil:
		stop()
		return nil, providerError(model, err)
	default:
		s.pending = first
	}
	return s, nil
}

func (s *geminiStream) Recv() domain.ProviderStreamEvent {
	if s.final != nil {
		return *s.final
	}
	resp := s.pending
	s.pending = nil
	if resp == nil {
		r, err, ok := s.next()
		if !ok {
			return s.finish(domain.ProviderStreamEvent{Type: domain.StreamCompleted})
		}
		if err != nil {
			return s.finish(domain.ProviderStreamEvent{Type: domain.StreamFailed, Err: providerError(s.model, err)})
		}
		resp = r
	}
	if resp == nil {
		return domain.ProviderStreamEvent{Type: domain.StreamDelta}
	}
	return domain.ProviderStreamEvent{Type: domain.StreamDelta, Delta: resp.Text()}
}

func (s *geminiStream) finish(ev domain.ProviderStreamEvent) domain.ProviderStreamEvent {
	s.final = &ev
	s.once.Do(s.stop)
	return ev
}

func (s *geminiStream) Close() error {
	if s.final == nil {
		s.final = &domain.ProviderStreamEvent{Type: domain.StreamCompleted}
	}
	s.once.Do(s.stop)
	return nil
}
