package usecase

import (
	"encoding/json"
	"errors"
	"strings"
)

type StreamEventKind string

const (
	EventDelta StreamEventKind = "text"
	EventDone  StreamEventKind = "done"
	EventError StreamEventKind = "error"
)

// StreamEvent is one client-facing event. Done and Error are terminal.
type StreamEvent struct {
	Kind     StreamEventKind
	Delta    string
	Response string
	Error    string
}

func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EventDelta:
		return json.Marshal(struct {
			Delta string `json:"delta"`
			Type  string `json:"type"`
		}{e.Delta, string(EventDelta)})
	case EventDone:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Response string `json:"response"`
		}{string(EventDone), e.Response})
	case EventError:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}{string(EventError), e.Error})
	default:
		return nil, errors.New("unknown stream event kind")
	}
}

// EventSink is the client-facing side of one long-lived stream.
type EventSink interface {
	// Open stages the event-stream transport headers without writing bytes.
	Open()
	// Committed reports whether any bytes have reached the wire.
	Committed() bool
	// Send writes and flushes one event.
	Send(ev StreamEvent) error
}

type relayState int

const (
	relayIdle relayState = iota
	relayAttempting
	relayStreaming
	relayTerminated
)

func (s relayState) String() string {
	switch s {
	case relayIdle:
		return "idle"
	case relayAttempting:
		return "attempting"
	case relayStreaming:
		return "streaming"
	default:
		return "terminated"
	}
}

var errRelayTerminated = errors.New("relay already terminated")

// relay owns one client stream: it forwards deltas 1:1 in provider order,
// accumulates the full text, and emits exactly one terminal event.
type relay struct {
	sink    EventSink
	state   relayState
	attempt int
	model   string
	text    strings.Builder
	// abandoned is set when the client went away; no further writes happen.
	abandoned bool
}

func newRelay(sink EventSink) *relay {
	return &relay{sink: sink, state: relayIdle}
}

// begin moves Idle → Attempting(1) and stages the transport headers.
func (r *relay) begin() {
	if r.state != relayIdle {
		return
	}
	r.sink.Open()
	r.state = relayAttempting
}

// attempting records Attempting(i) → Attempting(i+1).
func (r *relay) attempting(i int, model string) {
	if r.state == relayAttempting {
		r.attempt = i
		r.model = model
	}
}

// streaming moves Attempting → Streaming once a handle is usable.
func (r *relay) streaming(model string) {
	if r.state == relayAttempting {
		r.model = model
		r.state = relayStreaming
	}
}

func (r *relay) forward(delta string) error {
	if r.state != relayStreaming {
		return errRelayTerminated
	}
	r.text.WriteString(delta)
	if delta == "" {
		return nil
	}
	if err := r.sink.Send(StreamEvent{Kind: EventDelta, Delta: delta}); err != nil {
		r.abandon()
		return err
	}
	return nil
}

// done emits the Done event and returns the accumulated text. The text is
// only valid when err is nil.
func (r *relay) done() (string, error) {
	if r.state != relayStreaming {
		return "", errRelayTerminated
	}
	r.state = relayTerminated
	full := r.text.String()
	if err := r.sink.Send(StreamEvent{Kind: EventDone, Response: full}); err != nil {
		r.abandoned = true
		return "", err
	}
	return full, nil
}

// fail terminates with cerr. A failure while still attempting, with nothing on
// the wire yet, is returned so the caller can answer with a structured failure
// instead of an event. Once streaming, errors are always in-band.
func (r *relay) fail(cerr *ClassifiedError) error {
	prev := r.state
	if prev == relayTerminated {
		return nil
	}
	r.state = relayTerminated
	r.text.Reset()
	if prev != relayStreaming && !r.sink.Committed() {
		return cerr
	}
	if err := r.sink.Send(StreamEvent{Kind: EventError, Error: cerr.Message}); err != nil {
		r.abandoned = true
	}
	return nil
}

// abandon terminates without a terminal event because the client is gone.
// Partial text is discarded.
func (r *relay) abandon() {
	r.state = relayTerminated
	r.abandoned = true
	r.text.Reset()
}
