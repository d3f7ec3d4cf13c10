package domain

import (
	"context"
	"encoding/json"
)

// Capability is one category of AI operation.
type Capability string

const (
	CapabilityText          Capability = "text"
	CapabilityVision        Capability = "vision"
	CapabilityImage         Capability = "image"
	CapabilitySpeech        Capability = "speech"
	CapabilityTranscription Capability = "transcription"
)

type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
	DeveloperRole Role = "developer"
)

// ChatMessage is a single text-bearing turn in the shape every chat provider accepts.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Payload is a normalized provider call: an ordered list of turns where system
// turns, if any, come first.
type Payload struct {
	Messages []ChatMessage
}

// ChatResult is a completed, non-streamed generation.
type ChatResult struct {
	Text       string `json:"text"`
	RawOutput  any    `json:"rawOutput"`
	ResponseID string `json:"responseId"`
	Model      string `json:"model"`
}

// ImageResult is a generated image, returned inline as a data URL.
type ImageResult struct {
	ImageURL      string `json:"imageUrl"`
	RevisedPrompt string `json:"revisedPrompt"`
	ID            string `json:"id"`
	Model         string `json:"model"`
}

// SpeechRequest describes a text-to-speech call.
type SpeechRequest struct {
	Text  string
	Voice string
	Model string
}

// TranscriptionRequest describes a speech-to-text call over a complete recording.
type TranscriptionRequest struct {
	Audio    []byte
	MimeType string
	Model    string
}

type StreamEventType int

const (
	StreamDelta StreamEventType = iota
	StreamCompleted
	StreamFailed
)

// ProviderStreamEvent is one provider-native streaming event.
type ProviderStreamEvent struct {
	Type  StreamEventType
	Delta string
	Err   error
}

// ChatStream is a lazy, single-pass, finite sequence of provider events. After a
// StreamCompleted or StreamFailed event, Recv keeps returning that event.
type ChatStream interface {
	Recv() ProviderStreamEvent
	Close() error
}

// ChatCompleter issues one non-streamed chat call.
type ChatCompleter interface {
	ChatOnce(ctx context.Context, payload Payload, model string) (ChatResult, error)
}

// ChatStreamer opens one streamed chat call. An error here means the stream was
// never established.
type ChatStreamer interface {
	ChatStream(ctx context.Context, payload Payload, model string) (ChatStream, error)
}

// VisionAnalyzer runs a chat call augmented with one image.
type VisionAnalyzer interface {
	VisionChat(ctx context.Context, imageRef, prompt, model string) (ChatResult, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, model string) (ImageResult, error)
}

type SpeechSynthesizer interface {
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, req TranscriptionRequest) (string, error)
	TranscribeStreaming(ctx context.Context, audio <-chan []byte) (string, error)
}

// Input is either plain text or an ordered list of role-tagged turns.
type Input struct {
	Text  string
	Turns []InputTurn
	// IsSequence distinguishes an empty sequence from an empty string.
	IsSequence bool
}

// InputTurn keeps content raw so structured content can be forwarded as JSON text.
type InputTurn struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

func TextInput(text string) Input {
	return Input{Text: text}
}

func (in *Input) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*in = Input{Text: text}
		return nil
	}
	var turns []InputTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return ErrInvalidInput
	}
	*in = Input{Turns: turns, IsSequence: true}
	return nil
}

func (in Input) MarshalJSON() ([]byte, error) {
	if in.IsSequence {
		turns := in.Turns
		if turns == nil {
			turns = []InputTurn{}
		}
		return json.Marshal(turns)
	}
	return json.Marshal(in.Text)
}

// Transcript is the text stored as the user turn for this input.
func (in Input) Transcript() string {
	if !in.IsSequence {
		return in.Text
	}
	data, err := in.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}
