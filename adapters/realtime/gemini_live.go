// Package realtime bridges voice sessions to the Gemini Live API over its
// bidirectional websocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

const (
	providerName = "gemini-live"
	liveEndpoint = "wss://generativelanguage.googleapis.com"
	livePath     = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultAudioMime = "audio/pcm;rate=16000"
	writeWait        = 10 * time.Second
)

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the websocket origin, e.g. ws://127.0.0.1:8080.
	BaseURL          string
	HandshakeTimeout time.Duration
}

type GeminiLive struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewGeminiLive(cfg Config) (*GeminiLive, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash-live-001"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = liveEndpoint
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}
	return &GeminiLive{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}, nil
}

// Wire messages. Only the fields the bridge uses are modelled.
type (
	part struct {
		Text       string `json:"text,omitempty"`
		InlineData *blob  `json:"inlineData,omitempty"`
	}
	blob struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	}
	content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	setupMessage struct {
		Setup struct {
			Model             string           `json:"model"`
			GenerationConfig  generationConfig `json:"generationConfig"`
			SystemInstruction *content         `json:"systemInstruction,omitempty"`
		} `json:"setup"`
	}
	generationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
		SpeechConfig       struct {
			VoiceConfig struct {
				PrebuiltVoiceConfig struct {
					VoiceName string `json:"voiceName"`
				} `json:"prebuiltVoiceConfig"`
			} `json:"voiceConfig"`
		} `json:"speechConfig"`
	}
	clientMessage struct {
		ClientContent *clientContent `json:"clientContent,omitempty"`
		RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
	}
	clientContent struct {
		Turns        []content `json:"turns"`
		TurnComplete bool      `json:"turnComplete"`
	}
	realtimeInput struct {
		MediaChunks []blob `json:"mediaChunks"`
	}
	serverMessage struct {
		SetupComplete *struct{} `json:"setupComplete,omitempty"`
		ServerContent *struct {
			ModelTurn    *content `json:"modelTurn,omitempty"`
			TurnComplete bool     `json:"turnComplete,omitempty"`
			Interrupted  bool     `json:"interrupted,omitempty"`
		} `json:"serverContent,omitempty"`
		GoAway *struct {
			TimeLeft string `json:"timeLeft"`
		} `json:"goAway,omitempty"`
	}
)

// Connect dials the Live API and completes the setup handshake before
// returning, so a rejected key or model fails here.
func (g *GeminiLive) Connect(ctx context.Context, opts domain.RealtimeOptions) (domain.RealtimeSession, error) {
	endpoint := g.cfg.BaseURL + livePath + "?key=" + url.QueryEscape(g.cfg.APIKey)
	conn, resp, err := g.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, dialError(g.cfg.Model, resp, err)
	}

	var setup setupMessage
	setup.Setup.Model = "models/" + g.cfg.Model
	setup.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = opts.Voice
	if opts.Instructions != "" {
		setup.Setup.SystemInstruction = &content{Parts: []part{{Text: opts.Instructions}}}
	}

	s := &liveSession{conn: conn, model: g.cfg.Model}
	if err := s.write(setup); err != nil {
		conn.Close()
		return nil, transportError(g.cfg.Model, fmt.Errorf("sending setup: %w", err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.HandshakeTimeout))
	}
	msg, err := s.read()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if msg.SetupComplete == nil {
		conn.Close()
		return nil, transportError(g.cfg.Model, errors.New("unexpected message before setupComplete"))
	}
	_ = conn.SetReadDeadline(time.Time{})

	log.WithCtx(ctx).Debug("gemini live session ready", zap.String("model", g.cfg.Model))
	return s, nil
}

type liveSession struct {
	conn    *websocket.Conn
	model   string
	writeMu sync.Mutex
	pending []domain.RealtimeFrame
	once    sync.Once
}

func (s *liveSession) Send(frame domain.RealtimeFrame) error {
	var msg clientMessage
	switch frame.Type {
	case domain.RealtimeText:
		msg.ClientContent = &clientContent{
			Turns:        []content{{Role: "user", Parts: []part{{Text: frame.Text}}}},
			TurnComplete: true,
		}
	case domain.RealtimeAudio:
		mimeType := frame.MimeType
		if mimeType == "" {
			mimeType = defaultAudioMime
		}
		msg.RealtimeInput = &realtimeInput{MediaChunks: []blob{{MimeType: mimeType, Data: frame.Data}}}
	default:
		return fmt.Errorf("unsupported frame type %q: %w", frame.Type, domain.ErrInvalidInput)
	}
	return s.write(msg)
}

// Receive returns the next frame for the client. One server message may carry
// several parts; they are queued and returned in order.
func (s *liveSession) Receive() (domain.RealtimeFrame, error) {
	for len(s.pending) == 0 {
		msg, err := s.read()
		if err != nil {
			return domain.RealtimeFrame{}, err
		}
		s.pending = framesOf(msg)
	}
	frame := s.pending[0]
	s.pending = s.pending[1:]
	return frame, nil
}

func (s *liveSession) Close() error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *liveSession) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// read decodes one server message. The Live API sends JSON in both text and
// binary frames.
func (s *liveSession) read() (serverMessage, error) {
	var msg serverMessage
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return msg, readError(s.model, err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, transportError(s.model, fmt.Errorf("decoding server message: %w", err))
	}
	return msg, nil
}

func framesOf(msg serverMessage) []domain.RealtimeFrame {
	var frames []domain.RealtimeFrame
	sc := msg.ServerContent
	if sc == nil {
		return nil
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			switch {
			case p.InlineData != nil && p.InlineData.Data != "":
				frames = append(frames, domain.RealtimeFrame{Type: domain.RealtimeAudio, Data: p.InlineData.Data, MimeType: p.InlineData.MimeType})
			case p.Text != "":
				frames = append(frames, domain.RealtimeFrame{Type: domain.RealtimeText, Text: p.Text})
			}
		}
	}
	if sc.Interrupted {
		frames = append(frames, domain.RealtimeFrame{Type: domain.RealtimeInterrupted})
	}
	if sc.TurnComplete {
		frames = append(frames, domain.RealtimeFrame{Type: domain.RealtimeTurnComplete})
	}
	return frames
}

func dialError(model string, resp *http.Response, err error) error {
	if resp == nil {
		return transportError(model, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return &domain.ProviderError{
		Provider:   providerName,
		Model:      model,
		HTTPStatus: resp.StatusCode,
		Code:       http.StatusText(resp.StatusCode),
		Message:    strings.TrimSpace(string(body)),
		Err:        err,
	}
}

// readError maps a websocket close into a provider error. The Live API reports
// failures as close frames whose reason carries the provider message.
func readError(model string, err error) error {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return transportError(model, err)
	}
	if ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway {
		return io.EOF
	}
	pe := &domain.ProviderError{
		Provider:   providerName,
		Model:      model,
		HTTPStatus: http.StatusInternalServerError,
		Code:       fmt.Sprintf("WS_%d", ce.Code),
		Message:    ce.Text,
		Err:        err,
	}
	reason := strings.ToLower(ce.Text)
	switch {
	case strings.Contains(reason, "quota"):
		pe.HTTPStatus, pe.Code = http.StatusTooManyRequests, "RESOURCE_EXHAUSTED"
	case strings.Contains(reason, "api key"):
		pe.HTTPStatus, pe.Code, pe.Reason = http.StatusUnauthorized, "UNAUTHENTICATED", "API_KEY_INVALID"
	case strings.Contains(reason, "not found"), strings.Contains(reason, "not supported"):
		pe.HTTPStatus, pe.Code = http.StatusNotFound, "NOT_FOUND"
	}
	return pe
}

func transportError(model string, err error) error {
	return &domain.ProviderError{Provider: providerName, Model: model, Err: fmt.Errorf("transport: %w", err)}
}
