package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/usecase"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

const (
	MaxAudioUpload   = 10 << 20
	MaxAudioDuration = 60 * time.Second
	audioChunkSize   = 4096
	defaultVoice     = "alloy"
	realtimePath     = "/ws/realtime"
)

type AIHandler struct {
	generation *usecase.GenerationService
	auth       *usecase.AuthService
}

func NewAIHandler(generation *usecase.GenerationService, auth *usecase.AuthService) *AIHandler {
	return &AIHandler{generation: generation, auth: auth}
}

// Register mounts the request/response endpoints. The streamed transcription
// endpoint is mounted by the router behind a concurrency limit.
func (h *AIHandler) Register(g *echo.Group) {
	g.POST("/text", h.Text)
	g.POST("/text/stream", h.TextStream)
	g.POST("/image/analyze", h.AnalyzeImage)
	g.POST("/image/generate", h.GenerateImage)
	g.POST("/audio/text-to-speech", h.TextToSpeech)
	g.POST("/audio/speech-to-text", h.SpeechToText)
	g.POST("/realtime/client-secret", h.RealtimeClientSecret)
}

type TextRequest struct {
	Input          domain.Input `json:"input"`
	Instructions   string       `json:"instructions"`
	Model          string       `json:"model"`
	ConversationID string       `json:"conversationId"`
}

func (r TextRequest) generation(userID string) usecase.GenerationRequest {
	return usecase.GenerationRequest{
		Input:          r.Input,
		Instructions:   r.Instructions,
		Model:          r.Model,
		ConversationID: r.ConversationID,
		UserID:         userID,
	}
}

func (h *AIHandler) Text(c echo.Context) error {
	var req TextRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	result, err := h.generation.Generate(c.Request().Context(), req.generation(currentUser(c)))
	if err != nil {
		return err
	}
	return ok(c, result)
}

// TextStream relays the generation as server-sent events. Until the first
// byte is written a failure is answered as a normal JSON error.
func (h *AIHandler) TextStream(c echo.Context) error {
	var req TextRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sink := newSSESink(c)
	if err := h.generation.Stream(c.Request().Context(), req.generation(currentUser(c)), sink); err != nil {
		sink.reset()
		return err
	}
	return nil
}

type AnalyzeImageRequest struct {
	ImageURL       string `json:"imageUrl"`
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	ConversationID string `json:"conversationId"`
}

func (h *AIHandler) AnalyzeImage(c echo.Context) error {
	var req AnalyzeImageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	result, err := h.generation.AnalyzeImage(c.Request().Context(), usecase.VisionRequest{
		ImageRef:       req.ImageURL,
		Prompt:         req.Prompt,
		Model:          req.Model,
		ConversationID: req.ConversationID,
		UserID:         currentUser(c),
	})
	if err != nil {
		return err
	}
	return ok(c, result)
}

type GenerateImageRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	ConversationID string `json:"conversationId"`
}

func (h *AIHandler) GenerateImage(c echo.Context) error {
	var req GenerateImageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	result, err := h.generation.GenerateImage(c.Request().Context(), usecase.ImageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		ConversationID: req.ConversationID,
		UserID:         currentUser(c),
	})
	if err != nil {
		return err
	}
	return ok(c, result)
}

type TextToSpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
	Model string `json:"model"`
}

func (h *AIHandler) TextToSpeech(c echo.Context) error {
	var req TextToSpeechRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Voice == "" {
		req.Voice = defaultVoice
	}
	audio, err := h.generation.SynthesizeSpeech(c.Request().Context(), domain.SpeechRequest{
		Text:  req.Text,
		Voice: req.Voice,
		Model: req.Model,
	})
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="speech.mp3"`)
	return c.Blob(http.StatusOK, "audio/mpeg", audio)
}

type TranscriptionResponse struct {
	Text string `json:"text"`
}

// SpeechToText transcribes a recording uploaded as the multipart field "audio".
func (h *AIHandler) SpeechToText(c echo.Context) error {
	fh, err := c.FormFile("audio")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Audio file is required")
	}
	if fh.Size > MaxAudioUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Audio file exceeds 10MB")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("opening uploaded audio: %w", err)
	}
	defer f.Close()
	audio, err := io.ReadAll(io.LimitReader(f, MaxAudioUpload+1))
	if err != nil {
		return fmt.Errorf("reading uploaded audio: %w", err)
	}
	if len(audio) > MaxAudioUpload {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Audio file exceeds 10MB")
	}

	text, err := h.generation.Transcribe(c.Request().Context(), domain.TranscriptionRequest{
		Audio:    audio,
		MimeType: fh.Header.Get(echo.HeaderContentType),
		Model:    c.FormValue("model"),
	})
	if err != nil {
		return err
	}
	return ok(c, TranscriptionResponse{Text: text})
}

// SpeechToTextStream pipes a chunked raw PCM body into streaming recognition
// while it is still being uploaded.
func (h *AIHandler) SpeechToTextStream(c echo.Context) error {
	contentType := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, "audio/") && !strings.HasPrefix(contentType, echo.MIMEOctetStream) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid content type. Expected audio/* or application/octet-stream")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), MaxAudioDuration+10*time.Second)
	defer cancel()
	logger := log.WithCtx(ctx)

	chunks := make(chan []byte, 100)
	go func() {
		defer close(chunks)
		startedAt := time.Now()
		body := c.Request().Body
		total := 0
		for {
			buf := make([]byte, audioChunkSize)
			n, err := body.Read(buf)
			if n > 0 {
				total += n
				select {
				case chunks <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if errors.Is(err, io.EOF) {
				logger.Debug("end of audio stream", zap.Int("bytes", total))
				return
			}
			if err != nil {
				logger.Info("audio stream read failed", zap.Int("bytes", total), zap.Error(err))
				return
			}
			if time.Since(startedAt) > MaxAudioDuration {
				logger.Info("audio stream exceeded max duration", zap.Int("bytes", total))
				return
			}
		}
	}()

	text, err := h.generation.TranscribeStream(ctx, chunks)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusRequestTimeout, "Transcription timeout")
		}
		return err
	}
	return ok(c, TranscriptionResponse{Text: text})
}

type RealtimeSecretRequest struct {
	Voice        string `json:"voice"`
	Instructions string `json:"instructions"`
}

type RealtimeSecretResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
	URL       string    `json:"url"`
}

// RealtimeClientSecret issues the short-lived ticket a browser presents when
// opening the realtime voice socket.
func (h *AIHandler) RealtimeClientSecret(c echo.Context) error {
	var req RealtimeSecretRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	ticket, expiresAt, err := h.auth.IssueRealtimeTicket(c.Request().Context(), currentUser(c), req.Voice, req.Instructions)
	if err != nil {
		return err
	}
	return ok(c, RealtimeSecretResponse{Ticket: ticket, ExpiresAt: expiresAt, URL: realtimePath + "?ticket=" + ticket})
}
