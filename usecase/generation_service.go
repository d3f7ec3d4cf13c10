package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

// Providers groups the capability-scoped provider clients.
type Providers struct {
	Chat        domain.ChatCompleter
	Streamer    domain.ChatStreamer
	Vision      domain.VisionAnalyzer
	Images      domain.ImageGenerator
	Speech      domain.SpeechSynthesizer
	Transcriber domain.Transcriber
}

type GenerationRequest struct {
	Input          domain.Input
	Instructions   string
	Model          string
	ConversationID string
	UserID         string
}

type VisionRequest struct {
	ImageRef       string
	Prompt         string
	Model          string
	ConversationID string
	UserID         string
}

type ImageRequest struct {
	Prompt         string
	Model          string
	ConversationID string
	UserID         string
}

type GenerationService struct {
	providers          Providers
	policy             *FallbackPolicy
	recorder           domain.TurnRecorder
	speechModel        string
	transcriptionModel string
	now                func() time.Time
}

func NewGenerationService(providers Providers, policy *FallbackPolicy, recorder domain.TurnRecorder) *GenerationService {
	return &GenerationService{
		providers:          providers,
		policy:             policy,
		recorder:           recorder,
		speechModel:        policy.DefaultModel(domain.CapabilitySpeech),
		transcriptionModel: policy.DefaultModel(domain.CapabilityTranscription),
		now:                time.Now,
	}
}

// Generate runs a non-streamed chat call over the text chain. Every returned
// error is a *ClassifiedError.
func (s *GenerationService) Generate(ctx context.Context, req GenerationRequest) (domain.ChatResult, error) {
	ctx = log.WithConversationID(ctx, req.ConversationID)
	startedAt := s.now()

	payload, err := Normalize(req.Input, req.Instructions)
	if err != nil {
		return domain.ChatResult{}, Classify(err)
	}

	chain := s.policy.BuildChain(req.Model, domain.CapabilityText)
	result, model, cerr := runChain(ctx, chain, func(ctx context.Context, model string) (domain.ChatResult, error) {
		return s.providers.Chat.ChatOnce(ctx, payload, model)
	}, nil)
	if cerr != nil {
		return domain.ChatResult{}, cerr
	}
	result.Model = model

	log.WithCtx(ctx).Info("generation completed", zap.String("model", model))
	s.persist(ctx, req.UserID, req.ConversationID,
		domain.Turn{Role: domain.UserRole, Content: req.Input.Transcript(), Type: domain.TextMessage, Timestamp: startedAt},
		domain.Turn{Role: domain.AssistantRole, Content: result.Text, Type: domain.TextMessage, Timestamp: s.now()},
	)
	return result, nil
}

// Stream relays a streamed chat call to sink. A non-nil error is always a
// *ClassifiedError and means nothing was written, so the caller still owns the
// response. Failures after the stream is committed are delivered in-band and
// return nil, as does a client that went away.
func (s *GenerationService) Stream(ctx context.Context, req GenerationRequest, sink EventSink) error {
	ctx = log.WithConversationID(ctx, req.ConversationID)
	startedAt := s.now()

	payload, err := Normalize(req.Input, req.Instructions)
	if err != nil {
		return Classify(err)
	}

	chain := s.policy.BuildChain(req.Model, domain.CapabilityText)
	r := newRelay(sink)
	r.begin()

	stream, model, cerr := runChain(ctx, chain, func(ctx context.Context, model string) (domain.ChatStream, error) {
		return s.providers.Streamer.ChatStream(ctx, payload, model)
	}, r.attempting)
	if cerr != nil {
		if err := r.fail(cerr); err != nil {
			return err
		}
		return nil
	}
	defer stream.Close()
	r.streaming(model)

	for {
		if ctx.Err() != nil {
			r.abandon()
			log.WithCtx(ctx).Info("client disconnected mid-stream", zap.String("model", model))
			return nil
		}
		ev := stream.Recv()
		switch ev.Type {
		case domain.StreamDelta:
			if err := r.forward(ev.Delta); err != nil {
				log.WithCtx(ctx).Info("stream write failed, abandoning", zap.String("model", model), zap.Error(err))
				return nil
			}
		case domain.StreamCompleted:
			full, err := r.done()
			if err != nil {
				log.WithCtx(ctx).Info("stream done write failed", zap.String("model", model), zap.Error(err))
				return nil
			}
			log.WithCtx(ctx).Info("stream completed", zap.String("model", model))
			s.persist(ctx, req.UserID, req.ConversationID,
				domain.Turn{Role: domain.UserRole, Content: req.Input.Transcript(), Type: domain.TextMessage, Timestamp: startedAt},
				domain.Turn{Role: domain.AssistantRole, Content: full, Type: domain.TextMessage, Timestamp: s.now()},
			)
			return nil
		case domain.StreamFailed:
			if ctx.Err() != nil {
				r.abandon()
				return nil
			}
			classified := Classify(ev.Err)
			log.WithCtx(ctx).Warn("stream failed mid-flight",
				zap.String("model", model),
				zap.String("kind", string(classified.Kind)),
				zap.Error(ev.Err))
			return r.fail(classified)
		}
	}
}

// AnalyzeImage runs a vision chat call over the vision chain.
func (s *GenerationService) AnalyzeImage(ctx context.Context, req VisionRequest) (domain.ChatResult, error) {
	ctx = log.WithConversationID(ctx, req.ConversationID)
	startedAt := s.now()

	if strings.TrimSpace(req.ImageRef) == "" {
		return domain.ChatResult{}, invalidInput("image is required")
	}
	prompt := req.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = "What's in this image?"
	}

	chain := s.policy.BuildChain(req.Model, domain.CapabilityVision)
	result, model, cerr := runChain(ctx, chain, func(ctx context.Context, model string) (domain.ChatResult, error) {
		return s.providers.Vision.VisionChat(ctx, req.ImageRef, prompt, model)
	}, nil)
	if cerr != nil {
		return domain.ChatResult{}, cerr
	}
	result.Model = model

	userTurn := domain.Turn{Role: domain.UserRole, Content: prompt, Type: domain.ImageMessage, Timestamp: startedAt}
	if !strings.HasPrefix(req.ImageRef, "data:") {
		userTurn.Metadata = &domain.MessageMetadata{ImageURL: req.ImageRef}
	}
	s.persist(ctx, req.UserID, req.ConversationID,
		userTurn,
		domain.Turn{Role: domain.AssistantRole, Content: result.Text, Type: domain.TextMessage, Timestamp: s.now()},
	)
	return result, nil
}

// GenerateImage runs image generation over the image chain. The fallback
// candidates are only tried when the allowance of the previous one ran out.
func (s *GenerationService) GenerateImage(ctx context.Context, req ImageRequest) (domain.ImageResult, error) {
	ctx = log.WithConversationID(ctx, req.ConversationID)
	startedAt := s.now()

	if strings.TrimSpace(req.Prompt) == "" {
		return domain.ImageResult{}, invalidInput("prompt is required")
	}

	chain := s.policy.BuildChain(req.Model, domain.CapabilityImage)
	result, model, cerr := runChain(ctx, chain, func(ctx context.Context, model string) (domain.ImageResult, error) {
		return s.providers.Images.GenerateImage(ctx, req.Prompt, model)
	}, nil)
	if cerr != nil {
		return domain.ImageResult{}, cerr
	}
	result.Model = model
	if result.RevisedPrompt == "" {
		result.RevisedPrompt = req.Prompt
	}

	s.persist(ctx, req.UserID, req.ConversationID,
		domain.Turn{Role: domain.UserRole, Content: req.Prompt, Type: domain.TextMessage, Timestamp: startedAt},
		domain.Turn{
			Role:      domain.AssistantRole,
			Content:   result.RevisedPrompt,
			Type:      domain.GeneratedImageMessage,
			Metadata:  &domain.MessageMetadata{FileID: result.ID},
			Timestamp: s.now(),
		},
	)
	return result, nil
}

// SynthesizeSpeech returns encoded audio for text.
func (s *GenerationService) SynthesizeSpeech(ctx context.Context, req domain.SpeechRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, invalidInput("text is required")
	}
	if req.Model == "" {
		req.Model = s.speechModel
	}
	audio, err := s.providers.Speech.SynthesizeSpeech(ctx, req)
	if err != nil {
		classified := Classify(err)
		log.WithCtx(ctx).Warn("speech synthesis failed", zap.String("model", req.Model), zap.String("kind", string(classified.Kind)), zap.Error(err))
		return nil, classified
	}
	return audio, nil
}

// Transcribe returns the transcript of a complete recording.
func (s *GenerationService) Transcribe(ctx context.Context, req domain.TranscriptionRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", invalidInput("audio file is required")
	}
	if req.Model == "" {
		req.Model = s.transcriptionModel
	}
	text, err := s.providers.Transcriber.Transcribe(ctx, req)
	if err != nil {
		classified := Classify(err)
		log.WithCtx(ctx).Warn("transcription failed", zap.String("model", req.Model), zap.String("kind", string(classified.Kind)), zap.Error(err))
		return "", classified
	}
	return text, nil
}

// TranscribeStream transcribes audio chunks as they arrive. The channel must be
// closed by the caller once the recording ends.
func (s *GenerationService) TranscribeStream(ctx context.Context, audio <-chan []byte) (string, error) {
	text, err := s.providers.Transcriber.TranscribeStreaming(ctx, audio)
	if err != nil {
		classified := Classify(err)
		log.WithCtx(ctx).Warn("streaming transcription failed", zap.String("kind", string(classified.Kind)), zap.Error(err))
		return "", classified
	}
	return text, nil
}

// persist hands the turns to the recorder. It runs detached from the request
// so a disconnect right after the terminal event cannot drop the write, and its
// failure never reaches the client.
func (s *GenerationService) persist(ctx context.Context, userID, conversationID string, turns ...domain.Turn) {
	if s.recorder == nil || conversationID == "" {
		return
	}
	record := domain.TurnRecord{UserID: userID, ConversationID: conversationID, Turns: turns}
	if err := s.recorder.RecordTurns(context.WithoutCancel(ctx), record); err != nil {
		log.WithCtx(ctx).Error("failed to record conversation turns", zap.Int("turns", len(turns)), zap.Error(err))
	}
}
