package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/gabriel-vasile/mimetype"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/gcperr"
	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

const providerName = "google-speech"

// Raw PCM pushed over the streaming endpoint.
const streamSampleRate = 16000

type Config struct {
	CredentialsFile string
	APIKey          string
	LanguageCode    string
	// StreamModel is the recognizer used for streaming transcription.
	StreamModel string
}

type recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
	StreamingRecognize(ctx context.Context, opts ...gax.CallOption) (speechpb.Speech_StreamingRecognizeClient, error)
	Close() error
}

type GoogleSpeech struct {
	client   recognizer
	language string
	model    string
}

func NewGoogleSpeech(ctx context.Context, cfg Config) (*GoogleSpeech, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating Google speech client: %w", err)
	}
	return newGoogleSpeech(client, cfg), nil
}

func newGoogleSpeech(client recognizer, cfg Config) *GoogleSpeech {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.StreamModel == "" {
		cfg.StreamModel = "latest_long"
	}
	return &GoogleSpeech{client: client, language: cfg.LanguageCode, model: cfg.StreamModel}
}

// Transcribe recognizes a complete recording. The encoding is sniffed from the
// audio itself; the declared mime type is only a fallback.
func (g *GoogleSpeech) Transcribe(ctx context.Context, req domain.TranscriptionRequest) (string, error) {
	config, err := recognitionConfig(req.Audio, req.MimeType)
	if err != nil {
		return "", err
	}
	config.LanguageCode = g.language
	config.Model = req.Model
	config.EnableAutomaticPunctuation = true

	resp, err := g.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: config,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio}},
	})
	if err != nil {
		return "", gcperr.FromGRPC(providerName, req.Model, err)
	}
	return joinResults(resp.GetResults()), nil
}

// TranscribeStreaming pushes 16kHz LINEAR16 chunks from audio until the channel
// closes, then returns the final transcript.
func (g *GoogleSpeech) TranscribeStreaming(ctx context.Context, audio <-chan []byte) (string, error) {
	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return "", gcperr.FromGRPC(providerName, g.model, err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            streamSampleRate,
					LanguageCode:               g.language,
					Model:                      g.model,
					EnableAutomaticPunctuation: true,
				},
			},
		},
	})
	if err != nil {
		return "", gcperr.FromGRPC(providerName, g.model, fmt.Errorf("sending streaming config: %w", err))
	}

	var transcript []string
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer stream.CloseSend()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case chunk, ok := <-audio:
				if !ok {
					return nil
				}
				if len(chunk) == 0 {
					continue
				}
				err := stream.Send(&speechpb.StreamingRecognizeRequest{
					StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
				})
				if err != nil {
					return fmt.Errorf("sending audio: %w", err)
				}
			}
		}
	})
	group.Go(func() error {
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			for _, result := range resp.GetResults() {
				if !result.GetIsFinal() || len(result.GetAlternatives()) == 0 {
					continue
				}
				transcript = append(transcript, strings.TrimSpace(result.GetAlternatives()[0].GetTranscript()))
			}
		}
	})
	if err := group.Wait(); err != nil {
		return "", gcperr.FromGRPC(providerName, g.model, err)
	}
	return strings.Join(transcript, " "), nil
}

func (g *GoogleSpeech) Close() error {
	return g.client.Close()
}

func joinResults(results []*speechpb.SpeechRecognitionResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		if t := strings.TrimSpace(r.GetAlternatives()[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func recognitionConfig(audio []byte, declared string) (*speechpb.RecognitionConfig, error) {
	detected := mimetype.Detect(audio)
	switch {
	case detected.Is("audio/webm"), detected.Is("video/webm"):
		return &speechpb.RecognitionConfig{Encoding: speechpb.RecognitionConfig_WEBM_OPUS, SampleRateHertz: 48000}, nil
	case detected.Is("audio/ogg"), detected.Is("application/ogg"):
		return &speechpb.RecognitionConfig{Encoding: speechpb.RecognitionConfig_OGG_OPUS, SampleRateHertz: 48000}, nil
	case detected.Is("audio/flac"):
		return &speechpb.RecognitionConfig{Encoding: speechpb.RecognitionConfig_FLAC}, nil
	case detected.Is("audio/wav"):
		return &speechpb.RecognitionConfig{Encoding: speechpb.RecognitionConfig_LINEAR16}, nil
	}
	switch {
	case strings.HasPrefix(declared, "audio/webm"):
		return &speechpb.RecognitionConfig{Encoding: speechpb.RecognitionConfig_WEBM_OPUS, SampleRateHertz: 48000}, nil
	case strings.HasPrefix(declared, "audio/l16"), strings.HasPrefix(declared, "audio/pcm"):
		return &speechpb.RecognitionConfig{Encoding: speechpb.RecognitionConfig_LINEAR16, SampleRateHertz: streamSampleRate}, nil
	}
	return nil, fmt.Errorf("unsupported audio format %s: %w", detected.String(), domain.ErrInvalidInput)
}
