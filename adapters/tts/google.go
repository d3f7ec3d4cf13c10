package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/gcperr"
	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

const providerName = "google-tts"

// voiceLetters maps the portable voice names clients send onto the variant
// letter of a Cloud TTS voice family.
var voiceLetters = map[string]string{
	"alloy":   "A",
	"echo":    "B",
	"fable":   "C",
	"onyx":    "D",
	"nova":    "E",
	"shimmer": "F",
}

type Config struct {
	CredentialsFile string
	APIKey          string
}

type synthesizer interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type GoogleTTS struct {
	client synthesizer
}

func NewGoogleTTS(ctx context.Context, cfg Config) (*GoogleTTS, error) {
	client, err := texttospeech.NewClient(ctx, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating Google tts client: %w", err)
	}
	return &GoogleTTS{client: client}, nil
}

func clientOptions(cfg Config) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return opts
}

// SynthesizeSpeech renders req.Text as MP3. req.Model names the voice family
// (e.g. en-US-Neural2); req.Voice is either a portable name or a full voice name.
func (g *GoogleTTS) SynthesizeSpeech(ctx context.Context, req domain.SpeechRequest) ([]byte, error) {
	voice := voiceParams(req.Model, req.Voice)
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{
				Text: req.Text,
			},
		},
		Voice: voice,
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, gcperr.FromGRPC(providerName, voice.GetName(), err)
	}
	return resp.GetAudioContent(), nil
}

func (g *GoogleTTS) Close() error {
	return g.client.Close()
}

func voiceParams(family, voice string) *texttospeechpb.VoiceSelectionParams {
	voice = strings.TrimSpace(voice)
	name := voice
	if !strings.Contains(voice, "-") {
		letter, ok := voiceLetters[strings.ToLower(voice)]
		if !ok {
			letter = "A"
		}
		name = family + "-" + letter
	}
	return &texttospeechpb.VoiceSelectionParams{
		LanguageCode: languageCode(name),
		Name:         name,
	}
}

// languageCode takes the locale prefix of a voice name: en-US-Neural2-A -> en-US.
func languageCode(name string) string {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) < 2 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}
