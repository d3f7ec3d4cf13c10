package tts

import (
	"context"
	"net/http"
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

type fakeSynthesizer struct {
	got *texttospeechpb.SynthesizeSpeechRequest
	err error
}

func (f *fakeSynthesizer) SynthesizeSpeech(_ context.Context, req *texttospeechpb.SynthesizeSpeechRequest, _ ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: []byte("ID3audio")}, nil
}

func (f *fakeSynthesizer) Close() error { return nil }

func TestVoiceParams(t *testing.T) {
	tests := []struct {
		name     string
		family   string
		voice    string
		wantName string
		wantLang string
	}{
		{"portable name", "en-US-Neural2", "nova", "en-US-Neural2-E", "en-US"},
		{"case insensitive", "en-US-Neural2", "Onyx", "en-US-Neural2-D", "en-US"},
		{"empty voice", "en-GB-Wavenet", "", "en-GB-Wavenet-A", "en-GB"},
		{"unknown voice", "en-US-Neural2", "robot", "en-US-Neural2-A", "en-US"},
		{"full voice name", "en-US-Neural2", "id-ID-Standard-B", "id-ID-Standard-B", "id-ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := voiceParams(tt.family, tt.voice)
			assert.Equal(t, tt.wantName, got.GetName())
			assert.Equal(t, tt.wantLang, got.GetLanguageCode())
		})
	}
}

func TestSynthesizeSpeech(t *testing.T) {
	fake := &fakeSynthesizer{}
	g := &GoogleTTS{client: fake}

	audio, err := g.SynthesizeSpeech(context.Background(), domain.SpeechRequest{Text: "hello", Voice: "alloy", Model: "en-US-Neural2"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3audio"), audio)
	assert.Equal(t, "hello", fake.got.GetInput().GetText())
	assert.Equal(t, texttospeechpb.AudioEncoding_MP3, fake.got.GetAudioConfig().GetAudioEncoding())
	assert.Equal(t, "en-US-Neural2-A", fake.got.GetVoice().GetName())
}

func TestSynthesizeSpeech_Error(t *testing.T) {
	g := &GoogleTTS{client: &fakeSynthesizer{err: status.Error(codes.PermissionDenied, "API key not valid")}}

	_, err := g.SynthesizeSpeech(context.Background(), domain.SpeechRequest{Text: "hello", Model: "en-US-Neural2"})
	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusForbidden, pe.HTTPStatus)
	assert.Equal(t, "PERMISSION_DENIED", pe.Code)
	assert.Equal(t, providerName, pe.Provider)
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, clientOptions(Config{}))
	assert.Len(t, clientOptions(Config{CredentialsFile: "/tmp/sa.json", APIKey: "k"}), 2)
}
