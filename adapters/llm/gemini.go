package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/gcperr"
	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

const providerName = "gemini"

type GeminiConfig struct {
	APIKey     string
	APIVersion string
	// BaseURL overrides the API endpoint; empty uses Google's.
	BaseURL string
	// FetchTimeout bounds downloads of remote images for vision calls.
	FetchTimeout time.Duration
}

// GeminiClient implements the chat, streaming, vision and image generation
// ports on the Gemini API. Every method issues exactly one provider call.
type GeminiClient struct {
	client *genai.Client
	hasher domain.Hasher
	fetch  *http.Client
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig, hasher domain.Hasher) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v1beta"
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			APIVersion: cfg.APIVersion,
			BaseURL:    cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiClient{
		client: client,
		hasher: hasher,
		fetch:  &http.Client{Timeout: cfg.FetchTimeout},
	}, nil
}

func (g *GeminiClient) ChatOnce(ctx context.Context, payload domain.Payload, model string) (domain.ChatResult, error) {
	contents, config := toContents(payload)
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return domain.ChatResult{}, providerError(model, err)
	}
	return chatResult(resp, model), nil
}

func chatResult(resp *genai.GenerateContentResponse, model string) domain.ChatResult {
	return domain.ChatResult{
		Text:       resp.Text(),
		RawOutput:  resp,
		ResponseID: "resp_" + uuid.NewString(),
		Model:      model,
	}
}

// toContents maps a normalized payload onto Gemini contents. System turns
// become the system instruction since Gemini has no system role in contents.
func toContents(payload domain.Payload) ([]*genai.Content, *genai.GenerateContentConfig) {
	var system []*genai.Part
	contents := make([]*genai.Content, 0, len(payload.Messages))
	for _, msg := range payload.Messages {
		switch msg.Role {
		case domain.SystemRole, domain.DeveloperRole:
			system = append(system, &genai.Part{Text: msg.Content})
			continue
		}
		role := genai.RoleUser
		if msg.Role == domain.AssistantRole {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.GenerateContentConfig{SystemInstruction: &genai.Content{Parts: system}}
}

// providerError converts a genai failure into a domain.ProviderError.
func providerError(model string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return gcperr.Transport(providerName, model, err)
	}
	if apiErr, ok := asAPIError(err); ok {
		return gcperr.FromREST(providerName, model, apiErr.Code, apiErr.Status, apiErr.Message, apiErr.Details, err)
	}
	return gcperr.Transport(providerName, model, err)
}

func asAPIError(err error) (genai.APIError, bool) {
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	// APIError is returned by value; only ask errors.As for the value form when
	// the value type itself satisfies error.
	if _, ok := any(genai.APIError{}).(error); ok {
		var val genai.APIError
		if errors.As(err, &val) {
			return val, true
		}
	}
	return genai.APIError{}, false
}
