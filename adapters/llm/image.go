package llm

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/genai"

	"github.com/satriahrh/cocoa-fruit/gateway/adapters/hasher"
	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

// GenerateImage renders prompt with model. Imagen models use the image
// endpoint; any other model is asked for an IMAGE response modality.
func (g *GeminiClient) GenerateImage(ctx context.Context, prompt, model string) (domain.ImageResult, error) {
	if strings.HasPrefix(model, "imagen") {
		return g.generateWithImagen(ctx, prompt, model)
	}
	return g.generateWithGemini(ctx, prompt, model)
}

func (g *GeminiClient) generateWithImagen(ctx context.Context, prompt, model string) (domain.ImageResult, error) {
	resp, err := g.client.Models.GenerateImages(ctx, model, prompt, nil)
	if err != nil {
		return domain.ImageResult{}, providerError(model, err)
	}
	for _, img := range resp.GeneratedImages {
		if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
			continue
		}
		revised := img.EnhancedPrompt
		if revised == "" {
			revised = prompt
		}
		return g.imageResult(img.Image.ImageBytes, img.Image.MIMEType, revised, model), nil
	}
	return domain.ImageResult{}, noImage(model)
}

func (g *GeminiClient) generateWithGemini(ctx context.Context, prompt, model string) (domain.ImageResult, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return domain.ImageResult{}, providerError(model, err)
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				revised := strings.TrimSpace(text.String())
				if revised == "" {
					revised = prompt
				}
				return g.imageResult(part.InlineData.Data, part.InlineData.MIMEType, revised, model), nil
			}
		}
	}
	return domain.ImageResult{}, noImage(model)
}

func (g *GeminiClient) imageResult(data []byte, mimeType, revised, model string) domain.ImageResult {
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	return domain.ImageResult{
		ImageURL:      "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		RevisedPrompt: revised,
		ID:            hasher.ShortID(g.hasher, "img_", data, 16),
		Model:         model,
	}
}

func noImage(model string) error {
	return &domain.ProviderError{
		Provider:   providerName,
		Model:      model,
		HTTPStatus: http.StatusBadRequest,
		Code:       "NO_IMAGE",
		Message:    "No image was generated for this prompt",
	}
}
