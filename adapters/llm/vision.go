package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/genai"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
)

// MaxImageBytes bounds images accepted for vision calls.
const MaxImageBytes = 10 << 20

// VisionChat asks model about one image. imageRef may be a data URL, an
// http(s) URL, or a gs:// URI.
func (g *GeminiClient) VisionChat(ctx context.Context, imageRef, prompt, model string) (domain.ChatResult, error) {
	part, err := g.imagePart(ctx, imageRef)
	if err != nil {
		return domain.ChatResult{}, err
	}
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: prompt}, part},
	}}
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return domain.ChatResult{}, providerError(model, err)
	}
	return chatResult(resp, model), nil
}

func (g *GeminiClient) imagePart(ctx context.Context, ref string) (*genai.Part, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		data, mimeType, err := parseDataURL(ref)
		if err != nil {
			return nil, err
		}
		return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}, nil
	case strings.HasPrefix(ref, "gs://"):
		mimeType := mime.TypeByExtension(path.Ext(ref))
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		return &genai.Part{FileData: &genai.FileData{FileURI: ref, MIMEType: mimeType}}, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		data, mimeType, err := g.download(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &genai.Part{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}}, nil
	default:
		return nil, fmt.Errorf("unsupported image reference: %w", domain.ErrInvalidInput)
	}
}

func parseDataURL(ref string) ([]byte, string, error) {
	header, encoded, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("image data url must be base64: %w", domain.ErrInvalidInput)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decoding image data url: %w", domain.ErrInvalidInput)
	}
	if len(data) > MaxImageBytes {
		return nil, "", fmt.Errorf("image too large: %w", domain.ErrInvalidInput)
	}
	mimeType := strings.TrimSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}
	return data, mimeType, nil
}

func (g *GeminiClient) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("image url: %w", domain.ErrInvalidInput)
	}
	resp, err := g.fetch.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetching image: %w", domain.ErrInvalidInput)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetching image: status %d: %w", resp.StatusCode, domain.ErrInvalidInput)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, "", fmt.Errorf("image too large: %w", domain.ErrInvalidInput)
	}
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return nil, "", fmt.Errorf("url is not an image (%s): %w", detected.String(), domain.ErrInvalidInput)
	}
	return data, detected.String(), nil
}
