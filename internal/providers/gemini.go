package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const GeminiName = "gemini"

// GeminiConfig holds configuration for the Gemini vision backend.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string // Optional API endpoint override
	HTTPClient *http.Client
}

// GeminiVision implements VisionModel with the Gemini API.
type GeminiVision struct {
	client *genai.Client
}

// NewGeminiVision creates a Gemini-backed vision model.
func NewGeminiVision(ctx context.Context, cfg GeminiConfig) (*GeminiVision, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiVision{client: client}, nil
}

// Name returns the backend identifier.
func (g *GeminiVision) Name() string {
	return GeminiName
}

// Generate sends the prompt and images as one user turn.
func (g *GeminiVision) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.mimeType()))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, gc)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &APIError{Provider: GeminiName, StatusCode: http.StatusOK, Message: "empty response"}
	}
	return text, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			Provider:   GeminiName,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
		}
	}
	return fmt.Errorf("%s: %w", GeminiName, err)
}

var _ VisionModel = (*GeminiVision)(nil)
