package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const (
	MistralOCRName    = "mistral-ocr"
	MistralOCRBaseURL = "https://api.mistral.ai/v1"
	MistralOCRModel   = "mistral-ocr-latest"
)

// MistralOCRConfig holds configuration for the Mistral OCR client.
type MistralOCRConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// MistralOCR implements OCREngine using the Mistral OCR API.
type MistralOCR struct {
	model  string
	client *resty.Client
}

// NewMistralOCR creates a new Mistral OCR client.
func NewMistralOCR(cfg MistralOCRConfig) *MistralOCR {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MistralOCRBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = MistralOCRModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	client := resty.NewWithClient(httpClientOrDefault(cfg.HTTPClient)).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &MistralOCR{model: cfg.Model, client: client}
}

// Name returns the engine identifier.
func (c *MistralOCR) Name() string {
	return MistralOCRName
}

// Recognize sends one PNG page and returns its markdown text.
func (c *MistralOCR) Recognize(ctx context.Context, image []byte, page int) (string, error) {
	body := map[string]any{
		"model": c.model,
		"document": map[string]any{
			"type":      "image_url",
			"image_url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
		},
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/ocr")
	if err != nil {
		return "", fmt.Errorf("mistral ocr page %d: request failed: %w", page, err)
	}

	raw := resp.Body()
	if resp.IsError() {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = gjson.GetBytes(raw, "message").String()
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return "", &APIError{
			Provider:   MistralOCRName,
			StatusCode: resp.StatusCode(),
			Message:    msg,
			RetryAfter: parseRetryAfter(resp.Header()),
		}
	}

	pages := gjson.GetBytes(raw, "pages")
	if !pages.IsArray() || len(pages.Array()) == 0 {
		return "", fmt.Errorf("mistral ocr page %d: no pages in response", page)
	}

	var sb strings.Builder
	for i, p := range pages.Array() {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Get("markdown").String())
	}
	return sb.String(), nil
}

var _ OCREngine = (*MistralOCR)(nil)
