package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const OpenAIName = "openai"

// OpenAIConfig holds configuration for any OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// OpenAIVision implements VisionModel over the chat completions API.
type OpenAIVision struct {
	client openai.Client
}

// NewOpenAIVision creates an OpenAI-compatible vision model. SDK retries are
// disabled; the grading client owns the retry policy.
func NewOpenAIVision(cfg OpenAIConfig) *OpenAIVision {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClientOrDefault(cfg.HTTPClient)),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAIVision{client: openai.NewClient(opts...)}
}

// Name returns the backend identifier.
func (o *OpenAIVision) Name() string {
	return OpenAIName
}

// Generate sends the prompt with images inlined as data URLs.
func (o *OpenAIVision) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(req.Prompt)}
	for _, img := range req.Images {
		url := "data:" + img.mimeType() + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(parts))

	params := openai.ChatCompletionNewParams{
		Model:       req.Model,
		Messages:    messages,
		Temperature: openai.Float(float64(req.Temperature)),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &APIError{Provider: OpenAIName, StatusCode: http.StatusOK, Message: "empty response"}
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		out := &APIError{
			Provider:   OpenAIName,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
		}
		if apiErr.Response != nil {
			out.RetryAfter = parseRetryAfter(apiErr.Response.Header)
		}
		if out.Message == "" {
			out.Message = http.StatusText(apiErr.StatusCode)
		}
		return out
	}
	return fmt.Errorf("%s: %w", OpenAIName, err)
}

var _ VisionModel = (*OpenAIVision)(nil)
