package providers

import (
	"context"
	"fmt"

	"github.com/smartexam/reval/internal/config"
)

// NewVisionModelFromConfig builds the grading backend named by cfg.Backend.
// cfg is expected to have ${ENV} references already resolved.
func NewVisionModelFromConfig(ctx context.Context, cfg config.GradingCfg) (VisionModel, error) {
	switch cfg.Backend {
	case GeminiName, "":
		return NewGeminiVision(ctx, GeminiConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	case OpenAIName:
		return NewOpenAIVision(OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}), nil
	default:
		return nil, fmt.Errorf("unknown grading backend: %s", cfg.Backend)
	}
}

// NewOCREngineFromConfig builds the OCR engine named by engine.
func NewOCREngineFromConfig(engine string, cfg config.OCRCfg) (OCREngine, error) {
	switch engine {
	case TesseractName, "":
		return NewTesseract(TesseractConfig{
			Binary:   cfg.Tesseract.Binary,
			Language: cfg.Tesseract.Language,
		}), nil
	case "mistral", MistralOCRName:
		if cfg.Mistral.APIKey == "" {
			return nil, fmt.Errorf("mistral OCR requires ocr.mistral.api_key")
		}
		return NewMistralOCR(MistralOCRConfig{
			APIKey:  cfg.Mistral.APIKey,
			BaseURL: cfg.Mistral.BaseURL,
			Model:   cfg.Mistral.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unknown OCR engine: %s", engine)
	}
}
