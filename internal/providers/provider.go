// Package providers holds the external model backends used by the pipeline:
// vision/LLM models for grading, OCR engines for scanned pages, and the
// request gate that spaces calls to a shared quota.
package providers

import (
	"context"
	"net/http"
)

// Image is one page image passed to a vision model.
type Image struct {
	Data     []byte
	MIMEType string // e.g. "image/png"; defaults to image/png when empty
}

func (i Image) mimeType() string {
	if i.MIMEType == "" {
		return "image/png"
	}
	return i.MIMEType
}

// GenerateRequest is a single multimodal generation call.
type GenerateRequest struct {
	Model       string
	System      string
	Prompt      string
	Images      []Image
	Temperature float32
	JSON        bool // ask the backend for an application/json response
}

// VisionModel generates text from a prompt plus optional page images.
type VisionModel interface {
	// Name returns the backend identifier (e.g., "gemini").
	Name() string

	// Generate returns the raw text of the first candidate. Backend
	// failures are returned as *APIError so callers can classify them.
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}

// OCREngine extracts text from a single rendered page image.
type OCREngine interface {
	// Name returns the engine identifier (e.g., "tesseract").
	Name() string

	// Recognize returns the page text. page is 1-based and used for logging
	// and error messages only.
	Recognize(ctx context.Context, image []byte, page int) (string, error)
}

func httpClientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
