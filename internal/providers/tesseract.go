package providers

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const TesseractName = "tesseract"

// TesseractConfig configures the tesseract command line engine.
type TesseractConfig struct {
	Binary   string // default "tesseract"
	Language string // default "eng"
}

// Tesseract implements OCREngine by piping the page image through the
// tesseract binary (stdin → stdout).
type Tesseract struct {
	binary   string
	language string
}

// NewTesseract creates a tesseract engine.
func NewTesseract(cfg TesseractConfig) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	return &Tesseract{binary: cfg.Binary, language: cfg.Language}
}

// Name returns the engine identifier.
func (t *Tesseract) Name() string {
	return TesseractName
}

// Recognize runs tesseract on one page image.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, page int) (string, error) {
	cmd := exec.CommandContext(ctx, t.binary, "stdin", "stdout", "-l", t.language)
	cmd.Stdin = bytes.NewReader(image)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("tesseract page %d: %s", page, msg)
	}
	return stdout.String(), nil
}

var _ OCREngine = (*Tesseract)(nil)
