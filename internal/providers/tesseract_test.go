package providers

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/smartexam/reval/internal/config"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-tesseract")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestTesseract_Recognize(t *testing.T) {
	t.Run("pipes image through binary", func(t *testing.T) {
		// Echo the arguments then the stdin payload.
		bin := writeScript(t, "echo \"$@\"\ncat\n")
		engine := NewTesseract(TesseractConfig{Binary: bin, Language: "hin"})

		text, err := engine.Recognize(context.Background(), []byte("page-bytes"), 1)
		if err != nil {
			t.Fatalf("Recognize() error = %v", err)
		}
		if !strings.Contains(text, "stdin stdout -l hin") {
			t.Errorf("unexpected args in output: %q", text)
		}
		if !strings.Contains(text, "page-bytes") {
			t.Errorf("expected image on stdin, got %q", text)
		}
	})

	t.Run("reports stderr on failure", func(t *testing.T) {
		bin := writeScript(t, "echo 'Error in pixReadStream' >&2\nexit 1\n")
		engine := NewTesseract(TesseractConfig{Binary: bin})

		_, err := engine.Recognize(context.Background(), []byte("x"), 4)
		if err == nil || !strings.Contains(err.Error(), "pixReadStream") || !strings.Contains(err.Error(), "page 4") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		engine := NewTesseract(TesseractConfig{Binary: filepath.Join(t.TempDir(), "nope")})
		if _, err := engine.Recognize(context.Background(), []byte("x"), 1); err == nil {
			t.Error("expected error for missing binary")
		}
	})
}

func TestNewOCREngineFromConfig(t *testing.T) {
	if _, err := NewOCREngineFromConfig("mistral", ocrCfgWithoutKey()); err == nil {
		t.Error("expected error for mistral without key")
	}
	e, err := NewOCREngineFromConfig("", ocrCfgWithoutKey())
	if err != nil || e.Name() != TesseractName {
		t.Errorf("expected tesseract default, got %v, %v", e, err)
	}
	if _, err := NewOCREngineFromConfig("paddle", ocrCfgWithoutKey()); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func ocrCfgWithoutKey() config.OCRCfg {
	return config.OCRCfg{Tesseract: config.TesseractCfg{Binary: "tesseract", Language: "eng"}}
}
