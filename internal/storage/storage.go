// Package storage resolves stored file references to byte streams.
//
// References are slash-separated keys such as "uploads/scripts/42/page-1.jpg".
// A leading slash is ignored, matching the paths the upload layer records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/smartexam/reval/internal/config"
)

var (
	// ErrNotFound means the reference does not exist. Any other error from
	// Open is transient and may succeed on retry.
	ErrNotFound = errors.New("stored file not found")

	// ErrInvalidRef means the reference is empty or escapes the storage root.
	ErrInvalidRef = errors.New("invalid file reference")
)

// Storage is the file access contract used by the workers.
type Storage interface {
	// Open returns a reader for the referenced file. The caller closes it.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Put stores data under ref, replacing any existing object.
	Put(ctx context.Context, ref string, data io.Reader) error

	// Exists reports whether ref is present.
	Exists(ctx context.Context, ref string) (bool, error)

	// Delete removes ref. Deleting a missing ref is not an error.
	Delete(ctx context.Context, ref string) error
}

// ReadAll opens ref and reads it fully.
func ReadAll(ctx context.Context, s Storage, ref string) ([]byte, error) {
	rc, err := s.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

// CleanRef normalizes a reference and rejects ones that escape the root.
func CleanRef(ref string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(ref), "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRef)
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return cleaned, nil
}

// New builds the Storage selected by cfg. dataRoot is used for local
// storage when cfg.Root is empty.
func New(cfg config.StorageCfg, dataRoot string) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		root := cfg.Root
		if root == "" {
			root = dataRoot
		}
		return NewLocal(root)
	case "s3":
		return NewS3(S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}
}
