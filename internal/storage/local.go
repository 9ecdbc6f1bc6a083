package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores files under a root directory.
type Local struct {
	root string
}

// NewLocal creates a Local storage rooted at root, creating it if needed.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: root}, nil
}

// Root returns the storage root directory.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) path(ref string) (string, error) {
	cleaned, err := CleanRef(ref)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

// Open implements Storage.
func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, ref)
	}
	return f, nil
}

// Put implements Storage. Writes go through a temp file and rename.
func (l *Local) Put(ctx context.Context, ref string, data io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", ref, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", ref, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", ref, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", ref, err)
	}
	return os.Rename(tmp.Name(), p)
}

// Exists implements Storage.
func (l *Local) Exists(ctx context.Context, ref string) (bool, error) {
	p, err := l.path(ref)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Delete implements Storage.
func (l *Local) Delete(ctx context.Context, ref string) error {
	p, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

var _ Storage = (*Local)(nil)
