package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/smartexam/reval/internal/storage"
)

// uploadFile copies a local file into document storage under prefix and
// returns its storage ref.
func uploadFile(ctx context.Context, st storage.Storage, prefix, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ref := path.Join(prefix, uuid.NewString()+strings.ToLower(filepath.Ext(localPath)))
	if err := st.Put(ctx, ref, f); err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}
	return ref, nil
}

// uploadFiles uploads pages in order. Page order is the argument order.
func uploadFiles(ctx context.Context, st storage.Storage, prefix string, paths []string) ([]string, error) {
	refs := make([]string, 0, len(paths))
	for _, p := range paths {
		ref, err := uploadFile(ctx, st, prefix, p)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
