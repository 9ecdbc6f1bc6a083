package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/smartexam/reval/internal/store"
	"github.com/smartexam/reval/internal/types"
)

// isShutdown reports whether cause comes from the worker context being
// cancelled. Such jobs are not failures; they are recovered on restart.
func isShutdown(ctx context.Context, cause error) bool {
	return ctx.Err() != nil && errors.Is(cause, context.Canceled)
}

// failRequest records cause on the request and moves it to failed, then
// returns cause so the queue marks the job failed. A request that is not
// PROCESSING keeps its status and only gets the message.
func failRequest(ctx context.Context, requests RequestStore, logger *slog.Logger, id int64, cause error) error {
	if isShutdown(ctx, cause) {
		return cause
	}
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()

	rc, err := requests.GetRequestContext(ctx, id)
	if err != nil {
		logger.Error("failed to record request failure", "error", err)
		return cause
	}
	u := store.RequestUpdate{ErrorMessage: &msg}
	if rc.Status == types.StatusProcessing {
		failed := types.StatusFailed
		u.Status = &failed
	}
	if _, err := requests.UpdateRequest(ctx, id, u); err != nil {
		logger.Error("failed to record request failure", "error", err)
	}
	return cause
}
