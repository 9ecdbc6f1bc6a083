// Package svcctx carries the process's opened services through a context so
// CLI commands pull what they need without threading parameters.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/smartexam/reval/internal/config"
	"github.com/smartexam/reval/internal/events"
	"github.com/smartexam/reval/internal/home"
	"github.com/smartexam/reval/internal/pipeline"
	"github.com/smartexam/reval/internal/queue"
	"github.com/smartexam/reval/internal/storage"
	"github.com/smartexam/reval/internal/store"
)

// Services holds the core services of one reval process.
type Services struct {
	Config   *config.Manager
	Home     *home.Dir
	Logger   *slog.Logger
	Store    *store.Store
	Redis    redis.UniversalClient
	Queue    *queue.Client
	Storage  storage.Storage
	Events   *events.Bus
	Producer *pipeline.Producer
}

// Close releases the database and Redis connections.
func (s *Services) Close() error {
	var first error
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			first = err
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// StoreFrom extracts the request/key store from context.
func StoreFrom(ctx context.Context) *store.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// QueueFrom extracts the queue client from context.
func QueueFrom(ctx context.Context) *queue.Client {
	if s := ServicesFrom(ctx); s != nil {
		return s.Queue
	}
	return nil
}

// StorageFrom extracts document storage from context.
func StorageFrom(ctx context.Context) storage.Storage {
	if s := ServicesFrom(ctx); s != nil {
		return s.Storage
	}
	return nil
}

// ProducerFrom extracts the job producer from context.
func ProducerFrom(ctx context.Context) *pipeline.Producer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Producer
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
