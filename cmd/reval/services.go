package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/smartexam/reval/internal/config"
	"github.com/smartexam/reval/internal/events"
	"github.com/smartexam/reval/internal/home"
	"github.com/smartexam/reval/internal/pipeline"
	"github.com/smartexam/reval/internal/queue"
	"github.com/smartexam/reval/internal/storage"
	"github.com/smartexam/reval/internal/store"
	"github.com/smartexam/reval/internal/svcctx"
)

// getHome resolves --home and makes sure the directory tree exists.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	return h, nil
}

// loadEnv reads ./.env then {home}/.env. Existing variables win.
func loadEnv(h *home.Dir) error {
	for _, path := range []string{".env", h.EnvPath()} {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// loadConfig loads .env files and the config file. --config wins over the
// home config, which wins over the default search paths.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	if err := loadEnv(h); err != nil {
		return nil, err
	}
	path := cfgFile
	if path == "" && h.ConfigExists() {
		path = h.ConfigPath()
	}
	return config.NewManager(path)
}

// newLogger builds the process logger. --debug and --log-format override
// the log section of the config.
func newLogger(cfg config.LogCfg) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if debug {
		level = slog.LevelDebug
	}

	format := cfg.Format
	if logFormat != "" {
		format = logFormat
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// openServices connects to the database, Redis and document storage.
// Redis is dialed lazily on first use.
func openServices() (*svcctx.Services, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	mgr, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get().Resolved()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	svc := &svcctx.Services{Config: mgr, Home: h, Logger: logger}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	svc.Redis = redis.NewClient(redisOpts)
	svc.Queue = queue.New(svc.Redis, cfg.Redis.Prefix)

	svc.Events = newEventBus(logger)
	var publisher events.Publisher = svc.Events
	switch cfg.Events.Backend {
	case "redis":
		publisher = events.Multi{svc.Events, events.NewRedisPublisher(svc.Redis, cfg.Events.Channel)}
	case "", "log":
	default:
		svc.Close()
		return nil, fmt.Errorf("unknown events backend %q", cfg.Events.Backend)
	}

	dsn := cfg.Database.DSN
	if cfg.Database.Driver == "sqlite" && dsn == "" {
		dsn = h.DatabasePath()
	}
	svc.Store, err = store.Open(store.Config{
		Driver:    cfg.Database.Driver,
		DSN:       dsn,
		Publisher: publisher,
		Logger:    logger,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Storage, err = storage.New(cfg.Storage, h.DataPath())
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Producer = pipeline.NewProducer(svc.Queue, svc.Store, svc.Store, logger)
	return svc, nil
}

// newEventBus wires the in-process subscribers. Student notification is
// delivery-agnostic here: the log line is the hand-off point.
func newEventBus(logger *slog.Logger) *events.Bus {
	bus := events.NewBus(logger)
	bus.Subscribe(events.RequestPublished, func(ctx context.Context, ev events.Event) {
		logger.Info("revaluation result published, notifying student",
			"request_id", ev.RequestID, "student_id", ev.StudentID)
	})
	bus.Subscribe(events.RequestFailed, func(ctx context.Context, ev events.Event) {
		logger.Warn("revaluation request failed",
			"request_id", ev.RequestID, "error", ev.Message)
	})
	return bus
}

// withServices opens services for a command, attaches them to the command
// context and closes them when it returns.
func withServices(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, err := openServices()
		if err != nil {
			return err
		}
		defer svc.Close()

		cmd.SetContext(svcctx.WithServices(cmd.Context(), svc))
		return run(cmd, args)
	}
}
