package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix for environment overrides, e.g. REVAL_REDIS_URL.
const EnvPrefix = "REVAL"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// An empty cfgFile searches ./config.yaml and $HOME/.reval/config.yaml.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	if err := setDefaults(cm.v, DefaultConfig()); err != nil {
		return err
	}

	cm.v.SetEnvPrefix(EnvPrefix)
	cm.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cm.v.AutomaticEnv()

	if cfgFile != "" {
		cm.v.SetConfigFile(cfgFile)
	} else {
		cm.v.SetConfigName("config")
		cm.v.SetConfigType("yaml")
		cm.v.AddConfigPath(".")
		cm.v.AddConfigPath("$HOME/.reval")
	}

	// Config file is optional; defaults and env cover everything.
	if err := cm.v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf of the default config so that
// AutomaticEnv can override nested keys.
func setDefaults(v *viper.Viper, defaults *Config) error {
	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	for key, val := range flatten("", tree) {
		v.SetDefault(key, val)
	}
	return nil
}

func flatten(prefix string, node map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := val.(type) {
		case map[string]any:
			for ck, cv := range flatten(key, child) {
				out[ck] = cv
			}
		case map[any]any:
			m := make(map[string]any, len(child))
			for ik, iv := range child {
				m[fmt.Sprint(ik)] = iv
			}
			for ck, cv := range flatten(key, m) {
				out[ck] = cv
			}
		default:
			out[key] = val
		}
	}
	return out
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the file the config was read from, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			logger.Warn("config reload failed", "file", e.Name, "error", err)
			return
		}
		logger.Info("config reloaded", "file", e.Name)
		cm.apply(cfg)
	})
	cm.v.WatchConfig()
}

// apply swaps in cfg and notifies callbacks outside the lock.
func (cm *Manager) apply(cfg *Config) {
	cm.mu.Lock()
	cm.config = cfg
	callbacks := make([]func(*Config), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	cm.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
}

var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// Resolved returns a copy of the config with ${ENV_VAR} references in
// secrets and DSNs expanded.
func (c *Config) Resolved() *Config {
	out := *c
	out.Redis.URL = ResolveEnvVars(c.Redis.URL)
	out.Database.DSN = ResolveEnvVars(c.Database.DSN)
	out.Storage.S3.AccessKeyID = ResolveEnvVars(c.Storage.S3.AccessKeyID)
	out.Storage.S3.SecretAccessKey = ResolveEnvVars(c.Storage.S3.SecretAccessKey)
	out.OCR.Mistral.APIKey = ResolveEnvVars(c.OCR.Mistral.APIKey)
	out.Grading.APIKey = ResolveEnvVars(c.Grading.APIKey)
	out.Grading.Models = append([]string(nil), c.Grading.Models...)
	return &out
}

// Validate checks values the workers cannot run without.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Storage.Type {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	switch c.Grading.Backend {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported grading backend %q", c.Grading.Backend)
	}
	if len(c.Grading.Models) == 0 {
		return fmt.Errorf("grading.models must list at least one model")
	}
	if c.Extract.MinContentChars < 0 {
		return fmt.Errorf("extract.min_content_chars must not be negative")
	}
	return nil
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# reval configuration
# Secrets use ${ENV_VAR} syntax to reference environment variables.
# Any key can be overridden with REVAL_<SECTION>_<KEY>, e.g. REVAL_REDIS_URL.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
