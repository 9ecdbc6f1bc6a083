package config

// Config holds reval configuration.
// Stored at: {home}/config.yaml or ./config.yaml
type Config struct {
	Redis    RedisCfg    `mapstructure:"redis" yaml:"redis"`
	Database DatabaseCfg `mapstructure:"database" yaml:"database"`
	Storage  StorageCfg  `mapstructure:"storage" yaml:"storage"`
	Extract  ExtractCfg  `mapstructure:"extract" yaml:"extract"`
	OCR      OCRCfg      `mapstructure:"ocr" yaml:"ocr"`
	Grading  GradingCfg  `mapstructure:"grading" yaml:"grading"`
	Workers  WorkersCfg  `mapstructure:"workers" yaml:"workers"`
	Events   EventsCfg   `mapstructure:"events" yaml:"events"`
	Log      LogCfg      `mapstructure:"log" yaml:"log"`
}

// RedisCfg configures the queue backend.
type RedisCfg struct {
	URL    string `mapstructure:"url" yaml:"url"`       // redis://host:port/db
	Prefix string `mapstructure:"prefix" yaml:"prefix"` // Key namespace for queues
}

// DatabaseCfg configures the request/key store.
type DatabaseCfg struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "postgres" or "sqlite"
	DSN    string `mapstructure:"dsn" yaml:"dsn"`       // Supports ${ENV_VAR} syntax; empty sqlite DSN uses {home}/reval.db
}

// StorageCfg configures where uploaded documents live.
type StorageCfg struct {
	Type string `mapstructure:"type" yaml:"type"` // "local" or "s3"
	Root string `mapstructure:"root" yaml:"root"` // Local root (default: {home}/data)
	S3   S3Cfg  `mapstructure:"s3" yaml:"s3"`
}

// S3Cfg configures the S3 storage backend.
type S3Cfg struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"` // For MinIO and friends
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
}

// ExtractCfg configures text extraction.
type ExtractCfg struct {
	// MinContentChars is the text-layer length below which a PDF is treated as scanned.
	MinContentChars int    `mapstructure:"min_content_chars" yaml:"min_content_chars"`
	OCREngine       string `mapstructure:"ocr_engine" yaml:"ocr_engine"` // "tesseract" or "mistral"
	RenderDPI       int    `mapstructure:"render_dpi" yaml:"render_dpi"`
}

// OCRCfg configures the OCR engines.
type OCRCfg struct {
	Tesseract TesseractCfg `mapstructure:"tesseract" yaml:"tesseract"`
	Mistral   MistralCfg   `mapstructure:"mistral" yaml:"mistral"`
}

// TesseractCfg configures the tesseract CLI engine.
type TesseractCfg struct {
	Binary   string `mapstructure:"binary" yaml:"binary"`
	Language string `mapstructure:"language" yaml:"language"`
}

// MistralCfg configures the Mistral OCR API.
type MistralCfg struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// GradingCfg configures the AI grading client.
type GradingCfg struct {
	Backend       string   `mapstructure:"backend" yaml:"backend"` // "gemini" or "openai"
	APIKey        string   `mapstructure:"api_key" yaml:"api_key"` // Supports ${ENV_VAR} syntax
	BaseURL       string   `mapstructure:"base_url" yaml:"base_url"`
	Models        []string `mapstructure:"models" yaml:"models"` // Fallback order
	Temperature   float64  `mapstructure:"temperature" yaml:"temperature"`
	MinIntervalMS int      `mapstructure:"min_interval_ms" yaml:"min_interval_ms"`
	BaseDelayMS   int      `mapstructure:"base_delay_ms" yaml:"base_delay_ms"`
	MaxAttempts   int      `mapstructure:"max_attempts" yaml:"max_attempts"`
	// SharedGate enforces the minimum interval across processes through Redis.
	SharedGate bool `mapstructure:"shared_gate" yaml:"shared_gate"`
}

// WorkersCfg sets per-queue consumer concurrency.
type WorkersCfg struct {
	KeyConcurrency     int `mapstructure:"key_concurrency" yaml:"key_concurrency"`
	OCRConcurrency     int `mapstructure:"ocr_concurrency" yaml:"ocr_concurrency"`
	GradingConcurrency int `mapstructure:"grading_concurrency" yaml:"grading_concurrency"`
	BlockSeconds       int `mapstructure:"block_seconds" yaml:"block_seconds"` // Reserve timeout
}

// EventsCfg configures outbound domain events.
type EventsCfg struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // "log" or "redis"
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// LogCfg configures the slog handler.
type LogCfg struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisCfg{
			URL:    "redis://localhost:6379/0",
			Prefix: "reval",
		},
		Database: DatabaseCfg{
			Driver: "sqlite",
		},
		Storage: StorageCfg{
			Type: "local",
		},
		Extract: ExtractCfg{
			MinContentChars: 50,
			OCREngine:       "tesseract",
			RenderDPI:       200,
		},
		OCR: OCRCfg{
			Tesseract: TesseractCfg{
				Binary:   "tesseract",
				Language: "eng",
			},
			Mistral: MistralCfg{
				APIKey: "${MISTRAL_API_KEY}",
			},
		},
		Grading: GradingCfg{
			Backend: "gemini",
			APIKey:  "${GEMINI_API_KEY}",
			Models: []string{
				"gemini-2.5-flash-lite",
				"gemini-1.5-flash",
				"gemini-1.5-pro",
			},
			Temperature:   0.3,
			MinIntervalMS: 7000,
			BaseDelayMS:   5000,
			MaxAttempts:   5,
		},
		Workers: WorkersCfg{
			KeyConcurrency:     1,
			OCRConcurrency:     1,
			GradingConcurrency: 1,
			BlockSeconds:       5,
		},
		Events: EventsCfg{
			Backend: "log",
			Channel: "reval:events",
		},
		Log: LogCfg{
			Level:  "info",
			Format: "text",
		},
	}
}
