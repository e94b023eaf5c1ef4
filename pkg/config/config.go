package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type StorageDriver string

const (
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
	StorageMemory   StorageDriver = "memory"
)

// Config is the process configuration. Values come from defaults, then the
// optional YAML file at LIVENOTES_CONFIG_PATH, then environment variables.
type Config struct {
	Addr string `yaml:"addr"`

	// Gemini
	GeminiAPIKey         string        `yaml:"gemini_api_key"`
	LiveModel            string        `yaml:"live_model"`
	LiveURL              string        `yaml:"live_url"`
	SummaryModel         string        `yaml:"summary_model"`
	LiveHandshakeTimeout time.Duration `yaml:"live_handshake_timeout"`
	ExtraPrompt          string        `yaml:"extra_prompt"`

	// Session
	SessionDuration     time.Duration `yaml:"session_duration"`
	ActiveNotePolicy    string        `yaml:"active_note_policy"`
	FinalizeTimeout     time.Duration `yaml:"finalize_timeout"`
	AudioDeviceRate     int           `yaml:"audio_device_rate"`
	ChannelQueueSize    int           `yaml:"channel_queue_size"`
	ChannelFlushTimeout time.Duration `yaml:"channel_flush_timeout"`

	// Speech
	CartesiaAPIKey  string `yaml:"cartesia_api_key"`
	CartesiaBaseURL string `yaml:"cartesia_base_url"`

	// Storage
	StorageDriver StorageDriver `yaml:"storage_driver"`
	StoragePath   string        `yaml:"storage_path"`
	DatabaseURL   string        `yaml:"database_url"`
	SettingsPath  string        `yaml:"settings_path"`

	// Bridge
	CORSAllowedOrigins  []string      `yaml:"cors_allowed_origins"`
	LiveWSPingInterval  time.Duration `yaml:"live_ws_ping_interval"`
	LiveWSWriteTimeout  time.Duration `yaml:"live_ws_write_timeout"`
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:                 "127.0.0.1:8787",
		LiveModel:            "gemini-2.0-flash-live-001",
		LiveURL:              "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent",
		SummaryModel:         "gemini-2.0-flash",
		LiveHandshakeTimeout: 15 * time.Second,
		SessionDuration:      600 * time.Second,
		ActiveNotePolicy:     "drop",
		FinalizeTimeout:      60 * time.Second,
		AudioDeviceRate:      16000,
		ChannelQueueSize:     32,
		ChannelFlushTimeout:  500 * time.Millisecond,
		CartesiaBaseURL:      "https://api.cartesia.ai",
		StorageDriver:        StorageSQLite,
		StoragePath:          "livenotes.db",
		SettingsPath:         "settings.yaml",
		LiveWSPingInterval:   20 * time.Second,
		LiveWSWriteTimeout:   5 * time.Second,
		ReadHeaderTimeout:    10 * time.Second,
		ShutdownGracePeriod:  10 * time.Second,
		LogLevel:             "info",
	}
}

func LoadFromEnv() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("LIVENOTES_CONFIG_PATH")); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.Addr = envOr("LIVENOTES_ADDR", cfg.Addr)
	cfg.GeminiAPIKey = envOr("GEMINI_API_KEY", envOr("GOOGLE_API_KEY", cfg.GeminiAPIKey))
	cfg.LiveModel = envOr("LIVENOTES_LIVE_MODEL", cfg.LiveModel)
	cfg.LiveURL = envOr("LIVENOTES_LIVE_URL", cfg.LiveURL)
	cfg.SummaryModel = envOr("LIVENOTES_SUMMARY_MODEL", cfg.SummaryModel)
	cfg.LiveHandshakeTimeout = envDurationOr("LIVENOTES_LIVE_HANDSHAKE_TIMEOUT", cfg.LiveHandshakeTimeout)
	cfg.ExtraPrompt = envOr("LIVENOTES_EXTRA_PROMPT", cfg.ExtraPrompt)
	cfg.SessionDuration = envDurationOr("LIVENOTES_SESSION_DURATION", cfg.SessionDuration)
	cfg.ActiveNotePolicy = envOr("LIVENOTES_ACTIVE_NOTE_POLICY", cfg.ActiveNotePolicy)
	cfg.FinalizeTimeout = envDurationOr("LIVENOTES_FINALIZE_TIMEOUT", cfg.FinalizeTimeout)
	cfg.AudioDeviceRate = envIntOr("LIVENOTES_AUDIO_DEVICE_RATE", cfg.AudioDeviceRate)
	cfg.ChannelQueueSize = envIntOr("LIVENOTES_CHANNEL_QUEUE_SIZE", cfg.ChannelQueueSize)
	cfg.ChannelFlushTimeout = envDurationOr("LIVENOTES_CHANNEL_FLUSH_TIMEOUT", cfg.ChannelFlushTimeout)
	cfg.CartesiaAPIKey = envOr("CARTESIA_API_KEY", cfg.CartesiaAPIKey)
	cfg.CartesiaBaseURL = envOr("LIVENOTES_CARTESIA_BASE_URL", cfg.CartesiaBaseURL)
	cfg.StorageDriver = StorageDriver(envOr("LIVENOTES_STORAGE_DRIVER", string(cfg.StorageDriver)))
	cfg.StoragePath = envOr("LIVENOTES_STORAGE_PATH", cfg.StoragePath)
	cfg.DatabaseURL = envOr("LIVENOTES_DATABASE_URL", cfg.DatabaseURL)
	cfg.SettingsPath = envOr("LIVENOTES_SETTINGS_PATH", cfg.SettingsPath)
	if raw := strings.TrimSpace(os.Getenv("LIVENOTES_CORS_ALLOWED_ORIGINS")); raw != "" {
		cfg.CORSAllowedOrigins = splitCSV(raw)
	}
	cfg.LiveWSPingInterval = envDurationOr("LIVENOTES_WS_PING_INTERVAL", cfg.LiveWSPingInterval)
	cfg.LiveWSWriteTimeout = envDurationOr("LIVENOTES_WS_WRITE_TIMEOUT", cfg.LiveWSWriteTimeout)
	cfg.ReadHeaderTimeout = envDurationOr("LIVENOTES_READ_HEADER_TIMEOUT", cfg.ReadHeaderTimeout)
	cfg.ShutdownGracePeriod = envDurationOr("LIVENOTES_SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.LogLevel = envOr("LIVENOTES_LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations. It does not require API keys;
// commands that need one check for it themselves.
func (cfg Config) Validate() error {
	if strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("LIVENOTES_ADDR must not be empty")
	}
	if cfg.SessionDuration <= 0 {
		return fmt.Errorf("LIVENOTES_SESSION_DURATION must be > 0")
	}
	switch cfg.ActiveNotePolicy {
	case "drop", "auto-archive":
	default:
		return fmt.Errorf("LIVENOTES_ACTIVE_NOTE_POLICY must be one of drop|auto-archive")
	}
	if cfg.FinalizeTimeout <= 0 {
		return fmt.Errorf("LIVENOTES_FINALIZE_TIMEOUT must be > 0")
	}
	if cfg.AudioDeviceRate <= 0 {
		return fmt.Errorf("LIVENOTES_AUDIO_DEVICE_RATE must be > 0")
	}
	if cfg.ChannelQueueSize <= 0 {
		return fmt.Errorf("LIVENOTES_CHANNEL_QUEUE_SIZE must be > 0")
	}
	if cfg.ChannelFlushTimeout <= 0 {
		return fmt.Errorf("LIVENOTES_CHANNEL_FLUSH_TIMEOUT must be > 0")
	}
	if cfg.LiveHandshakeTimeout <= 0 {
		return fmt.Errorf("LIVENOTES_LIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.LiveURL) == "" {
		return fmt.Errorf("LIVENOTES_LIVE_URL must not be empty")
	}
	switch cfg.StorageDriver {
	case StorageSQLite:
		if strings.TrimSpace(cfg.StoragePath) == "" {
			return fmt.Errorf("LIVENOTES_STORAGE_PATH must be set when LIVENOTES_STORAGE_DRIVER=sqlite")
		}
	case StoragePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return fmt.Errorf("LIVENOTES_DATABASE_URL must be set when LIVENOTES_STORAGE_DRIVER=postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("LIVENOTES_STORAGE_DRIVER must be one of sqlite|postgres|memory")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return fmt.Errorf("LIVENOTES_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return fmt.Errorf("LIVENOTES_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("LIVENOTES_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("LIVENOTES_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
