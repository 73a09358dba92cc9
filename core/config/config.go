package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token string `yaml:"token" envconfig:"BOT_TOKEN"`
	// OwnerID bootstraps the first owner when the access list has none.
	OwnerID int64  `yaml:"owner_id" envconfig:"OWNER_ID"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	ErrorsFile  string `yaml:"errors_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// StorageConfig selects where the access list and the usage log live.
type StorageConfig struct {
	Backend       string `yaml:"backend" envconfig:"STORAGE_BACKEND"`
	AccessFile    string `yaml:"access_file" envconfig:"ACCESS_FILE"`
	UsageFile     string `yaml:"usage_file" envconfig:"USAGE_FILE"`
	WorkDir       string `yaml:"work_dir" envconfig:"WORK_DIR"`
	MigrationsDir string `yaml:"migrations_dir" envconfig:"MIGRATIONS_DIR"`
}

// DatabaseConfig holds postgres connection settings used by the postgres storage backend.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// LimitsConfig bounds uploads, transfers and conversation pacing.
type LimitsConfig struct {
	MaxUploadMB            int `yaml:"max_upload_mb" envconfig:"MAX_UPLOAD_MB"`
	DownloadTimeoutSeconds int `yaml:"download_timeout_seconds" envconfig:"DOWNLOAD_TIMEOUT_SECONDS"`
	SendTimeoutSeconds     int `yaml:"send_timeout_seconds" envconfig:"SEND_TIMEOUT_SECONDS"`
	StepTimeoutSeconds     int `yaml:"step_timeout_seconds" envconfig:"STEP_TIMEOUT_SECONDS"`
	TransferAttempts       int `yaml:"transfer_attempts" envconfig:"TRANSFER_ATTEMPTS"`
	RetryDelayMS           int `yaml:"retry_delay_ms" envconfig:"RETRY_DELAY_MS"`
	ChunkKB                int `yaml:"chunk_kb" envconfig:"CHUNK_KB"`
	Workers                int `yaml:"workers" envconfig:"CONVERT_WORKERS"`
	MaxMergeFiles          int `yaml:"max_merge_files" envconfig:"MAX_MERGE_FILES"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// StorageFile keeps the access list in a JSON file and the usage log in a CSV file.
	StorageFile = "file"
	// StoragePostgres keeps both in postgres tables.
	StoragePostgres = "postgres"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
	// UpdateDocument identifies document uploads for rate limit exclusions.
	UpdateDocument = "document"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
// - "document": file uploads
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	Burst          int      `yaml:"burst" envconfig:"RATE_LIMIT_BURST"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the whole bot configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Limits    LimitsConfig    `yaml:"limits"`
}

// CoreConfig satisfies cmd.ConfigCarrier.
func (c *Config) CoreConfig() *Config {
	return c
}

// Load reads configuration from an optional .env file, a YAML file and environment variables.
// A missing YAML file is tolerated so the bot can be configured from the environment alone.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.OwnerID < 0 {
		return fmt.Errorf("telegram.owner_id must be >= 0")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
		UpdateDocument: {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message, document", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 1
	}

	if err := normalizeStorage(cfg); err != nil {
		return err
	}
	return normalizeLimits(&cfg.Limits)
}

func normalizeStorage(cfg *Config) error {
	st := &cfg.Storage
	st.Backend = strings.ToLower(strings.TrimSpace(st.Backend))
	if st.Backend == "" {
		st.Backend = StorageFile
	}
	switch st.Backend {
	case StorageFile:
		if strings.TrimSpace(st.AccessFile) == "" {
			st.AccessFile = "data/users.json"
		}
		if strings.TrimSpace(st.UsageFile) == "" {
			st.UsageFile = "data/usage_log.csv"
		}
	case StoragePostgres:
		db := cfg.Database
		if db.Host == "" || db.Name == "" || db.User == "" {
			return fmt.Errorf("database.host, database.name and database.user are required when storage.backend is 'postgres'")
		}
		if db.Port == "" {
			cfg.Database.Port = "5432"
		}
		if db.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if db.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 4
		}
		if strings.TrimSpace(st.MigrationsDir) == "" {
			st.MigrationsDir = "migrations"
		}
	default:
		return fmt.Errorf("invalid storage.backend %q; allowed: file, postgres", st.Backend)
	}
	if strings.TrimSpace(st.WorkDir) == "" {
		st.WorkDir = "data/work"
	}
	return nil
}

func normalizeLimits(l *LimitsConfig) error {
	defaults := []struct {
		name string
		val  *int
		def  int
	}{
		{"max_upload_mb", &l.MaxUploadMB, 50},
		{"download_timeout_seconds", &l.DownloadTimeoutSeconds, 300},
		{"send_timeout_seconds", &l.SendTimeoutSeconds, 30},
		{"step_timeout_seconds", &l.StepTimeoutSeconds, 60},
		{"transfer_attempts", &l.TransferAttempts, 3},
		{"retry_delay_ms", &l.RetryDelayMS, 2000},
		{"chunk_kb", &l.ChunkKB, 64},
		{"workers", &l.Workers, 2},
		{"max_merge_files", &l.MaxMergeFiles, 20},
	}
	for _, d := range defaults {
		if *d.val < 0 {
			return fmt.Errorf("limits.%s must be >= 0", d.name)
		}
		if *d.val == 0 {
			*d.val = d.def
		}
	}
	return nil
}
