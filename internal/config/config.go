package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds all configuration for the document processor.
type Config struct {
	Server      ServerConfig        `mapstructure:"server"`
	Auth        AuthConfig          `mapstructure:"auth"`
	Storage     StorageConfig       `mapstructure:"storage"`
	Providers   map[string]Provider `mapstructure:"providers"`
	Pipeline    PipelineConfig      `mapstructure:"pipeline"`
	Batch       BatchConfig         `mapstructure:"batch"`
	Channels    ChannelsConfig      `mapstructure:"channels"`
	Capture     CaptureConfig       `mapstructure:"capture"`
	Maintenance MaintenanceConfig   `mapstructure:"maintenance"`

	v    *viper.Viper
	path string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	JWTSecret       string   `mapstructure:"jwt_secret"`
	AdminPassword   string   `mapstructure:"admin_password"`
	TokenTTLMinutes int      `mapstructure:"token_ttl_minutes"`
	AllowOrigins    []string `mapstructure:"allow_origins"`
}

// StorageConfig holds database and file storage settings
type StorageConfig struct {
	DataDir       string `mapstructure:"data_dir"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	BadgerPath    string `mapstructure:"badger_path"`
	UploadDir     string `mapstructure:"upload_dir"`
	MaxImageMB    int    `mapstructure:"max_image_mb"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Provider holds one AI provider's configuration. Fields a provider does not
// use (Language and Engine belong to the OCR engine only) are ignored.
type Provider struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Timeout    int    `mapstructure:"timeout"`
	Priority   int    `mapstructure:"priority"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	TextBudget int    `mapstructure:"text_budget"`
	Language   string `mapstructure:"language"`
	Engine     int    `mapstructure:"engine"`

	// Enterprise OCR gateways exchange client credentials for a bearer
	// token instead of a static API key.
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// PipelineConfig holds retry, rate limit and cache knobs for the core.
type PipelineConfig struct {
	MaxAttempts        int `mapstructure:"max_attempts"`
	BaseDelayMs        int `mapstructure:"base_delay_ms"`
	RequestsPerMinute  int `mapstructure:"requests_per_minute"`
	BreakerFailures    int `mapstructure:"breaker_failures"`
	BreakerCooldownSec int `mapstructure:"breaker_cooldown_seconds"`
	CacheTTLMinutes    int `mapstructure:"cache_ttl_minutes"`
}

// BatchConfig holds batch worker pool settings
type BatchConfig struct {
	MaxConcurrency    int `mapstructure:"max_concurrency"`
	ItemTimeout       int `mapstructure:"item_timeout"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// ChannelsConfig holds intake channel settings
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	BotToken  string  `mapstructure:"bot_token"`
	AllowList []int64 `mapstructure:"allow_list"`
}

// CaptureConfig holds headless browser capture settings
type CaptureConfig struct {
	Headless bool `mapstructure:"headless"`
	Timeout  int  `mapstructure:"timeout"`
}

// MaintenanceConfig holds the cron schedules for background jobs
type MaintenanceConfig struct {
	Enabled              bool   `mapstructure:"enabled"`
	RetentionSchedule    string `mapstructure:"retention_schedule"`
	AvailabilitySchedule string `mapstructure:"availability_schedule"`
	GCSchedule           string `mapstructure:"gc_schedule"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	// .env files populate the process environment first so the viper env
	// bindings and the alias lookups below both see them.
	if err := LoadEnvFiles(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	dataDir = expandPath(dataDir)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "docproc.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))
	v.SetDefault("storage.upload_dir", filepath.Join(dataDir, "uploads"))

	if configPath == "" {
		configPath = GetEnvWithFallback("DOCPROC_CONFIG", "DOCPROC_CONFIG_FILE")
	}
	if configPath == "" {
		configPath = filepath.Join(dataDir, "config.yaml")
	}

	fileLoaded := false
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		fileLoaded = true
	}

	// Environment variables (DOCPROC_SERVER_PORT, DOCPROC_PROVIDERS_GEMINI_API_KEY, etc.)
	v.SetEnvPrefix("DOCPROC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Viper does not map env vars into nested maps, so provider keys and a
	// few flat settings are pulled from the environment by hand.
	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if fileLoaded {
		cfg.v = v
		cfg.path = configPath
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 60)

	// Auth defaults
	v.SetDefault("auth.token_ttl_minutes", 1440)
	v.SetDefault("auth.allow_origins", []string{"*"})

	// Storage defaults
	v.SetDefault("storage.max_image_mb", 10)
	v.SetDefault("storage.retention_days", 30)

	// Provider defaults: the OCR engine first, vision LLMs behind it.
	v.SetDefault("providers.ocrspace.base_url", "https://api.ocr.space/parse/image")
	v.SetDefault("providers.ocrspace.language", "eng")
	v.SetDefault("providers.ocrspace.engine", 2)
	v.SetDefault("providers.ocrspace.priority", 1)
	v.SetDefault("providers.ocrspace.timeout", 30)

	v.SetDefault("providers.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("providers.gemini.model", "gemini-2.0-flash")
	v.SetDefault("providers.gemini.priority", 2)
	v.SetDefault("providers.gemini.timeout", 60)
	v.SetDefault("providers.gemini.max_tokens", 2048)
	v.SetDefault("providers.gemini.text_budget", 12000)

	v.SetDefault("providers.openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("providers.openrouter.model", "anthropic/claude-3.5-sonnet")
	v.SetDefault("providers.openrouter.priority", 3)
	v.SetDefault("providers.openrouter.timeout", 60)
	v.SetDefault("providers.openrouter.max_tokens", 2048)
	v.SetDefault("providers.openrouter.text_budget", 12000)

	// Pipeline defaults
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.base_delay_ms", 1000)
	v.SetDefault("pipeline.requests_per_minute", 60)
	v.SetDefault("pipeline.breaker_failures", 5)
	v.SetDefault("pipeline.breaker_cooldown_seconds", 30)
	v.SetDefault("pipeline.cache_ttl_minutes", 60)

	// Batch defaults
	v.SetDefault("batch.max_concurrency", 3)
	v.SetDefault("batch.item_timeout", 60)

	// Capture defaults
	v.SetDefault("capture.headless", true)
	v.SetDefault("capture.timeout", 45)

	// Maintenance defaults
	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.retention_schedule", "0 3 * * *")
	v.SetDefault("maintenance.availability_schedule", "*/5 * * * *")
	v.SetDefault("maintenance.gc_schedule", "30 4 * * *")
}

func getDefaultDataDir() string {
	// Try XDG_DATA_HOME first
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "docproc")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "docproc")
}

// loadEnvOverrides loads specific env vars that Viper doesn't handle well with nested maps
func loadEnvOverrides(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]Provider)
	}

	for _, id := range []string{"ocrspace", "gemini", "openrouter"} {
		canonical := "DOCPROC_PROVIDERS_" + strings.ToUpper(id) + "_API_KEY"
		if apiKey := ResolveEnvWithAliases(canonical); apiKey != "" {
			p := cfg.Providers[id]
			p.APIKey = apiKey
			cfg.Providers[id] = p
		}
	}

	// Server settings
	cfg.Server.Address = GetEnvDefault("DOCPROC_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("DOCPROC_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	// Storage settings
	cfg.Storage.DataDir = GetEnvDefault("DOCPROC_STORAGE_DATA_DIR", cfg.Storage.DataDir)

	// Auth settings
	if secret := ResolveEnvWithAliases("DOCPROC_AUTH_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := ResolveEnvWithAliases("DOCPROC_AUTH_ADMIN_PASSWORD"); password != "" {
		cfg.Auth.AdminPassword = password
	}

	// Telegram settings
	if token := ResolveEnvWithAliases("DOCPROC_CHANNELS_TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Channels.Telegram.BotToken = token
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}

	for id, p := range cfg.Providers {
		if p.Priority <= 0 {
			return fmt.Errorf("providers.%s.priority must be positive", id)
		}
	}

	if cfg.Storage.RetentionDays < 0 {
		return fmt.Errorf("storage.retention_days cannot be negative")
	}

	// Generate JWT secret if not provided
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = generateSecret(32)
	}

	return nil
}

func generateSecret(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

// GetProvider returns the provider configuration by name
func (c *Config) GetProvider(name string) (Provider, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// SortedProviderIDs returns provider ids ordered by ascending priority, ties
// broken alphabetically so the ladder order is stable across restarts.
func (c *Config) SortedProviderIDs() []string {
	ids := make([]string, 0, len(c.Providers))
	for id := range c.Providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := c.Providers[ids[i]], c.Providers[ids[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Watch re-parses the config file whenever it changes on disk and hands the
// fresh Config to onChange. Only takes effect when a config file was loaded;
// env-only setups have nothing to watch.
func (c *Config) Watch(logger *zap.Logger, onChange func(*Config)) {
	if c.v == nil || c.path == "" {
		return
	}

	c.v.OnConfigChange(func(e fsnotify.Event) {
		next := Config{}
		if err := c.v.Unmarshal(&next); err != nil {
			logger.Warn("Ignoring config change, unmarshal failed",
				zap.String("file", e.Name), zap.Error(err))
			return
		}
		loadEnvOverrides(&next)
		if err := validate(&next); err != nil {
			logger.Warn("Ignoring config change, validation failed",
				zap.String("file", e.Name), zap.Error(err))
			return
		}
		next.v = c.v
		next.path = c.path
		logger.Info("Config reloaded", zap.String("file", e.Name))
		onChange(&next)
	})
	c.v.WatchConfig()
}
