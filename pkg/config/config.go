package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the profile analyzer
type Config struct {
	// Upstream scraping service
	Apify ApifyConfig `yaml:"apify" json:"apify"`

	// AI analysis service
	Anthropic AnthropicConfig `yaml:"anthropic" json:"anthropic"`

	// Media downloads
	Fetcher FetcherConfig `yaml:"fetcher" json:"fetcher"`

	// Per-post processing
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Session tracking
	Session SessionConfig `yaml:"session" json:"session"`

	// Artifact storage (collages, frame grids)
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// SQLite persistence
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Report cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// HTTP server
	Server ServerConfig `yaml:"server" json:"server"`

	// Personal website scraping
	Website WebsiteConfig `yaml:"website" json:"website"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ApifyConfig holds scraping service settings
type ApifyConfig struct {
	Token         string        `yaml:"token" json:"token"`
	BaseURL       string        `yaml:"base_url" json:"base_url"`
	ActorID       string        `yaml:"actor_id" json:"actor_id"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`
	RunsPerMinute int           `yaml:"runs_per_minute" json:"runs_per_minute"`
}

// AnthropicConfig holds AI analysis settings
type AnthropicConfig struct {
	APIKey      string        `yaml:"api_key" json:"api_key"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Model       string        `yaml:"model" json:"model"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	MaxImages   int           `yaml:"max_images" json:"max_images"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// FetcherConfig holds media download settings
type FetcherConfig struct {
	MaxConcurrency    int           `yaml:"max_concurrency" json:"max_concurrency"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	VideoTimeout      time.Duration `yaml:"video_timeout" json:"video_timeout"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	MaxBytes          int64         `yaml:"max_bytes" json:"max_bytes"`
}

// PipelineConfig holds per-post processing settings
type PipelineConfig struct {
	Concurrency  int    `yaml:"concurrency" json:"concurrency"`
	FrameCount   int    `yaml:"frame_count" json:"frame_count"`
	CaptionBand  bool   `yaml:"caption_band" json:"caption_band"`
	DefaultLimit int    `yaml:"default_limit" json:"default_limit"`
	MaxPostLimit int    `yaml:"max_post_limit" json:"max_post_limit"`
	FFmpegPath   string `yaml:"ffmpeg_path" json:"ffmpeg_path"`
	FFprobePath  string `yaml:"ffprobe_path" json:"ffprobe_path"`
	// MaxActiveSessions caps concurrently running analyses; 0 means no cap.
	MaxActiveSessions int `yaml:"max_active_sessions" json:"max_active_sessions"`
}

// SessionConfig holds tracker lifecycle settings
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule" json:"sweep_schedule"`
}

// StorageConfig selects and configures the artifact store
type StorageConfig struct {
	Backend string      `yaml:"backend" json:"backend"` // "fs" or "minio"
	Dir     string      `yaml:"dir" json:"dir"`
	Minio   MinioConfig `yaml:"minio" json:"minio"`
}

// MinioConfig holds object storage settings
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Region    string `yaml:"region" json:"region"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// DatabaseConfig holds SQLite settings. An empty path disables persistence.
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"`
}

// CacheConfig holds report cache settings
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db"`
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// AnalyzePerMinute caps POST /api/analyze across all clients.
	AnalyzePerMinute int `yaml:"analyze_per_minute" json:"analyze_per_minute"`
}

// WebsiteConfig holds personal website scraping settings
type WebsiteConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// placeholder values shipped in example .env files
var placeholderSecrets = map[string]bool{
	"your_anthropic_api_key_here": true,
	"your_apify_api_token_here":   true,
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Apify: ApifyConfig{
			BaseURL:       "https://api.apify.com",
			ActorID:       "shu8hvrXbJbY3Eb9W",
			Timeout:       5 * time.Minute,
			MaxRetries:    2,
			RunsPerMinute: 30,
		},
		Anthropic: AnthropicConfig{
			Model:       "claude-3-5-sonnet-20240620",
			MaxTokens:   4096,
			Temperature: 0.7,
			MaxImages:   10,
			Timeout:     2 * time.Minute,
		},
		Fetcher: FetcherConfig{
			MaxConcurrency:    5,
			Timeout:           10 * time.Second,
			VideoTimeout:      30 * time.Second,
			MaxRetries:        2,
			RequestsPerMinute: 600,
			UserAgent:         defaultUserAgent,
			MaxBytes:          200 << 20,
		},
		Pipeline: PipelineConfig{
			Concurrency:  4,
			FrameCount:   9,
			CaptionBand:  true,
			DefaultLimit: 10,
			MaxPostLimit: 50,
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",

			MaxActiveSessions: 8,
		},
		Session: SessionConfig{
			TTL:           time.Hour,
			SweepSchedule: "@every 5m",
		},
		Storage: StorageConfig{
			Backend: "fs",
			Dir:     "./output/collages",
			Minio: MinioConfig{
				Bucket: "igprofiler-artifacts",
				Region: "us-east-1",
			},
		},
		Database: DatabaseConfig{
			Path: "./output/igprofiler.db",
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:             ":5000",
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     60 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			AnalyzePerMinute: 30,
		},
		Website: WebsiteConfig{
			Enabled:   true,
			Timeout:   10 * time.Second,
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	// Conventional names first so the prefixed variants win
	setString(&c.Apify.Token, "APIFY_API_TOKEN")
	setString(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")

	setString(&c.Apify.Token, "IGPROFILER_APIFY_TOKEN")
	setString(&c.Apify.BaseURL, "IGPROFILER_APIFY_BASE_URL")
	setString(&c.Anthropic.APIKey, "IGPROFILER_ANTHROPIC_API_KEY")
	setString(&c.Anthropic.BaseURL, "IGPROFILER_ANTHROPIC_BASE_URL")
	setString(&c.Anthropic.Model, "IGPROFILER_ANTHROPIC_MODEL")

	errs = append(errs,
		setInt(&c.Fetcher.MaxConcurrency, "IGPROFILER_FETCH_CONCURRENCY"),
		setInt(&c.Fetcher.MaxRetries, "IGPROFILER_FETCH_RETRIES"),
		setInt(&c.Pipeline.Concurrency, "IGPROFILER_PIPELINE_CONCURRENCY"),
		setDuration(&c.Fetcher.Timeout, "IGPROFILER_FETCH_TIMEOUT"),
		setDuration(&c.Session.TTL, "IGPROFILER_SESSION_TTL"),
	)

	setString(&c.Storage.Backend, "IGPROFILER_STORAGE_BACKEND")
	setString(&c.Storage.Dir, "IGPROFILER_OUTPUT_DIR")
	setString(&c.Storage.Minio.Endpoint, "IGPROFILER_MINIO_ENDPOINT")
	setString(&c.Storage.Minio.AccessKey, "IGPROFILER_MINIO_ACCESS_KEY")
	setString(&c.Storage.Minio.SecretKey, "IGPROFILER_MINIO_SECRET_KEY")
	setString(&c.Storage.Minio.Bucket, "IGPROFILER_MINIO_BUCKET")
	setString(&c.Database.Path, "IGPROFILER_DB_PATH")
	setString(&c.Cache.RedisAddr, "IGPROFILER_REDIS_ADDR")
	setString(&c.Cache.RedisPassword, "IGPROFILER_REDIS_PASSWORD")
	setString(&c.Server.Addr, "IGPROFILER_ADDR")
	setString(&c.Logging.Level, "IGPROFILER_LOG_LEVEL")
	setString(&c.Logging.File, "IGPROFILER_LOG_FILE")

	if v := os.Getenv("IGPROFILER_WEBSITE_ENABLED"); v != "" {
		c.Website.Enabled = strings.ToLower(v) == "true"
	}

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if n > 0 {
		*dst = n
	}
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		"igprofiler.yaml",
		".igprofiler.yaml",
		".igprofiler.yml",
		filepath.Join(home, ".config", "igprofiler", "config.yaml"),
		filepath.Join(home, ".igprofiler.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Apify.RunsPerMinute < 0 {
		errs = append(errs, errors.New("apify runs per minute cannot be negative"))
	}

	if c.Fetcher.MaxConcurrency <= 0 {
		errs = append(errs, errors.New("fetcher max concurrency must be positive"))
	}
	if c.Fetcher.MaxConcurrency > 32 {
		errs = append(errs, errors.New("fetcher max concurrency should not exceed 32"))
	}
	if c.Fetcher.Timeout <= 0 || c.Fetcher.VideoTimeout <= 0 {
		errs = append(errs, errors.New("fetcher timeouts must be positive"))
	}
	if c.Fetcher.MaxRetries < 0 {
		errs = append(errs, errors.New("fetcher max retries cannot be negative"))
	}
	if c.Fetcher.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("fetcher requests per minute must be positive"))
	}

	if c.Pipeline.Concurrency <= 0 {
		errs = append(errs, errors.New("pipeline concurrency must be positive"))
	}
	if c.Pipeline.FrameCount <= 0 || c.Pipeline.FrameCount > 9 {
		errs = append(errs, errors.New("pipeline frame count must be between 1 and 9"))
	}
	if c.Pipeline.DefaultLimit <= 0 || c.Pipeline.DefaultLimit > c.Pipeline.MaxPostLimit {
		errs = append(errs, errors.New("pipeline default limit must be between 1 and max_post_limit"))
	}

	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "fs":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage dir is required for the fs backend"))
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			errs = append(errs, errors.New("minio endpoint and bucket are required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	if c.Anthropic.MaxTokens <= 0 {
		errs = append(errs, errors.New("anthropic max tokens must be positive"))
	}
	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		errs = append(errs, errors.New("anthropic temperature must be between 0 and 1"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server addr is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ApifyConfigured reports whether a usable scraping token is present.
func (c *Config) ApifyConfigured() bool {
	return c.Apify.Token != "" && !placeholderSecrets[c.Apify.Token]
}

// AnthropicConfigured reports whether a usable AI key is present.
func (c *Config) AnthropicConfigured() bool {
	return c.Anthropic.APIKey != "" && !placeholderSecrets[c.Anthropic.APIKey]
}

// Masked returns a copy with secrets replaced for display.
func (c *Config) Masked() *Config {
	cp := *c
	cp.Apify.Token = mask(cp.Apify.Token)
	cp.Anthropic.APIKey = mask(cp.Anthropic.APIKey)
	cp.Storage.Minio.SecretKey = mask(cp.Storage.Minio.SecretKey)
	cp.Cache.RedisPassword = mask(cp.Cache.RedisPassword)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["apify-token"].(string); ok && v != "" {
		c.Apify.Token = v
	}
	if v, ok := flags["anthropic-key"].(string); ok && v != "" {
		c.Anthropic.APIKey = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Storage.Dir = v
	}
	if v, ok := flags["addr"].(string); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := flags["fetch-concurrency"].(int); ok && v > 0 {
		c.Fetcher.MaxConcurrency = v
	}
	if v, ok := flags["pipeline-concurrency"].(int); ok && v > 0 {
		c.Pipeline.Concurrency = v
	}
	if v, ok := flags["db"].(string); ok {
		if v == "none" {
			c.Database.Path = ""
		} else if v != "" {
			c.Database.Path = v
		}
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igprofiler.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
