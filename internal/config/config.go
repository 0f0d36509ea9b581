// Package config loads crawler settings from YAML with environment overrides.
package config

import (
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/client"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/export"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/lang"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/logging"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/pagination"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/ratelimit"
	"github.com/Sternrassler/vk-bilingual-corpus/pkg/segment"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

// Environment variables that override file settings.
const (
	EnvAccessToken = "VK_ACCESS_TOKEN"
	EnvRedisAddr   = "VK_CORPUS_REDIS_ADDR"
	EnvLogLevel    = "VK_CORPUS_LOG_LEVEL"
	EnvDataDir     = "VK_CORPUS_DATA_DIR"
	EnvRedisDB     = "VK_CORPUS_REDIS_DB"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

type VK struct {
	AccessToken string            `yaml:"access_token"`
	BaseURL     string            `yaml:"base_url"`
	Method      string            `yaml:"method"`
	APIVersion  string            `yaml:"api_version"`
	UserAgent   string            `yaml:"user_agent"`
	HTTPTimeout time.Duration     `yaml:"http_timeout"`
	Query       map[string]string `yaml:"query"`
}

type Fetch struct {
	PageCap           int           `yaml:"page_cap"`
	MaxConcurrency    int           `yaml:"max_concurrency"`
	PageTimeout       time.Duration `yaml:"page_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	StrictPageSize    bool          `yaml:"strict_page_size"`
}

type Segment struct {
	Marker          string `yaml:"marker"`
	PrimaryLanguage string `yaml:"primary_language"`
	TimeZone        string `yaml:"time_zone"`
}

type Export struct {
	DataDir        string `yaml:"data_dir"`
	QuarantineDir  string `yaml:"quarantine_dir"`
	DateFormat     string `yaml:"date_format"`
	FilenameLength int    `yaml:"filename_length"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Log struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the complete crawler configuration.
type Config struct {
	VK          VK      `yaml:"vk"`
	Fetch       Fetch   `yaml:"fetch"`
	Segment     Segment `yaml:"segment"`
	Export      Export  `yaml:"export"`
	Redis       Redis   `yaml:"redis"`
	Log         Log     `yaml:"log"`
	MetricsAddr string  `yaml:"metrics_addr"`
}

// Default returns the embedded defaults without environment overrides.
func Default() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the defaults, overlays the file at path (if path is not empty),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Unmarshalling onto the defaults keeps every field the file omits.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.VK.AccessToken = getEnv(EnvAccessToken, c.VK.AccessToken)
	c.Redis.Addr = getEnv(EnvRedisAddr, c.Redis.Addr)
	c.Redis.DB = getEnvInt(EnvRedisDB, c.Redis.DB)
	c.Log.Level = getEnv(EnvLogLevel, c.Log.Level)
	c.Export.DataDir = getEnv(EnvDataDir, c.Export.DataDir)
}

// Validate checks the settings the crawler cannot run without.
func (c *Config) Validate() error {
	if c.VK.AccessToken == "" {
		return fmt.Errorf("%w: access token is required (set %s)", ErrInvalid, EnvAccessToken)
	}
	if u, err := url.Parse(c.VK.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: invalid base url %q", ErrInvalid, c.VK.BaseURL)
	}
	if c.VK.Method == "" {
		return fmt.Errorf("%w: api method is required", ErrInvalid)
	}
	if c.Fetch.PageCap < 1 || c.Fetch.PageCap > pagination.MaxPageCap {
		return fmt.Errorf("%w: page_cap %d outside 1..%d", ErrInvalid, c.Fetch.PageCap, pagination.MaxPageCap)
	}
	if c.Fetch.MaxConcurrency <= 0 {
		return fmt.Errorf("%w: max_concurrency must be positive, got %d", ErrInvalid, c.Fetch.MaxConcurrency)
	}
	if c.Fetch.PageTimeout <= 0 {
		return fmt.Errorf("%w: page_timeout must be positive, got %s", ErrInvalid, c.Fetch.PageTimeout)
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests_per_second must not be negative", ErrInvalid)
	}
	if _, err := c.PrimaryLanguage(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Export.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalid)
	}
	return nil
}

// PrimaryLanguage resolves segment.primary_language against the known languages.
func (c *Config) PrimaryLanguage() (lang.Language, error) {
	l := lang.Language(c.Segment.PrimaryLanguage)
	if !lang.DefaultClassifier().Knows(l) {
		return lang.Unknown, fmt.Errorf("%w: unknown primary language %q", ErrInvalid, c.Segment.PrimaryLanguage)
	}
	return l, nil
}

// Location resolves segment.time_zone. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Segment.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Segment.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown time zone %q: %v", ErrInvalid, c.Segment.TimeZone, err)
	}
	return loc, nil
}

// Query returns the request parameters sent with every page request.
func (c *Config) Query() url.Values {
	q := make(url.Values, len(c.VK.Query))
	keys := make([]string, 0, len(c.VK.Query))
	for k := range c.VK.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, c.VK.Query[k])
	}
	return q
}

// ClientConfig converts the settings for client.New.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.VK.AccessToken)
	cfg.BaseURL = c.VK.BaseURL
	cfg.Method = c.VK.Method
	if c.VK.APIVersion != "" {
		cfg.APIVersion = c.VK.APIVersion
	}
	if c.VK.UserAgent != "" {
		cfg.UserAgent = c.VK.UserAgent
	}
	if c.VK.HTTPTimeout > 0 {
		cfg.HTTPTimeout = c.VK.HTTPTimeout
	}
	cfg.RateLimit = ratelimit.Config{
		RequestsPerSecond: c.Fetch.RequestsPerSecond,
		Burst:             c.Fetch.Burst,
	}
	return cfg
}

// PaginationConfig converts the settings for pagination.NewBatchFetcher.
func (c *Config) PaginationConfig() pagination.Config {
	return pagination.Config{
		PageCap:         c.Fetch.PageCap,
		MaxConcurrency:  c.Fetch.MaxConcurrency,
		Timeout:         c.Fetch.PageTimeout,
		AllowShortPages: !c.Fetch.StrictPageSize,
	}
}

// SegmentConfig converts the settings for segment.New. Call Validate first.
func (c *Config) SegmentConfig() segment.Config {
	cfg := segment.DefaultConfig()
	cfg.Marker = c.Segment.Marker
	if l, err := c.PrimaryLanguage(); err == nil {
		cfg.Orderer.Primary = l
	}
	if loc, err := c.Location(); err == nil {
		cfg.Location = loc
	}
	return cfg
}

// ExportConfig converts the settings for export.New. Call Validate first.
func (c *Config) ExportConfig() export.Config {
	loc, _ := c.Location()
	return export.Config{
		Dir:            c.Export.DataDir,
		QuarantineDir:  c.Export.QuarantineDir,
		FilenameLength: c.Export.FilenameLength,
		DateLayout:     c.Export.DateFormat,
		Location:       loc,
	}
}

// LoggingConfig converts the log settings. The log file is opened by the caller.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
