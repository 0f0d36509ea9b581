package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/lang"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	if cfg.VK.Method != "wall.search" {
		t.Errorf("Method = %q, want wall.search", cfg.VK.Method)
	}
	if cfg.VK.APIVersion != "5.122" {
		t.Errorf("APIVersion = %q, want 5.122", cfg.VK.APIVersion)
	}
	if cfg.Fetch.PageCap != 100 || cfg.Fetch.MaxConcurrency != 10 {
		t.Errorf("PageCap/MaxConcurrency = %d/%d, want 100/10", cfg.Fetch.PageCap, cfg.Fetch.MaxConcurrency)
	}
	if cfg.Fetch.PageTimeout != 25*time.Second {
		t.Errorf("PageTimeout = %s, want 25s", cfg.Fetch.PageTimeout)
	}
	if cfg.Export.FilenameLength != 32 {
		t.Errorf("FilenameLength = %d, want 32", cfg.Export.FilenameLength)
	}
	if cfg.Export.DateFormat != "01/02/2006" {
		t.Errorf("DateFormat = %q", cfg.Export.DateFormat)
	}
	if got := cfg.Query().Get("domain"); got != "cri_rus" {
		t.Errorf("query domain = %q, want cri_rus", got)
	}
	if cfg.VK.AccessToken != "" {
		t.Error("embedded defaults must not carry an access token")
	}
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	t.Setenv(EnvAccessToken, "")
	path := writeConfig(t, `
vk:
  access_token: file-token
fetch:
  max_concurrency: 4
  page_timeout: 5s
export:
  data_dir: /tmp/corpus
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.VK.AccessToken != "file-token" {
		t.Errorf("AccessToken = %q", cfg.VK.AccessToken)
	}
	if cfg.Fetch.MaxConcurrency != 4 {
		t.Errorf("MaxConcurrency = %d, want 4", cfg.Fetch.MaxConcurrency)
	}
	if cfg.Fetch.PageTimeout != 5*time.Second {
		t.Errorf("PageTimeout = %s, want 5s", cfg.Fetch.PageTimeout)
	}
	// Omitted fields keep their defaults.
	if cfg.Fetch.PageCap != 100 {
		t.Errorf("PageCap = %d, want default 100", cfg.Fetch.PageCap)
	}
	if cfg.VK.Method != "wall.search" {
		t.Errorf("Method = %q, want default", cfg.VK.Method)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvAccessToken, "env-token")
	t.Setenv(EnvRedisAddr, "redis:6380")
	t.Setenv(EnvRedisDB, "3")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvDataDir, "/srv/corpus")

	path := writeConfig(t, "vk:\n  access_token: file-token\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.VK.AccessToken != "env-token" {
		t.Errorf("AccessToken = %q, want env-token", cfg.VK.AccessToken)
	}
	if cfg.Redis.Addr != "redis:6380" || cfg.Redis.DB != 3 {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Export.DataDir != "/srv/corpus" {
		t.Errorf("DataDir = %q", cfg.Export.DataDir)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv(EnvAccessToken, "env-token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Export.DataDir != "data/VK" {
		t.Errorf("DataDir = %q, want data/VK", cfg.Export.DataDir)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(EnvAccessToken, "env-token")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}

	path := writeConfig(t, "fetch: [not, a, map]\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.VK.AccessToken = "" }},
		{"bad base url", func(c *Config) { c.VK.BaseURL = "not a url" }},
		{"empty method", func(c *Config) { c.VK.Method = "" }},
		{"page cap zero", func(c *Config) { c.Fetch.PageCap = 0 }},
		{"page cap above limit", func(c *Config) { c.Fetch.PageCap = 101 }},
		{"zero concurrency", func(c *Config) { c.Fetch.MaxConcurrency = 0 }},
		{"zero timeout", func(c *Config) { c.Fetch.PageTimeout = 0 }},
		{"negative rate", func(c *Config) { c.Fetch.RequestsPerSecond = -1 }},
		{"unknown language", func(c *Config) { c.Segment.PrimaryLanguage = "eng" }},
		{"unknown time zone", func(c *Config) { c.Segment.TimeZone = "Mars/Olympus" }},
		{"empty data dir", func(c *Config) { c.Export.DataDir = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Default()
			if err != nil {
				t.Fatalf("Default() error = %v", err)
			}
			cfg.VK.AccessToken = "token"
			if err := cfg.Validate(); err != nil {
				t.Fatalf("baseline Validate() error = %v", err)
			}

			tt.mutate(cfg)
			err = cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestConverters(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	cfg.VK.AccessToken = "token"
	cfg.Segment.PrimaryLanguage = "zho"
	cfg.Fetch.StrictPageSize = false

	cc := cfg.ClientConfig()
	if cc.AccessToken != "token" || cc.Method != "wall.search" || cc.APIVersion != "5.122" {
		t.Errorf("ClientConfig() = %+v", cc)
	}
	if cc.RateLimit.RequestsPerSecond != 3 || cc.RateLimit.Burst != 1 {
		t.Errorf("RateLimit = %+v", cc.RateLimit)
	}

	pc := cfg.PaginationConfig()
	if pc.PageCap != 100 || pc.MaxConcurrency != 10 || pc.Timeout != 25*time.Second {
		t.Errorf("PaginationConfig() = %+v", pc)
	}
	if !pc.AllowShortPages {
		t.Error("AllowShortPages should follow strict_page_size=false")
	}

	sc := cfg.SegmentConfig()
	if sc.Orderer.Primary != lang.Chinese {
		t.Errorf("Orderer.Primary = %q, want zho", sc.Orderer.Primary)
	}
	if sc.Marker != "#Новости_на_двух_языках" {
		t.Errorf("Marker = %q", sc.Marker)
	}
	if sc.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", sc.Location)
	}

	ec := cfg.ExportConfig()
	if ec.Dir != "data/VK" || ec.FilenameLength != 32 || ec.DateLayout != "01/02/2006" {
		t.Errorf("ExportConfig() = %+v", ec)
	}

	if lc := cfg.LoggingConfig(); lc.Level != "info" || lc.Pretty {
		t.Errorf("LoggingConfig() = %+v", lc)
	}
}
