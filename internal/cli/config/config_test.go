package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/restdecl/pkg/cache"
	"github.com/conduit-lang/restdecl/pkg/rest"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(oldWd) })
	return tmpDir
}

func TestLoad(t *testing.T) {
	// Test loading with no config file (should use defaults)
	chdirTemp(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Transport.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", cfg.Transport.Timeout)
	}
	if cfg.Transport.JSONPCallback != "JSONP_CALLBACK" {
		t.Errorf("expected default callback 'JSONP_CALLBACK', got %s", cfg.Transport.JSONPCallback)
	}
	if cfg.Cache.Backend != BackendNone {
		t.Errorf("expected default backend 'none', got %s", cfg.Cache.Backend)
	}
	if cfg.Cache.Prefix != "restdecl:" {
		t.Errorf("expected default prefix 'restdecl:', got %s", cfg.Cache.Prefix)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Log.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics to be disabled by default")
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	chdirTemp(t)

	configContent := `
transport:
  timeout: 5s
cache:
  backend: memory
  prefix: "test:"
  max_entries: 64
base_urls:
  - definition: PostsAPI
    url: http://localhost:8080
log:
  level: debug
  development: true
auth:
  jwt_secret: s3cret
metrics:
  enabled: true
`
	os.WriteFile("restdecl.yml", []byte(configContent), 0644)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.Transport.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.Transport.Timeout)
	}
	if cfg.Cache.Backend != BackendMemory || cfg.Cache.MaxEntries != 64 || cfg.Cache.Prefix != "test:" {
		t.Errorf("unexpected cache config %+v", cfg.Cache)
	}
	if len(cfg.BaseURLs) != 1 || cfg.BaseURLs[0].Definition != "PostsAPI" {
		t.Fatalf("expected one PostsAPI base url, got %+v", cfg.BaseURLs)
	}
	if cfg.BaseURLs[0].URL != "http://localhost:8080" {
		t.Errorf("expected base url http://localhost:8080, got %s", cfg.BaseURLs[0].URL)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("expected jwt secret 's3cret', got %s", cfg.Auth.JWTSecret)
	}
	if !cfg.Log.Development || cfg.Log.Level != "debug" {
		t.Errorf("unexpected log config %+v", cfg.Log)
	}
	if !cfg.Metrics.Enabled {
		t.Error("expected metrics to be enabled")
	}
}

func TestLoadExplicitPath(t *testing.T) {
	dir := chdirTemp(t)

	path := filepath.Join(dir, "custom.yaml")
	os.WriteFile(path, []byte("cache:\n  backend: redis\n  redis:\n    addr: cache:6379\n    db: 2\n"), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Cache.Redis.Addr != "cache:6379" || cfg.Cache.Redis.DB != 2 {
		t.Errorf("unexpected redis config %+v", cfg.Cache.Redis)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdirTemp(t)
	os.WriteFile("restdecl.yml", []byte("cache:\n  backend: memory\n"), 0644)

	t.Setenv("RESTDECL_CACHE_BACKEND", "none")
	t.Setenv("RESTDECL_TRANSPORT_TIMEOUT", "2s")
	t.Setenv("RESTDECL_AUTH_JWT_SECRET", "from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Cache.Backend != BackendNone {
		t.Errorf("expected env to override backend, got %s", cfg.Cache.Backend)
	}
	if cfg.Transport.Timeout != 2*time.Second {
		t.Errorf("expected timeout 2s, got %s", cfg.Transport.Timeout)
	}
	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("expected jwt secret from env, got %s", cfg.Auth.JWTSecret)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Transport: TransportConfig{Timeout: time.Second},
			Cache:     CacheConfig{Backend: BackendNone},
			Log:       LogConfig{Level: "info"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Cache.Backend = "memcached" }, wantErr: "cache.backend"},
		{name: "negative max entries", mutate: func(c *Config) { c.Cache.MaxEntries = -1 }, wantErr: "cache.max_entries"},
		{name: "redis without addr", mutate: func(c *Config) { c.Cache.Backend = BackendRedis }, wantErr: "cache.redis.addr"},
		{name: "negative timeout", mutate: func(c *Config) { c.Transport.Timeout = -time.Second }, wantErr: "transport.timeout"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{
			name: "base url without scheme",
			mutate: func(c *Config) {
				c.BaseURLs = []BaseURL{{Definition: "PostsAPI", URL: "localhost"}}
			},
			wantErr: "base_urls[0].url",
		},
		{
			name: "base url missing definition",
			mutate: func(c *Config) {
				c.BaseURLs = []BaseURL{{URL: "http://localhost"}}
			},
			wantErr: "needs both",
		},
		{
			name: "duplicate base url",
			mutate: func(c *Config) {
				c.BaseURLs = []BaseURL{
					{Definition: "PostsAPI", URL: "http://a"},
					{Definition: "PostsAPI", URL: "http://b"},
				}
			},
			wantErr: "listed twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuildMemoryBackend(t *testing.T) {
	cfg := &Config{
		Transport: TransportConfig{Timeout: time.Second},
		Cache:     CacheConfig{Backend: BackendMemory, Prefix: "t:", MaxEntries: 8},
		BaseURLs:  []BaseURL{{Definition: "PostsAPI", URL: "http://localhost:9999"}},
		Log:       LogConfig{Level: "error"},
		Metrics:   MetricsConfig{Enabled: true},
	}

	rt, err := Build(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer rt.Close()

	if _, ok := rt.Backend.(*cache.MemoryCache); !ok {
		t.Errorf("expected a memory backend, got %T", rt.Backend)
	}
	if rt.Metrics == nil || rt.Registry == nil {
		t.Error("expected metrics to be built")
	}
	if got := len(rt.Options()); got != 4 {
		t.Errorf("expected 4 client options, got %d", got)
	}

	client := rt.NewClient()
	if client.Cache() != rt.Cache {
		t.Error("expected the client to share the runtime cache engine")
	}
	if client.Transport() != rest.Transport(rt.Transport) {
		t.Error("expected the client to use the runtime transport")
	}
}

func TestBuildRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &Config{
		Cache: CacheConfig{
			Backend: BackendRedis,
			Prefix:  "t:",
			Redis:   RedisConfig{Addr: mr.Addr()},
		},
		Log: LogConfig{Level: "error"},
	}

	rt, err := Build(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer rt.Close()

	if err := rt.Backend.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("expected backend write to succeed, got %v", err)
	}
	if !mr.Exists("t:k") {
		t.Error("expected the key to be written with the configured prefix")
	}

	cfg.Cache.Redis.Addr = "127.0.0.1:1"
	if _, err := Build(cfg); err == nil {
		t.Error("expected an unreachable redis to fail the build")
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "warn", Development: true})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug to be disabled at warn level")
	}

	if _, err := NewLogger(LogConfig{Level: "chatty"}); err == nil {
		t.Error("expected an invalid level to fail")
	}
}
