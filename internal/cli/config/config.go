package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/restdecl/pkg/cache"
	"github.com/conduit-lang/restdecl/pkg/rest"
)

// Cache backends accepted by cache.backend.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the restdecl configuration
type Config struct {
	Transport TransportConfig `mapstructure:"transport"`
	Cache     CacheConfig     `mapstructure:"cache"`
	BaseURLs  []BaseURL       `mapstructure:"base_urls"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// TransportConfig configures the HTTP transport
type TransportConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	JSONPCallback string        `mapstructure:"jsonp_callback"`
}

// CacheConfig configures the response cache engine and its backend
type CacheConfig struct {
	Backend    string        `mapstructure:"backend"`
	Prefix     string        `mapstructure:"prefix"`
	MaxEntries int           `mapstructure:"max_entries"`
	Redis      RedisConfig   `mapstructure:"redis"`
	Sweep      time.Duration `mapstructure:"sweep"`
}

// RedisConfig represents the Redis backend connection
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BaseURL overrides the declared base URL of one definition.
// It is a list entry rather than a map key because viper lower-cases keys.
type BaseURL struct {
	Definition string `mapstructure:"definition"`
	URL        string `mapstructure:"url"`
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AuthConfig holds credentials used by declared clients
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// MetricsConfig toggles Prometheus metrics
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads the configuration from path, or from restdecl.yml / restdecl.yaml
// in the working directory when path is empty. A missing default file is not
// an error. RESTDECL_* environment variables override file values, with
// dots in keys written as underscores (RESTDECL_CACHE_BACKEND).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("transport.timeout", 30*time.Second)
	v.SetDefault("transport.jsonp_callback", "JSONP_CALLBACK")
	v.SetDefault("cache.backend", BackendNone)
	v.SetDefault("cache.prefix", "restdecl:")
	v.SetDefault("cache.max_entries", 0)
	v.SetDefault("cache.sweep", time.Minute)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("metrics.enabled", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("restdecl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RESTDECL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Cache.Backend {
	case BackendNone, BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis, got: %s", cfg.Cache.Backend)
	}
	if cfg.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative, got: %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.Backend == BackendRedis && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when cache.backend is redis")
	}
	if cfg.Transport.Timeout < 0 {
		return fmt.Errorf("transport.timeout must not be negative, got: %s", cfg.Transport.Timeout)
	}
	if _, err := parseLevel(cfg.Log.Level); err != nil {
		return err
	}

	seen := make(map[string]bool, len(cfg.BaseURLs))
	for i, b := range cfg.BaseURLs {
		if b.Definition == "" || b.URL == "" {
			return fmt.Errorf("base_urls[%d] needs both definition and url", i)
		}
		if !strings.HasPrefix(b.URL, "http://") && !strings.HasPrefix(b.URL, "https://") {
			return fmt.Errorf("base_urls[%d].url must be an http(s) URL, got: %s", i, b.URL)
		}
		if seen[b.Definition] {
			return fmt.Errorf("base_urls: %s is listed twice", b.Definition)
		}
		seen[b.Definition] = true
	}
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Runtime is what a Config turns into: the pieces a rest.Client is built from.
type Runtime struct {
	Logger    *zap.Logger
	Transport *rest.HTTPTransport
	Cache     *cache.Engine[*rest.Response]
	Backend   cache.Cache
	Metrics   *rest.Metrics
	Registry  *prometheus.Registry

	baseURLs []BaseURL
}

// Build creates the runtime described by cfg. Callers must Close it.
func Build(cfg *Config) (*Runtime, error) {
	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Logger: logger,
		Transport: rest.NewHTTPTransport(
			rest.WithTimeout(cfg.Transport.Timeout),
			rest.WithJSONPCallback(cfg.Transport.JSONPCallback),
		),
		baseURLs: cfg.BaseURLs,
	}

	rt.Backend, err = newBackend(cfg.Cache)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	opts := []cache.Option{
		cache.WithLogger(logger.Named("cache")),
		cache.WithMaxEntries(cfg.Cache.MaxEntries),
	}
	if rt.Backend != nil {
		opts = append(opts, cache.WithBackend(rt.Backend))
	}
	rt.Cache, err = cache.New[*rest.Response](opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		rt.Registry = prometheus.NewRegistry()
		rt.Metrics = rest.NewMetrics(rt.Registry)
	}

	logger.Debug("runtime built",
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Int("cache_max_entries", cfg.Cache.MaxEntries),
		zap.Duration("transport_timeout", cfg.Transport.Timeout),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	return rt, nil
}

func newBackend(cfg CacheConfig) (cache.Cache, error) {
	common := cache.CacheConfig{
		DefaultTTL: cache.DefaultCacheConfig().DefaultTTL,
		Prefix:     cfg.Prefix,
	}

	switch cfg.Backend {
	case BackendMemory:
		return cache.NewMemoryCacheWithSweep(common, cfg.Sweep), nil
	case BackendRedis:
		rc, err := cache.NewRedisCacheWithConfig(cache.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			CacheConfig: common,
		})
		if err != nil {
			return nil, fmt.Errorf("cache backend: %w", err)
		}
		return rc, nil
	}
	return nil, nil
}

// Options returns the client options carrying the runtime.
func (r *Runtime) Options() []rest.Option {
	opts := []rest.Option{
		rest.WithLogger(r.Logger),
		rest.WithCache(r.Cache),
	}
	if r.Metrics != nil {
		opts = append(opts, rest.WithMetrics(r.Metrics))
	}
	for _, b := range r.baseURLs {
		opts = append(opts, rest.WithBaseURL(b.Definition, b.URL))
	}
	return opts
}

// NewClient creates a client on the runtime's transport.
func (r *Runtime) NewClient(extra ...rest.Option) *rest.Client {
	return rest.NewClient(r.Transport, append(r.Options(), extra...)...)
}

// Close releases the cache backend and flushes the logger.
func (r *Runtime) Close() error {
	var errs []error
	if closer, ok := r.Backend.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if r.Logger != nil {
		// stderr/stdout sync fails on some platforms; nothing useful to report
		_ = r.Logger.Sync()
	}
	return errors.Join(errs...)
}

// NewLogger builds a zap logger for cfg.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
