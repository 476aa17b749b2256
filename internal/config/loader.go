// Package config provides centralized configuration management for LinguaLens.
// Defaults are registered on a viper instance, a YAML config file is merged
// over them, then environment variables (a local .env file is loaded first)
// and finally runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lingualens/lingualens/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex

	configFile string
	dotenvFile = ".env"
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

// SetConfigFile pins an explicit config file; an empty path restores discovery.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// Load builds the configuration from defaults, config file, environment and
// runtime overrides, in increasing precedence.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	_ = ctx

	if err := loadDotenv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	envOverrides, err := gfconfig.LoadEnvOverrides(getEnvSpecs())
	if err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if envOverrides == nil {
		envOverrides = map[string]any{}
	}

	prefix := appid.EnvPrefix()
	if value := strings.TrimSpace(os.Getenv(prefix + "RATE_LIMIT_MARGIN")); value != "" {
		margin, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit margin: %w", err)
		}
		envOverrides["rate_limit_margin"] = margin
	}
	if err := applyRateLimitEnvOverrides(prefix, envOverrides); err != nil {
		return nil, err
	}

	if err := v.MergeConfigMap(envOverrides); err != nil {
		return nil, fmt.Errorf("failed to merge environment overrides: %w", err)
	}
	for _, overrides := range runtimeOverrides {
		if len(overrides) == 0 {
			continue
		}
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge runtime overrides: %w", err)
		}
	}

	cfg, err := decode(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// Validate rejects values that would fail later in less obvious ways.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Cache.Backend)) {
	case "", "memory", "store", "redis":
	default:
		return fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
	if strings.EqualFold(c.Cache.Backend, "redis") && strings.TrimSpace(c.Redis.URL) == "" {
		return errors.New("cache backend redis requires redis.url")
	}
	if c.RateLimitMargin <= 0 || c.RateLimitMargin > 1 {
		return fmt.Errorf("rate_limit_margin must be within (0, 1], got %v", c.RateLimitMargin)
	}
	for name, value := range c.RateLimits {
		if value < 0 {
			return fmt.Errorf("rate_limits.%s must not be negative", name)
		}
	}
	return nil
}

func decode(settings map[string]any) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

func loadDotenv() error {
	if strings.TrimSpace(dotenvFile) == "" {
		return nil
	}
	if err := godotenv.Load(dotenvFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", dotenvFile, err)
	}
	return nil
}

func readConfigFile(v *viper.Viper) error {
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", explicit, err)
		}
		return nil
	}

	identity := appid.Get()
	if dir := gfconfig.GetAppConfigDir(identity.ConfigName); strings.TrimSpace(dir) != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.user_agent", "lingualens")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.auth_secret", "")
	v.SetDefault("server.token_ttl", "24h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Cache defaults
	v.SetDefault("cache.backend", "store")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.clean_on_start", true)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "lingualens:cache:")

	// Stats defaults
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.toxicity_threshold", 0.7)
	v.SetDefault("stats.history_limit", 50)

	// Rate limit overrides (optional)
	v.SetDefault("rate_limits", map[string]int{})
	v.SetDefault("rate_limit_margin", 1.0)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	prefix := appid.EnvPrefix()

	return []EnvVarSpec{
		// API config
		{Name: prefix + "API_URL", Path: []string{"api", "base_url"}, Type: EnvString},
		{Name: prefix + "API_TIMEOUT", Path: []string{"api", "timeout"}, Type: EnvString},

		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},
		{Name: prefix + "AUTH_SECRET", Path: []string{"server", "auth_secret"}, Type: EnvString},
		{Name: prefix + "TOKEN_TTL", Path: []string{"server", "token_ttl"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Store config
		{Name: prefix + "DB_DRIVER", Path: []string{"store", "driver"}, Type: EnvString},
		{Name: prefix + "DB_PATH", Path: []string{"store", "path"}, Type: EnvString},
		{Name: prefix + "DB_URL", Path: []string{"store", "url"}, Type: EnvString},
		{Name: prefix + "DB_AUTH_TOKEN", Path: []string{"store", "auth_token"}, Type: EnvString},

		// Cache config
		{Name: prefix + "CACHE_BACKEND", Path: []string{"cache", "backend"}, Type: EnvString},
		{Name: prefix + "CACHE_TTL", Path: []string{"cache", "ttl"}, Type: EnvString},
		{Name: prefix + "CACHE_CLEAN_ON_START", Path: []string{"cache", "clean_on_start"}, Type: EnvBool},
		{Name: prefix + "REDIS_URL", Path: []string{"redis", "url"}, Type: EnvString},
		{Name: prefix + "REDIS_KEY_PREFIX", Path: []string{"redis", "key_prefix"}, Type: EnvString},

		// Stats config
		{Name: prefix + "STATS_ENABLED", Path: []string{"stats", "enabled"}, Type: EnvBool},
		{Name: prefix + "HISTORY_LIMIT", Path: []string{"stats", "history_limit"}, Type: EnvInt},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},
	}
}

// applyRateLimitEnvOverrides maps {PREFIX}RATE_LIMITS_<POLICY>=<n> onto rate_limits.<policy>.
func applyRateLimitEnvOverrides(prefix string, envOverrides map[string]any) error {
	limitsPrefix := prefix + "RATE_LIMITS_"

	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		if !ok || !strings.HasPrefix(key, limitsPrefix) {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		policy := strings.ToLower(strings.TrimSpace(key[len(limitsPrefix):]))
		if policy == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		limits := ensureMap(envOverrides, "rate_limits")
		limits[policy] = parsed
	}
	return nil
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appid.Get().ConfigName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(appid.Get().ConfigName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	identity := appid.Get()
	dataDir := gfconfig.GetAppDataDir(identity.ConfigName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + identity.BinaryName + ".db"
	}
	return filepath.Join(dataDir, identity.BinaryName+".db")
}
