package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	LLMProviderOpenAI    = "openai"
	LLMProviderAnthropic = "anthropic"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	CORS          CORSConfig
	Target        TargetConfig
	LLM           LLMConfig
	Pipeline      PipelineConfig
	Guard         GuardConfig
	History       HistoryConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type CORSConfig struct {
	AllowedOrigin    string
	AllowCredentials bool
}

// TargetConfig controls how handles to caller-supplied databases are opened.
type TargetConfig struct {
	DefaultDriver string
	// AllowedDrivers bounds what a request may ask for. Embedded drivers such as duckdb
	// touch the API host's filesystem and stay off unless listed.
	AllowedDrivers  []string
	ConnectTimeout  time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PoolEnabled     bool
	PoolMaxEntries  int
	PoolIdleTTL     time.Duration
}

type LLMConfig struct {
	Provider    string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// PipelineConfig bounds each external call made while serving one request.
type PipelineConfig struct {
	LLMCallTimeout time.Duration
	SchemaTimeout  time.Duration
	ExecuteTimeout time.Duration
}

type GuardConfig struct {
	AllowedStatements []string
	DeniedStatements  []string
	Explain           bool
}

type HistoryConfig struct {
	Enabled       bool
	BatchSize     int
	FlushInterval time.Duration
	Prefix        string
	MaxBuffered   int
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLPROMPT_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLPROMPT_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "SQLPROMPT_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "SQLPROMPT_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "SQLPROMPT_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "SQLPROMPT_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "SQLPROMPT_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "SQLPROMPT_CORS_ALLOWED_ORIGIN", &cfg.CORS.AllowedOrigin) },
		func() error { return applyBool(lookup, "SQLPROMPT_CORS_ALLOW_CREDENTIALS", &cfg.CORS.AllowCredentials) },
		func() error { return applyString(lookup, "SQLPROMPT_TARGET_DEFAULT_DRIVER", &cfg.Target.DefaultDriver) },
		func() error { return applyList(lookup, "SQLPROMPT_TARGET_ALLOWED_DRIVERS", &cfg.Target.AllowedDrivers) },
		func() error {
			return applyDuration(lookup, "SQLPROMPT_TARGET_CONNECT_TIMEOUT", &cfg.Target.ConnectTimeout)
		},
		func() error { return applyInt(lookup, "SQLPROMPT_TARGET_MAX_OPEN_CONNS", &cfg.Target.MaxOpenConns) },
		func() error { return applyInt(lookup, "SQLPROMPT_TARGET_MAX_IDLE_CONNS", &cfg.Target.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "SQLPROMPT_TARGET_CONN_MAX_LIFETIME", &cfg.Target.ConnMaxLifetime)
		},
		func() error { return applyBool(lookup, "SQLPROMPT_TARGET_POOL_ENABLED", &cfg.Target.PoolEnabled) },
		func() error { return applyInt(lookup, "SQLPROMPT_TARGET_POOL_MAX_ENTRIES", &cfg.Target.PoolMaxEntries) },
		func() error { return applyDuration(lookup, "SQLPROMPT_TARGET_POOL_IDLE_TTL", &cfg.Target.PoolIdleTTL) },
		func() error { return applyString(lookup, "SQLPROMPT_LLM_PROVIDER", &cfg.LLM.Provider) },
		func() error { return applyString(lookup, "SQLPROMPT_LLM_BASE_URL", &cfg.LLM.BaseURL) },
		func() error { return applyString(lookup, "SQLPROMPT_LLM_API_KEY", &cfg.LLM.APIKey) },
		func() error { return applyString(lookup, "SQLPROMPT_LLM_MODEL", &cfg.LLM.Model) },
		func() error { return applyFloat(lookup, "SQLPROMPT_LLM_TEMPERATURE", &cfg.LLM.Temperature) },
		func() error { return applyInt64(lookup, "SQLPROMPT_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens) },
		func() error { return applyDuration(lookup, "SQLPROMPT_LLM_TIMEOUT", &cfg.LLM.Timeout) },
		func() error {
			return applyDuration(lookup, "SQLPROMPT_PIPELINE_LLM_CALL_TIMEOUT", &cfg.Pipeline.LLMCallTimeout)
		},
		func() error {
			return applyDuration(lookup, "SQLPROMPT_PIPELINE_SCHEMA_TIMEOUT", &cfg.Pipeline.SchemaTimeout)
		},
		func() error {
			return applyDuration(lookup, "SQLPROMPT_PIPELINE_EXECUTE_TIMEOUT", &cfg.Pipeline.ExecuteTimeout)
		},
		func() error {
			return applyList(lookup, "SQLPROMPT_GUARD_ALLOWED_STATEMENTS", &cfg.Guard.AllowedStatements)
		},
		func() error {
			return applyList(lookup, "SQLPROMPT_GUARD_DENIED_STATEMENTS", &cfg.Guard.DeniedStatements)
		},
		func() error { return applyBool(lookup, "SQLPROMPT_GUARD_EXPLAIN", &cfg.Guard.Explain) },
		func() error { return applyBool(lookup, "SQLPROMPT_HISTORY_ENABLED", &cfg.History.Enabled) },
		func() error { return applyInt(lookup, "SQLPROMPT_HISTORY_BATCH_SIZE", &cfg.History.BatchSize) },
		func() error { return applyInt(lookup, "SQLPROMPT_HISTORY_MAX_BUFFERED", &cfg.History.MaxBuffered) },
		func() error {
			return applyDuration(lookup, "SQLPROMPT_HISTORY_FLUSH_INTERVAL", &cfg.History.FlushInterval)
		},
		func() error { return applyString(lookup, "SQLPROMPT_HISTORY_PREFIX", &cfg.History.Prefix) },
		func() error { return applyString(lookup, "SQLPROMPT_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "SQLPROMPT_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "SQLPROMPT_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error {
			return applyString(lookup, "SQLPROMPT_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID)
		},
		func() error {
			return applyString(lookup, "SQLPROMPT_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "SQLPROMPT_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "SQLPROMPT_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error {
			return applyBool(lookup, "SQLPROMPT_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket)
		},
		func() error { return applyBool(lookup, "SQLPROMPT_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "SQLPROMPT_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Target.DefaultDriver = strings.ToLower(cfg.Target.DefaultDriver)
	cfg.LLM.Provider = strings.ToLower(cfg.LLM.Provider)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if len(cfg.Target.AllowedDrivers) == 0 {
		return Config{}, fmt.Errorf("target allowed drivers must not be empty")
	}
	if !slices.Contains(cfg.Target.AllowedDrivers, cfg.Target.DefaultDriver) {
		return Config{}, fmt.Errorf("target default driver %q is not in SQLPROMPT_TARGET_ALLOWED_DRIVERS", cfg.Target.DefaultDriver)
	}
	if cfg.CORS.AllowedOrigin == "" {
		return Config{}, fmt.Errorf("cors allowed origin is required")
	}
	switch cfg.LLM.Provider {
	case LLMProviderOpenAI, LLMProviderAnthropic:
	default:
		return Config{}, fmt.Errorf("invalid SQLPROMPT_LLM_PROVIDER: %q", cfg.LLM.Provider)
	}
	if cfg.History.Enabled && cfg.History.BatchSize <= 0 {
		return Config{}, fmt.Errorf("history batch size must be > 0")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlprompt-api"},
		HTTP: HTTPConfig{
			Address:      ":8000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigin:    "http://localhost:5173",
			AllowCredentials: true,
		},
		Target: TargetConfig{
			DefaultDriver:   "mysql",
			AllowedDrivers:  []string{"mysql", "postgres"},
			ConnectTimeout:  5 * time.Second,
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 10 * time.Minute,
			PoolEnabled:     false,
			PoolMaxEntries:  16,
			PoolIdleTTL:     5 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:    LLMProviderOpenAI,
			Model:       "gemini-2.0-flash",
			Temperature: 0,
			MaxTokens:   1024,
			Timeout:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			LLMCallTimeout: 30 * time.Second,
			SchemaTimeout:  10 * time.Second,
			ExecuteTimeout: 30 * time.Second,
		},
		Guard: GuardConfig{
			DeniedStatements: []string{"drop", "truncate", "alter", "create", "rename", "grant", "revoke"},
		},
		History: HistoryConfig{
			Enabled:       false,
			BatchSize:     200,
			FlushInterval: time.Minute,
			Prefix:        "history",
			MaxBuffered:   2000,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlprompt",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18000"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Observability.LogJSON = true
		cfg.Target.PoolEnabled = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyList reads a comma-separated, case-insensitive list. An empty value clears dst.
func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		values = append(values, part)
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
