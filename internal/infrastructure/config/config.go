package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session backends
const (
	SessionBackendMemory = "memory"
	SessionBackendFile   = "file"
	SessionBackendRedis  = "redis"
)

// Chat de-duplication backends
const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)

// Config holds all client configuration
type Config struct {
	App       AppConfig
	API       APIConfig
	Realtime  RealtimeConfig
	Session   SessionConfig
	Redis     RedisConfig
	Chat      ChatConfig
	History   HistoryConfig
	OCR       OCRConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Metrics   MetricsConfig
	Devserver DevserverConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	Profile string // name of the local account profile, used to key stored sessions
}

// APIConfig holds REST client settings
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// RealtimeConfig holds push channel settings
type RealtimeConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	SendBuffer       int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	BackoffFactor    float64
	MaxElapsed       time.Duration // 0 = retry until closed
	EmitRate         float64       // outbound events per second
	EmitBurst        int
}

// SessionConfig selects where the login session is kept
type SessionConfig struct {
	Backend        string // memory, file, redis
	Path           string
	EncryptionKey  string
	RedisKeyPrefix string
	FallbackToFile bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ChatConfig holds chat client settings
type ChatConfig struct {
	DedupBackend string // memory, redis
	DedupTTL     time.Duration
}

// HistoryConfig holds balance history settings
type HistoryConfig struct {
	Attempts  int
	RetryBase time.Duration
	Timezone  string
}

// Location resolves the configured timezone, falling back to local time
func (h HistoryConfig) Location() *time.Location {
	if h.Timezone == "" || h.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// OCRConfig holds the ID card OCR endpoint
type OCRConfig struct {
	URL     string
	Timeout time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
}

// MetricsConfig controls the prometheus endpoint
type MetricsConfig struct {
	Enabled bool
	Listen  string
	Path    string
}

// DevserverConfig holds settings of the local development platform server
type DevserverConfig struct {
	Addr            string
	JWTSecret       string
	Issuer          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	DBDriver        string // sqlite, postgres
	DSN             string
	Seed            bool
	SeedCount       int
	SeedValue       int64
	AllowedOrigins  []string
	LoginRate       int // login attempts per minute per client IP, negative disables the limit

	// Scheduled trips are turned into bookings DispatchLead before pickup
	DispatchInterval time.Duration // negative disables the dispatcher
	DispatchLead     time.Duration
	DispatchWorkers  int
	DispatchRetries  int
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with LOGIRIDE_ prefix (e.g., LOGIRIDE_API_BASE_URL)
// 2. config.toml in ., $HOME/.logiride or /etc/logiride
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".logiride"))
		}
		v.AddConfigPath("/etc/logiride")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LOGIRIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Profile: v.GetString("app.profile"),
		},
		API: APIConfig{
			BaseURL:   v.GetString("api.base_url"),
			Timeout:   v.GetDuration("api.timeout"),
			UserAgent: v.GetString("api.user_agent"),
		},
		Realtime: RealtimeConfig{
			URL:              v.GetString("realtime.url"),
			HandshakeTimeout: v.GetDuration("realtime.handshake_timeout"),
			WriteTimeout:     v.GetDuration("realtime.write_timeout"),
			PingInterval:     v.GetDuration("realtime.ping_interval"),
			PongTimeout:      v.GetDuration("realtime.pong_timeout"),
			SendBuffer:       v.GetInt("realtime.send_buffer"),
			InitialBackoff:   v.GetDuration("realtime.initial_backoff"),
			MaxBackoff:       v.GetDuration("realtime.max_backoff"),
			BackoffFactor:    v.GetFloat64("realtime.backoff_factor"),
			MaxElapsed:       v.GetDuration("realtime.max_elapsed"),
			EmitRate:         v.GetFloat64("realtime.emit_rate"),
			EmitBurst:        v.GetInt("realtime.emit_burst"),
		},
		Session: SessionConfig{
			Backend:        v.GetString("session.backend"),
			Path:           v.GetString("session.path"),
			EncryptionKey:  v.GetString("session.encryption_key"),
			RedisKeyPrefix: v.GetString("session.redis_key_prefix"),
			FallbackToFile: v.GetBool("session.fallback_to_file"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Chat: ChatConfig{
			DedupBackend: v.GetString("chat.dedup_backend"),
			DedupTTL:     v.GetDuration("chat.dedup_ttl"),
		},
		History: HistoryConfig{
			Attempts:  v.GetInt("history.attempts"),
			RetryBase: v.GetDuration("history.retry_base"),
			Timezone:  v.GetString("history.timezone"),
		},
		OCR: OCRConfig{
			URL:     v.GetString("ocr.url"),
			Timeout: v.GetDuration("ocr.timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Listen:  v.GetString("metrics.listen"),
			Path:    v.GetString("metrics.path"),
		},
		Devserver: DevserverConfig{
			Addr:            v.GetString("devserver.addr"),
			JWTSecret:       v.GetString("devserver.jwt_secret"),
			Issuer:          v.GetString("devserver.issuer"),
			AccessTokenTTL:  v.GetDuration("devserver.access_token_ttl"),
			RefreshTokenTTL: v.GetDuration("devserver.refresh_token_ttl"),
			DBDriver:        v.GetString("devserver.db_driver"),
			DSN:             v.GetString("devserver.dsn"),
			Seed:            v.GetBool("devserver.seed"),
			SeedCount:       v.GetInt("devserver.seed_count"),
			SeedValue:       v.GetInt64("devserver.seed_value"),
			AllowedOrigins:  v.GetStringSlice("devserver.allowed_origins"),
			LoginRate:       v.GetInt("devserver.login_rate"),

			DispatchInterval: v.GetDuration("devserver.dispatch_interval"),
			DispatchLead:     v.GetDuration("devserver.dispatch_lead"),
			DispatchWorkers:  v.GetInt("devserver.dispatch_workers"),
			DispatchRetries:  v.GetInt("devserver.dispatch_retries"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading files or the environment
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "logiride"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Profile == "" {
		cfg.App.Profile = "default"
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8088"
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 15 * time.Second
	}
	if cfg.API.UserAgent == "" {
		cfg.API.UserAgent = "logiride-client/1.0"
	}
	if cfg.Realtime.URL == "" {
		cfg.Realtime.URL = "ws://localhost:8088/ws"
	}
	if cfg.Realtime.HandshakeTimeout == 0 {
		cfg.Realtime.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Realtime.WriteTimeout == 0 {
		cfg.Realtime.WriteTimeout = 10 * time.Second
	}
	if cfg.Realtime.PingInterval == 0 {
		cfg.Realtime.PingInterval = 25 * time.Second
	}
	if cfg.Realtime.PongTimeout == 0 {
		cfg.Realtime.PongTimeout = 60 * time.Second
	}
	if cfg.Realtime.SendBuffer == 0 {
		cfg.Realtime.SendBuffer = 64
	}
	if cfg.Realtime.InitialBackoff == 0 {
		cfg.Realtime.InitialBackoff = time.Second
	}
	if cfg.Realtime.MaxBackoff == 0 {
		cfg.Realtime.MaxBackoff = 30 * time.Second
	}
	if cfg.Realtime.BackoffFactor == 0 {
		cfg.Realtime.BackoffFactor = 2
	}
	if cfg.Realtime.EmitRate == 0 {
		cfg.Realtime.EmitRate = 10
	}
	if cfg.Realtime.EmitBurst == 0 {
		cfg.Realtime.EmitBurst = 20
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = SessionBackendFile
	}
	if cfg.Session.Path == "" {
		cfg.Session.Path = defaultSessionPath()
	}
	if cfg.Session.RedisKeyPrefix == "" {
		cfg.Session.RedisKeyPrefix = "session:"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Chat.DedupBackend == "" {
		cfg.Chat.DedupBackend = DedupBackendMemory
	}
	if cfg.Chat.DedupTTL == 0 {
		cfg.Chat.DedupTTL = time.Hour
	}
	if cfg.History.Attempts == 0 {
		cfg.History.Attempts = 3
	}
	if cfg.History.RetryBase == 0 {
		cfg.History.RetryBase = 2 * time.Second
	}
	if cfg.History.Timezone == "" {
		cfg.History.Timezone = "Local"
	}
	if cfg.OCR.URL == "" {
		cfg.OCR.URL = strings.TrimRight(cfg.API.BaseURL, "/") + "/api/ocr/id-card"
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = 30 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9102"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Devserver.Addr == "" {
		cfg.Devserver.Addr = ":8088"
	}
	if cfg.Devserver.JWTSecret == "" && cfg.App.Env != "production" {
		cfg.Devserver.JWTSecret = "logiride-devserver-insecure-secret"
	}
	if cfg.Devserver.Issuer == "" {
		cfg.Devserver.Issuer = "logiride-devserver"
	}
	if cfg.Devserver.AccessTokenTTL == 0 {
		cfg.Devserver.AccessTokenTTL = time.Hour
	}
	if cfg.Devserver.RefreshTokenTTL == 0 {
		cfg.Devserver.RefreshTokenTTL = 168 * time.Hour
	}
	if cfg.Devserver.DBDriver == "" {
		cfg.Devserver.DBDriver = "sqlite"
	}
	if cfg.Devserver.DSN == "" && cfg.Devserver.DBDriver == "sqlite" {
		cfg.Devserver.DSN = "file:logiride-dev.db?_foreign_keys=on"
	}
	if cfg.Devserver.SeedCount == 0 {
		cfg.Devserver.SeedCount = 20
	}
	if cfg.Devserver.LoginRate == 0 {
		cfg.Devserver.LoginRate = 30
	}
	if cfg.Devserver.DispatchInterval == 0 {
		cfg.Devserver.DispatchInterval = 30 * time.Second
	}
	if cfg.Devserver.DispatchLead == 0 {
		cfg.Devserver.DispatchLead = 15 * time.Minute
	}
	if cfg.Devserver.DispatchWorkers == 0 {
		cfg.Devserver.DispatchWorkers = 2
	}
	if cfg.Devserver.DispatchRetries == 0 {
		cfg.Devserver.DispatchRetries = 3
	}
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "logiride", "session.json")
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	api, err := url.Parse(c.API.BaseURL)
	if err != nil || (api.Scheme != "http" && api.Scheme != "https") || api.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	ws, err := url.Parse(c.Realtime.URL)
	if err != nil || (ws.Scheme != "ws" && ws.Scheme != "wss") || ws.Host == "" {
		return fmt.Errorf("realtime.url must be an absolute ws(s) URL, got %q", c.Realtime.URL)
	}
	if c.API.Timeout < 0 || c.Realtime.WriteTimeout < 0 || c.OCR.Timeout < 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Realtime.PingInterval >= c.Realtime.PongTimeout {
		return fmt.Errorf("realtime.ping_interval (%s) must be shorter than realtime.pong_timeout (%s)",
			c.Realtime.PingInterval, c.Realtime.PongTimeout)
	}
	if c.Realtime.InitialBackoff > c.Realtime.MaxBackoff {
		return fmt.Errorf("realtime.initial_backoff cannot exceed realtime.max_backoff")
	}
	if c.Realtime.BackoffFactor < 1 {
		return fmt.Errorf("realtime.backoff_factor must be at least 1, got %f", c.Realtime.BackoffFactor)
	}
	if c.Realtime.SendBuffer < 0 || c.Realtime.EmitBurst < 0 || c.Realtime.EmitRate < 0 {
		return fmt.Errorf("realtime buffer and rate settings cannot be negative")
	}

	switch c.Session.Backend {
	case SessionBackendMemory, SessionBackendFile, SessionBackendRedis:
	default:
		return fmt.Errorf("session.backend must be one of memory, file, redis; got %q", c.Session.Backend)
	}
	switch c.Chat.DedupBackend {
	case DedupBackendMemory, DedupBackendRedis:
	default:
		return fmt.Errorf("chat.dedup_backend must be memory or redis; got %q", c.Chat.DedupBackend)
	}
	if c.History.Attempts < 1 {
		return fmt.Errorf("history.attempts must be at least 1")
	}
	switch c.Devserver.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("devserver.db_driver must be sqlite or postgres; got %q", c.Devserver.DBDriver)
	}

	if c.App.Env == "production" {
		if ws.Scheme != "wss" {
			return fmt.Errorf("realtime.url must use wss:// in production")
		}
		if api.Scheme != "https" {
			return fmt.Errorf("api.base_url must use https:// in production")
		}
		if c.Session.Backend == SessionBackendFile && c.Session.EncryptionKey == "" {
			return fmt.Errorf("session.encryption_key is required in production")
		}
		if c.Session.EncryptionKey != "" && len(c.Session.EncryptionKey) < 16 {
			return fmt.Errorf("session.encryption_key must be at least 16 characters in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// IsProduction reports whether the app runs in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
