package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Privacy    PrivacyConfig    `yaml:"privacy" mapstructure:"privacy"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Generator  GeneratorConfig  `yaml:"generator" mapstructure:"generator"`
	Security   SecurityConfig   `yaml:"security" mapstructure:"security"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	WebSocket  WebSocketConfig  `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `yaml:"port" mapstructure:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxUploadSize int64         `yaml:"max_upload_size" mapstructure:"max_upload_size"`
}

// PrivacyConfig controls detection: which categories are requested, the
// confidence floor and where recognizer definitions come from.
type PrivacyConfig struct {
	MinScore        float64            `yaml:"min_score" mapstructure:"min_score"`
	Entities        []string           `yaml:"entities" mapstructure:"entities"`
	DisableBuiltins bool               `yaml:"disable_builtins" mapstructure:"disable_builtins"`
	RecognizersFile string             `yaml:"recognizers_file" mapstructure:"recognizers_file"`
	Recognizers     []RecognizerConfig `yaml:"recognizers" mapstructure:"recognizers"`
	Jargon          JargonConfig       `yaml:"jargon" mapstructure:"jargon"`
}

// RecognizerConfig is a recognizer definition. A definition with a deny list
// becomes a deny-list recognizer; otherwise each pattern becomes a pattern
// recognizer.
type RecognizerConfig struct {
	Name            string          `yaml:"name" mapstructure:"name" json:"name"`
	SupportedEntity string          `yaml:"supported_entity" mapstructure:"supported_entity" json:"supported_entity"`
	Enabled         *bool           `yaml:"enabled,omitempty" mapstructure:"enabled" json:"enabled,omitempty"`
	Patterns        []PatternConfig `yaml:"patterns,omitempty" mapstructure:"patterns" json:"patterns,omitempty"`
	DenyList        []string        `yaml:"deny_list,omitempty" mapstructure:"deny_list" json:"deny_list,omitempty"`
	DenyListScore   float64         `yaml:"deny_list_score,omitempty" mapstructure:"deny_list_score" json:"deny_list_score,omitempty"`
	CaseSensitive   bool            `yaml:"case_sensitive,omitempty" mapstructure:"case_sensitive" json:"case_sensitive,omitempty"`
	Validator       string          `yaml:"validator,omitempty" mapstructure:"validator" json:"validator,omitempty"`
}

// IsEnabled returns true if the recognizer is enabled (defaults to true when nil).
func (r RecognizerConfig) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" mapstructure:"name" json:"name"`
	Regex string  `yaml:"regex" mapstructure:"regex" json:"regex"`
	Score float64 `yaml:"score" mapstructure:"score" json:"score"`
}

// JargonConfig is the organization-specific deny list.
type JargonConfig struct {
	Terms         []string `yaml:"terms" mapstructure:"terms"`
	CaseSensitive bool     `yaml:"case_sensitive" mapstructure:"case_sensitive"`
}

// ValidationConfig bounds raw input before detection runs.
type ValidationConfig struct {
	MaxLength        int      `yaml:"max_length" mapstructure:"max_length"`
	ForbiddenPhrases []string `yaml:"forbidden_phrases" mapstructure:"forbidden_phrases"`
}

// AuditConfig selects and configures the ledger backend.
type AuditConfig struct {
	Enabled   bool           `yaml:"enabled" mapstructure:"enabled"`
	Backend   string         `yaml:"backend" mapstructure:"backend"` // file, postgres or redis
	FilePath  string         `yaml:"file_path" mapstructure:"file_path"`
	QueueSize int            `yaml:"queue_size" mapstructure:"queue_size"`
	Postgres  PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	Redis     RedisConfig    `yaml:"redis" mapstructure:"redis"`
}

// PostgresConfig contains database configuration
type PostgresConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	Table           string        `yaml:"table" mapstructure:"table"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// RedisConfig contains Redis ledger configuration
type RedisConfig struct {
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	Key      string `yaml:"key" mapstructure:"key"`
	PoolSize int    `yaml:"pool_size" mapstructure:"pool_size"`
}

// GeneratorConfig contains the external text-generation service settings
type GeneratorConfig struct {
	Provider        string          `yaml:"provider" mapstructure:"provider"`
	BaseURL         string          `yaml:"base_url" mapstructure:"base_url"`
	Model           string          `yaml:"model" mapstructure:"model"`
	APIKey          string          `yaml:"api_key" mapstructure:"api_key"`
	SystemDirective string          `yaml:"system_directive" mapstructure:"system_directive"`
	Temperature     float64         `yaml:"temperature" mapstructure:"temperature"`
	Timeout         time.Duration   `yaml:"timeout" mapstructure:"timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig is a token bucket in requests per second.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// SecurityConfig contains request guardrails for the HTTP surface
type SecurityConfig struct {
	RateLimit ClientRateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ClientRateLimitConfig limits requests per client IP.
type ClientRateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string        `yaml:"level" mapstructure:"level"`
	Format string        `yaml:"format" mapstructure:"format"` // json or console
	File   LogFileConfig `yaml:"file" mapstructure:"file"`
}

// LogFileConfig enables an additional JSON log file.
type LogFileConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// WebSocketConfig contains the operator live-event feed configuration
type WebSocketConfig struct {
	Enabled  bool         `yaml:"enabled" mapstructure:"enabled"`
	Path     string       `yaml:"path" mapstructure:"path"`
	Username string       `yaml:"username" mapstructure:"username"`
	Password string       `yaml:"password" mapstructure:"password"`
	Events   EventsConfig `yaml:"events" mapstructure:"events"`
}

// EventsConfig toggles individual event streams.
type EventsConfig struct {
	BroadcastRedactions    bool `yaml:"broadcast_redactions" mapstructure:"broadcast_redactions"`
	BroadcastAuditFailures bool `yaml:"broadcast_audit_failures" mapstructure:"broadcast_audit_failures"`
	BroadcastSystem        bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
	BroadcastConnections   bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
}

// DefaultEntities is the category set requested when none is configured.
var DefaultEntities = []string{
	"PERSON", "EMAIL_ADDRESS", "PHONE_NUMBER", "LOCATION", "CREDIT_CARD",
	"US_SSN", "US_PASSPORT", "IBAN_CODE", "CUSTOM_JARGON",
}

// DefaultSystemDirective asks the generator to echo placeholders verbatim.
const DefaultSystemDirective = "You are a helpful assistant. Preserve placeholders like <PERSON> exactly."

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  90 * time.Second,
			IdleTimeout:   60 * time.Second,
			MaxUploadSize: 10 << 20,
		},
		Privacy: PrivacyConfig{
			MinScore: 0.4,
			Entities: append([]string(nil), DefaultEntities...),
			Jargon: JargonConfig{
				Terms: []string{"Project Apollo", "Skynet"},
			},
		},
		Validation: ValidationConfig{
			MaxLength:        10000,
			ForbiddenPhrases: []string{"ignore previous instructions", "system override"},
		},
		Audit: AuditConfig{
			Enabled:   true,
			Backend:   "file",
			FilePath:  "audit_log.json",
			QueueSize: 256,
			Postgres: PostgresConfig{
				Table:           "audit_events",
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 30 * time.Minute,
			},
			Redis: RedisConfig{
				RedisURL: "redis://localhost:6379/0",
				Key:      "pii-gateway:audit",
				PoolSize: 10,
			},
		},
		Generator: GeneratorConfig{
			Provider:        "groq",
			BaseURL:         "https://api.groq.com/openai/v1",
			Model:           "llama-3.3-70b-versatile",
			SystemDirective: DefaultSystemDirective,
			Temperature:     0.7,
			Timeout:         60 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 5,
				Burst:             5,
			},
		},
		Security: SecurityConfig{
			RateLimit: ClientRateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 120,
				Burst:          20,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: LogFileConfig{
				Enabled: false,
				Path:    "logs/gateway.log",
			},
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Path:    "/ws",
			Events: EventsConfig{
				BroadcastRedactions:    true,
				BroadcastAuditFailures: true,
				BroadcastSystem:        true,
				BroadcastConnections:   true,
			},
		},
	}
}
