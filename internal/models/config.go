package models

// Config holds the application configuration
type Config struct {
	Client   ClientConfig   `json:"client" yaml:"client"`
	Chat     ChatConfig     `json:"chat" yaml:"chat"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Media    MediaConfig    `json:"media" yaml:"media"`
	Tracing  TracingConfig  `json:"tracing" yaml:"tracing"`
	LogLevel string         `json:"log_level" yaml:"log_level"`
}

// ClientConfig identifies the signed-in user and the backend the CLI talks to.
type ClientConfig struct {
	APIBaseURL     string `json:"api_base_url" yaml:"api_base_url"`
	UserID         string `json:"user_id" yaml:"user_id"`
	DisplayName    string `json:"display_name" yaml:"display_name"`
	Token          string `json:"token" yaml:"token"`
	HTTPTimeoutSec int    `json:"http_timeout_sec" yaml:"http_timeout_sec"`
}

// ChatConfig tunes the synchronization core.
type ChatConfig struct {
	MaxAttachmentMB    int `json:"max_attachment_mb" yaml:"max_attachment_mb"`
	ReconnectInitialMs int `json:"reconnect_initial_ms" yaml:"reconnect_initial_ms"`
	ReconnectMaxMs     int `json:"reconnect_max_ms" yaml:"reconnect_max_ms"`
	MatchWindowSec     int `json:"match_window_sec" yaml:"match_window_sec"`
}

// ServerConfig holds reference backend settings.
type ServerConfig struct {
	Addr          string            `json:"addr" yaml:"addr"`
	PublicBaseURL string            `json:"public_base_url" yaml:"public_base_url"`
	Tokens        map[string]string `json:"tokens" yaml:"tokens"` // bearer token -> user id
	RatePerSecond float64           `json:"rate_per_second" yaml:"rate_per_second"`
	RateBurst     int               `json:"rate_burst" yaml:"rate_burst"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// MediaConfig holds upload storage settings.
type MediaConfig struct {
	Dir           string `json:"dir" yaml:"dir"`
	RetentionDays int    `json:"retention_days" yaml:"retention_days"`
	SweepCron     string `json:"sweep_cron" yaml:"sweep_cron"`
}

// TracingConfig contains OpenTelemetry configuration
type TracingConfig struct {
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
