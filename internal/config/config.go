package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"studyroom/internal/constants"
	"studyroom/internal/models"
	"studyroom/internal/security"
	"studyroom/internal/validation"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

// Environment overrides.
const (
	EnvAPIURL      = "STUDYROOM_API_URL"
	EnvToken       = "STUDYROOM_TOKEN"
	EnvUserID      = "STUDYROOM_USER_ID"
	EnvDisplayName = "STUDYROOM_DISPLAY_NAME"
	EnvDBPath      = "STUDYROOM_DB_PATH"
	EnvMediaDir    = "STUDYROOM_MEDIA_DIR"
	EnvAddr        = "STUDYROOM_ADDR"
	EnvPublicURL   = "STUDYROOM_PUBLIC_URL"
	EnvLogLevel    = "STUDYROOM_LOG_LEVEL"
	EnvEnvironment = "STUDYROOM_ENV"
)

var (
	ErrMissingDBPath   = models.ConfigError{Message: "missing database path"}
	ErrMissingMediaDir = models.ConfigError{Message: "missing media directory"}
	ErrMissingUserID   = models.ConfigError{Message: "missing client user id (set client.user_id or " + EnvUserID + ")"}
	ErrMissingToken    = models.ConfigError{Message: "missing client token (set client.token or " + EnvToken + ")"}
	ErrNoServerTokens  = models.ConfigError{Message: "server.tokens must map at least one bearer token to a user id"}
)

// LoadConfig reads a JSON or YAML file (chosen by extension), fills in
// defaults and applies environment overrides. An empty path yields the
// defaults plus the environment.
func LoadConfig(path string) (*models.Config, error) {
	var config models.Config

	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}

		file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
		if err != nil {
			return nil, err
		}

		if err := decode(path, file, &config); err != nil {
			return nil, err
		}
	}

	applyEnvironmentOverrides(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func decode(path string, data []byte, config *models.Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid YAML in %s: %v", path, err)}
		}
	case ".json", "":
		if err := json.Unmarshal(data, config); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid JSON in %s: %v", path, err)}
		}
	default:
		return models.ConfigError{Message: fmt.Sprintf("unsupported config format %q", filepath.Ext(path))}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Client.APIBaseURL == "" {
		c.Client.APIBaseURL = constants.DefaultAPIBaseURL
	}
	if c.Client.HTTPTimeoutSec <= 0 {
		c.Client.HTTPTimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Client.DisplayName == "" {
		c.Client.DisplayName = c.Client.UserID
	}

	if c.Chat.MaxAttachmentMB <= 0 {
		c.Chat.MaxAttachmentMB = constants.DefaultMaxAttachmentMB
	}
	if c.Chat.ReconnectInitialMs <= 0 {
		c.Chat.ReconnectInitialMs = constants.DefaultReconnectInitialMs
	}
	if c.Chat.ReconnectMaxMs <= 0 {
		c.Chat.ReconnectMaxMs = constants.DefaultReconnectMaxMs
	}
	if c.Chat.MatchWindowSec <= 0 {
		c.Chat.MatchWindowSec = constants.DefaultMatchWindowSec
	}

	if c.Server.Addr == "" {
		c.Server.Addr = constants.DefaultServerAddr
	}
	if c.Server.PublicBaseURL == "" {
		c.Server.PublicBaseURL = publicURLFor(c.Server.Addr)
	}
	c.Server.PublicBaseURL = strings.TrimSuffix(c.Server.PublicBaseURL, "/")
	if c.Server.RatePerSecond <= 0 {
		c.Server.RatePerSecond = constants.DefaultRatePerSecond
	}
	if c.Server.RateBurst <= 0 {
		c.Server.RateBurst = constants.DefaultRateBurst
	}

	if c.Database.Path == "" {
		c.Database.Path = constants.DefaultDatabasePath
	}
	if c.Media.Dir == "" {
		c.Media.Dir = constants.DefaultMediaDir
	}
	if c.Media.RetentionDays <= 0 {
		c.Media.RetentionDays = constants.DefaultRetentionDays
	}
	if c.Media.SweepCron == "" {
		c.Media.SweepCron = constants.DefaultSweepCron
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "studyroom"
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = "development"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 0.1
	}

	if c.LogLevel == "" {
		c.LogLevel = constants.DefaultLogLevel
	}
}

// publicURLFor turns a listen address such as ":8084" into a loopback URL.
func publicURLFor(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.Dir == "" {
		return ErrMissingMediaDir
	}
	if err := validation.ValidateBaseURL(c.Client.APIBaseURL, "client.api_base_url"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if err := validation.ValidateBaseURL(c.Server.PublicBaseURL, "server.public_base_url"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if err := validation.ValidateTimeout(c.Client.HTTPTimeoutSec, "client.http_timeout_sec"); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if err := validation.ValidateRetentionDays(c.Media.RetentionDays); err != nil {
		return models.ConfigError{Message: err.Error()}
	}
	if c.Chat.ReconnectMaxMs < c.Chat.ReconnectInitialMs {
		return models.ConfigError{Message: "chat.reconnect_max_ms must not be below chat.reconnect_initial_ms"}
	}
	if !gronx.New().IsValid(c.Media.SweepCron) {
		return models.ConfigError{Message: fmt.Sprintf("invalid media.sweep_cron expression %q", c.Media.SweepCron)}
	}
	if c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: "tracing.sample_rate must be between 0 and 1"}
	}
	for token, userID := range c.Server.Tokens {
		if strings.TrimSpace(token) == "" || strings.TrimSpace(userID) == "" {
			return models.ConfigError{Message: "server.tokens entries need a non-empty token and user id"}
		}
	}
	return nil
}

// ValidateClient checks the settings the interactive client cannot run
// without.
func ValidateClient(c *models.Config) error {
	if c.Client.UserID == "" {
		return ErrMissingUserID
	}
	if c.Client.Token == "" {
		return ErrMissingToken
	}
	return nil
}

// ValidateServer checks the settings the server cannot run without. In
// production the encryption secret for message text is mandatory.
func ValidateServer(c *models.Config) error {
	if len(c.Server.Tokens) == 0 {
		return ErrNoServerTokens
	}
	if os.Getenv(EnvEnvironment) == "production" {
		if os.Getenv("STUDYROOM_ENCRYPTION_SECRET") == "" {
			return models.ConfigError{Message: "STUDYROOM_ENCRYPTION_SECRET is required in production"}
		}
		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production"}
		}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv(EnvAPIURL); url != "" {
		c.Client.APIBaseURL = url
	}
	if token := os.Getenv(EnvToken); token != "" {
		c.Client.Token = token
	}
	if userID := os.Getenv(EnvUserID); userID != "" {
		c.Client.UserID = userID
	}
	if name := os.Getenv(EnvDisplayName); name != "" {
		c.Client.DisplayName = name
	}
	if path := os.Getenv(EnvDBPath); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv(EnvMediaDir); dir != "" {
		c.Media.Dir = dir
	}
	if addr := os.Getenv(EnvAddr); addr != "" {
		c.Server.Addr = addr
	}
	if url := os.Getenv(EnvPublicURL); url != "" {
		c.Server.PublicBaseURL = url
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	if env := os.Getenv(EnvEnvironment); env != "" {
		c.Tracing.Environment = env
	}
}
