package config

import (
	"os"
	"path/filepath"
	"testing"

	"studyroom/internal/constants"
	"studyroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_JSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"client": {"api_base_url": "http://chat.local:9000", "user_id": "user-ada", "token": "tok"},
		"server": {"addr": ":9000", "tokens": {"tok": "user-ada"}},
		"database": {"path": "/var/lib/studyroom/chat.db"},
		"media": {"dir": "/var/lib/studyroom/media", "retention_days": 7}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://chat.local:9000", cfg.Client.APIBaseURL)
	assert.Equal(t, "user-ada", cfg.Client.DisplayName)
	assert.Equal(t, "http://localhost:9000", cfg.Server.PublicBaseURL)
	assert.Equal(t, 7, cfg.Media.RetentionDays)
	assert.Equal(t, constants.DefaultSweepCron, cfg.Media.SweepCron)
	assert.Equal(t, constants.DefaultMaxAttachmentMB, cfg.Chat.MaxAttachmentMB)
	assert.Equal(t, constants.DefaultReconnectInitialMs, cfg.Chat.ReconnectInitialMs)
	assert.Equal(t, constants.DefaultReconnectMaxMs, cfg.Chat.ReconnectMaxMs)
	assert.Equal(t, map[string]string{"tok": "user-ada"}, cfg.Server.Tokens)
	assert.NoError(t, ValidateClient(cfg))
	assert.NoError(t, ValidateServer(cfg))
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
client:
  user_id: user-bo
  display_name: Bo
  token: tok-bo
chat:
  max_attachment_mb: 5
server:
  public_base_url: https://chat.example.com/
  rate_per_second: 2
  rate_burst: 4
media:
  sweep_cron: "*/15 * * * *"
log_level: debug
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Bo", cfg.Client.DisplayName)
	assert.Equal(t, 5, cfg.Chat.MaxAttachmentMB)
	assert.Equal(t, "https://chat.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, 2.0, cfg.Server.RatePerSecond)
	assert.Equal(t, 4, cfg.Server.RateBurst)
	assert.Equal(t, "*/15 * * * *", cfg.Media.SweepCron)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, constants.DefaultAPIBaseURL, cfg.Client.APIBaseURL)
}

func TestLoadConfig_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, constants.DefaultDatabasePath, cfg.Database.Path)
	assert.Equal(t, constants.DefaultMediaDir, cfg.Media.Dir)
	assert.Equal(t, constants.DefaultLogLevel, cfg.LogLevel)
	assert.ErrorIs(t, ValidateClient(cfg), ErrMissingUserID)
	assert.ErrorIs(t, ValidateServer(cfg), ErrNoServerTokens)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvAPIURL, "https://override.example.com")
	t.Setenv(EnvToken, "env-token")
	t.Setenv(EnvUserID, "user-env")
	t.Setenv(EnvDBPath, "/tmp/env.db")
	t.Setenv(EnvMediaDir, "/tmp/env-media")
	t.Setenv(EnvAddr, "127.0.0.1:7000")

	path := writeConfig(t, "config.json", `{"client": {"api_base_url": "http://file.local", "token": "file-token"}}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://override.example.com", cfg.Client.APIBaseURL)
	assert.Equal(t, "env-token", cfg.Client.Token)
	assert.Equal(t, "user-env", cfg.Client.UserID)
	assert.Equal(t, "/tmp/env.db", cfg.Database.Path)
	assert.Equal(t, "/tmp/env-media", cfg.Media.Dir)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr)
	assert.Equal(t, "http://127.0.0.1:7000", cfg.Server.PublicBaseURL)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"invalid json", "config.json", `{"client":`},
		{"invalid yaml", "config.yaml", "client: [unterminated"},
		{"unsupported extension", "config.toml", `log_level = "info"`},
		{"bad api url", "config.json", `{"client": {"api_base_url": "localhost:8084"}}`},
		{"bad cron", "config.json", `{"media": {"sweep_cron": "every night"}}`},
		{"retention too long", "config.json", `{"media": {"retention_days": 5000}}`},
		{"reconnect ceiling below start", "config.json", `{"chat": {"reconnect_initial_ms": 5000, "reconnect_max_ms": 1000}}`},
		{"empty token user", "config.json", `{"server": {"tokens": {"tok": ""}}}`},
		{"sample rate", "config.json", `{"tracing": {"sample_rate": 2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.file, tt.content))
			require.Error(t, err)
			var cfgErr models.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestLoadConfig_RejectsTraversal(t *testing.T) {
	_, err := LoadConfig("../../etc/passwd")
	assert.Error(t, err)
}

func TestValidateServer_Production(t *testing.T) {
	cfg := &models.Config{Server: models.ServerConfig{Tokens: map[string]string{"tok": "user-1"}}}

	t.Setenv(EnvEnvironment, "production")
	t.Setenv("STUDYROOM_ENCRYPTION_SECRET", "")
	assert.Error(t, ValidateServer(cfg))

	t.Setenv("STUDYROOM_ENCRYPTION_SECRET", "0123456789abcdef0123456789abcdef")
	assert.NoError(t, ValidateServer(cfg))

	cfg.LogLevel = "debug"
	assert.Error(t, ValidateServer(cfg))
}
