package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"studyroom/internal/constants"
	"studyroom/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newWatcherLogger() (*logrus.Logger, *syncBuffer) {
	logger := logrus.New()
	out := &syncBuffer{}
	logger.SetOutput(out)
	logger.SetLevel(logrus.DebugLevel)
	return logger, out
}

// touch rewrites the file and pushes its mtime forward so a poll sees it.
func touch(t *testing.T, path, content string, at time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestNewConfigWatcher(t *testing.T) {
	logger := logrus.New()

	watcher := NewConfigWatcher("/path/to/config.json", 0, logger)

	assert.Equal(t, "/path/to/config.json", watcher.configPath)
	assert.Equal(t, constants.DefaultConfigPollInterval, watcher.interval)
	assert.Same(t, logger, watcher.logger)
	assert.Empty(t, watcher.callbacks)
}

func TestConfigWatcher_Start_InvalidPath(t *testing.T) {
	logger, _ := newWatcherLogger()
	watcher := NewConfigWatcher("/nonexistent/config.json", time.Millisecond, logger)

	err := watcher.Start(context.Background())
	assert.Error(t, err)
}

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	logger, out := newWatcherLogger()
	path := filepath.Join(t.TempDir(), "config.json")
	touch(t, path, `{"server": {"tokens": {"a": "user-a"}}}`, time.Now().Add(-time.Hour))

	watcher := NewConfigWatcher(path, 10*time.Millisecond, logger)

	changed := make(chan *models.Config, 1)
	watcher.OnConfigChange(func(cfg *models.Config) { changed <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, time.Second, 5*time.Millisecond)
	assert.Len(t, watcher.GetConfig().Server.Tokens, 1)

	touch(t, path, `{"server": {"tokens": {"a": "user-a", "b": "user-b"}}, "log_level": "debug"}`, time.Now())

	select {
	case cfg := <-changed:
		assert.Len(t, cfg.Server.Tokens, 2)
		assert.Equal(t, "debug", cfg.LogLevel)
	case <-time.After(2 * time.Second):
		t.Fatal("config change callback not invoked")
	}
	assert.Equal(t, "debug", watcher.GetConfig().LogLevel)

	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, out.String(), "Bearer token set changed")
	assert.Contains(t, out.String(), "Log level changed")
}

func TestConfigWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	logger, out := newWatcherLogger()
	path := filepath.Join(t.TempDir(), "config.json")
	touch(t, path, `{"log_level": "warn"}`, time.Now().Add(-time.Hour))

	watcher := NewConfigWatcher(path, 10*time.Millisecond, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, time.Second, 5*time.Millisecond)
	touch(t, path, `{"log_level": `, time.Now())

	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(out.String()), []byte("Failed to reload configuration"))
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "warn", watcher.GetConfig().LogLevel)
}

func TestConfigWatcher_CallbackPanic(t *testing.T) {
	logger, out := newWatcherLogger()
	path := filepath.Join(t.TempDir(), "config.json")
	touch(t, path, `{}`, time.Now())

	watcher := NewConfigWatcher(path, time.Hour, logger)
	var called bool
	watcher.OnConfigChange(func(*models.Config) { panic("boom") })
	watcher.OnConfigChange(func(*models.Config) { called = true })

	watcher.reloadConfig()

	assert.True(t, called)
	assert.Contains(t, out.String(), "Config change callback panicked")
}

func TestConfigWatcher_LogConfigChanges_NilOldConfig(t *testing.T) {
	logger, out := newWatcherLogger()
	watcher := NewConfigWatcher("unused.json", time.Hour, logger)

	watcher.logConfigChanges(nil, &models.Config{LogLevel: "debug"})
	assert.Empty(t, out.String())
}

func TestConfigWatcher_LogConfigChanges_Retention(t *testing.T) {
	logger, out := newWatcherLogger()
	watcher := NewConfigWatcher("unused.json", time.Hour, logger)

	watcher.logConfigChanges(
		&models.Config{Media: models.MediaConfig{RetentionDays: 30}},
		&models.Config{Media: models.MediaConfig{RetentionDays: 7}},
	)
	assert.Contains(t, out.String(), "Upload retention changed")
}
