package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"studyroom/internal/models"
	"studyroom/pkg/backend"

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

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{line: "hello there", want: command{name: "send", arg: "hello there"}},
		{line: "  /quit ", want: command{name: "quit"}},
		{line: "/exit", want: command{name: "quit"}},
		{line: "/help", want: command{name: "help"}},
		{line: "/file ./notes/week 3.pdf", want: command{name: "file", arg: "./notes/week 3.pdf"}},
		{line: "/retry temp-1-2", want: command{name: "retry", arg: "temp-1-2"}},
		{line: "/room physics", want: command{name: "room", arg: "physics"}},
		{line: "/room", wantErr: true},
		{line: "/dance", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestREPL(t *testing.T, env *testEnv) (*repl, *syncBuffer) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &models.Config{
		Client: models.ClientConfig{
			APIBaseURL:  env.url,
			UserID:      "alice",
			DisplayName: "Alice",
			Token:       "tok-alice",
		},
		Chat: models.ChatConfig{MaxAttachmentMB: 1},
	}
	out := &syncBuffer{}
	r := newREPL(cfg, logger, out)
	t.Cleanup(r.close)
	return r, out
}

func TestREPL_SendsAndRendersMessages(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "alice")
	r, out := newTestREPL(t, env)
	ctx := context.Background()

	require.NoError(t, r.client.Join(ctx, room.ID))
	assert.False(t, r.exec(ctx, "hello from the terminal"))

	require.Eventually(t, func() bool {
		for _, m := range r.client.Messages() {
			if m.Text == "hello from the terminal" && m.Status == models.StatusConfirmed {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	assert.Contains(t, out.String(), "--- Organic chemistry ---")
	assert.Contains(t, out.String(), "You: hello from the terminal")

	messages, err := backend.NewMessageLog(env.api("bob")).List(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestREPL_SendsFiles(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "alice")
	r, out := newTestREPL(t, env)
	ctx := context.Background()
	require.NoError(t, r.client.Join(ctx, room.ID))

	path := filepath.Join(t.TempDir(), "diagram.png")
	require.NoError(t, os.WriteFile(path, []byte("not really a png"), 0o600))

	assert.False(t, r.exec(ctx, "/file "+path))
	require.Eventually(t, func() bool {
		msgs := r.client.Messages()
		return len(msgs) == 1 && msgs[0].Status == models.StatusConfirmed
	}, 5*time.Second, 20*time.Millisecond)

	msg := r.client.Messages()[0]
	assert.Equal(t, models.KindImage, msg.Kind)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "diagram.png", msg.Attachment.Filename)

	assert.False(t, r.exec(ctx, "/file "+filepath.Join(t.TempDir(), "missing.txt")))
	assert.Contains(t, out.String(), "! cannot open")
}

func TestREPL_ReportsErrors(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "alice")
	r, out := newTestREPL(t, env)
	ctx := context.Background()
	require.NoError(t, r.client.Join(ctx, room.ID))

	assert.False(t, r.exec(ctx, "/bogus"))
	assert.Contains(t, out.String(), "! unknown command /bogus")

	assert.False(t, r.exec(ctx, "/retry temp-nope"))
	assert.False(t, r.exec(ctx, "/room no-such-room"))
	assert.Contains(t, out.String(), "! Room not found")
}

func TestREPL_RunStopsOnQuit(t *testing.T) {
	env := newTestEnv(t)
	room := env.createRoom(t, "alice")
	r, _ := newTestREPL(t, env)
	ctx := context.Background()
	require.NoError(t, r.client.Join(ctx, room.ID))

	done := make(chan error, 1)
	go func() { done <- r.run(ctx, strings.NewReader("\n/help\n/quit\nnever sent\n")) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after /quit")
	}
	assert.Empty(t, r.client.Messages())
}
