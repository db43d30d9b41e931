package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"studyroom/internal/chat"
	"studyroom/internal/config"
	"studyroom/internal/constants"
	"studyroom/internal/models"
	"studyroom/internal/render"
	"studyroom/internal/session"
	"studyroom/pkg/backend"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const replHelp = `Type a message and press enter to send it.
  /file <path>   send a file or image
  /retry <id>    resend a failed message
  /room <id>     switch rooms
  /help          show this help
  /quit          leave`

func newChatCmd(opts *rootOptions) *cobra.Command {
	var roomID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a room and chat from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if err := config.ValidateClient(cfg); err != nil {
				return err
			}

			level := cfg.LogLevel
			if level == "" || level == constants.DefaultLogLevel {
				level = "warn"
			}
			logger := newLogger(cmd.ErrOrStderr(), false, level, opts.verbose)

			r := newREPL(cfg, logger, cmd.OutOrStdout())
			defer r.close()

			if err := r.client.Join(cmd.Context(), roomID); err != nil {
				return fmt.Errorf("failed to join room %s: %w", roomID, err)
			}
			r.println(replHelp)
			return r.run(cmd.Context(), cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&roomID, "room", "r", "", "room id to join")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

// newBackend builds the HTTP collaborators for the configured user.
func newBackend(cfg *models.Config, logger *logrus.Logger) (*backend.Client, *session.StaticProvider) {
	identity := session.NewStaticProvider(cfg.Client.UserID, cfg.Client.DisplayName, cfg.Client.Token)
	timeout := cfg.Client.HTTPTimeoutSec
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeoutSec
	}
	httpClient := &http.Client{Timeout: time.Duration(timeout) * time.Second}
	breaker := backend.NewCircuitBreaker(logger)
	return backend.NewClient(cfg.Client.APIBaseURL, identity, httpClient, logger,
		backend.WithCircuitBreaker(breaker)), identity
}

type command struct {
	name string
	arg  string
}

// parseCommand splits an input line into a slash command and its argument.
// Anything not starting with a slash is a message to send.
func parseCommand(line string) (command, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return command{name: "send", arg: line}, nil
	}

	name, arg, _ := strings.Cut(trimmed[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit":
		return command{name: "quit"}, nil
	case "help":
		return command{name: "help"}, nil
	case "file", "retry", "room":
		if arg == "" {
			return command{}, fmt.Errorf("/%s needs an argument", name)
		}
		return command{name: name, arg: arg}, nil
	default:
		return command{}, fmt.Errorf("unknown command /%s (try /help)", name)
	}
}

// repl drives a chat.Client from line-oriented input and redraws the room
// after every change.
type repl struct {
	client *chat.Client
	selfID string
	unsub  func()

	mu  sync.Mutex
	out io.Writer
}

func newREPL(cfg *models.Config, logger *logrus.Logger, out io.Writer) *repl {
	api, identity := newBackend(cfg, logger)

	r := &repl{out: out, selfID: cfg.Client.UserID}
	notifier := session.NotifierFunc(func(n session.Notice) {
		session.LogNotifier{Logger: logger}.Notify(n)
		switch n.Level {
		case session.NoticeError, session.NoticeWarning:
			msg := n.Message
			if n.RetryIn > 0 {
				msg = fmt.Sprintf("%s (retrying in %s)", msg, n.RetryIn.Round(time.Second))
			}
			r.println("! " + msg)
		}
	})

	sess := session.New(identity, notifier, logger, cfg.Chat)
	r.client = chat.NewClient(sess, backend.NewMessageLog(api), backend.NewUploader(api),
		chat.WithRoomDirectory(backend.NewRooms(api)))
	r.unsub = r.client.OnChange(r.redraw)
	return r
}

func (r *repl) close() {
	r.unsub()
	r.client.Close()
}

func (r *repl) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, s)
}

func (r *repl) redraw(roomID string, messages []models.Message) {
	title := roomID
	if room := r.client.Room(); room != nil && room.ID == roomID && room.Name != "" {
		title = room.Name
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "--- %s ---\n", title)
	fmt.Fprint(r.out, render.Render(messages, r.selfID))
}

// run reads commands until /quit, end of input or ctx cancellation.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if quit := r.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// exec runs one input line and reports whether the user asked to quit.
// Delivery failures are surfaced through the notifier, so only local
// problems are printed here.
func (r *repl) exec(ctx context.Context, line string) bool {
	cmd, err := parseCommand(line)
	if err != nil {
		r.println("! " + err.Error())
		return false
	}

	switch cmd.name {
	case "quit":
		return true
	case "help":
		r.println(replHelp)
	case "send":
		_, _ = r.client.SendText(ctx, cmd.arg)
	case "retry":
		_ = r.client.Retry(ctx, cmd.arg)
	case "room":
		_ = r.client.Join(ctx, cmd.arg)
	case "file":
		if err := r.sendFile(ctx, cmd.arg); err != nil {
			r.println("! " + err.Error())
		}
	}
	return false
}

func (r *repl) sendFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	_, _ = r.client.SendAttachment(ctx, chat.File{
		Name:     filepath.Base(path),
		MIMEType: chat.DetectMIMEType(path),
		Size:     info.Size(),
		Content:  f,
	})
	return nil
}
