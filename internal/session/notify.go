package session

import (
	"time"

	apperrors "studyroom/internal/errors"

	"github.com/sirupsen/logrus"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient, user-visible notification.
type Notice struct {
	Level   NoticeLevel
	Message string
	Err     error
	RetryIn time.Duration // set when an automatic reconnect is scheduled
}

// Notifier receives notices. Implementations must not block.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// NopNotifier drops every notice.
type NopNotifier struct{}

func (NopNotifier) Notify(Notice) {}

// LogNotifier writes notices through logrus.
type LogNotifier struct {
	Logger *logrus.Logger
}

func (l LogNotifier) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logrus.NewEntry(logger)
	if n.Err != nil {
		entry = apperrors.WrapLogger(logger).WithError(n.Err)
	}
	if n.RetryIn > 0 {
		entry = entry.WithField("retry_in_ms", n.RetryIn.Milliseconds())
	}
	switch n.Level {
	case NoticeError:
		entry.Error(n.Message)
	case NoticeWarning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
}

// ErrorNotice builds an error notice using the error's plain-language message.
func ErrorNotice(err error) Notice {
	return Notice{Level: NoticeError, Message: apperrors.GetUserMessage(err), Err: err}
}
