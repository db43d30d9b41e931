// Package session holds the per-user context handed to every chat component:
// identity, notification sink, logger and tuning. Nothing here is global.
package session

import (
	"time"

	"studyroom/internal/constants"
	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"

	"github.com/sirupsen/logrus"
)

type Session struct {
	Identity IdentityProvider
	Notifier Notifier
	Logger   *logrus.Logger
	Config   models.ChatConfig
}

// New fills in defaults for anything left nil or zero.
func New(identity IdentityProvider, notifier Notifier, logger *logrus.Logger, cfg models.ChatConfig) *Session {
	if identity == nil {
		identity = NewStaticProvider("", "", "")
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	if cfg.MaxAttachmentMB <= 0 {
		cfg.MaxAttachmentMB = constants.DefaultMaxAttachmentMB
	}
	if cfg.ReconnectInitialMs <= 0 {
		cfg.ReconnectInitialMs = constants.DefaultReconnectInitialMs
	}
	if cfg.ReconnectMaxMs <= 0 {
		cfg.ReconnectMaxMs = constants.DefaultReconnectMaxMs
	}
	if cfg.MatchWindowSec <= 0 {
		cfg.MatchWindowSec = constants.DefaultMatchWindowSec
	}
	return &Session{Identity: identity, Notifier: notifier, Logger: logger, Config: cfg}
}

// RequireUser returns the signed-in user or an authentication error.
func (s *Session) RequireUser() (*User, error) {
	if u := s.Identity.Current(); u != nil {
		return u, nil
	}
	return nil, apperrors.NewAuthError("not signed in")
}

func (s *Session) MaxAttachmentBytes() int64 {
	return int64(s.Config.MaxAttachmentMB) * constants.BytesPerMegabyte
}

func (s *Session) ReconnectFloor() time.Duration {
	return time.Duration(s.Config.ReconnectInitialMs) * time.Millisecond
}

func (s *Session) ReconnectCeiling() time.Duration {
	return time.Duration(s.Config.ReconnectMaxMs) * time.Millisecond
}

func (s *Session) MatchWindow() time.Duration {
	return time.Duration(s.Config.MatchWindowSec) * time.Second
}
