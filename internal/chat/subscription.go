package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"
	"studyroom/internal/retry"
	"studyroom/internal/session"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Unsubscribe releases a live subscription. It must be safe to call more
// than once.
type Unsubscribe func()

// MessageLog is the append-only, server-timestamped log of a room.
type MessageLog interface {
	// Append writes msg (carrying its ClientID) and returns the id the log
	// assigned.
	Append(ctx context.Context, roomID string, msg models.Message) (string, error)
	// Subscribe delivers the full log, ordered by CreatedAt ascending, on
	// every change. onError fires at most once per subscription; after it the
	// subscription is dead. A returned error means no subscription was opened.
	Subscribe(ctx context.Context, roomID string, onSnapshot func([]models.Message), onError func(error)) (Unsubscribe, error)
}

// SnapshotFunc receives every successful delivery for the active room.
type SnapshotFunc func(roomID string, records []models.Message)

// SubscriptionManager keeps exactly one live subscription to one room's log
// and reopens it after delivery errors. Reconnects continue until Stop.
type SubscriptionManager struct {
	log      MessageLog
	deliver  SnapshotFunc
	notifier session.Notifier
	logger   *apperrors.Logger
	clock    clock.Clock
	backoff  *retry.Backoff

	mu          sync.Mutex
	active      bool
	roomID      string
	generation  uint64
	failures    int
	unsubscribe Unsubscribe
	timer       *clock.Timer
	cancel      context.CancelFunc
	ctx         context.Context
}

type SubscriptionOption func(*SubscriptionManager)

// WithClock sets the clock used to schedule reconnects.
func WithClock(c clock.Clock) SubscriptionOption {
	return func(m *SubscriptionManager) { m.clock = c }
}

// WithBackoff replaces the reconnect delay policy.
func WithBackoff(b *retry.Backoff) SubscriptionOption {
	return func(m *SubscriptionManager) { m.backoff = b }
}

func NewSubscriptionManager(log MessageLog, deliver SnapshotFunc, sess *session.Session, opts ...SubscriptionOption) *SubscriptionManager {
	cfg := retry.ReconnectBackoffConfig()
	cfg.InitialDelay = sess.ReconnectFloor()
	cfg.MaxDelay = sess.ReconnectCeiling()

	m := &SubscriptionManager{
		log:      log,
		deliver:  deliver,
		notifier: sess.Notifier,
		logger:   apperrors.WrapLogger(sess.Logger),
		clock:    clock.New(),
		backoff:  retry.NewBackoff(cfg),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to roomID. Starting the room that is already active is a
// no-op; any other active subscription is torn down first.
func (m *SubscriptionManager) Start(ctx context.Context, roomID string) error {
	if roomID == "" {
		return apperrors.NewValidationError("room_id", "", "room id is required")
	}

	m.mu.Lock()
	if m.active && m.roomID == roomID {
		m.mu.Unlock()
		return nil
	}
	release := m.stopLocked()

	subCtx, cancel := context.WithCancel(ctx)
	m.active = true
	m.roomID = roomID
	m.failures = 0
	m.ctx = subCtx
	m.cancel = cancel
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	release()

	m.logger.WithField("room_id", roomID).Info("Starting room subscription")
	m.connect(gen)
	return nil
}

// Stop releases the active subscription and any scheduled reconnect. It is
// safe to call when nothing is active.
func (m *SubscriptionManager) Stop() {
	m.mu.Lock()
	roomID := m.roomID
	wasActive := m.active
	release := m.stopLocked()
	m.mu.Unlock()

	release()

	if wasActive {
		m.logger.WithField("room_id", roomID).Info("Room subscription stopped")
	}
}

// Active reports whether a subscription (live or reconnecting) exists.
func (m *SubscriptionManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// RoomID returns the subscribed room, or "" when stopped.
func (m *SubscriptionManager) RoomID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

// Failures returns the number of consecutive delivery errors.
func (m *SubscriptionManager) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// stopLocked resets state and returns the teardown to run once m.mu is
// released, so collaborator callbacks never run under the lock.
func (m *SubscriptionManager) stopLocked() func() {
	if !m.active {
		return func() {}
	}

	m.active = false
	m.roomID = ""
	m.failures = 0
	m.generation++

	unsub := m.unsubscribe
	m.unsubscribe = nil
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	cancel := m.cancel
	m.cancel = nil
	m.ctx = nil

	return func() {
		if unsub != nil {
			unsub()
		}
		if cancel != nil {
			cancel()
		}
	}
}

// connect opens one subscription attempt. gen identifies the attempt; any
// Start, Stop or error bumps the generation and turns this attempt stale.
func (m *SubscriptionManager) connect(gen uint64) {
	m.mu.Lock()
	if !m.active || gen != m.generation {
		m.mu.Unlock()
		return
	}
	roomID, ctx := m.roomID, m.ctx
	m.timer = nil
	m.mu.Unlock()

	unsub, err := m.log.Subscribe(ctx, roomID,
		func(records []models.Message) { m.handleSnapshot(gen, roomID, records) },
		func(err error) { m.handleError(gen, roomID, err) },
	)
	if err != nil {
		if unsub != nil {
			unsub()
		}
		m.handleError(gen, roomID, err)
		return
	}

	m.mu.Lock()
	if !m.active || gen != m.generation {
		m.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		return
	}
	m.unsubscribe = unsub
	m.mu.Unlock()
}

func (m *SubscriptionManager) handleSnapshot(gen uint64, roomID string, records []models.Message) {
	m.mu.Lock()
	if !m.active || gen != m.generation {
		m.mu.Unlock()
		return
	}
	recovered := m.failures > 0
	m.failures = 0
	m.mu.Unlock()

	if recovered {
		m.logger.WithField("room_id", roomID).Info("Room subscription recovered")
	}
	m.deliver(roomID, records)
}

func (m *SubscriptionManager) handleError(gen uint64, roomID string, cause error) {
	m.mu.Lock()
	if !m.active || gen != m.generation {
		m.mu.Unlock()
		return
	}

	m.failures++
	attempt := m.failures
	delay := m.backoff.Delay(attempt)

	m.generation++
	next := m.generation
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.timer = m.clock.AfterFunc(delay, func() { m.connect(next) })
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}

	level := session.NoticeWarning
	userMsg := "Connection to the room was lost"
	var err *apperrors.AppError
	if apperrors.IsRetryable(cause) || !hasUserMessage(cause) {
		err = apperrors.WrapRetryable(cause, apperrors.ErrCodeSubscription, "room subscription failed")
	} else {
		// Persistent failures still reconnect but are reported as errors.
		level = session.NoticeError
		userMsg = apperrors.GetUserMessage(cause)
		err = apperrors.Wrap(cause, apperrors.ErrCodeSubscription, "room subscription failed")
	}
	err = err.WithContext("room_id", roomID).
		WithUserMessage(fmt.Sprintf("%s, reconnecting in %s", userMsg, formatDelay(delay)))

	fields := logrus.Fields{
		"attempt":  attempt,
		"delay_ms": delay.Milliseconds(),
	}
	if level == session.NoticeError {
		m.logger.LogError(err, "Room subscription failed persistently, scheduling reconnect", fields)
	} else {
		m.logger.LogWarn(err, "Room subscription failed, scheduling reconnect", fields)
	}
	m.notifier.Notify(session.Notice{
		Level:   level,
		Message: apperrors.GetUserMessage(err),
		Err:     err,
		RetryIn: delay,
	})
}

func hasUserMessage(err error) bool {
	appErr, ok := apperrors.As(err)
	return ok && appErr.UserMessage != ""
}

func formatDelay(d time.Duration) string {
	if d >= time.Second {
		return d.Round(time.Second).String()
	}
	return d.String()
}
