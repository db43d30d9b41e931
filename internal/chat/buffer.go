package chat

import (
	"strings"
	"sync"
	"time"

	"studyroom/internal/constants"
	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"

	"github.com/benbjohnson/clock"
)

// Buffer is the ordered message list a room's user sees. It merges the
// authoritative snapshots from the log with locally originated records that
// the log has not echoed back yet.
//
// Order is CreatedAt ascending with insertion order breaking ties. Only
// AppendPending, ReconcileSnapshot, MarkFailed and Retry mutate the list.
type Buffer struct {
	mu          sync.Mutex
	entries     []models.Message
	version     uint64
	clock       clock.Clock
	ids         *TempIDs
	matchWindow time.Duration

	notifyMu     sync.Mutex
	notified     uint64
	observers    map[int]func([]models.Message)
	nextObserver int
}

type BufferOption func(*Buffer)

// WithBufferClock sets the clock used for local timestamps.
func WithBufferClock(c clock.Clock) BufferOption {
	return func(b *Buffer) { b.clock = c }
}

// WithTempIDs shares a temp id generator between buffers.
func WithTempIDs(ids *TempIDs) BufferOption {
	return func(b *Buffer) { b.ids = ids }
}

// WithMatchWindow sets how far apart a local record and a confirmed record
// without a client id may be and still count as the same send.
func WithMatchWindow(d time.Duration) BufferOption {
	return func(b *Buffer) { b.matchWindow = d }
}

func NewBuffer(opts ...BufferOption) *Buffer {
	b := &Buffer{
		clock:       clock.New(),
		ids:         &TempIDs{},
		matchWindow: time.Duration(constants.DefaultMatchWindowSec) * time.Second,
		observers:   make(map[int]func([]models.Message)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AppendPending adds a locally originated record in pending state and returns
// its temporary id. Attachments must already have a durable URL.
func (b *Buffer) AppendPending(msg models.Message) (string, error) {
	if err := validatePending(msg); err != nil {
		return "", err
	}

	b.mu.Lock()
	now := b.clock.Now()
	msg = msg.Clone()
	msg.ID = b.ids.Next(now)
	msg.ClientID = msg.ID
	msg.CreatedAt = now
	msg.Status = models.StatusPending
	msg.FailureReason = ""

	pos := len(b.entries)
	for pos > 0 && b.entries[pos-1].CreatedAt.After(now) {
		pos--
	}
	b.entries = append(b.entries, models.Message{})
	copy(b.entries[pos+1:], b.entries[pos:])
	b.entries[pos] = msg
	b.mutatedLocked()
	b.mu.Unlock()

	b.publish()
	return msg.ID, nil
}

// ReconcileSnapshot replaces the confirmed portion with records, which the
// log delivers in CreatedAt order. Local records the snapshot has not yet
// echoed are kept and re-inserted by their local timestamp.
func (b *Buffer) ReconcileSnapshot(records []models.Message) {
	confirmed := make([]models.Message, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	byClientID := make(map[string]int)

	for _, r := range records {
		if r.ID == "" {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}

		r = r.Clone()
		r.Status = models.StatusConfirmed
		r.FailureReason = ""
		if r.ClientID != "" {
			byClientID[echoKey(r.AuthorID, r.ClientID)] = len(confirmed)
		}
		confirmed = append(confirmed, r)
	}

	b.mu.Lock()
	claimed := make([]bool, len(confirmed))
	var unresolved []models.Message
	for _, local := range b.entries {
		if local.Status == models.StatusConfirmed {
			continue
		}
		if idx, ok := byClientID[echoKey(local.AuthorID, local.ClientID)]; ok && !claimed[idx] {
			claimed[idx] = true
			continue
		}
		if idx := b.matchByContent(local, confirmed, claimed); idx >= 0 {
			claimed[idx] = true
			continue
		}
		unresolved = append(unresolved, local)
	}

	merged := make([]models.Message, 0, len(confirmed)+len(unresolved))
	i := 0
	for _, local := range unresolved {
		for i < len(confirmed) && !confirmed[i].CreatedAt.After(local.CreatedAt) {
			merged = append(merged, confirmed[i])
			i++
		}
		merged = append(merged, local)
	}
	merged = append(merged, confirmed[i:]...)

	b.entries = merged
	b.mutatedLocked()
	b.mu.Unlock()

	b.publish()
}

// echoKey scopes a client id to its author, the same way the log
// deduplicates appends.
func echoKey(authorID, clientID string) string {
	return authorID + "\x00" + clientID
}

// matchByContent finds an unclaimed confirmed record without a client id that
// has the same author and payload and a timestamp within the match window.
func (b *Buffer) matchByContent(local models.Message, confirmed []models.Message, claimed []bool) int {
	for i, c := range confirmed {
		if claimed[i] || c.ClientID != "" {
			continue
		}
		if c.AuthorID != local.AuthorID || !c.SamePayload(local) {
			continue
		}
		delta := c.CreatedAt.Sub(local.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= b.matchWindow {
			return i
		}
	}
	return -1
}

// MarkFailed moves a pending record to failed. A record that is already
// failed is left alone; one that is gone (confirmed meanwhile) yields a
// NOT_FOUND error.
func (b *Buffer) MarkFailed(tempID, reason string) error {
	b.mu.Lock()
	idx := b.indexLocked(tempID)
	if idx < 0 {
		b.mu.Unlock()
		return apperrors.NewNotFoundError("message", tempID)
	}

	e := &b.entries[idx]
	switch e.Status {
	case models.StatusFailed:
		b.mu.Unlock()
		return nil
	case models.StatusConfirmed:
		b.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeConflict, "message already confirmed").
			WithContext("message_id", tempID)
	}

	e.Status = models.StatusFailed
	e.FailureReason = reason
	b.mutatedLocked()
	b.mu.Unlock()

	b.publish()
	return nil
}

// Retry moves a failed record back to pending and returns a copy for the
// caller to re-issue. Its position and temp id are unchanged.
func (b *Buffer) Retry(tempID string) (models.Message, error) {
	b.mu.Lock()
	idx := b.indexLocked(tempID)
	if idx < 0 {
		b.mu.Unlock()
		return models.Message{}, apperrors.NewNotFoundError("message", tempID)
	}

	e := &b.entries[idx]
	if e.Status != models.StatusFailed {
		b.mu.Unlock()
		return models.Message{}, apperrors.New(apperrors.ErrCodeConflict, "only failed messages can be retried").
			WithContext("message_id", tempID).
			WithContext("status", string(e.Status)).
			WithUserMessage("That message is not waiting for a retry")
	}

	e.Status = models.StatusPending
	e.FailureReason = ""
	out := e.Clone()
	b.mutatedLocked()
	b.mu.Unlock()

	b.publish()
	return out, nil
}

// Messages returns a copy of the current ordered list.
func (b *Buffer) Messages() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.copyLocked()
}

// Get returns the record with the given id.
func (b *Buffer) Get(id string) (models.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if idx := b.indexLocked(id); idx >= 0 {
		return b.entries[idx].Clone(), true
	}
	return models.Message{}, false
}

// Len returns the number of records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Subscribe registers fn to receive the full list after every mutation. The
// returned function unregisters it.
func (b *Buffer) Subscribe(fn func([]models.Message)) func() {
	b.notifyMu.Lock()
	id := b.nextObserver
	b.nextObserver++
	b.observers[id] = fn
	b.notifyMu.Unlock()

	return func() {
		b.notifyMu.Lock()
		delete(b.observers, id)
		b.notifyMu.Unlock()
	}
}

func (b *Buffer) indexLocked(id string) int {
	for i := range b.entries {
		if b.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Buffer) copyLocked() []models.Message {
	out := make([]models.Message, len(b.entries))
	for i, m := range b.entries {
		out[i] = m.Clone()
	}
	return out
}

func (b *Buffer) mutatedLocked() {
	b.version++
}

// publish hands the latest state to observers. Concurrent mutations may race
// to publish; an older version never overwrites a newer one.
func (b *Buffer) publish() {
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	b.mu.Lock()
	version := b.version
	state := b.copyLocked()
	b.mu.Unlock()

	if version <= b.notified {
		return
	}
	b.notified = version

	for _, fn := range b.observers {
		fn(state)
	}
}

func validatePending(msg models.Message) error {
	if !msg.Kind.Valid() {
		return apperrors.NewValidationError("kind", string(msg.Kind), "unknown message kind")
	}
	if msg.AuthorID == "" {
		return apperrors.NewAuthError("message has no author")
	}

	switch msg.Kind {
	case models.KindText, models.KindSystem:
		if strings.TrimSpace(msg.Text) == "" {
			return apperrors.NewValidationError("text", msg.Text, "message cannot be empty").
				WithUserMessage("Message cannot be empty")
		}
	case models.KindImage, models.KindFile:
		if msg.Attachment == nil || msg.Attachment.URL == "" {
			return apperrors.NewValidationError("attachment", "", "attachment has no durable URL")
		}
	}
	return nil
}
