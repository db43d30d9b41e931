package chat

import (
	"context"
	"sync"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"
	"studyroom/internal/session"

	"github.com/benbjohnson/clock"
)

// RoomDirectory looks up room metadata before a room is joined.
type RoomDirectory interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
}

// Client is the chat core for one signed-in user. It owns one buffer per
// joined room and a single subscription manager shared across room changes.
type Client struct {
	session  *session.Session
	log      MessageLog
	uploader Uploader
	rooms    RoomDirectory
	clock    clock.Clock
	ids      *TempIDs
	logger   *apperrors.Logger
	manager  *SubscriptionManager

	mu          sync.Mutex
	roomID      string
	room        *models.Room
	buffer      *Buffer
	sender      *Sender
	unsubBuffer func()

	observersMu sync.Mutex
	observers   map[int]func(roomID string, messages []models.Message)
	nextObs     int

	identityMu    sync.Mutex
	userID        string
	unsubIdentity func()
}

type ClientOption func(*Client)

// WithRoomDirectory makes Join fetch room metadata first.
func WithRoomDirectory(rooms RoomDirectory) ClientOption {
	return func(c *Client) { c.rooms = rooms }
}

// WithClientClock drives buffer timestamps and reconnect timers from c.
func WithClientClock(clk clock.Clock) ClientOption {
	return func(c *Client) { c.clock = clk }
}

func NewClient(sess *session.Session, log MessageLog, uploader Uploader, opts ...ClientOption) *Client {
	c := &Client{
		session:   sess,
		log:       log,
		uploader:  uploader,
		clock:     clock.New(),
		ids:       &TempIDs{},
		logger:    apperrors.WrapLogger(sess.Logger),
		observers: make(map[int]func(string, []models.Message)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.manager = NewSubscriptionManager(log, c.deliver, sess, WithClock(c.clock))
	c.unsubIdentity = sess.Identity.OnChange(c.identityChanged)
	return c
}

// Close leaves the current room and stops following identity changes.
func (c *Client) Close() {
	c.identityMu.Lock()
	unsub := c.unsubIdentity
	c.unsubIdentity = nil
	c.identityMu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.Leave()
}

// identityChanged leaves the joined room when the user signs out or a
// different user signs in. Local records belong to the previous user.
func (c *Client) identityChanged(u *session.User) {
	next := ""
	if u != nil {
		next = u.ID
	}

	c.identityMu.Lock()
	prev := c.userID
	c.userID = next
	c.identityMu.Unlock()

	if next != "" && (prev == "" || prev == next) {
		return
	}
	if roomID := c.RoomID(); roomID != "" {
		c.logger.WithField("room_id", roomID).Info("Identity changed, leaving room")
	}
	c.Leave()
}

// Join switches the client to roomID. The previous room's subscription is
// stopped before the new one starts and its buffer is discarded. Joining the
// current room again is a no-op.
func (c *Client) Join(ctx context.Context, roomID string) error {
	if roomID == "" {
		return apperrors.NewValidationError("room_id", "", "room id is required")
	}
	if c.RoomID() == roomID && c.manager.Active() {
		return nil
	}
	if _, err := c.session.RequireUser(); err != nil {
		c.session.Notifier.Notify(session.ErrorNotice(err))
		return err
	}

	var room *models.Room
	if c.rooms != nil {
		r, err := c.rooms.GetRoom(ctx, roomID)
		if err != nil {
			c.logger.LogRetryableError(err, "Could not load room")
			c.session.Notifier.Notify(session.ErrorNotice(err))
			return err
		}
		room = r
	}

	c.manager.Stop()

	buffer := NewBuffer(
		WithBufferClock(c.clock),
		WithTempIDs(c.ids),
		WithMatchWindow(c.session.MatchWindow()),
	)
	unsub := buffer.Subscribe(func(messages []models.Message) {
		c.emit(roomID, messages)
	})

	c.mu.Lock()
	oldUnsub := c.unsubBuffer
	c.roomID = roomID
	c.room = room
	c.buffer = buffer
	c.sender = NewSender(roomID, buffer, c.log, c.uploader, c.session)
	c.unsubBuffer = unsub
	c.mu.Unlock()

	// Unregistering waits for an in-flight publish of the old buffer, so
	// nothing from the previous room is emitted after the reset below.
	if oldUnsub != nil {
		oldUnsub()
	}

	c.emit(roomID, nil)
	return c.manager.Start(ctx, roomID)
}

// Leave stops the subscription and forgets the current room.
func (c *Client) Leave() {
	c.manager.Stop()

	c.mu.Lock()
	unsub := c.unsubBuffer
	c.roomID = ""
	c.room = nil
	c.buffer = nil
	c.sender = nil
	c.unsubBuffer = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// RoomID returns the joined room, or "".
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Room returns the metadata fetched on Join, if any.
func (c *Client) Room() *models.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// Buffer returns the current room's buffer, or nil when no room is joined.
func (c *Client) Buffer() *Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer
}

// Messages returns the current room's ordered messages.
func (c *Client) Messages() []models.Message {
	if b := c.Buffer(); b != nil {
		return b.Messages()
	}
	return nil
}

// Subscription exposes the subscription manager.
func (c *Client) Subscription() *SubscriptionManager {
	return c.manager
}

func (c *Client) SendText(ctx context.Context, text string) (string, error) {
	s, err := c.currentSender()
	if err != nil {
		return "", err
	}
	return s.SendText(ctx, text)
}

func (c *Client) SendAttachment(ctx context.Context, file File) (string, error) {
	s, err := c.currentSender()
	if err != nil {
		return "", err
	}
	return s.SendAttachment(ctx, file)
}

func (c *Client) Retry(ctx context.Context, tempID string) error {
	s, err := c.currentSender()
	if err != nil {
		return err
	}
	return s.Retry(ctx, tempID)
}

// OnChange registers fn for every buffer change of the joined room. A room
// switch is reported with the new room id and an empty list.
func (c *Client) OnChange(fn func(roomID string, messages []models.Message)) func() {
	c.observersMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.observersMu.Unlock()

	return func() {
		c.observersMu.Lock()
		delete(c.observers, id)
		c.observersMu.Unlock()
	}
}

func (c *Client) currentSender() (*Sender, error) {
	c.mu.Lock()
	s := c.sender
	c.mu.Unlock()
	if s == nil {
		err := apperrors.New(apperrors.ErrCodeInvalidInput, "no room joined").
			WithUserMessage("Join a room first")
		c.session.Notifier.Notify(session.ErrorNotice(err))
		return nil, err
	}
	return s, nil
}

// deliver routes a snapshot to the buffer of the room it belongs to.
// Snapshots for a room that is no longer joined are dropped.
func (c *Client) deliver(roomID string, records []models.Message) {
	c.mu.Lock()
	buffer := c.buffer
	current := c.roomID
	c.mu.Unlock()

	if buffer == nil || roomID != current {
		c.logger.WithField("room_id", roomID).Debug("Dropping snapshot for inactive room")
		return
	}
	buffer.ReconcileSnapshot(records)
}

func (c *Client) emit(roomID string, messages []models.Message) {
	c.observersMu.Lock()
	fns := make([]func(string, []models.Message), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.observersMu.Unlock()

	for _, fn := range fns {
		fn(roomID, messages)
	}
}
