package hub

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Subscriber receives a signal whenever its room's log changes. Signals
// coalesce: a subscriber that falls behind sees one pending signal, and the
// reader is expected to load the current snapshot on each one.
type Subscriber struct {
	RoomID string
	UserID string

	changed chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Changed fires after the room's log has been modified.
func (s *Subscriber) Changed() <-chan struct{} {
	return s.changed
}

// Done is closed when the subscriber is removed or the hub shuts down.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscriber) signal() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Hub fans room change notifications out to live stream subscribers.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*Subscriber]struct{}
	closed bool
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		rooms:  make(map[string]map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a subscriber for roomID. It returns nil once the hub
// has been closed.
func (h *Hub) Subscribe(roomID, userID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	sub := &Subscriber{
		RoomID:  roomID,
		UserID:  userID,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	set, ok := h.rooms[roomID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.rooms[roomID] = set
	}
	set[sub] = struct{}{}

	h.logger.WithFields(logrus.Fields{
		"room_id":     roomID,
		"subscribers": len(set),
	}).Debug("Stream subscriber added")
	return sub
}

// Unsubscribe removes sub; calling it more than once is harmless.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	if set, ok := h.rooms[sub.RoomID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.rooms, sub.RoomID)
		}
	}
	h.mu.Unlock()

	sub.close()
}

// Notify signals every subscriber of roomID and returns how many there were.
func (h *Hub) Notify(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.rooms[roomID]
	for sub := range set {
		sub.signal()
	}
	return len(set)
}

// CloseRoom disconnects every subscriber of roomID, used when a room is
// deleted.
func (h *Hub) CloseRoom(roomID string) int {
	h.mu.Lock()
	set := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	for sub := range set {
		sub.close()
	}
	return len(set)
}

// Subscribers returns the number of live subscribers for roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	rooms := h.rooms
	h.rooms = make(map[string]map[*Subscriber]struct{})
	h.mu.Unlock()

	for _, set := range rooms {
		for sub := range set {
			sub.close()
		}
	}
	h.logger.Info("Stream hub closed")
}
