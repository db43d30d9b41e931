package chat

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"studyroom/internal/models"
	"studyroom/internal/session"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

var testEpoch = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// fakeSubscription is one Subscribe call on fakeLog.
type fakeSubscription struct {
	roomID     string
	onSnapshot func([]models.Message)
	onError    func(error)

	mu     sync.Mutex
	closed bool
}

func (s *fakeSubscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeLog records appends and subscriptions. Tests drive deliveries by
// calling the captured callbacks directly.
type fakeLog struct {
	mu           sync.Mutex
	subs         []*fakeSubscription
	subscribeErr error
	appendErr    error
	appends      []models.Message
	nextID       int
}

func (l *fakeLog) Append(ctx context.Context, roomID string, msg models.Message) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appends = append(l.appends, msg)
	if l.appendErr != nil {
		return "", l.appendErr
	}
	l.nextID++
	return confirmedID(l.nextID), nil
}

func (l *fakeLog) Subscribe(ctx context.Context, roomID string, onSnapshot func([]models.Message), onError func(error)) (Unsubscribe, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sub := &fakeSubscription{roomID: roomID, onSnapshot: onSnapshot, onError: onError}
	l.subs = append(l.subs, sub)
	if l.subscribeErr != nil {
		return nil, l.subscribeErr
	}
	return func() {
		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
	}, nil
}

func (l *fakeLog) setAppendErr(err error) {
	l.mu.Lock()
	l.appendErr = err
	l.mu.Unlock()
}

func (l *fakeLog) Subscriptions() []*fakeSubscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*fakeSubscription, len(l.subs))
	copy(out, l.subs)
	return out
}

func (l *fakeLog) Last() *fakeSubscription {
	subs := l.Subscriptions()
	if len(subs) == 0 {
		return nil
	}
	return subs[len(subs)-1]
}

func (l *fakeLog) Appends() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Message, len(l.appends))
	copy(out, l.appends)
	return out
}

func confirmedID(n int) string {
	return "msg-" + string(rune('a'+n-1))
}

// confirm builds the record the log would echo for an appended message.
func confirm(id string, msg models.Message, at time.Time) models.Message {
	out := msg.Clone()
	out.ID = id
	out.CreatedAt = at
	out.Status = ""
	return out
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, roomID string, file File) (*models.Upload, error) {
	args := m.Called(ctx, roomID, file)
	if u := args.Get(0); u != nil {
		return u.(*models.Upload), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockRooms struct {
	mock.Mock
}

func (m *mockRooms) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	args := m.Called(ctx, roomID)
	if r := args.Get(0); r != nil {
		return r.(*models.Room), args.Error(1)
	}
	return nil, args.Error(1)
}

// noticeRecorder collects notices in order.
type noticeRecorder struct {
	mu      sync.Mutex
	notices []session.Notice
}

func (r *noticeRecorder) Notify(n session.Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *noticeRecorder) All() []session.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

func (r *noticeRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func newTestSession(t *testing.T, notices *noticeRecorder) *session.Session {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return session.New(
		session.NewStaticProvider("user-1", "Ada", "token-1"),
		notices,
		logger,
		models.ChatConfig{},
	)
}

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Set(testEpoch)
	return clk
}

func textMessage(author, text string) models.Message {
	return models.Message{RoomID: "room-1", AuthorID: author, AuthorName: author, Kind: models.KindText, Text: text}
}

func ids(messages []models.Message) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.ID
	}
	return out
}

func payloadFile(name string, size int64) File {
	return File{Name: name, Size: size, Content: io.LimitReader(zeroReader{}, size)}
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
