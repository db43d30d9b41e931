package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"studyroom/internal/chat"
	"studyroom/internal/constants"
	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// MessageLog appends over HTTP and subscribes over a websocket that carries
// a full JSON snapshot per change.
type MessageLog struct {
	c *Client
}

func NewMessageLog(c *Client) *MessageLog {
	return &MessageLog{c: c}
}

func messagesPath(roomID string) string {
	return roomPath(roomID) + "/messages"
}

// Append writes msg and returns the id the log assigned. The ClientID is
// sent along so a repeated append of the same record is deduplicated.
func (l *MessageLog) Append(ctx context.Context, roomID string, msg models.Message) (string, error) {
	req := models.AppendRequest{
		ClientID:   msg.ClientID,
		Kind:       msg.Kind,
		Text:       msg.Text,
		Attachment: msg.Attachment,
		AuthorName: msg.AuthorName,
	}
	var resp models.AppendResponse
	if err := l.c.doJSON(ctx, "POST", messagesPath(roomID), req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// List fetches the room's log once.
func (l *MessageLog) List(ctx context.Context, roomID string) ([]models.Message, error) {
	var snap models.Snapshot
	if err := l.c.doJSON(ctx, "GET", messagesPath(roomID), nil, &snap); err != nil {
		return nil, err
	}
	return snap.Messages, nil
}

// Subscribe dials the room's stream. Every frame is a complete snapshot in
// CreatedAt order. onError fires once if the stream breaks for any reason
// other than the returned Unsubscribe being called.
func (l *MessageLog) Subscribe(ctx context.Context, roomID string, onSnapshot func([]models.Message), onError func(error)) (chat.Unsubscribe, error) {
	endpoint := messagesPath(roomID) + "/stream"

	header := make(http.Header)
	if err := l.c.authorize(ctx, header); err != nil {
		return nil, err
	}

	wsURL, err := websocketURL(l.c.baseURL + endpoint)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInvalidConfig, "invalid api base url")
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, apperrors.NewAPIError(endpoint, status, "", err)
	}
	conn.SetReadLimit(constants.MaxSnapshotBytes)

	subCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancel()
			_ = conn.CloseNow()
		})
	}

	logger := l.c.logger.WithFields(logrus.Fields{"room_id": roomID})
	logger.Debug("Room stream connected")

	go func() {
		for {
			var snap models.Snapshot
			if err := wsjson.Read(subCtx, conn, &snap); err != nil {
				if subCtx.Err() != nil {
					logger.Debug("Room stream closed")
					return
				}
				unsubscribe()
				logger.WithError(err).Debug("Room stream failed")
				onError(streamError(err, roomID))
				return
			}
			onSnapshot(snap.Messages)
		}
	}()

	return unsubscribe, nil
}

// streamError classifies a broken stream. A room whose history no longer fits
// in one frame fails the same way on every reconnect.
func streamError(err error, roomID string) *apperrors.AppError {
	status := websocket.CloseStatus(err)
	var appErr *apperrors.AppError
	if status == websocket.StatusMessageTooBig {
		appErr = apperrors.Wrap(err, apperrors.ErrCodeSubscription, "room snapshot too large").
			WithUserMessage("This room's history is too large to load")
	} else {
		appErr = apperrors.WrapRetryable(err, apperrors.ErrCodeSubscription, "room stream closed")
	}
	return appErr.WithContext("room_id", roomID).WithContext("close_status", int(status))
}

func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return u.String(), nil
}
