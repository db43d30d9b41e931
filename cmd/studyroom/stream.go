package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"studyroom/internal/constants"
	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"
	"studyroom/internal/service"
	"studyroom/internal/tracing"

	"github.com/coder/websocket"
)

// handleStream upgrades to a websocket and pushes the room's full log on
// connect and again after every change. The stream ends when the client
// disconnects, the room is deleted, or the server shuts down.
func (s *Server) handleStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := roomID(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		userID := tracing.GetUserID(r.Context())
		if _, err := s.store.GetRoom(r.Context(), id); err != nil {
			s.fail(w, r, err)
			return
		}

		// Server-wide read/write timeouts would cut long-lived streams.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			service.LogWithContext(r.Context(), s.logger).WithError(err).Debug("Websocket upgrade failed")
			return
		}
		defer conn.CloseNow()

		sub := s.hub.Subscribe(id, userID)
		if sub == nil {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		defer s.hub.Unsubscribe(sub)

		if err := s.store.AddParticipant(r.Context(), id, userID); err != nil {
			service.LogWithContext(r.Context(), s.logger).WithError(err).Warn("Failed to record participant")
		}

		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()

		logger := service.LogWithContext(r.Context(), s.logger).WithField(service.LogFieldRoomID, id)
		logger.Debug("Room stream opened")

		ctx := conn.CloseRead(r.Context())
		if err := s.sendSnapshot(ctx, conn, id); err != nil {
			logger.WithError(err).Debug("Initial snapshot failed")
			return
		}

		for {
			select {
			case <-ctx.Done():
				logger.Debug("Room stream closed by client")
				return
			case <-sub.Done():
				_ = conn.Close(websocket.StatusGoingAway, "room closed")
				logger.Debug("Room stream closed by server")
				return
			case <-sub.Changed():
				if err := s.sendSnapshot(ctx, conn, id); err != nil {
					logger.WithError(err).Debug("Snapshot delivery failed")
					return
				}
			}
		}
	}
}

func (s *Server) sendSnapshot(ctx context.Context, conn *websocket.Conn, roomID string) error {
	messages, err := s.store.ListMessages(ctx, roomID)
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "could not load messages")
		return err
	}

	data, err := json.Marshal(models.Snapshot{RoomID: roomID, Messages: messages})
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "could not encode messages")
		return err
	}
	// Clients refuse larger frames, so tell them why instead of sending one.
	if len(data) > constants.MaxSnapshotBytes {
		_ = conn.Close(websocket.StatusMessageTooBig, "room history too large")
		return apperrors.New(apperrors.ErrCodeSubscription, "snapshot exceeds frame limit").
			WithContext("room_id", roomID).
			WithContext("bytes", len(data))
	}

	writeCtx, cancel := context.WithTimeout(ctx, constants.DefaultWebsocketWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return err
	}
	s.metrics.SnapshotSent()
	return nil
}
