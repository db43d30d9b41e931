package main

import (
	"net/http"
	"strings"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/httputil"
	"studyroom/internal/models"
	"studyroom/internal/service"
	"studyroom/internal/tracing"
	"studyroom/internal/validation"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
)

// roomID reads and validates the {id} path variable.
func roomID(r *http.Request) (string, error) {
	id := mux.Vars(r)["id"]
	if err := validation.ValidateRoomID(id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	entry := service.LogWithContext(r.Context(), s.logger).
		WithError(err).
		WithField(service.LogFieldErrorCode, apperrors.GetCode(err))
	if apperrors.HTTPStatusCode(err) >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}
	httputil.WriteError(w, r, err)
}

func (s *Server) handleCreateRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateRoomRequest
		if err := httputil.DecodeJSON(w, r, maxJSONBody, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if err := validation.ValidateCreateRoom(req); err != nil {
			s.fail(w, r, err)
			return
		}

		room, err := s.store.CreateRoom(r.Context(), tracing.GetUserID(r.Context()), req)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		service.LogWithContext(r.Context(), s.logger).
			WithField(service.LogFieldRoomID, room.ID).
			Info("Room created")
		_ = httputil.WriteJSON(w, http.StatusCreated, room)
	}
}

func (s *Server) handleGetRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := roomID(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		room, err := s.store.GetRoom(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		_ = httputil.WriteJSON(w, http.StatusOK, room)
	}
}

// handleUpdateRoom applies a partial update. Any authenticated user may edit
// a room's name and description; only deletion is reserved to the creator.
func (s *Server) handleUpdateRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := roomID(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}

		var update models.RoomUpdate
		if err := httputil.DecodeJSON(w, r, maxJSONBody, &update); err != nil {
			s.fail(w, r, err)
			return
		}
		if update.Name != nil {
			trimmed := strings.TrimSpace(*update.Name)
			update.Name = &trimmed
		}
		if err := validation.ValidateRoomUpdate(update); err != nil {
			s.fail(w, r, err)
			return
		}

		room, err := s.store.UpdateRoom(r.Context(), id, update)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		_ = httputil.WriteJSON(w, http.StatusOK, room)
	}
}

func (s *Server) handleDeleteRoom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := roomID(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ctx := r.Context()

		room, err := s.store.GetRoom(ctx, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !room.IsOwner(tracing.GetUserID(ctx)) {
			s.fail(w, r, apperrors.NewForbiddenError("delete room").
				WithContext("room_id", id).
				WithUserMessage("Only the room's creator can delete it"))
			return
		}

		if err := s.store.DeleteRoom(ctx, id); err != nil {
			s.fail(w, r, err)
			return
		}
		closed := s.hub.CloseRoom(id)

		service.LogWithContext(ctx, s.logger).WithFields(map[string]interface{}{
			service.LogFieldRoomID: id,
			"closed_streams":       closed,
		}).Info("Room deleted")
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := roomID(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		messages, err := s.store.ListMessages(r.Context(), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		_ = httputil.WriteJSON(w, http.StatusOK, models.Snapshot{RoomID: id, Messages: messages})
	}
}

// handleAppendMessage stores one record with a server timestamp. A repeated
// append carrying the same client id from the same author returns the
// original record with 200 instead of 201.
func (s *Server) handleAppendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := roomID(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ctx, span := tracing.StartSpan(r.Context(), "server.append_message", attribute.String("room.id", id))
		defer span.End()

		var req models.AppendRequest
		if err := httputil.DecodeJSON(w, r, maxJSONBody, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := validation.ValidateAppend(req); err != nil {
			s.fail(w, r, err)
			return
		}

		userID := tracing.GetUserID(ctx)
		msg := models.Message{
			ClientID:   req.ClientID,
			RoomID:     id,
			AuthorID:   userID,
			AuthorName: strings.TrimSpace(req.AuthorName),
			Kind:       req.Kind,
			Text:       strings.TrimSpace(req.Text),
			Attachment: req.Attachment,
		}
		if msg.AuthorName == "" {
			msg.AuthorName = userID
		}

		uploadName := ""
		if msg.Attachment != nil {
			upload, err := s.resolveAttachment(ctx, id, msg.Attachment)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			uploadName = upload.Name
			msg.Attachment = &models.Attachment{
				URL:      msg.Attachment.URL,
				Filename: upload.Filename,
				MIMEType: upload.MIMEType,
				Size:     upload.Size,
			}
		}

		stored, created, err := s.store.AppendMessage(ctx, msg, uploadName)
		if err != nil {
			tracing.RecordError(ctx, err)
			s.fail(w, r, err)
			return
		}
		s.metrics.MessageAppended(string(stored.Kind), created)

		status := http.StatusOK
		if created {
			status = http.StatusCreated
			s.hub.Notify(id)
		}

		service.LogWithContext(ctx, s.logger).WithFields(map[string]interface{}{
			service.LogFieldRoomID:    id,
			service.LogFieldMessageID: stored.ID,
			service.LogFieldClientID:  stored.ClientID,
			service.LogFieldKind:      stored.Kind,
			service.LogFieldCreated:   created,
		}).Debug("Message appended")

		_ = httputil.WriteJSON(w, status, models.AppendResponse{ID: stored.ID, CreatedAt: stored.CreatedAt})
	}
}
