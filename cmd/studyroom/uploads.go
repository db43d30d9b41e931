package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"studyroom/internal/chat"
	"studyroom/internal/constants"
	apperrors "studyroom/internal/errors"
	"studyroom/internal/httputil"
	"studyroom/internal/models"
	"studyroom/internal/security"
	"studyroom/internal/service"
	"studyroom/internal/tracing"
	"studyroom/internal/validation"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// mediaPrefix is the path under which stored uploads are served.
const mediaPrefix = "/media/"

// handleUpload stores one multipart "file" part for the room named by the
// "roomId" field and returns its durable URL.
func (s *Server) handleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+constants.DefaultUploadSlackBytes)

		if err := r.ParseMultipartForm(constants.BytesPerMegabyte); err != nil {
			s.metrics.UploadRejected()
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeTooLarge(w, r, "", tooLarge.Limit)
				return
			}
			s.fail(w, r, apperrors.NewValidationError("file", "", "Upload must be multipart/form-data"))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		roomID := strings.TrimSpace(r.FormValue("roomId"))
		if err := validation.ValidateRoomID(roomID); err != nil {
			s.metrics.UploadRejected()
			s.fail(w, r, err)
			return
		}
		if _, err := s.store.GetRoom(ctx, roomID); err != nil {
			s.metrics.UploadRejected()
			s.fail(w, r, err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			s.metrics.UploadRejected()
			s.fail(w, r, apperrors.NewValidationError("file", "", "Upload is missing the file part"))
			return
		}
		defer file.Close()

		filename := filepath.Base(header.Filename)
		if err := validation.ValidateFilename(filename); err != nil {
			s.metrics.UploadRejected()
			s.fail(w, r, err)
			return
		}
		if header.Size > s.maxBytes {
			s.metrics.UploadRejected()
			s.writeTooLarge(w, r, filename, s.maxBytes)
			return
		}

		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" || mimeType == constants.DefaultMimeType {
			mimeType = chat.DetectMIMEType(filename)
		}

		name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
		size, err := s.storeFile(name, file)
		if err != nil {
			s.metrics.UploadRejected()
			s.fail(w, r, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to store upload"))
			return
		}

		upload := &models.StoredUpload{
			Name:     name,
			RoomID:   roomID,
			OwnerID:  tracing.GetUserID(ctx),
			Filename: filename,
			MIMEType: mimeType,
			Size:     size,
		}
		if err := s.store.SaveUpload(ctx, upload); err != nil {
			s.removeFile(name)
			s.metrics.UploadRejected()
			s.fail(w, r, err)
			return
		}
		s.metrics.UploadStored(size)

		service.LogWithContext(ctx, s.logger).WithFields(map[string]interface{}{
			service.LogFieldRoomID:   roomID,
			service.LogFieldUpload:   name,
			service.LogFieldMIMEType: mimeType,
			service.LogFieldSize:     size,
		}).Info("Upload stored")

		_ = httputil.WriteJSON(w, http.StatusCreated, models.Upload{
			URL:      s.cfg.Server.PublicBaseURL + mediaPrefix + name,
			Filename: filename,
		})
	}
}

func (s *Server) writeTooLarge(w http.ResponseWriter, r *http.Request, filename string, limit int64) {
	if filename == "" {
		filename = "Upload"
	}
	err := apperrors.NewAttachmentTooLargeError(filename, limit+1, s.maxBytes)
	_ = httputil.WriteJSON(w, http.StatusRequestEntityTooLarge,
		apperrors.ToHTTPResponse(err, tracing.GetRequestID(r.Context())))
}

// storeFile copies src into the media directory under name. The file is
// created exclusively and removed again if the copy fails.
func (s *Server) storeFile(name string, src io.Reader) (int64, error) {
	path, err := security.ContainedPath(s.cfg.Media.Dir, name)
	if err != nil {
		return 0, err
	}
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, err
	}

	size, copyErr := io.Copy(dst, io.LimitReader(src, s.maxBytes+1))
	closeErr := dst.Close()
	if copyErr == nil && size > s.maxBytes {
		copyErr = fmt.Errorf("upload exceeds %d bytes", s.maxBytes)
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path)
		if copyErr != nil {
			return 0, copyErr
		}
		return 0, closeErr
	}
	return size, nil
}

func (s *Server) removeFile(name string) {
	path, err := security.ContainedPath(s.cfg.Media.Dir, name)
	if err != nil {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).WithField(service.LogFieldUpload, name).Warn("Failed to remove stored upload")
	}
}

// resolveAttachment checks that an attachment points at an upload this
// server stored for the same room.
func (s *Server) resolveAttachment(ctx context.Context, roomID string, att *models.Attachment) (*models.StoredUpload, error) {
	prefix := s.cfg.Server.PublicBaseURL + mediaPrefix
	if !strings.HasPrefix(att.URL, prefix) {
		return nil, apperrors.NewValidationError("attachment.url", att.URL, "Attachment must reference an uploaded file")
	}
	name := strings.TrimPrefix(att.URL, prefix)
	if err := security.ValidateFileName(name); err != nil {
		return nil, apperrors.NewValidationError("attachment.url", att.URL, "Attachment must reference an uploaded file")
	}

	upload, err := s.store.GetUpload(ctx, name)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return nil, apperrors.NewValidationError("attachment.url", att.URL, "Attachment must reference an uploaded file")
		}
		return nil, err
	}
	if upload.RoomID != roomID {
		return nil, apperrors.NewValidationError("attachment.url", att.URL, "Attachment belongs to another room")
	}
	return upload, nil
}

// handleMedia serves a stored upload. Names are random so no token is needed.
func (s *Server) handleMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if err := security.ValidateFileName(name); err != nil {
			s.fail(w, r, apperrors.NewNotFoundError("Upload", name))
			return
		}

		upload, err := s.store.GetUpload(r.Context(), name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		path, err := security.ContainedPath(s.cfg.Media.Dir, upload.Name)
		if err != nil {
			s.fail(w, r, apperrors.NewNotFoundError("Upload", name))
			return
		}
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				s.fail(w, r, apperrors.NewNotFoundError("Upload", name))
				return
			}
			s.fail(w, r, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to open upload"))
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", upload.MIMEType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		if chat.KindForMIME(upload.MIMEType) != models.KindImage {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", upload.Filename))
		}
		http.ServeContent(w, r, upload.Filename, upload.UploadedAt, f)
	}
}
