package chat

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"studyroom/internal/constants"
	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"
	"studyroom/internal/session"
	"studyroom/internal/tracing"
	"studyroom/internal/validation"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// File is an attachment picked by the user, not yet uploaded.
type File struct {
	Name     string
	MIMEType string
	Size     int64
	Content  io.Reader
}

// Uploader stores an attachment and returns its durable URL.
type Uploader interface {
	Upload(ctx context.Context, roomID string, file File) (*models.Upload, error)
}

// Sender turns user actions into optimistic buffer entries and log writes
// for one room.
type Sender struct {
	roomID   string
	buffer   *Buffer
	log      MessageLog
	uploader Uploader
	session  *session.Session
	logger   *apperrors.Logger
}

func NewSender(roomID string, buffer *Buffer, log MessageLog, uploader Uploader, sess *session.Session) *Sender {
	return &Sender{
		roomID:   roomID,
		buffer:   buffer,
		log:      log,
		uploader: uploader,
		session:  sess,
		logger:   apperrors.WrapLogger(sess.Logger),
	}
}

// SendText appends a pending text record and writes it to the log. The temp
// id is returned whenever a buffer entry was created, even if the write
// failed and the entry is now waiting for a retry.
func (s *Sender) SendText(ctx context.Context, text string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.send_text", attribute.String("room.id", s.roomID))
	defer span.End()

	user, err := s.session.RequireUser()
	if err != nil {
		return "", s.reject(err)
	}

	text, err = validation.NormalizeMessageText(text)
	if err != nil {
		return "", s.reject(err)
	}

	tempID, err := s.buffer.AppendPending(models.Message{
		RoomID:     s.roomID,
		AuthorID:   user.ID,
		AuthorName: user.DisplayName,
		Kind:       models.KindText,
		Text:       text,
	})
	if err != nil {
		return "", s.reject(err)
	}

	return tempID, s.write(ctx, tempID)
}

// SendAttachment validates the size, uploads the file and only then appends
// a pending record pointing at the durable URL. A failed upload leaves the
// buffer untouched.
func (s *Sender) SendAttachment(ctx context.Context, file File) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.send_attachment",
		attribute.String("room.id", s.roomID),
		attribute.Int64("file.size", file.Size))
	defer span.End()

	user, err := s.session.RequireUser()
	if err != nil {
		return "", s.reject(err)
	}

	name := filepath.Base(file.Name)
	if file.Name == "" || name == "." || name == string(filepath.Separator) {
		return "", s.reject(apperrors.NewValidationError("file_name", file.Name, "file name is required"))
	}
	if limit := s.session.MaxAttachmentBytes(); file.Size > limit {
		return "", s.reject(apperrors.NewAttachmentTooLargeError(name, file.Size, limit))
	}
	if file.Size <= 0 || file.Content == nil {
		return "", s.reject(apperrors.NewValidationError("attachment", name, "file is empty").
			WithUserMessage(name + " is empty"))
	}

	file.Name = name
	if file.MIMEType == "" {
		file.MIMEType = DetectMIMEType(name)
	}

	upload, err := s.uploader.Upload(ctx, s.roomID, file)
	if err != nil {
		tracing.RecordError(ctx, err)
		wrapped := apperrors.Wrap(err, apperrors.ErrCodeUploadFailed, "attachment upload failed").
			WithContext("room_id", s.roomID).
			WithContext("file_name", name)
		wrapped.Retryable = apperrors.IsRetryable(err)
		wrapped.UserMessage = uploadFailureMessage(err, name)
		return "", s.reject(wrapped)
	}

	filename := upload.Filename
	if filename == "" {
		filename = name
	}

	tempID, err := s.buffer.AppendPending(models.Message{
		RoomID:     s.roomID,
		AuthorID:   user.ID,
		AuthorName: user.DisplayName,
		Kind:       KindForMIME(file.MIMEType),
		Attachment: &models.Attachment{
			URL:      upload.URL,
			Filename: filename,
			MIMEType: file.MIMEType,
			Size:     file.Size,
		},
	})
	if err != nil {
		return "", s.reject(err)
	}

	return tempID, s.write(ctx, tempID)
}

// Retry re-issues the log write for a failed record. Attachments reuse the
// URL from their original upload.
func (s *Sender) Retry(ctx context.Context, tempID string) error {
	ctx, span := tracing.StartSpan(ctx, "chat.retry",
		attribute.String("room.id", s.roomID),
		attribute.String("message.id", tempID))
	defer span.End()

	if _, err := s.buffer.Retry(tempID); err != nil {
		return s.reject(err)
	}
	return s.write(ctx, tempID)
}

// write sends a pending buffer record to the log. The record stays pending
// on success until a snapshot echoes it back.
func (s *Sender) write(ctx context.Context, tempID string) error {
	msg, ok := s.buffer.Get(tempID)
	if !ok {
		return nil
	}

	id, err := s.log.Append(ctx, s.roomID, msg)
	if err == nil {
		s.logger.WithFields(logrus.Fields{
			"room_id":    s.roomID,
			"message_id": tempID,
			"log_id":     id,
		}).Debug("Message appended to room log")
		return nil
	}

	tracing.RecordError(ctx, err)
	wrapped := apperrors.Wrap(err, apperrors.ErrCodeLogWriteFailed, "room log append failed").
		WithContext("room_id", s.roomID).
		WithContext("message_id", tempID)
	wrapped.Retryable = true
	wrapped.UserMessage = writeFailureMessage(err)

	if markErr := s.buffer.MarkFailed(tempID, wrapped.UserMessage); markErr != nil {
		// A snapshot confirmed the record while the write reported failure.
		s.logger.WithError(markErr).WithField("message_id", tempID).
			Debug("Write failed for a record that is no longer pending")
		return nil
	}

	s.logger.LogWarn(wrapped, "Message send failed")
	s.session.Notifier.Notify(session.ErrorNotice(wrapped))
	return wrapped
}

// reject reports a failure that happened before or instead of any buffer
// change.
func (s *Sender) reject(err error) error {
	s.logger.LogRetryableError(err, "Message rejected", logrus.Fields{"room_id": s.roomID})
	s.session.Notifier.Notify(session.ErrorNotice(err))
	return err
}

func writeFailureMessage(err error) string {
	if appErr, ok := apperrors.As(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "Message could not be sent"
}

func uploadFailureMessage(err error, name string) string {
	if appErr, ok := apperrors.As(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "Could not upload " + name
}

// DetectMIMEType guesses a content type from the file extension.
func DetectMIMEType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := constants.MimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return constants.DefaultMimeType
}

// KindForMIME classifies an attachment as image or file.
func KindForMIME(mimeType string) models.MessageKind {
	if strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		return models.KindImage
	}
	return models.KindFile
}
