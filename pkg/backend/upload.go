package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"studyroom/internal/chat"
	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"
)

const uploadPath = "/api/upload"

// Uploader posts attachments to the upload endpoint as multipart/form-data
// with a "file" part and a "roomId" field.
type Uploader struct {
	c *Client
}

func NewUploader(c *Client) *Uploader {
	return &Uploader{c: c}
}

func (u *Uploader) Upload(ctx context.Context, roomID string, file chat.File) (*models.Upload, error) {
	if roomID == "" {
		return nil, apperrors.NewValidationError("room_id", "", "room id is required")
	}
	if file.Content == nil {
		return nil, apperrors.NewValidationError("file", file.Name, "file has no content")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("roomId", roomID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to build upload form")
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Name)))
	contentType := file.MIMEType
	if contentType == "" {
		contentType = chat.DetectMIMEType(file.Name)
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to build upload form")
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUploadFailed, "failed to read attachment").
			WithUserMessage("Could not read " + file.Name)
	}
	if err := writer.Close(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to build upload form")
	}

	req, err := u.c.newRequest(ctx, "POST", uploadPath, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out models.Upload
	if err := u.c.do(req, uploadPath, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, apperrors.New(apperrors.ErrCodeUploadFailed, "upload response has no url").
			WithUserMessage("Upload failed")
	}
	return &out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
