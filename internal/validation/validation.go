package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"studyroom/internal/constants"
	"studyroom/internal/errors"
	"studyroom/internal/models"
)

// ValidateRoomID checks a room id taken from a URL or a command line.
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return errors.NewValidationError("room_id", "", "room id cannot be empty").
			WithUserMessage("Room id is required")
	}

	if len(roomID) > constants.MaxRoomIDLength {
		return errors.NewValidationError("room_id", "", fmt.Sprintf("room id too long (max %d characters)", constants.MaxRoomIDLength))
	}

	for _, char := range roomID {
		if unicode.IsControl(char) || unicode.IsSpace(char) || char == '/' {
			return errors.NewValidationError("room_id", roomID, "room id contains invalid characters")
		}
	}

	return nil
}

// NormalizeMessageText trims text and checks it is non-empty and within the
// length limit.
func NormalizeMessageText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.NewValidationError("text", "", "message cannot be empty").
			WithUserMessage("Message cannot be empty")
	}
	if utf8.RuneCountInString(text) > constants.MaxMessageTextLength {
		return "", errors.NewValidationError("text", "", "message is too long").
			WithUserMessage(fmt.Sprintf("Message is too long (max %d characters)", constants.MaxMessageTextLength))
	}
	return text, nil
}

// ValidateFilename checks the user-facing name of an attachment.
func ValidateFilename(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewValidationError("filename", "", "file name cannot be empty")
	}
	if len(name) > constants.MaxFilenameLength {
		return errors.NewValidationError("filename", "", fmt.Sprintf("file name too long (max %d characters)", constants.MaxFilenameLength))
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return errors.NewValidationError("filename", name, "file name must not contain path separators")
	}
	return nil
}

// ValidateAttachmentSize rejects empty files and files over maxMB.
func ValidateAttachmentSize(name string, size int64, maxMB int) error {
	if size <= 0 {
		return errors.NewValidationError("attachment", name, "file is empty").
			WithUserMessage(name + " is empty")
	}
	limit := int64(maxMB) * constants.BytesPerMegabyte
	if size > limit {
		return errors.NewAttachmentTooLargeError(name, size, limit)
	}
	return nil
}

// ValidateRoomName checks a room name on create or rename.
func ValidateRoomName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewValidationError("name", "", "room name cannot be empty").
			WithUserMessage("Room name is required")
	}
	return ValidateStringLength(name, "name", 1, constants.MaxRoomNameLength)
}

// ValidateCreateRoom checks a room creation request.
func ValidateCreateRoom(req models.CreateRoomRequest) error {
	if err := ValidateRoomName(req.Name); err != nil {
		return err
	}
	return ValidateStringLength(req.Description, "description", 0, constants.MaxDescriptionLength)
}

// ValidateRoomUpdate checks the fields present in a partial update.
func ValidateRoomUpdate(update models.RoomUpdate) error {
	if update.Empty() {
		return errors.NewValidationError("update", "", "no fields to update").
			WithUserMessage("Nothing to update")
	}
	if update.Name != nil {
		if err := ValidateRoomName(*update.Name); err != nil {
			return err
		}
	}
	if update.Description != nil {
		return ValidateStringLength(*update.Description, "description", 0, constants.MaxDescriptionLength)
	}
	return nil
}

// ValidateAppend checks an append request received by the server.
func ValidateAppend(req models.AppendRequest) error {
	if len(req.ClientID) > constants.MaxRoomIDLength {
		return errors.NewValidationError("client_id", "", "client id too long")
	}

	switch req.Kind {
	case models.KindText:
		if req.Attachment != nil {
			return errors.NewValidationError("attachment", "", "text messages cannot carry attachments")
		}
		_, err := NormalizeMessageText(req.Text)
		return err
	case models.KindImage, models.KindFile:
		if req.Attachment == nil || req.Attachment.URL == "" {
			return errors.NewValidationError("attachment", "", "attachment is required for this kind").
				WithUserMessage("Attachment is missing")
		}
		if utf8.RuneCountInString(req.Text) > constants.MaxMessageTextLength {
			return errors.NewValidationError("text", "", "caption is too long")
		}
		return ValidateFilename(req.Attachment.Filename)
	default:
		return errors.NewValidationError("kind", string(req.Kind), "unknown message kind")
	}
}

// ValidateBaseURL checks an absolute http(s) URL such as the API root.
func ValidateBaseURL(raw, fieldName string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s must be an absolute URL", fieldName))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("%s must use http or https", fieldName))
	}
	return nil
}

// ValidateStringLength validates string length (in characters) against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	n := utf8.RuneCountInString(value)
	if n < minLength {
		return errors.NewValidationError(fieldName, "", fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength))
	}

	if n > maxLength {
		return errors.NewValidationError(fieldName, "", fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > 3600 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}

	return nil
}

// ValidateRetentionDays validates the upload retention period
func ValidateRetentionDays(days int) error {
	if days < 1 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days must be at least 1")
	}

	if days > 3650 {
		return errors.New(errors.ErrCodeInvalidInput, "retention days too large (max 3650)")
	}

	return nil
}
