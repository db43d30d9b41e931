package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"studyroom/internal/models"

	"github.com/google/uuid"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// AppendMessage stores msg in its room's log with a server-assigned id and
// timestamp. A repeated append carrying the same client id from the same
// author returns the stored record with created=false. The author is added to
// the room's participants. uploadName links the record to a stored upload.
func (d *Database) AppendMessage(ctx context.Context, msg models.Message, uploadName string) (*models.Message, bool, error) {
	var stored *models.Message
	var created bool

	err := d.retryableDBOperation(ctx, "append message", func() error {
		stored, created = nil, false
		return d.inTx(ctx, func(tx *sql.Tx) error {
			if err := requireRoom(ctx, tx, msg.RoomID); err != nil {
				return err
			}

			if msg.ClientID != "" {
				existing, err := d.scanMessage(tx.QueryRowContext(ctx, SelectMessageByClientIDQuery,
					msg.RoomID, msg.AuthorID, msg.ClientID))
				if err == nil {
					stored = existing
					return nil
				}
				if !errors.Is(err, sql.ErrNoRows) {
					return err
				}
			}

			record := msg.Clone()
			record.ID = uuid.NewString()
			record.CreatedAt = d.now()
			record.Status = models.StatusConfirmed
			record.FailureReason = ""

			text, err := d.encryptor.Encrypt(record.Text)
			if err != nil {
				return fmt.Errorf("failed to encrypt message text: %w", err)
			}

			var attURL, attName, attMIME string
			var attSize int64
			if record.Attachment != nil {
				attURL = record.Attachment.URL
				attName = record.Attachment.Filename
				attMIME = record.Attachment.MIMEType
				attSize = record.Attachment.Size
			}

			createdNs := record.CreatedAt.UnixNano()
			if _, err := tx.ExecContext(ctx, InsertMessageQuery,
				record.ID, record.RoomID, record.ClientID, record.AuthorID, record.AuthorName,
				string(record.Kind), text, attURL, attName, attMIME, attSize,
				uploadName, createdNs); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, InsertParticipantQuery, record.RoomID, record.AuthorID, createdNs); err != nil {
				return err
			}

			stored, created = &record, true
			return nil
		})
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// ListMessages returns the room's log ordered by timestamp, then by insertion.
func (d *Database) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var messages []models.Message
	err := d.retryableDBOperation(ctx, "list messages", func() error {
		if err := requireRoom(ctx, d.db, roomID); err != nil {
			return err
		}

		rows, err := d.db.QueryContext(ctx, SelectRoomMessagesQuery, roomID)
		if err != nil {
			return err
		}
		defer rows.Close()

		messages = make([]models.Message, 0)
		for rows.Next() {
			msg, err := d.scanMessage(rows)
			if err != nil {
				return err
			}
			messages = append(messages, *msg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (d *Database) scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var kind, text, attURL, attName, attMIME string
	var attSize, createdNs int64

	if err := row.Scan(&msg.ID, &msg.RoomID, &msg.ClientID, &msg.AuthorID, &msg.AuthorName,
		&kind, &text, &attURL, &attName, &attMIME, &attSize, &createdNs); err != nil {
		return nil, err
	}

	plaintext, err := d.encryptor.Decrypt(text)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt message %s: %w", msg.ID, err)
	}

	msg.Kind = models.MessageKind(kind)
	msg.Text = plaintext
	msg.CreatedAt = fromNanos(createdNs)
	msg.Status = models.StatusConfirmed
	if attURL != "" {
		msg.Attachment = &models.Attachment{
			URL:      attURL,
			Filename: attName,
			MIMEType: attMIME,
			Size:     attSize,
		}
	}
	return &msg, nil
}
