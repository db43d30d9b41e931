package database

import (
	"context"
	"database/sql"
	"errors"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"

	"github.com/google/uuid"
)

// CreateRoom stores a new room owned by creatorID, who becomes its first
// participant.
func (d *Database) CreateRoom(ctx context.Context, creatorID string, req models.CreateRoomRequest) (*models.Room, error) {
	room := &models.Room{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		CreatorID:    creatorID,
		Participants: []string{creatorID},
		CreatedAt:    d.now(),
	}

	err := d.retryableDBOperation(ctx, "create room", func() error {
		return d.inTx(ctx, func(tx *sql.Tx) error {
			created := room.CreatedAt.UnixNano()
			if _, err := tx.ExecContext(ctx, InsertRoomQuery,
				room.ID, room.Name, room.Description, room.CreatorID, created, created); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, InsertParticipantQuery, room.ID, creatorID, created)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom returns the room with its participants, or a NOT_FOUND AppError.
func (d *Database) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room *models.Room
	err := d.retryableDBOperation(ctx, "get room", func() error {
		var err error
		room, err = getRoom(ctx, d.db, roomID)
		return err
	})
	return room, err
}

func getRoom(ctx context.Context, q querier, roomID string) (*models.Room, error) {
	var room models.Room
	var createdNs int64
	err := q.QueryRowContext(ctx, SelectRoomQuery, roomID).
		Scan(&room.ID, &room.Name, &room.Description, &room.CreatorID, &createdNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("Room", roomID)
	}
	if err != nil {
		return nil, err
	}
	room.CreatedAt = fromNanos(createdNs)

	rows, err := q.QueryContext(ctx, SelectParticipantsQuery, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	room.Participants = []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		room.Participants = append(room.Participants, userID)
	}
	return &room, rows.Err()
}

// UpdateRoom applies the non-nil fields of update and returns the result.
func (d *Database) UpdateRoom(ctx context.Context, roomID string, update models.RoomUpdate) (*models.Room, error) {
	var room *models.Room
	err := d.retryableDBOperation(ctx, "update room", func() error {
		return d.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, UpdateRoomQuery,
				nullString(update.Name), nullString(update.Description), d.now().UnixNano(), roomID)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return apperrors.NewNotFoundError("Room", roomID)
			}
			room, err = getRoom(ctx, tx, roomID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// DeleteRoom removes the room together with its participants and messages.
func (d *Database) DeleteRoom(ctx context.Context, roomID string) error {
	return d.retryableDBOperation(ctx, "delete room", func() error {
		res, err := d.db.ExecContext(ctx, DeleteRoomQuery, roomID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apperrors.NewNotFoundError("Room", roomID)
		}
		return nil
	})
}

// AddParticipant records userID as a participant; repeated calls are no-ops.
func (d *Database) AddParticipant(ctx context.Context, roomID, userID string) error {
	return d.retryableDBOperation(ctx, "add participant", func() error {
		return d.inTx(ctx, func(tx *sql.Tx) error {
			if err := requireRoom(ctx, tx, roomID); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, InsertParticipantQuery, roomID, userID, d.now().UnixNano())
			return err
		})
	})
}

func requireRoom(ctx context.Context, q querier, roomID string) error {
	var count int
	if err := q.QueryRowContext(ctx, RoomExistsQuery, roomID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return apperrors.NewNotFoundError("Room", roomID)
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
