package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"
)

// SaveUpload records a stored upload. A zero UploadedAt is set to now.
func (d *Database) SaveUpload(ctx context.Context, upload *models.StoredUpload) error {
	if upload.UploadedAt.IsZero() {
		upload.UploadedAt = d.now()
	}
	return d.retryableDBOperation(ctx, "save upload", func() error {
		_, err := d.db.ExecContext(ctx, InsertUploadQuery,
			upload.Name, upload.RoomID, upload.OwnerID, upload.Filename,
			upload.MIMEType, upload.Size, upload.UploadedAt.UnixNano())
		return err
	})
}

func (d *Database) GetUpload(ctx context.Context, name string) (*models.StoredUpload, error) {
	var upload *models.StoredUpload
	err := d.retryableDBOperation(ctx, "get upload", func() error {
		u, err := scanUpload(d.db.QueryRowContext(ctx, SelectUploadQuery, name))
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError("Upload", name)
		}
		upload = u
		return err
	})
	return upload, err
}

// ListOrphanUploads returns uploads older than cutoff that no message
// references.
func (d *Database) ListOrphanUploads(ctx context.Context, cutoff time.Time) ([]models.StoredUpload, error) {
	var uploads []models.StoredUpload
	err := d.retryableDBOperation(ctx, "list orphan uploads", func() error {
		rows, err := d.db.QueryContext(ctx, SelectOrphanUploadsQuery, cutoff.UnixNano())
		if err != nil {
			return err
		}
		defer rows.Close()

		uploads = nil
		for rows.Next() {
			u, err := scanUpload(rows)
			if err != nil {
				return err
			}
			uploads = append(uploads, *u)
		}
		return rows.Err()
	})
	return uploads, err
}

func (d *Database) DeleteUpload(ctx context.Context, name string) error {
	return d.retryableDBOperation(ctx, "delete upload", func() error {
		_, err := d.db.ExecContext(ctx, DeleteUploadQuery, name)
		return err
	})
}

func scanUpload(row rowScanner) (*models.StoredUpload, error) {
	var u models.StoredUpload
	var uploadedNs int64
	if err := row.Scan(&u.Name, &u.RoomID, &u.OwnerID, &u.Filename, &u.MIMEType, &u.Size, &uploadedNs); err != nil {
		return nil, err
	}
	u.UploadedAt = fromNanos(uploadedNs)
	return &u, nil
}
