package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/metrics"
	"studyroom/internal/models"
	"studyroom/internal/security"

	"github.com/adhocore/gronx"
	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// sweepRetryDelay is how long the scheduler waits when the cron expression
// yields no next tick.
const sweepRetryDelay = 30 * time.Second

// UploadStore is the part of the database the sweeper needs.
type UploadStore interface {
	ListOrphanUploads(ctx context.Context, cutoff time.Time) ([]models.StoredUpload, error)
	DeleteUpload(ctx context.Context, name string) error
}

// Sweeper removes uploads that no message references once they are older
// than the retention window. Runs follow a cron schedule.
type Sweeper struct {
	store     UploadStore
	mediaDir  string
	retention time.Duration
	cronExpr  string
	clock     clock.Clock
	metrics   *metrics.Registry
	logger    *logrus.Logger
}

type SweeperOption func(*Sweeper)

// WithSweeperClock swaps the time source, for tests.
func WithSweeperClock(c clock.Clock) SweeperOption {
	return func(s *Sweeper) { s.clock = c }
}

func WithSweeperMetrics(registry *metrics.Registry) SweeperOption {
	return func(s *Sweeper) { s.metrics = registry }
}

func NewSweeper(store UploadStore, cfg models.MediaConfig, logger *logrus.Logger, opts ...SweeperOption) (*Sweeper, error) {
	if !gronx.IsValid(cfg.SweepCron) {
		return nil, apperrors.NewConfigError("media.sweep_cron", fmt.Sprintf("invalid cron expression %q", cfg.SweepCron))
	}
	if cfg.RetentionDays < 1 {
		return nil, apperrors.NewConfigError("media.retention_days", "retention must be at least one day")
	}
	s := &Sweeper{
		store:     store,
		mediaDir:  cfg.Dir,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		cronExpr:  cfg.SweepCron,
		clock:     clock.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NextRun returns the first scheduled run strictly after now.
func (s *Sweeper) NextRun(now time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.cronExpr, now, false)
}

// Start runs the sweeper on schedule until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.WithFields(logrus.Fields{
		"cron":           s.cronExpr,
		"retention_days": int(s.retention / (24 * time.Hour)),
	}).Info("Starting upload sweeper")

	for {
		wait := sweepRetryDelay
		next, err := s.NextRun(s.clock.Now().UTC())
		if err != nil {
			s.logger.WithError(err).Error("Failed to compute next sweep time")
		} else {
			wait = next.Sub(s.clock.Now().UTC())
		}

		timer := s.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Upload sweeper stopping")
			return
		case <-timer.C:
			if err == nil {
				if _, runErr := s.RunOnce(ctx); runErr != nil {
					s.logger.WithError(runErr).Error("Upload sweep finished with errors")
				}
			}
		}
	}
}

// RunOnce removes every orphaned upload older than the retention window and
// returns how many were removed. A failure on one upload does not stop the
// others.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.retention)
	orphans, err := s.store.ListOrphanUploads(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, upload := range orphans {
		if err := s.remove(ctx, upload); err != nil {
			s.logger.WithError(err).WithField(LogFieldUpload, upload.Name).Warn("Failed to remove orphaned upload")
			errs = append(errs, err)
			continue
		}
		removed++
	}

	s.metrics.UploadsSwept(removed)
	s.logger.WithFields(logrus.Fields{
		LogFieldCount: removed,
		"candidates":  len(orphans),
		"cutoff":      cutoff.UTC().Format(time.RFC3339),
	}).Info("Upload sweep completed")

	return removed, errors.Join(errs...)
}

func (s *Sweeper) remove(ctx context.Context, upload models.StoredUpload) error {
	path, err := security.ContainedPath(s.mediaDir, upload.Name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", upload.Name, err)
	}
	return s.store.DeleteUpload(ctx, upload.Name)
}
