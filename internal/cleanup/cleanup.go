// Package cleanup is the optional retention janitor: completed media
// older than the retention window is deleted along with its record and
// thumbnail. Disabled by a zero retention duration.
package cleanup

import (
	"context"
	"os"
	"time"

	"github.com/mediafetch/mediafetch/internal/logctx"
	"github.com/mediafetch/mediafetch/internal/storage"
	"github.com/mediafetch/mediafetch/internal/thumbs"
)

// ThumbnailInvalidator is the slice of the thumbnail cache cleanup needs.
type ThumbnailInvalidator interface {
	Invalidate(key string) error
}

// DeleteExpiredDownloads removes completed downloads older than
// keepDuration: media file first (best effort), then thumbnail, then
// the record itself.
func DeleteExpiredDownloads(
	ctx context.Context,
	repo storage.DownloadRepository,
	cache ThumbnailInvalidator,
	keepDuration time.Duration,
) error {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	completed, err := repo.ListByStatus(storage.StatusCompleted)
	if err != nil {
		return err
	}

	for _, rec := range completed {
		completedAt := rec.CreatedAt
		if rec.CompletedAt != nil {
			completedAt = *rec.CompletedAt
		}

		if now.Sub(completedAt) <= keepDuration {
			continue
		}

		if rec.FilePath != "" {
			if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
				logger.Error("failed to delete expired file", "file", rec.FilePath, "err", err)

				continue
			}
		}

		if err := cache.Invalidate(thumbs.Key(rec.ID, rec.FilePath)); err != nil {
			logger.Warn("failed to invalidate expired thumbnail", "download_id", rec.ID, "err", err)
		}

		if err := repo.Delete(rec.ID); err != nil {
			logger.Error("failed to delete expired record", "download_id", rec.ID, "err", err)

			continue
		}

		logger.Info("deleted expired download", "download_id", rec.ID, "file", rec.FilePath)
	}

	return nil
}
