package queue

import (
	"context"
	"fmt"

	"github.com/mediafetch/mediafetch/internal/logctx"
	"github.com/mediafetch/mediafetch/internal/storage"
	"github.com/mediafetch/mediafetch/internal/thumbs"
)

// recoverLocked reconciles store state left behind by an unclean exit.
// It runs once, from Start, before the queue accepts work:
//
//  1. Any record still downloading belonged to a dead process. Its
//     partial files and thumbnail are swept (best effort) and its
//     status reset to pending.
//  2. Every pending record, including the ones just reset, is
//     re-stamped paused: nothing auto-resumes after a restart, the user
//     resumes explicitly.
//  3. The paused set loads into the queue view and the failed set into
//     the failed list, both oldest-first.
//
// File hygiene never blocks the status reset; a store failure does, and
// aborts startup.
func (o *Orchestrator) recoverLocked(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx)

	stalled, err := o.repo.ListByStatus(storage.StatusDownloading)
	if err != nil {
		return fmt.Errorf("failed to query stalled downloads: %w", err)
	}

	for _, rec := range stalled {
		logger.Info("resetting stalled download", "download_id", rec.ID, "title", rec.Title)

		if err := o.fetcher.SweepArtifacts(rec); err != nil {
			logger.Warn("failed to sweep stalled artifacts", "download_id", rec.ID, "err", err)
		}

		if err := o.thumbs.Invalidate(thumbs.Key(rec.ID, rec.FilePath)); err != nil {
			logger.Warn("failed to invalidate stalled thumbnail", "download_id", rec.ID, "err", err)
		}

		if err := o.repo.UpdateStatus(rec.ID, storage.StatusPending); err != nil {
			return fmt.Errorf("failed to reset stalled download %s: %w", rec.ID, err)
		}
	}

	pending, err := o.repo.ListByStatus(storage.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to query pending downloads: %w", err)
	}

	for _, rec := range pending {
		if err := o.repo.UpdateStatus(rec.ID, storage.StatusPaused); err != nil {
			return fmt.Errorf("failed to park pending download %s: %w", rec.ID, err)
		}
	}

	paused, err := o.repo.ListByStatus(storage.StatusPaused)
	if err != nil {
		return fmt.Errorf("failed to load paused downloads: %w", err)
	}

	// The store returns newest-first; reverse for FIFO semantics.
	o.queued = o.queued[:0]
	for i := len(paused) - 1; i >= 0; i-- {
		o.queued = append(o.queued, paused[i])
	}

	failed, err := o.repo.ListByStatus(storage.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to load failed downloads: %w", err)
	}

	o.failed = o.failed[:0]
	for i := len(failed) - 1; i >= 0; i-- {
		o.failed = append(o.failed, failed[i])
	}

	if len(o.queued) > 0 || len(o.failed) > 0 {
		logger.Info("queue state recovered",
			"stalled_reset", len(stalled),
			"parked", len(o.queued),
			"failed", len(o.failed),
		)
	}

	o.recordDepthLocked()

	return nil
}
