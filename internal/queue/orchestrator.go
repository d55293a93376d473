// Package queue holds the download queue orchestrator: the single
// component that owns the in-memory queue view, drives status
// transitions through the record store, and runs downloads one at a
// time through the executor.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mediafetch/mediafetch/internal/executor"
	"github.com/mediafetch/mediafetch/internal/logctx"
	"github.com/mediafetch/mediafetch/internal/storage"
	"github.com/mediafetch/mediafetch/internal/telemetry"
	"github.com/mediafetch/mediafetch/internal/thumbs"
)

var (
	// ErrNotActive is returned by Pause when the id is not the one
	// currently downloading.
	ErrNotActive = errors.New("download is not the active item")

	// ErrWrongStatus is returned when an operation is not valid for the
	// record's current status.
	ErrWrongStatus = errors.New("operation not valid for download status")

	// ErrNotStarted is returned when operations arrive before Start.
	ErrNotStarted = errors.New("orchestrator is not started")
)

const (
	defaultCooldown        = 500 * time.Millisecond
	defaultProgressPersist = time.Second
	eventBuffer            = 16
)

// Fetcher runs one external fetch for a record. *executor.Executor
// implements it; tests substitute their own.
type Fetcher interface {
	Fetch(ctx context.Context, rec *storage.DownloadRecord, onProgress executor.ProgressFunc) (string, error)
	SweepArtifacts(rec *storage.DownloadRecord) error
}

// ThumbnailCache is the slice of the thumbs cache the orchestrator
// needs: read-through extraction after success, invalidation on failure
// and removal.
type ThumbnailCache interface {
	Ensure(ctx context.Context, key, mediaPath string, kind storage.MediaKind) (string, error)
	Invalidate(key string) error
}

// Snapshot is a point-in-time copy of the queue view, safe for the
// caller to hold after the orchestrator moves on.
type Snapshot struct {
	Active        *storage.DownloadRecord
	ActivePercent float64
	ActiveETA     int64
	Queued        []*storage.DownloadRecord
	Failed        []*storage.DownloadRecord
}

// pendingAction tells the settle path what the user asked for while the
// item was downloading.
type pendingAction int

const (
	actionNone pendingAction = iota
	actionPause
	actionRemove
)

// Orchestrator enforces the queue discipline: at most one record is
// downloading at any instant, durable writes land before the in-memory
// view changes, and exactly one drain loop runs per process.
type Orchestrator struct {
	repo     storage.DownloadRepository
	fetcher  Fetcher
	thumbs   ThumbnailCache
	tel      *telemetry.Telemetry
	cooldown time.Duration

	baseCtx context.Context
	started bool

	mu            sync.Mutex
	active        *storage.DownloadRecord
	queued        []*storage.DownloadRecord
	failed        []*storage.DownloadRecord
	draining      bool
	cancelActive  context.CancelFunc
	activeAction  pendingAction
	activePercent float64
	activeETA     int64

	notify chan struct{}

	OnDownloadFinished chan *storage.DownloadRecord
	OnDownloadFailed   chan *storage.DownloadRecord
}

func NewOrchestrator(
	repo storage.DownloadRepository,
	fetcher Fetcher,
	thumbCache ThumbnailCache,
	tel *telemetry.Telemetry,
) *Orchestrator {
	return &Orchestrator{
		repo:     repo,
		fetcher:  fetcher,
		thumbs:   thumbCache,
		tel:      tel,
		cooldown: defaultCooldown,

		notify:             make(chan struct{}, 1),
		OnDownloadFinished: make(chan *storage.DownloadRecord, eventBuffer),
		OnDownloadFailed:   make(chan *storage.DownloadRecord, eventBuffer),
	}
}

// Start runs the recovery sweep and binds the worker context. It must
// be called once, before any other operation.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return nil
	}

	if err := o.recoverLocked(ctx); err != nil {
		return fmt.Errorf("recovery sweep failed: %w", err)
	}

	o.baseCtx = ctx
	o.started = true

	return nil
}

// Close closes the event channels. Call only after the worker context
// is cancelled and no download is in flight.
func (o *Orchestrator) Close() {
	close(o.OnDownloadFinished)
	close(o.OnDownloadFailed)
}

// Enqueue persists the record as pending, appends it to the queue view
// and kicks the drain loop when idle. The durable write happens first;
// a store failure leaves the queue untouched.
func (o *Orchestrator) Enqueue(ctx context.Context, rec *storage.DownloadRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return ErrNotStarted
	}

	rec.Status = storage.StatusPending
	rec.CreatedAt = time.Now().UTC()

	if err := o.repo.Insert(rec); err != nil {
		o.tel.RecordQueueOperation("enqueue", "error")

		return fmt.Errorf("failed to persist enqueued download: %w", err)
	}

	o.queued = append(o.queued, rec)
	o.tel.RecordQueueOperation("enqueue", "success")
	o.recordDepthLocked()
	o.startDrainLocked()
	o.notifyLocked()

	return nil
}

// Pause cancels the active download. Valid only for the active id; the
// record lands in paused state once the executor acknowledges, with its
// createdAt re-stamped so a later resume rejoins the back of the queue.
func (o *Orchestrator) Pause(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active == nil || o.active.ID != id {
		o.tel.RecordQueueOperation("pause", "error")

		return ErrNotActive
	}

	o.activeAction = actionPause
	if o.cancelActive != nil {
		o.cancelActive()
	}

	o.tel.RecordQueueOperation("pause", "success")

	return nil
}

// Resume moves a paused record back to pending at the end of the FIFO
// and kicks the drain loop.
func (o *Orchestrator) Resume(id string) error {
	return o.requeue(id, storage.StatusPaused, "resume")
}

// RetryFailed moves a failed record back to pending, out of the failed
// list and onto the back of the queue.
func (o *Orchestrator) RetryFailed(id string) error {
	return o.requeue(id, storage.StatusFailed, "retry")
}

func (o *Orchestrator) requeue(id string, from storage.Status, operation string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return ErrNotStarted
	}

	rec := o.findLocked(id)
	if rec == nil {
		o.tel.RecordQueueOperation(operation, "error")

		return storage.ErrNotFound
	}

	if rec.Status != from {
		o.tel.RecordQueueOperation(operation, "error")

		return fmt.Errorf("%w: %s is %s, want %s", ErrWrongStatus, id, rec.Status, from)
	}

	if err := o.repo.UpdateCreatedAt(id); err != nil {
		o.tel.RecordQueueOperation(operation, "error")

		return fmt.Errorf("failed to re-stamp download: %w", err)
	}

	if err := o.repo.UpdateStatus(id, storage.StatusPending); err != nil {
		o.tel.RecordQueueOperation(operation, "error")

		return fmt.Errorf("failed to requeue download: %w", err)
	}

	rec.Status = storage.StatusPending
	rec.CreatedAt = time.Now().UTC()
	rec.ErrorMessage = ""

	o.failed = removeByID(o.failed, id)
	o.queued = append(removeByID(o.queued, id), rec)

	o.tel.RecordQueueOperation(operation, "success")
	o.recordDepthLocked()
	o.startDrainLocked()
	o.notifyLocked()

	return nil
}

// Remove deletes a record from the store and every in-memory list. For
// the active download it first requests cancellation; the deletion then
// happens when the executor settles. Completed records lose their media
// file and thumbnail as well.
func (o *Orchestrator) Remove(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return ErrNotStarted
	}

	if o.active != nil && o.active.ID == id {
		o.activeAction = actionRemove
		if o.cancelActive != nil {
			o.cancelActive()
		}

		o.tel.RecordQueueOperation("remove", "success")

		return nil
	}

	rec := o.findLocked(id)
	if rec == nil {
		var err error

		rec, err = o.repo.GetByID(id)
		if err != nil {
			o.tel.RecordQueueOperation("remove", "error")

			return err
		}
	}

	if rec.Status == storage.StatusCompleted && rec.FilePath != "" {
		if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
			logctx.LoggerFromContext(o.baseCtx).Warn("failed to delete media file", "download_id", id, "err", err)
		}
	}

	if err := o.repo.Delete(id); err != nil {
		o.tel.RecordQueueOperation("remove", "error")

		return fmt.Errorf("failed to delete download: %w", err)
	}

	o.queued = removeByID(o.queued, id)
	o.failed = removeByID(o.failed, id)

	if err := o.thumbs.Invalidate(thumbs.Key(id, rec.FilePath)); err != nil {
		logctx.LoggerFromContext(o.baseCtx).Warn("failed to invalidate thumbnail", "download_id", id, "err", err)
	}

	o.tel.RecordQueueOperation("remove", "success")
	o.recordDepthLocked()
	o.notifyLocked()

	return nil
}

// Snapshot returns a copy of the queue view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		ActivePercent: o.activePercent,
		ActiveETA:     o.activeETA,
		Queued:        make([]*storage.DownloadRecord, 0, len(o.queued)),
		Failed:        make([]*storage.DownloadRecord, 0, len(o.failed)),
	}

	if o.active != nil {
		clone := *o.active
		snap.Active = &clone
	}

	for _, rec := range o.queued {
		clone := *rec
		snap.Queued = append(snap.Queued, &clone)
	}

	for _, rec := range o.failed {
		clone := *rec
		snap.Failed = append(snap.Failed, &clone)
	}

	return snap
}

// Changes returns a channel that receives a signal after every queue
// mutation. Callers poll Snapshot when the signal fires.
func (o *Orchestrator) Changes() <-chan struct{} {
	return o.notify
}

// startDrainLocked launches the drain loop goroutine unless one is
// already running. Callers hold o.mu.
func (o *Orchestrator) startDrainLocked() {
	if o.draining {
		return
	}

	o.draining = true

	go o.drainQueue(o.baseCtx)
}

// drainQueue is the single-flight worker loop: pick the earliest
// pending record, run it to settlement, repeat. It exits when no
// pending work remains or the context ends; re-entrant enqueues only
// append and are observed at the top of the next iteration.
func (o *Orchestrator) drainQueue(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		if ctx.Err() != nil {
			o.mu.Lock()
			o.draining = false
			o.mu.Unlock()

			return
		}

		o.mu.Lock()

		next := o.nextPendingLocked()
		if next == nil || o.active != nil {
			o.draining = false
			o.mu.Unlock()

			return
		}

		if err := o.repo.UpdateStatus(next.ID, storage.StatusDownloading); err != nil {
			// The store write failed, so this item cannot be tracked
			// durably. Fail it in memory only and keep draining the rest.
			logger.Error("failed to mark download active, skipping", "download_id", next.ID, "err", err)
			o.tel.RecordSystemError("queue", "store_write")

			next.Status = storage.StatusFailed
			next.ErrorMessage = err.Error()
			o.queued = removeByID(o.queued, next.ID)
			o.failed = append(o.failed, next)
			o.notifyLocked()
			o.mu.Unlock()

			continue
		}

		next.Status = storage.StatusDownloading
		next.ProgressPercent = storage.ProgressConnecting
		o.active = next
		o.activePercent = storage.ProgressConnecting
		o.activeETA = 0
		o.activeAction = actionNone

		runCtx, cancel := context.WithCancel(ctx)
		o.cancelActive = cancel

		o.notifyLocked()
		o.mu.Unlock()

		logger.Info("download started", "download_id", next.ID, "title", next.Title, "platform", next.Platform)
		o.tel.IncrementActiveDownloads()

		start := time.Now()
		outputFile, err := o.fetcher.Fetch(runCtx, next, o.progressFunc(ctx, next.ID))

		cancel()
		o.tel.DecrementActiveDownloads()

		o.settle(ctx, next, outputFile, err, time.Since(start))

		// Brief pause between items so a long queue doesn't hammer the
		// fetch tool with back-to-back process spawns.
		select {
		case <-ctx.Done():
		case <-time.After(o.cooldown):
		}
	}
}

// settle maps the executor outcome onto store and memory. Every exit
// from downloading writes a terminal or recoverable status before the
// active slot is cleared.
func (o *Orchestrator) settle(ctx context.Context, rec *storage.DownloadRecord, outputFile string, fetchErr error, elapsed time.Duration) {
	o.mu.Lock()
	action := o.activeAction
	o.mu.Unlock()

	switch {
	case fetchErr == nil:
		o.settleCompleted(ctx, rec, outputFile, elapsed)
	case errors.Is(fetchErr, executor.ErrCancelled):
		if action == actionRemove {
			o.settleRemoved(ctx, rec)
		} else {
			o.settlePaused(ctx, rec, elapsed)
		}
	default:
		o.settleFailed(ctx, rec, fetchErr, elapsed)
	}

	o.mu.Lock()
	o.active = nil
	o.cancelActive = nil
	o.activeAction = actionNone
	o.activePercent = 0
	o.activeETA = 0
	o.recordDepthLocked()
	o.notifyLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) settleCompleted(ctx context.Context, rec *storage.DownloadRecord, outputFile string, elapsed time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	if _, err := o.thumbs.Ensure(ctx, thumbs.Key(rec.ID, outputFile), outputFile, rec.MediaKind); err != nil {
		logger.Warn("failed to cache thumbnail", "download_id", rec.ID, "err", err)
	}

	if err := o.repo.MarkCompleted(rec.ID, outputFile); err != nil {
		// The download is on disk but the completion write failed; treat
		// the attempt as failed rather than leaving an ambiguous state.
		logger.Error("failed to persist completion", "download_id", rec.ID, "err", err)
		o.settleFailed(ctx, rec, fmt.Errorf("failed to persist completion: %w", err), elapsed)

		return
	}

	now := time.Now().UTC()

	// Snapshot clones this record under the lock while it is still the
	// active slot; every field write has to happen under the same lock.
	o.mu.Lock()
	rec.Status = storage.StatusCompleted
	rec.FilePath = outputFile
	rec.ProgressPercent = 100
	rec.ETASeconds = 0
	rec.CompletedAt = &now
	o.queued = removeByID(o.queued, rec.ID)
	o.mu.Unlock()

	o.tel.RecordDownload("completed", elapsed)
	logger.Info("download completed", "download_id", rec.ID, "file", outputFile, "elapsed", elapsed.String())

	o.emit(o.OnDownloadFinished, rec)
}

func (o *Orchestrator) settlePaused(ctx context.Context, rec *storage.DownloadRecord, elapsed time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	if err := o.repo.UpdateStatus(rec.ID, storage.StatusPaused); err != nil {
		logger.Error("failed to persist pause", "download_id", rec.ID, "err", err)
		o.settleFailed(ctx, rec, fmt.Errorf("failed to persist pause: %w", err), elapsed)

		return
	}

	if err := o.repo.UpdateCreatedAt(rec.ID); err != nil {
		logger.Warn("failed to re-stamp paused download", "download_id", rec.ID, "err", err)
	}

	o.mu.Lock()
	rec.Status = storage.StatusPaused
	rec.CreatedAt = time.Now().UTC()
	rec.ProgressPercent = 0
	rec.ETASeconds = 0
	// Paused items rejoin the back of the FIFO rather than jumping ahead.
	o.queued = append(removeByID(o.queued, rec.ID), rec)
	o.mu.Unlock()

	o.tel.RecordDownload("paused", elapsed)
	logger.Info("download paused", "download_id", rec.ID)
}

func (o *Orchestrator) settleRemoved(ctx context.Context, rec *storage.DownloadRecord) {
	logger := logctx.LoggerFromContext(ctx)

	if err := o.repo.Delete(rec.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Error("failed to delete cancelled download", "download_id", rec.ID, "err", err)
	}

	if err := o.thumbs.Invalidate(thumbs.Key(rec.ID, rec.FilePath)); err != nil {
		logger.Warn("failed to invalidate thumbnail", "download_id", rec.ID, "err", err)
	}

	o.mu.Lock()
	o.queued = removeByID(o.queued, rec.ID)
	o.failed = removeByID(o.failed, rec.ID)
	o.mu.Unlock()

	logger.Info("download removed mid-flight", "download_id", rec.ID)
}

func (o *Orchestrator) settleFailed(ctx context.Context, rec *storage.DownloadRecord, fetchErr error, elapsed time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	message := fetchErr.Error()

	var execErr *executor.ExecutionError
	if errors.As(fetchErr, &execErr) && execErr.Output != "" {
		message = execErr.Output
	}

	if err := o.repo.MarkFailed(rec.ID, message); err != nil {
		logger.Error("failed to persist failure", "download_id", rec.ID, "err", err)
		o.tel.RecordSystemError("queue", "store_write")
	}

	if err := o.thumbs.Invalidate(thumbs.Key(rec.ID, rec.FilePath)); err != nil {
		logger.Warn("failed to invalidate thumbnail", "download_id", rec.ID, "err", err)
	}

	o.mu.Lock()
	rec.Status = storage.StatusFailed
	rec.ErrorMessage = message
	o.queued = removeByID(o.queued, rec.ID)
	o.failed = append(o.failed, rec)
	o.mu.Unlock()

	o.tel.RecordDownload("failed", elapsed)
	logger.Error("download failed", "download_id", rec.ID, "err", fetchErr)

	o.emit(o.OnDownloadFailed, rec)
}

// progressFunc returns the callback handed to the executor for one
// record: it mirrors progress into the in-memory view on every event
// and throttles the durable write to one per second.
func (o *Orchestrator) progressFunc(ctx context.Context, id string) executor.ProgressFunc {
	logger := logctx.LoggerFromContext(ctx)

	var lastPersist time.Time

	return func(percent float64, etaSeconds int64, rawLine string) {
		o.mu.Lock()
		if o.active != nil && o.active.ID == id {
			o.activePercent = percent
			o.activeETA = etaSeconds
			o.active.ProgressPercent = percent
			o.active.ETASeconds = etaSeconds
		}
		o.notifyLocked()
		o.mu.Unlock()

		if time.Since(lastPersist) < defaultProgressPersist {
			return
		}

		lastPersist = time.Now()

		if err := o.repo.UpdateProgress(id, percent, etaSeconds); err != nil {
			logger.Debug("failed to persist progress", "download_id", id, "err", err)
		}
	}
}

// nextPendingLocked picks the earliest-inserted pending record. The
// slice is insertion-ordered and requeues re-append, so position order
// is FIFO order.
func (o *Orchestrator) nextPendingLocked() *storage.DownloadRecord {
	for _, rec := range o.queued {
		if rec.Status == storage.StatusPending {
			return rec
		}
	}

	return nil
}

func (o *Orchestrator) findLocked(id string) *storage.DownloadRecord {
	for _, rec := range o.queued {
		if rec.ID == id {
			return rec
		}
	}

	for _, rec := range o.failed {
		if rec.ID == id {
			return rec
		}
	}

	return nil
}

func (o *Orchestrator) recordDepthLocked() {
	o.tel.RecordQueueDepth(len(o.queued))
}

func (o *Orchestrator) notifyLocked() {
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) emit(ch chan *storage.DownloadRecord, rec *storage.DownloadRecord) {
	select {
	case ch <- rec:
	default:
	}
}

func removeByID(list []*storage.DownloadRecord, id string) []*storage.DownloadRecord {
	out := list[:0]

	for _, rec := range list {
		if rec.ID != id {
			out = append(out, rec)
		}
	}

	return out
}
