package queue

import (
	"context"
	"testing"
	"time"

	"github.com/mediafetch/mediafetch/internal/storage"
	"github.com/stretchr/testify/require"
)

func seedRecord(t *testing.T, repo storage.DownloadRepository, id string, status storage.Status, age time.Duration) {
	t.Helper()

	rec := queueRecord(id, "title "+id)
	rec.Status = status
	rec.CreatedAt = time.Now().UTC().Add(-age).Truncate(time.Second)

	require.NoError(t, repo.Insert(rec))
}

func TestRecovery_ResetsStalledAndParksPending(t *testing.T) {
	repo := newTestRepo(t)

	seedRecord(t, repo, "stalled", storage.StatusDownloading, 3*time.Second)
	seedRecord(t, repo, "first", storage.StatusPending, 10*time.Second)
	seedRecord(t, repo, "second", storage.StatusPending, 5*time.Second)
	seedRecord(t, repo, "broken", storage.StatusFailed, 20*time.Second)
	seedRecord(t, repo, "done", storage.StatusCompleted, time.Hour)

	o, fetcher, thumbCache := newTestOrchestrator(t, repo)

	// the stalled download's partial files are swept
	require.Equal(t, []string{"stalled"}, fetcher.sweptIDs())
	require.Contains(t, thumbCache.invalidatedKeys(), "stalled")

	// nothing is left downloading and nothing auto-resumes
	stillDownloading, err := repo.ListByStatus(storage.StatusDownloading)
	require.NoError(t, err)
	require.Empty(t, stillDownloading)

	stillPending, err := repo.ListByStatus(storage.StatusPending)
	require.NoError(t, err)
	require.Empty(t, stillPending)

	for _, id := range []string{"stalled", "first", "second"} {
		rec, err := repo.GetByID(id)
		require.NoError(t, err)
		require.Equal(t, storage.StatusPaused, rec.Status, "record %s", id)
	}

	expectNoCall(t, fetcher)

	// queue view is oldest-first; completed records stay out of it
	snap := o.Snapshot()
	require.Nil(t, snap.Active)
	require.Len(t, snap.Queued, 3)
	require.Equal(t, "first", snap.Queued[0].ID)
	require.Equal(t, "second", snap.Queued[1].ID)
	require.Equal(t, "stalled", snap.Queued[2].ID)

	require.Len(t, snap.Failed, 1)
	require.Equal(t, "broken", snap.Failed[0].ID)

	done, err := repo.GetByID("done")
	require.NoError(t, err)
	require.Equal(t, storage.StatusCompleted, done.Status)
}

func TestRecovery_LoadsFailedOldestFirst(t *testing.T) {
	repo := newTestRepo(t)

	seedRecord(t, repo, "older", storage.StatusFailed, 30*time.Second)
	seedRecord(t, repo, "newer", storage.StatusFailed, 5*time.Second)

	o, fetcher, _ := newTestOrchestrator(t, repo)

	expectNoCall(t, fetcher)

	snap := o.Snapshot()
	require.Len(t, snap.Failed, 2)
	require.Equal(t, "older", snap.Failed[0].ID)
	require.Equal(t, "newer", snap.Failed[1].ID)
}

func TestRecovery_ResumeAfterRestart(t *testing.T) {
	repo := newTestRepo(t)

	seedRecord(t, repo, "parked", storage.StatusPending, time.Minute)

	o, fetcher, _ := newTestOrchestrator(t, repo)

	expectNoCall(t, fetcher)

	require.NoError(t, o.Resume("parked"))

	call := awaitCall(t, fetcher)
	require.Equal(t, "parked", call.rec.ID)
	call.result <- fetchResult{path: "/media/parked.mp4"}
}

func TestStart_IsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	o, _, _ := newTestOrchestrator(t, repo)

	// a second Start is a no-op, not a second recovery sweep
	require.NoError(t, o.Start(context.Background()))
}
