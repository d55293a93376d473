package sqlite

import (
	"errors"
	"testing"
	"time"

	"github.com/mediafetch/mediafetch/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *DownloadRepository {
	t.Helper()

	db, err := InitDB(":memory:")
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return NewDownloadRepository(db)
}

func newTestRecord(id string, createdAt time.Time) *storage.DownloadRecord {
	return &storage.DownloadRecord{
		ID:              id,
		Title:           "some clip",
		SourceURL:       "https://youtube.com/watch?v=" + id,
		Platform:        "youtube",
		MediaKind:       storage.MediaVideo,
		Status:          storage.StatusPending,
		ProgressPercent: 0,
		FormatExt:       "mp4",
		CreatedAt:       createdAt,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	repo := newTestRepo(t)

	rec := newTestRecord("abc12345678", time.Now().UTC())
	rec.FormatSelector = "137+bestaudio"
	require.NoError(t, repo.Insert(rec))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)

	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, rec.Title, got.Title)
	require.Equal(t, rec.SourceURL, got.SourceURL)
	require.Equal(t, rec.Platform, got.Platform)
	require.Equal(t, storage.MediaVideo, got.MediaKind)
	require.Equal(t, storage.StatusPending, got.Status)
	require.Equal(t, "137+bestaudio", got.FormatSelector)
	require.Nil(t, got.CompletedAt)
	require.Empty(t, got.ErrorMessage)
}

func TestGetByID_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetByID("missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListByStatus_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)

	base := time.Now().UTC().Truncate(time.Second)
	older := newTestRecord("older000000", base.Add(-2*time.Second))
	newer := newTestRecord("newer000000", base)

	require.NoError(t, repo.Insert(older))
	require.NoError(t, repo.Insert(newer))

	records, err := repo.ListByStatus(storage.StatusPending)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "newer000000", records[0].ID)
	require.Equal(t, "older000000", records[1].ID)
}

func TestUpdateStatus(t *testing.T) {
	repo := newTestRepo(t)

	rec := newTestRecord("abc12345678", time.Now().UTC())
	require.NoError(t, repo.Insert(rec))

	require.NoError(t, repo.UpdateStatus(rec.ID, storage.StatusDownloading))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, storage.StatusDownloading, got.Status)

	require.ErrorIs(t, repo.UpdateStatus("missing", storage.StatusPaused), storage.ErrNotFound)
}

func TestUpdateProgress(t *testing.T) {
	repo := newTestRepo(t)

	rec := newTestRecord("abc12345678", time.Now().UTC())
	require.NoError(t, repo.Insert(rec))

	require.NoError(t, repo.UpdateProgress(rec.ID, 42.5, 162))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, 42.5, got.ProgressPercent)
	require.Equal(t, int64(162), got.ETASeconds)
}

func TestMarkCompleted(t *testing.T) {
	repo := newTestRepo(t)

	rec := newTestRecord("abc12345678", time.Now().UTC())
	require.NoError(t, repo.Insert(rec))

	require.NoError(t, repo.MarkCompleted(rec.ID, "/media/youtube/video/some clip-abc12345678.mp4"))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, storage.StatusCompleted, got.Status)
	require.Equal(t, "/media/youtube/video/some clip-abc12345678.mp4", got.FilePath)
	require.Equal(t, float64(100), got.ProgressPercent)
	require.NotNil(t, got.CompletedAt)
}

func TestMarkFailed(t *testing.T) {
	repo := newTestRepo(t)

	rec := newTestRecord("abc12345678", time.Now().UTC())
	require.NoError(t, repo.Insert(rec))

	require.NoError(t, repo.MarkFailed(rec.ID, "ERROR: Video unavailable"))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	require.Equal(t, storage.StatusFailed, got.Status)
	require.Equal(t, "ERROR: Video unavailable", got.ErrorMessage)
}

func TestUpdateCreatedAt_Restamps(t *testing.T) {
	repo := newTestRepo(t)

	past := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	rec := newTestRecord("abc12345678", past)
	require.NoError(t, repo.Insert(rec))

	require.NoError(t, repo.UpdateCreatedAt(rec.ID))

	got, err := repo.GetByID(rec.ID)
	require.NoError(t, err)
	require.True(t, got.CreatedAt.After(past), "created_at was not re-stamped: %v", got.CreatedAt)
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)

	rec := newTestRecord("abc12345678", time.Now().UTC())
	require.NoError(t, repo.Insert(rec))

	require.NoError(t, repo.Delete(rec.ID))

	_, err := repo.GetByID(rec.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.True(t, errors.Is(repo.Delete(rec.ID), storage.ErrNotFound))
}
