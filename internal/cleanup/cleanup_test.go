package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mediafetch/mediafetch/internal/storage"
	"github.com/mediafetch/mediafetch/internal/storage/sqlite"
	"github.com/stretchr/testify/require"
)

type fakeInvalidator struct {
	keys []string
}

func (f *fakeInvalidator) Invalidate(key string) error {
	f.keys = append(f.keys, key)

	return nil
}

func seedCompleted(t *testing.T, repo storage.DownloadRepository, id, filePath string, completedAgo time.Duration) {
	t.Helper()

	completedAt := time.Now().UTC().Add(-completedAgo).Truncate(time.Second)
	rec := &storage.DownloadRecord{
		ID:          id,
		Title:       "title " + id,
		SourceURL:   "https://youtube.com/watch?v=" + id,
		Platform:    "youtube",
		MediaKind:   storage.MediaVideo,
		Status:      storage.StatusCompleted,
		FilePath:    filePath,
		FormatExt:   "mp4",
		CreatedAt:   completedAt.Add(-time.Minute),
		CompletedAt: &completedAt,
	}

	require.NoError(t, repo.Insert(rec))
}

func TestDeleteExpiredDownloads(t *testing.T) {
	db, err := sqlite.InitDB(":memory:")
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewDownloadRepository(db)
	dir := t.TempDir()

	oldFile := filepath.Join(dir, "old.mp4")
	freshFile := filepath.Join(dir, "fresh.mp4")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(freshFile, []byte("x"), 0o644))

	seedCompleted(t, repo, "old", oldFile, 48*time.Hour)
	seedCompleted(t, repo, "fresh", freshFile, time.Hour)
	seedCompleted(t, repo, "gone", filepath.Join(dir, "missing.mp4"), 48*time.Hour)

	invalidator := &fakeInvalidator{}
	require.NoError(t, DeleteExpiredDownloads(context.Background(), repo, invalidator, 24*time.Hour))

	// expired entries lose file, thumbnail and record
	_, err = os.Stat(oldFile)
	require.True(t, os.IsNotExist(err), "expired file should be deleted")

	_, err = repo.GetByID("old")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// an already-missing file does not block record deletion
	_, err = repo.GetByID("gone")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// entries inside the window stay untouched
	_, err = os.Stat(freshFile)
	require.NoError(t, err)

	fresh, err := repo.GetByID("fresh")
	require.NoError(t, err)
	require.Equal(t, storage.StatusCompleted, fresh.Status)

	require.ElementsMatch(t, []string{"old", "gone"}, invalidator.keys)
}
