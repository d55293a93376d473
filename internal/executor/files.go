package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mediafetch/mediafetch/internal/storage"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// TargetDir returns the download directory for a record, partitioned by
// platform and media kind the way the final library is laid out.
func (e *Executor) TargetDir(rec *storage.DownloadRecord) string {
	kind := "video"
	if rec.MediaKind == storage.MediaAudio {
		kind = "audio"
	}

	platform := rec.Platform
	if platform == "" {
		platform = "other"
	}

	return filepath.Join(e.baseDir, platform, kind)
}

// SweepArtifacts removes every file in the record's target directory
// whose name embeds the record id: partial downloads, .part/.ytdl
// fragments, .info.json sidecars and written thumbnails. Output
// filenames always embed the id, so a sweep never touches files that
// belong to other records.
func (e *Executor) SweepArtifacts(rec *storage.DownloadRecord) error {
	dir := e.TargetDir(rec)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to read target dir %s: %w", dir, err)
	}

	var firstErr error

	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), rec.ID) {
			continue
		}

		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to remove artifact %s: %w", entry.Name(), err)
		}
	}

	return firstErr
}

// stripSidecars deletes the .info.json and image files yt-dlp wrote next
// to a finished download. Only files tagged with the record id are
// touched.
func (e *Executor) stripSidecars(rec *storage.DownloadRecord) {
	dir := e.TargetDir(rec)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.Contains(name, rec.ID) {
			continue
		}

		if strings.HasSuffix(name, ".info.json") || imageExts[strings.ToLower(filepath.Ext(name))] {
			os.Remove(filepath.Join(dir, name))
		}
	}
}

// findOutputFile locates the finished media file for a record: the
// newest file in the target directory with the expected extension,
// preferring files whose name embeds the record id. Newest wins so a
// stale file left by a cancelled run with the same title never shadows
// the fresh one.
func (e *Executor) findOutputFile(rec *storage.DownloadRecord) (string, error) {
	dir := e.TargetDir(rec)
	ext := "." + strings.TrimPrefix(rec.FormatExt, ".")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read target dir %s: %w", dir, err)
	}

	var newestTagged, newest string

	var newestTaggedMod, newestMod int64

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		mod := info.ModTime().UnixNano()

		if strings.Contains(name, rec.ID) && mod > newestTaggedMod {
			newestTagged = name
			newestTaggedMod = mod
		}

		if mod > newestMod {
			newest = name
			newestMod = mod
		}
	}

	switch {
	case newestTagged != "":
		return filepath.Join(dir, newestTagged), nil
	case newest != "":
		return filepath.Join(dir, newest), nil
	default:
		return "", fmt.Errorf("no %s output found in %s", ext, dir)
	}
}
