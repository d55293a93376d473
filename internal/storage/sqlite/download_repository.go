package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mediafetch/mediafetch/internal/storage"
)

const recordColumns = `id, title, source_url, platform, media_kind, status,
	progress_percent, eta_seconds, file_path, format_selector, format_ext,
	created_at, updated_at, completed_at, error_message`

// DownloadRepository stores download records in SQLite. It implements
// storage.DownloadRepository.
type DownloadRepository struct {
	db *sql.DB
}

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{db: dbConn}
}

func (r *DownloadRepository) Insert(rec *storage.DownloadRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	rec.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO downloads (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Title, rec.SourceURL, rec.Platform, string(rec.MediaKind), string(rec.Status),
		rec.ProgressPercent, rec.ETASeconds, rec.FilePath, rec.FormatSelector, rec.FormatExt,
		rec.CreatedAt.Format(time.RFC3339), rec.UpdatedAt.Format(time.RFC3339),
		nullTime(rec.CompletedAt), nullString(rec.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to insert download %s: %w", rec.ID, err)
	}

	return nil
}

func (r *DownloadRepository) Update(rec *storage.DownloadRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	res, err := r.db.Exec(
		`UPDATE downloads SET title = ?, source_url = ?, platform = ?, media_kind = ?,
			status = ?, progress_percent = ?, eta_seconds = ?, file_path = ?,
			format_selector = ?, format_ext = ?, updated_at = ?, completed_at = ?, error_message = ?
		WHERE id = ?`,
		rec.Title, rec.SourceURL, rec.Platform, string(rec.MediaKind),
		string(rec.Status), rec.ProgressPercent, rec.ETASeconds, rec.FilePath,
		rec.FormatSelector, rec.FormatExt, rec.UpdatedAt.Format(time.RFC3339),
		nullTime(rec.CompletedAt), nullString(rec.ErrorMessage),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update download %s: %w", rec.ID, err)
	}

	return affectedOrNotFound(res)
}

func (r *DownloadRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM downloads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete download %s: %w", id, err)
	}

	return affectedOrNotFound(res)
}

func (r *DownloadRepository) GetByID(id string) (*storage.DownloadRecord, error) {
	row := r.db.QueryRow(`SELECT `+recordColumns+` FROM downloads WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}

	return rec, err
}

// ListByStatus returns all records with the given status, newest first.
func (r *DownloadRepository) ListByStatus(status storage.Status) ([]*storage.DownloadRecord, error) {
	rows, err := r.db.Query(
		`SELECT `+recordColumns+` FROM downloads WHERE status = ? ORDER BY created_at DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads by status %s: %w", status, err)
	}
	defer rows.Close()

	var records []*storage.DownloadRecord

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// UpdateStatus sets the status for a download.
func (r *DownloadRepository) UpdateStatus(id string, status storage.Status) error {
	res, err := r.db.Exec(
		`UPDATE downloads SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of %s: %w", id, err)
	}

	return affectedOrNotFound(res)
}

func (r *DownloadRepository) UpdateProgress(id string, percent float64, etaSeconds int64) error {
	_, err := r.db.Exec(
		`UPDATE downloads SET progress_percent = ?, eta_seconds = ?, updated_at = ? WHERE id = ?`,
		percent, etaSeconds, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress of %s: %w", id, err)
	}

	return nil
}

func (r *DownloadRepository) MarkCompleted(id, filePath string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := r.db.Exec(
		`UPDATE downloads SET status = ?, file_path = ?, progress_percent = 100,
			eta_seconds = 0, completed_at = ?, updated_at = ?, error_message = NULL
		WHERE id = ?`,
		string(storage.StatusCompleted), filePath, now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s completed: %w", id, err)
	}

	return affectedOrNotFound(res)
}

func (r *DownloadRepository) MarkFailed(id, message string) error {
	res, err := r.db.Exec(
		`UPDATE downloads SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(storage.StatusFailed), message, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s failed: %w", id, err)
	}

	return affectedOrNotFound(res)
}

// UpdateCreatedAt re-stamps the record with the current time so that
// retried and resumed items rejoin the back of the FIFO order.
func (r *DownloadRepository) UpdateCreatedAt(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := r.db.Exec(
		`UPDATE downloads SET created_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to re-stamp %s: %w", id, err)
	}

	return affectedOrNotFound(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*storage.DownloadRecord, error) {
	var (
		rec                  storage.DownloadRecord
		mediaKind, status    string
		createdAt, updatedAt string
		completedAt          sql.NullString
		errorMessage         sql.NullString
	)

	err := row.Scan(
		&rec.ID, &rec.Title, &rec.SourceURL, &rec.Platform, &mediaKind, &status,
		&rec.ProgressPercent, &rec.ETASeconds, &rec.FilePath, &rec.FormatSelector, &rec.FormatExt,
		&createdAt, &updatedAt, &completedAt, &errorMessage,
	)
	if err != nil {
		return nil, err
	}

	rec.MediaKind = storage.MediaKind(mediaKind)
	rec.Status = storage.Status(status)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			rec.CompletedAt = &t
		}
	}

	if errorMessage.Valid {
		rec.ErrorMessage = errorMessage.String
	}

	return &rec, nil
}

func affectedOrNotFound(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}

	return t.UTC().Format(time.RFC3339)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}
