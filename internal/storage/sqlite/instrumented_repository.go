package sqlite

import (
	"context"
	"database/sql"

	"github.com/mediafetch/mediafetch/internal/storage"
	"github.com/mediafetch/mediafetch/internal/telemetry"
)

// InstrumentedDownloadRepository wraps DownloadRepository with telemetry.
// Every store call the queue makes is one span plus one db_operation
// metric sample.
type InstrumentedDownloadRepository struct {
	repo      *DownloadRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedDownloadRepository creates a new instrumented download repository.
func NewInstrumentedDownloadRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedDownloadRepository {
	return &InstrumentedDownloadRepository{
		repo:      NewDownloadRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedDownloadRepository) Insert(rec *storage.DownloadRecord) error {
	return r.instrument("insert_download", func() error {
		return r.repo.Insert(rec)
	})
}

func (r *InstrumentedDownloadRepository) Update(rec *storage.DownloadRecord) error {
	return r.instrument("update_download", func() error {
		return r.repo.Update(rec)
	})
}

func (r *InstrumentedDownloadRepository) Delete(id string) error {
	return r.instrument("delete_download", func() error {
		return r.repo.Delete(id)
	})
}

func (r *InstrumentedDownloadRepository) GetByID(id string) (*storage.DownloadRecord, error) {
	var result *storage.DownloadRecord

	err := r.instrument("get_download", func() error {
		var err error
		result, err = r.repo.GetByID(id)

		return err
	})

	return result, err
}

func (r *InstrumentedDownloadRepository) ListByStatus(status storage.Status) ([]*storage.DownloadRecord, error) {
	var result []*storage.DownloadRecord

	err := r.instrument("list_downloads_by_status", func() error {
		var err error
		result, err = r.repo.ListByStatus(status)

		return err
	})

	return result, err
}

func (r *InstrumentedDownloadRepository) UpdateStatus(id string, status storage.Status) error {
	return r.instrument("update_download_status", func() error {
		return r.repo.UpdateStatus(id, status)
	})
}

func (r *InstrumentedDownloadRepository) UpdateProgress(id string, percent float64, etaSeconds int64) error {
	return r.instrument("update_download_progress", func() error {
		return r.repo.UpdateProgress(id, percent, etaSeconds)
	})
}

func (r *InstrumentedDownloadRepository) MarkCompleted(id, filePath string) error {
	return r.instrument("mark_download_completed", func() error {
		return r.repo.MarkCompleted(id, filePath)
	})
}

func (r *InstrumentedDownloadRepository) MarkFailed(id, message string) error {
	return r.instrument("mark_download_failed", func() error {
		return r.repo.MarkFailed(id, message)
	})
}

func (r *InstrumentedDownloadRepository) UpdateCreatedAt(id string) error {
	return r.instrument("restamp_download", func() error {
		return r.repo.UpdateCreatedAt(id)
	})
}

func (r *InstrumentedDownloadRepository) instrument(operation string, fn func() error) error {
	return r.telemetry.InstrumentDBOperation(context.Background(), operation, func(ctx context.Context) error {
		return fn()
	})
}
