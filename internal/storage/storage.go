package storage

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a download record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// MediaKind distinguishes audio-only downloads from full video downloads.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ProgressConnecting is the progress sentinel used before the first
// progress line arrives from the fetch tool.
const ProgressConnecting = -1

// ErrNotFound is returned when a download record does not exist.
var ErrNotFound = errors.New("download record not found")

// DownloadRecord is the durable state of a single download. The id is
// assigned by the caller at enqueue time and stays stable across retries.
type DownloadRecord struct {
	ID              string
	Title           string
	SourceURL       string
	Platform        string
	MediaKind       MediaKind
	Status          Status
	ProgressPercent float64
	ETASeconds      int64
	FilePath        string
	FormatSelector  string
	FormatExt       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
}

// IsTerminal reports whether the record reached a state the queue loop
// will not pick up again without an explicit user action.
func (r *DownloadRecord) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// DownloadReadRepository exposes the read side of the record store.
type DownloadReadRepository interface {
	GetByID(id string) (*DownloadRecord, error)
	ListByStatus(status Status) ([]*DownloadRecord, error)
}

// DownloadWriteRepository exposes the write side. All writes are atomic
// per record; the queue never transitions more than one record at a time.
type DownloadWriteRepository interface {
	Insert(record *DownloadRecord) error
	Update(record *DownloadRecord) error
	Delete(id string) error
	UpdateStatus(id string, status Status) error
	UpdateProgress(id string, percent float64, etaSeconds int64) error
	MarkCompleted(id, filePath string) error
	MarkFailed(id, message string) error
	UpdateCreatedAt(id string) error
}

// DownloadRepository is the full contract the queue orchestrator depends on.
type DownloadRepository interface {
	DownloadReadRepository
	DownloadWriteRepository
}
