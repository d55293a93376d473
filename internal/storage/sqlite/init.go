package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at dbPath and creates the downloads
// table if it doesn't exist. The schema mirrors storage.DownloadRecord
// one column per field; a personal-use client accepts destructive
// migration, so no migration machinery lives here.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS downloads (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		platform TEXT NOT NULL DEFAULT 'youtube',
		media_kind TEXT NOT NULL DEFAULT 'video',
		status TEXT NOT NULL DEFAULT 'pending',
		progress_percent REAL NOT NULL DEFAULT 0,
		eta_seconds INTEGER NOT NULL DEFAULT 0,
		file_path TEXT NOT NULL DEFAULT '',
		format_selector TEXT NOT NULL DEFAULT '',
		format_ext TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME,
		error_message TEXT
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create downloads table: %w", err)
	}

	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads (status)`); err != nil {
		return nil, fmt.Errorf("failed to create status index: %w", err)
	}

	return db, nil
}
