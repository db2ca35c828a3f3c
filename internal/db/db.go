// Package db keeps a sqlite catalog of finished downloads.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lvcoi/ytdl-web/internal/jobs"
)

// MediaRecord represents a row in the media table.
type MediaRecord struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Title     string    `json:"title"`
	MediaType string    `json:"media_type"`
	Filename  string    `json:"filename"`
	FilePath  string    `json:"-"`
	SourceURL string    `json:"source_url"`
	FormatID  string    `json:"format_id"`
	Ext       string    `json:"ext"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS media (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id      TEXT NOT NULL DEFAULT '',
    title       TEXT NOT NULL DEFAULT '',
    media_type  TEXT NOT NULL DEFAULT 'video',
    filename    TEXT NOT NULL DEFAULT '',
    file_path   TEXT NOT NULL UNIQUE,
    source_url  TEXT NOT NULL DEFAULT '',
    format_id   TEXT NOT NULL DEFAULT '',
    ext         TEXT NOT NULL DEFAULT '',
    file_size   INTEGER NOT NULL DEFAULT 0,
    created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_media_media_type ON media(media_type);
CREATE INDEX IF NOT EXISTS idx_media_filename ON media(filename);
CREATE INDEX IF NOT EXISTS idx_media_created_at ON media(created_at);
`

// Catalog wraps an SQLite connection for the media catalog.
type Catalog struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*Catalog, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	if _, err := sqlDB.Exec(createTableSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Catalog{db: sqlDB}, nil
}

func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Finalize records a finished artifact. It implements jobs.Finalizer.
func (c *Catalog) Finalize(ctx context.Context, a jobs.Artifact) error {
	created := a.FinishedAt
	if created.IsZero() {
		created = time.Now()
	}
	// earlier finalizers may have rewritten the file
	size := a.Bytes
	if info, err := os.Stat(a.Path); err == nil {
		size = info.Size()
	}
	_, err := c.Upsert(ctx, MediaRecord{
		JobID:     a.JobID,
		Title:     a.Title,
		MediaType: ClassifyMediaType(a.URL, a.Ext),
		Filename:  filepath.Base(a.Path),
		FilePath:  a.Path,
		SourceURL: a.URL,
		FormatID:  a.FormatID,
		Ext:       a.Ext,
		FileSize:  size,
		CreatedAt: created.UTC(),
	})
	return err
}

// Upsert inserts or updates a media record by file_path.
func (c *Catalog) Upsert(ctx context.Context, record MediaRecord) (int64, error) {
	if c == nil || c.db == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO media (
			job_id, title, media_type, filename, file_path,
			source_url, format_id, ext, file_size, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			job_id=excluded.job_id, title=excluded.title,
			media_type=excluded.media_type, filename=excluded.filename,
			source_url=excluded.source_url, format_id=excluded.format_id,
			ext=excluded.ext, file_size=excluded.file_size
	`,
		record.JobID, record.Title, record.MediaType, record.Filename, record.FilePath,
		record.SourceURL, record.FormatID, record.Ext, record.FileSize, record.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("upserting media record: %w", err)
	}

	// LastInsertId is unreliable for ON CONFLICT DO UPDATE; query the actual row ID.
	var id int64
	if err := c.db.QueryRowContext(ctx, "SELECT id FROM media WHERE file_path = ?", record.FilePath).Scan(&id); err != nil {
		return 0, fmt.Errorf("querying upserted media id: %w", err)
	}
	return id, nil
}

// List returns media records, newest first.
func (c *Catalog) List(ctx context.Context, limit, offset int) ([]MediaRecord, error) {
	if c == nil || c.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, job_id, title, media_type, filename, file_path,
			source_url, format_id, ext, file_size, created_at
		FROM media
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying media: %w", err)
	}
	defer rows.Close()

	records := []MediaRecord{}
	for rows.Next() {
		var r MediaRecord
		if err := rows.Scan(
			&r.ID, &r.JobID, &r.Title, &r.MediaType, &r.Filename, &r.FilePath,
			&r.SourceURL, &r.FormatID, &r.Ext, &r.FileSize, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning media row: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the total number of media records.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	if c == nil || c.db == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var count int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting media: %w", err)
	}
	return count, nil
}
