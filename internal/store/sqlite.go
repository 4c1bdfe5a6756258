package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jackzampolin/panelvox/internal/types"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore persists jobs and chapters in a SQLite database.
// Chapter payloads are stored as JSON blobs; the pipeline always reads and
// writes whole chapters, so per-field columns buy nothing.
type SQLiteStore struct {
	db *sql.DB

	// mutateMu serializes MutateChapter read-modify-write cycles.
	mutateMu sync.Mutex
}

// OpenSQLite initializes or connects to the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS jobs (
	job_id     TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	progress   INTEGER NOT NULL DEFAULT 0,
	chapter_id TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chapters (
	chapter_id TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// CreateJob stores a new job record.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *types.JobRecord) error {
	_, err := s.execWithRetry(ctx,
		`INSERT INTO jobs (job_id, status, progress, chapter_id, error, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.JobID, string(job.Status), job.Progress, job.ChapterID, job.Error,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	return nil
}

// GetJob returns a job by id.
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*types.JobRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, status, progress, chapter_id, error FROM jobs WHERE job_id = ?`, jobID)

	var job types.JobRecord
	var status string
	if err := row.Scan(&job.JobID, &status, &job.Progress, &job.ChapterID, &job.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	job.Status = types.JobState(status)
	return &job, nil
}

// UpdateJob applies a partial update to a job.
func (s *SQLiteStore) UpdateJob(ctx context.Context, jobID string, update JobUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339)}

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *update.Progress)
	}
	if update.ChapterID != nil {
		sets = append(sets, "chapter_id = ?")
		args = append(args, *update.ChapterID)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	args = append(args, jobID)

	res, err := s.execWithRetry(ctx,
		fmt.Sprintf("UPDATE jobs SET %s WHERE job_id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveChapter stores or replaces a chapter payload.
func (s *SQLiteStore) SaveChapter(ctx context.Context, chapter *types.ChapterPayload) error {
	payload, err := json.Marshal(chapter)
	if err != nil {
		return fmt.Errorf("marshal chapter %s: %w", chapter.ChapterID, err)
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO chapters (chapter_id, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(chapter_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		chapter.ChapterID, string(payload), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save chapter %s: %w", chapter.ChapterID, err)
	}
	return nil
}

// GetChapter returns a chapter by id.
func (s *SQLiteStore) GetChapter(ctx context.Context, chapterID string) (*types.ChapterPayload, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM chapters WHERE chapter_id = ?`, chapterID)

	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get chapter %s: %w", chapterID, err)
	}

	var chapter types.ChapterPayload
	if err := json.Unmarshal([]byte(payload), &chapter); err != nil {
		return nil, fmt.Errorf("unmarshal chapter %s: %w", chapterID, err)
	}
	return &chapter, nil
}

// ListChapterIDs returns the ids of all stored chapters.
func (s *SQLiteStore) ListChapterIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chapter_id FROM chapters ORDER BY chapter_id`)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chapter id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MutateChapter applies fn to the stored chapter and persists the result.
func (s *SQLiteStore) MutateChapter(ctx context.Context, chapterID string, fn func(*types.ChapterPayload) error) error {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()

	chapter, err := s.GetChapter(ctx, chapterID)
	if err != nil {
		return err
	}
	if err := fn(chapter); err != nil {
		return err
	}
	return s.SaveChapter(ctx, chapter)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Verify interface
var _ Store = (*SQLiteStore)(nil)
