package job

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of Store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id                   TEXT PRIMARY KEY,
			source               TEXT NOT NULL,
			language             TEXT NOT NULL,
			max_sentences        INTEGER NOT NULL,
			transliterate        INTEGER NOT NULL,
			confidence_threshold REAL NOT NULL,
			status               TEXT NOT NULL DEFAULT 'queued',
			progress             INTEGER NOT NULL DEFAULT 0,
			message              TEXT NOT NULL DEFAULT '',
			error                TEXT NOT NULL DEFAULT '',
			result_path          TEXT NOT NULL DEFAULT '',
			artifact_id          TEXT NOT NULL DEFAULT '',
			created_at           DATETIME NOT NULL,
			updated_at           DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status     ON jobs(status);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
		CREATE INDEX IF NOT EXISTS idx_jobs_updated_at ON jobs(updated_at);
	`)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs
			(id, source, language, max_sentences, transliterate, confidence_threshold,
			 status, progress, message, error, result_path, artifact_id, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, 0, '', '', '', '', ?, ?)
	`,
		j.ID,
		j.Params.Source,
		j.Params.Language,
		j.Params.MaxSentences,
		j.Params.Transliterate,
		j.Params.ConfidenceThreshold,
		StatusQueued,
		j.CreatedAt.UTC(),
		j.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

const jobColumns = `id, source, language, max_sentences, transliterate, confidence_threshold,
       status, progress, message, error, result_path, artifact_id, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	j := &Job{}
	err := row.Scan(
		&j.ID, &j.Params.Source, &j.Params.Language, &j.Params.MaxSentences,
		&j.Params.Transliterate, &j.Params.ConfidenceThreshold,
		&j.Status, &j.Progress, &j.Message, &j.Error,
		&j.ResultPath, &j.ArtifactID, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)

	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// setClause builds the SET list for a partial update. updated_at is always included.
func setClause(f Fields, now time.Time) (string, []any) {
	cols := []string{"updated_at = ?"}
	args := []any{now}

	if f.Status != nil {
		cols = append(cols, "status = ?")
		args = append(args, *f.Status)
	}
	if f.Progress != nil {
		cols = append(cols, "progress = ?")
		args = append(args, *f.Progress)
	}
	if f.Message != nil {
		cols = append(cols, "message = ?")
		args = append(args, *f.Message)
	}
	if f.Error != nil {
		cols = append(cols, "error = ?")
		args = append(args, *f.Error)
	}
	if f.ResultPath != nil {
		cols = append(cols, "result_path = ?")
		args = append(args, *f.ResultPath)
	}
	if f.ArtifactID != nil {
		cols = append(cols, "artifact_id = ?")
		args = append(args, *f.ArtifactID)
	}
	return strings.Join(cols, ", "), args
}

func (s *SQLiteStore) Update(ctx context.Context, id string, f Fields) error {
	set, args := setClause(f, time.Now().UTC())
	args = append(args, id)

	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return nil
}

// SetIfStatus is the CAS primitive: the update applies only when the current
// status matches expected. A single conditional UPDATE keeps the check and
// the write atomic, RowsAffected tells whether the guard held.
func (s *SQLiteStore) SetIfStatus(ctx context.Context, id string, expected Status, f Fields) (bool, error) {
	set, args := setClause(f, time.Now().UTC())
	args = append(args, id, expected)

	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET `+set+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("cas job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cas job %s: rows affected: %w", id, err)
	}
	return n == 1, nil
}

// List returns jobs ordered by created_at DESC with pagination, and the total count.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Job, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, total, nil
}

// ResetProcessing moves all jobs stuck in "processing" back to "queued".
// Returns the IDs of the affected jobs so the caller can re-enqueue them.
func (s *SQLiteStore) ResetProcessing(ctx context.Context) ([]string, error) {
	ids, err := s.idsWhere(ctx, `status = ?`, StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("query processing jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ? WHERE status = ?
	`, StatusQueued, time.Now().UTC(), StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("reset processing jobs: %w", err)
	}
	return ids, nil
}

// StaleProcessing returns IDs of "processing" jobs not updated since cutoff.
func (s *SQLiteStore) StaleProcessing(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := s.idsWhere(ctx, `status = ? AND updated_at < ?`, StatusProcessing, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query stale processing jobs: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) idsWhere(ctx context.Context, where string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM jobs WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
