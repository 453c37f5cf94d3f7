package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mordilloSan/go_logger/logger"
)

// Run statuses.
const (
	RunDiscovering   = "discovering"
	RunMaterializing = "materializing"
	RunComplete      = "complete"
	RunFailed        = "failed"
)

// Store wraps the database connection
type Store struct {
	db     *sql.DB
	dbPath string
}

var ErrRunNotFound = errors.New("run not found")

// NewStore creates a new Store instance and owns the DB handle.
func NewStore(dbPath string) (*Store, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, dbPath: dbPath}, nil
}

// NewStoreWithDB reuses an existing database handle.
// dbPath should be the actual SQLite file path (for stats / size reporting).
func NewStoreWithDB(db *sql.DB, dbPath string) *Store {
	return &Store{db: db, dbPath: dbPath}
}

// Close closes the database connection (only use if Store owns the DB).
func (s *Store) Close() error {
	return s.db.Close()
}

// Run is one mirror invocation.
type Run struct {
	ID                  int64         `json:"id"`
	UUID                string        `json:"uuid"`
	BaseURL             string        `json:"base_url"`
	Dest                string        `json:"dest"`
	Status              string        `json:"status"`
	NumFolders          int64         `json:"num_folders"`
	NumFiles            int64         `json:"num_files"`
	Downloaded          int64         `json:"downloaded"`
	Skipped             int64         `json:"skipped"`
	Bytes               int64         `json:"bytes"`
	Error               string        `json:"error,omitempty"`
	StartedAt           time.Time     `json:"started_at"`
	FinishedAt          time.Time     `json:"finished_at,omitempty"`
	DiscoverDuration    time.Duration `json:"discover_duration"`
	MaterializeDuration time.Duration `json:"materialize_duration"`
}

// RunResult carries the final counters of a run.
type RunResult struct {
	Status              string
	NumFolders          int
	NumFiles            int
	Downloaded          int
	Skipped             int
	Bytes               int64
	Err                 error
	DiscoverDuration    time.Duration
	MaterializeDuration time.Duration
}

// BeginRun inserts a new run row in the discovering state.
func (s *Store) BeginRun(ctx context.Context, baseURL, dest string) (*Run, error) {
	ctx = ensureContext(ctx)
	run := &Run{
		UUID:      uuid.NewString(),
		BaseURL:   baseURL,
		Dest:      dest,
		Status:    RunDiscovering,
		StartedAt: time.Unix(time.Now().UTC().Unix(), 0),
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO runs (uuid, base_url, dest, status, started_at)
        VALUES (?, ?, ?, ?, ?)
    `, run.UUID, run.BaseURL, run.Dest, run.Status, run.StartedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return run, nil
}

// SetRunStatus moves a run to another phase.
func (s *Store) SetRunStatus(ctx context.Context, runID int64, status string) error {
	ctx = ensureContext(ctx)
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ? WHERE id = ?`, status, runID)
	return err
}

// FinishRun stores the final counters of a run.
func (s *Store) FinishRun(ctx context.Context, runID int64, res RunResult) error {
	ctx = ensureContext(ctx)
	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	result, err := s.db.ExecContext(ctx, `
        UPDATE runs SET
            status = ?,
            num_folders = ?,
            num_files = ?,
            downloaded = ?,
            skipped = ?,
            bytes = ?,
            error = ?,
            finished_at = ?,
            discover_duration_ms = ?,
            materialize_duration_ms = ?
        WHERE id = ?
    `,
		res.Status,
		res.NumFolders,
		res.NumFiles,
		res.Downloaded,
		res.Skipped,
		res.Bytes,
		errText,
		time.Now().UTC().Unix(),
		res.DiscoverDuration.Milliseconds(),
		res.MaterializeDuration.Milliseconds(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}
	return nil
}

// LatestRunID returns the ID of the most recently started run.
// sql.ErrNoRows means "no runs yet".
func (s *Store) LatestRunID(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	var id int64
	err := s.db.QueryRowContext(ctx, `
        SELECT id
        FROM runs
        ORDER BY started_at DESC, id DESC
        LIMIT 1
    `).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, runID int64) (*Run, error) {
	ctx = ensureContext(ctx)

	var (
		r                      Run
		started, finished      int64
		discoverMS, materialMS int64
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT id, uuid, base_url, dest, status, num_folders, num_files, downloaded,
               skipped, bytes, error, started_at, finished_at,
               discover_duration_ms, materialize_duration_ms
        FROM runs
        WHERE id = ?
    `, runID).Scan(
		&r.ID, &r.UUID, &r.BaseURL, &r.Dest, &r.Status, &r.NumFolders, &r.NumFiles, &r.Downloaded,
		&r.Skipped, &r.Bytes, &r.Error, &started, &finished,
		&discoverMS, &materialMS,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("load run: %w", err)
	}
	r.StartedAt = time.Unix(started, 0)
	if finished > 0 {
		r.FinishedAt = time.Unix(finished, 0)
	}
	r.DiscoverDuration = time.Duration(discoverMS) * time.Millisecond
	r.MaterializeDuration = time.Duration(materialMS) * time.Millisecond
	return &r, nil
}

// EntryResult represents a query result entry
type EntryResult struct {
	Folder    string `json:"folder"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	State     string `json:"state"`
	Size      int64  `json:"size"`
	LocalPath string `json:"local_path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunEntries returns the entries of a run in insertion order. An empty state
// returns every entry.
func (s *Store) RunEntries(ctx context.Context, runID int64, state string) ([]EntryResult, error) {
	ctx = ensureContext(ctx)

	query := `
        SELECT folder, name, type, state, size, local_path, error
        FROM entries
        WHERE run_id = ?
    `
	args := []any{runID}
	if state != "" {
		query += ` AND state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries failed: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logger.Warnf("rows close (entries): %v", cerr)
		}
	}()

	var results []EntryResult
	for rows.Next() {
		var e EntryResult
		if err := rows.Scan(&e.Folder, &e.Name, &e.Type, &e.State, &e.Size, &e.LocalPath, &e.Error); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// CountByState returns the number of file entries of a run per state.
func (s *Store) CountByState(ctx context.Context, runID int64) (map[string]int64, error) {
	ctx = ensureContext(ctx)

	rows, err := s.db.QueryContext(ctx, `
        SELECT state, COUNT(*)
        FROM entries
        WHERE run_id = ? AND type = ?
        GROUP BY state
    `, runID, TypeFile)
	if err != nil {
		return nil, fmt.Errorf("count entries failed: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			logger.Warnf("rows close (count): %v", cerr)
		}
	}()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// Stats represents database statistics
type Stats struct {
	TotalRuns    int       `json:"total_runs"`
	TotalEntries int64     `json:"total_entries"`
	TotalBytes   int64     `json:"total_bytes"`
	LastRunTime  time.Time `json:"last_run_time"`
	DatabaseSize int64     `json:"database_size"`
	WALSize      int64     `json:"wal_size"`
	SHMSize      int64     `json:"shm_size"`
	TotalOnDisk  int64     `json:"total_on_disk"`
}

// GetStats returns database statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	ctx = ensureContext(ctx)

	var stats Stats

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&stats.TotalRuns)
	if err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&stats.TotalEntries); err != nil {
		return nil, err
	}

	var lastStarted sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(bytes), 0), MAX(started_at)
        FROM runs
    `).Scan(&stats.TotalBytes, &lastStarted)
	if err != nil {
		return nil, err
	}
	if lastStarted.Valid {
		stats.LastRunTime = time.Unix(lastStarted.Int64, 0)
	}

	if s.dbPath != "" {
		if fi, err := os.Stat(s.dbPath); err == nil {
			stats.DatabaseSize = fi.Size()
		}
		if fi, err := os.Stat(s.dbPath + "-wal"); err == nil {
			stats.WALSize = fi.Size()
		}
		if fi, err := os.Stat(s.dbPath + "-shm"); err == nil {
			stats.SHMSize = fi.Size()
		}
		stats.TotalOnDisk = stats.DatabaseSize + stats.WALSize + stats.SHMSize
	}

	return &stats, nil
}
