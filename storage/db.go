package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultDBPath = "dirdump.db"
	busyTimeoutMS = 5000
	schemaTimeout = 30 * time.Second
	batchSize     = 500
	batchTimeout  = 1 * time.Second
)

// Entry types and states stored in the entries table.
const (
	TypeFolder = "folder"
	TypeFile   = "file"

	StateDiscovered = "discovered"
	StateEmpty      = "empty"
	StateSkipped    = "skipped"
	StateDownloaded = "downloaded"
	StateFailed     = "failed"
)

// Entry is one catalog row: a folder (Name == "") or a file inside Folder.
type Entry struct {
	Folder    string
	Name      string
	Type      string
	State     string
	Size      int64
	LocalPath string
	Error     string
}

// ProgressCallback is called after each entry is queued with cumulative counts.
type ProgressCallback func(folders, files int64, lastPath string)

// StreamingWriter accepts entries via a channel and writes them to the database in batches.
type StreamingWriter struct {
	db         *sql.DB
	runID      int64
	entryCh    chan Entry
	doneCh     chan error
	ctx        context.Context
	cancel     context.CancelFunc
	errVal     atomic.Value
	progressCb ProgressCallback
	folders    int64
	files      int64
}

// NewStreamingWriter creates a writer that batches entries and commits periodically.
// The provided ctx allows callers to cancel the writer even if Close is not reached.
func NewStreamingWriter(ctx context.Context, db *sql.DB, runID int64, bufferSize int) *StreamingWriter {
	return NewStreamingWriterWithProgress(ctx, db, runID, bufferSize, nil)
}

// NewStreamingWriterWithProgress creates a writer with an optional progress callback.
func NewStreamingWriterWithProgress(ctx context.Context, db *sql.DB, runID int64, bufferSize int, progressCb ProgressCallback) *StreamingWriter {
	if ctx == nil {
		ctx = context.Background()
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	ctx, cancel := context.WithCancel(ctx)
	sw := &StreamingWriter{
		db:         db,
		runID:      runID,
		entryCh:    make(chan Entry, bufferSize),
		doneCh:     make(chan error, 1),
		ctx:        ctx,
		cancel:     cancel,
		progressCb: progressCb,
	}
	go sw.run()
	return sw
}

// Write sends an entry to be written to the database.
func (sw *StreamingWriter) Write(entry Entry) error {
	select {
	case sw.entryCh <- entry:
		return nil
	case <-sw.ctx.Done():
		if v, ok := sw.errVal.Load().(error); ok && v != nil {
			return v
		}
		return sw.ctx.Err()
	}
}

// Close signals completion and waits for all pending writes to finish.
func (sw *StreamingWriter) Close() error {
	close(sw.entryCh)
	return <-sw.doneCh
}

// run is the background goroutine that batches and writes entries.
func (sw *StreamingWriter) run() {
	var err error
	defer func() {
		if err != nil {
			sw.errVal.Store(err)
		}
		sw.doneCh <- err
		sw.cancel()
	}()

	batch := make([]Entry, 0, batchSize)
	ticker := time.NewTicker(batchTimeout)
	defer ticker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if e := sw.writeBatch(batch); e != nil {
			return e
		}
		for i := range batch {
			batch[i] = Entry{}
		}
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case entry, ok := <-sw.entryCh:
			if !ok {
				err = flush()
				return
			}
			if entry.State == StateDiscovered || entry.State == StateEmpty {
				if entry.Type == TypeFolder {
					sw.folders++
				} else {
					sw.files++
				}
			}
			if sw.progressCb != nil {
				sw.progressCb(sw.folders, sw.files, entry.Folder+entry.Name)
			}

			batch = append(batch, entry)
			if len(batch) >= batchSize {
				if err = flush(); err != nil {
					return
				}
			}
		case <-ticker.C:
			if err = flush(); err != nil {
				return
			}
		case <-sw.ctx.Done():
			err = sw.ctx.Err()
			return
		}
	}
}

// writeBatch writes a batch of entries within a single transaction.
func (sw *StreamingWriter) writeBatch(batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := sw.db.BeginTx(sw.ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = upsertEntries(sw.ctx, tx, sw.runID, time.Now().UTC().Unix(), batch)
	if err != nil {
		return err
	}

	err = tx.Commit()
	return err
}

// Open creates (or reuses) a SQLite catalog and ensures the schema exists.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = defaultDBPath
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_auto_vacuum=INCREMENTAL", path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, `PRAGMA journal_mode=WAL;`).Scan(&journalMode); err != nil {
		_ = db.Close()
		return nil, err
	}

	// One writer goroutine plus occasional readers.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// GetJournalMode returns the SQLite journal mode for the provided database.
func GetJournalMode(ctx context.Context, db *sql.DB) (string, error) {
	ctx = ensureContext(ctx)
	if db == nil {
		return "", fmt.Errorf("db is nil")
	}

	var mode string
	if err := db.QueryRowContext(ctx, `PRAGMA journal_mode;`).Scan(&mode); err != nil {
		return "", err
	}
	return mode, nil
}

// CheckIntegrity runs SQLite's integrity_check.
func CheckIntegrity(ctx context.Context, db *sql.DB) error {
	ctx = ensureContext(ctx)
	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check;`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			base_url TEXT NOT NULL,
			dest TEXT NOT NULL,
			status TEXT NOT NULL,
			num_folders INTEGER NOT NULL DEFAULT 0,
			num_files INTEGER NOT NULL DEFAULT 0,
			downloaded INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			bytes INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			folder TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			path_depth INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			size INTEGER NOT NULL DEFAULT 0,
			local_path TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		);
	`); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_path ON entries(run_id, folder, name);
	`); err != nil {
		return err
	}

	if err := ensureColumn(ctx, db, "runs", "uuid", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}
	if err := ensureColumn(ctx, db, "runs", "discover_duration_ms", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := ensureColumn(ctx, db, "runs", "materialize_duration_ms", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_entries_state ON entries(run_id, state);
	`); err != nil {
		return err
	}

	return nil
}

func ensureColumn(ctx context.Context, db *sql.DB, table, column, definition string) error {
	query := fmt.Sprintf(`PRAGMA table_info(%s);`, table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid        int
			name       string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s;`, table, column, definition)
	_, err = db.ExecContext(ctx, stmt)
	return err
}

func upsertEntries(ctx context.Context, tx *sql.Tx, runID int64, now int64, batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}

	const insertPrefix = `
INSERT INTO entries (
	run_id,
	folder,
	name,
	type,
	path_depth,
	state,
	size,
	local_path,
	error,
	updated_at
) VALUES `
	const singlePlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	const upsertSuffix = `
ON CONFLICT(run_id, folder, name) DO UPDATE SET
	state = excluded.state,
	size = excluded.size,
	local_path = CASE WHEN excluded.local_path != '' THEN excluded.local_path ELSE entries.local_path END,
	error = excluded.error,
	updated_at = excluded.updated_at;
`

	var builder strings.Builder
	builder.Grow(len(insertPrefix) + len(singlePlaceholder)*len(batch) + len(batch) + len(upsertSuffix))
	builder.WriteString(insertPrefix)

	args := make([]any, 0, len(batch)*10)
	for i, entry := range batch {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(singlePlaceholder)
		args = append(args,
			runID,
			entry.Folder,
			entry.Name,
			entry.Type,
			strings.Count(entry.Folder, "/"),
			entry.State,
			entry.Size,
			entry.LocalPath,
			entry.Error,
			now,
		)
	}

	builder.WriteString(upsertSuffix)

	_, err := tx.ExecContext(ctx, builder.String(), args...)
	return err
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
