package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mordilloSan/go_logger/logger"

	"github.com/mordilloSan/dirdump/storage"
)

// openDatabaseWithIntegrityCheck opens a database and checks for corruption.
// If corrupted, it automatically removes and recreates the database.
// Returns the opened database connection and whether it existed before.
func openDatabaseWithIntegrityCheck(dbPath string) (*sql.DB, bool, error) {
	dbExisted := fileExists(dbPath)
	if dbExisted {
		logger.Infof("Catalog exists at %s; checking integrity", dbPath)
	} else {
		logger.Infof("Catalog not found; creating new at %s", dbPath)
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, false, err
	}

	if dbExisted {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := storage.CheckIntegrity(ctx, db); err != nil {
			logger.Warnf("Catalog corruption detected: %v", err)
			logger.Warnf("Closing corrupted catalog and recreating")
			if closeErr := db.Close(); closeErr != nil {
				logger.Warnf("Failed to close corrupted catalog: %v", closeErr)
			}
			if err := os.Remove(dbPath); err != nil {
				return nil, false, fmt.Errorf("failed to remove corrupted catalog: %w", err)
			}
			_ = os.Remove(dbPath + "-wal")
			_ = os.Remove(dbPath + "-shm")
			db, err = storage.Open(dbPath)
			if err != nil {
				return nil, false, err
			}
			logger.Infof("New catalog created at %s", dbPath)
			dbExisted = false
		} else {
			logger.Infof("Catalog integrity check passed")
		}
	}

	journalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if mode, err := storage.GetJournalMode(journalCtx, db); err != nil {
		logger.Warnf("Failed to determine catalog journal_mode: %v", err)
	} else {
		logger.Debugf("Catalog journal_mode: %s", strings.ToUpper(mode))
	}

	return db, dbExisted, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func logLatestRunStatus(ctx context.Context, store *storage.Store) {
	id, err := store.LatestRunID(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		logger.Infof("No prior runs found in catalog")
		return
	case err != nil:
		logger.Warnf("Could not load latest run: %v", err)
		return
	}

	run, err := store.GetRun(ctx, id)
	if err != nil {
		logger.Warnf("Could not load latest run: %v", err)
		return
	}
	finished := "never"
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	logger.Infof("Latest run: id=%d uuid=%s status=%s url=%s finished=%s folders=%d files=%d downloaded=%d skipped=%d",
		run.ID,
		run.UUID,
		run.Status,
		run.BaseURL,
		finished,
		run.NumFolders,
		run.NumFiles,
		run.Downloaded,
		run.Skipped,
	)
}

// finishCatalog stores the run outcome, then checkpoints the WAL and prunes
// old runs. Maintenance failures are only logged.
func finishCatalog(ctx context.Context, db *sql.DB, store *storage.Store, runID int64, res storage.RunResult, keepRuns int) error {
	if err := store.FinishRun(ctx, runID, res); err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}

	if stats, err := storage.WALCheckpointTruncate(ctx, db); err != nil {
		logger.Warnf("WAL checkpoint failed after run: %v", err)
	} else {
		logger.Debugf("WAL checkpoint complete in %v (busy=%d log=%d checkpointed=%d)", stats.Duration, stats.Busy, stats.Log, stats.Checkpointed)
	}

	if keepRuns > 0 {
		stats, err := storage.PruneOldRuns(ctx, db, keepRuns, pruneMaxAge)
		if err != nil {
			logger.Warnf("Pruning old runs failed: %v", err)
		} else if stats.DeletedRuns > 0 {
			logger.Infof("Pruned %d old runs (%d entries) in %v", stats.DeletedRuns, stats.DeletedEntries, stats.Duration)
		}
	}
	return nil
}

// catalogRun records one mirror run. A nil *catalogRun is a disabled catalog.
type catalogRun struct {
	ctx      context.Context
	db       *sql.DB
	store    *storage.Store
	writer   *storage.StreamingWriter
	id       int64
	keepRuns int
	finished bool
}

// openCatalog opens cfg.DBPath and begins a run. The catalog outlives ctx
// cancellation so that interrupted runs are still recorded as failed.
func openCatalog(ctx context.Context, cfg MirrorConfig, baseURL, destRoot string) (*catalogRun, func(), error) {
	if cfg.DBPath == "" {
		return nil, func() {}, nil
	}

	db, dbExisted, err := openDatabaseWithIntegrityCheck(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog %s: %w", cfg.DBPath, err)
	}

	catalogCtx := context.WithoutCancel(ctx)
	store := storage.NewStoreWithDB(db, cfg.DBPath)
	if dbExisted {
		logLatestRunStatus(catalogCtx, store)
	}

	begun, err := store.BeginRun(catalogCtx, baseURL, destRoot)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("begin run: %w", err)
	}
	id := begun.ID
	logger.Infof("Catalog run %d started (uuid=%s)", id, begun.UUID)

	run := &catalogRun{
		ctx:      catalogCtx,
		db:       db,
		store:    store,
		writer:   storage.NewStreamingWriterWithProgress(catalogCtx, db, id, writerBufferSize, logProgress),
		id:       id,
		keepRuns: cfg.KeepRuns,
	}
	cleanup := func() {
		if !run.finished {
			_ = run.writer.Close()
		}
		if err := db.Close(); err != nil {
			logger.Warnf("Catalog close error: %v", err)
		}
	}
	return run, cleanup, nil
}

func (r *catalogRun) setStatus(status string) {
	if r == nil {
		return
	}
	if err := r.store.SetRunStatus(r.ctx, r.id, status); err != nil {
		logger.Warnf("Failed to update run %d status: %v", r.id, err)
	}
}

// finish flushes pending entries and stores the run outcome.
func (r *catalogRun) finish(res storage.RunResult) error {
	if r == nil || r.finished {
		return nil
	}
	r.finished = true
	if err := r.writer.Close(); err != nil {
		logger.Warnf("Catalog writer failed for run %d: %v", r.id, err)
	}
	return finishCatalog(r.ctx, r.db, r.store, r.id, res, r.keepRuns)
}

func logProgress(folders, files int64, lastPath string) {
	if (folders+files)%writerBufferSize == 0 {
		logger.Debugf("catalog: %d folders, %d files (last %s)", folders, files, lastPath)
	}
}
