package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mordilloSan/go_logger/logger"
)

type WALCheckpointStats struct {
	Busy         int
	Log          int
	Checkpointed int
	Duration     time.Duration
}

// WALCheckpointTruncate checkpoints the WAL and truncates the -wal file.
func WALCheckpointTruncate(ctx context.Context, db *sql.DB) (WALCheckpointStats, error) {
	ctx = ensureContext(ctx)
	if db == nil {
		return WALCheckpointStats{}, fmt.Errorf("db is nil")
	}

	start := time.Now()
	var stats WALCheckpointStats
	err := db.QueryRowContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`).Scan(&stats.Busy, &stats.Log, &stats.Checkpointed)
	stats.Duration = time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		return WALCheckpointStats{}, err
	}
	return stats, nil
}

// PruneStats holds statistics about the pruning operation
type PruneStats struct {
	DeletedRuns    int
	DeletedEntries int64
	Duration       time.Duration
}

// PruneOldRuns removes runs started before now-maxAge, always keeping the
// keepLatest most recent ones (minimum 1). Entries cascade with their run.
func PruneOldRuns(ctx context.Context, db *sql.DB, keepLatest int, maxAge time.Duration) (PruneStats, error) {
	ctx = ensureContext(ctx)
	if db == nil {
		return PruneStats{}, fmt.Errorf("db is nil")
	}
	if keepLatest < 1 {
		keepLatest = 1
	}

	start := time.Now()
	var stats PruneStats
	cutoffTime := time.Now().Add(-maxAge).Unix()

	const victims = `
		SELECT id FROM runs
		WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?
		)
		AND started_at < ?`

	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries WHERE run_id IN (`+victims+`);
	`, keepLatest, cutoffTime).Scan(&stats.DeletedEntries)
	if err != nil {
		return PruneStats{}, fmt.Errorf("count entries to delete: %w", err)
	}

	result, err := db.ExecContext(ctx, `
		DELETE FROM runs WHERE id IN (`+victims+`);
	`, keepLatest, cutoffTime)
	if err != nil {
		return PruneStats{}, fmt.Errorf("delete old runs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return PruneStats{}, fmt.Errorf("get rows affected: %w", err)
	}

	stats.DeletedRuns = int(deleted)
	stats.Duration = time.Since(start).Truncate(time.Millisecond)

	if _, err := db.ExecContext(ctx, `PRAGMA incremental_vacuum;`); err != nil {
		logger.Warnf("Incremental vacuum failed after pruning: %v", err)
	}

	return stats, nil
}
