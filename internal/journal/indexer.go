package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// OpenIndexerDB opens and pings a Postgres connection for NewIndexer,
// given a standard libpq connection string (config.Config.PostgresDSN).
// Grounded on the teacher's storage.NewPostgresStorage dial-then-ping
// sequence.
func OpenIndexerDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Indexer mirrors select journal records into Postgres for ad-hoc SQL
// querying alongside the mandatory JSONL journal. It is optional: a nil
// Indexer's methods are no-ops, so callers can wire it unconditionally
// behind a config flag. Grounded on the teacher's
// internal/storage.PostgresStorage, generalized from a single
// opportunity-insert query to two tables (opportunities, executions)
// since this spec tracks both ends of the pipeline.
type Indexer struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIndexer wraps an already-opened *sql.DB (use OpenIndexerDB in
// production, a go-sqlmock DB in tests).
func NewIndexer(db *sql.DB, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{db: db, logger: logger}
}

// IndexOpportunity mirrors an opportunity_found record.
func (ix *Indexer) IndexOpportunity(ctx context.Context, id, signalKind string, netProfitCents int64, detectedAt time.Time) error {
	if ix == nil {
		return nil
	}
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO journal_opportunities (id, signal_kind, net_profit_cents, detected_at)
		VALUES ($1, $2, $3, $4)
	`, id, signalKind, netProfitCents, detectedAt)
	if err != nil {
		JournalIndexErrorsTotal.WithLabelValues("opportunity").Inc()
		ix.logger.Warn("journal-index-opportunity-failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("index opportunity: %w", err)
	}
	return nil
}

// IndexExecutionResult mirrors an execution_result record.
func (ix *Indexer) IndexExecutionResult(ctx context.Context, id, state string, realizedProfitCents int64, completedAt time.Time) error {
	if ix == nil {
		return nil
	}
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO journal_executions (id, state, realized_profit_cents, completed_at)
		VALUES ($1, $2, $3, $4)
	`, id, state, realizedProfitCents, completedAt)
	if err != nil {
		JournalIndexErrorsTotal.WithLabelValues("execution").Inc()
		ix.logger.Warn("journal-index-execution-failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("index execution result: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (ix *Indexer) Close() error {
	if ix == nil || ix.db == nil {
		return nil
	}
	return ix.db.Close()
}
