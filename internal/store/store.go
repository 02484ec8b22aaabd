// Package store keeps LVS run history in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/lvs-console/internal/logger"
	"github.com/raaihank/lvs-console/internal/logparse"
)

const schema = `
CREATE TABLE IF NOT EXISTS lvs_runs (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL UNIQUE,
	layout      TEXT NOT NULL,
	netlist     TEXT NOT NULL,
	cells       TEXT[] NOT NULL DEFAULT '{}',
	checks      BOOLEAN[] NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	report_name TEXT NOT NULL DEFAULT '',
	report_size BIGINT NOT NULL DEFAULT 0,
	violations  BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_rule_counts (
	run_id BIGINT NOT NULL REFERENCES lvs_runs(id) ON DELETE CASCADE,
	rule   TEXT NOT NULL,
	count  BIGINT NOT NULL,
	PRIMARY KEY (run_id, rule)
);

CREATE INDEX IF NOT EXISTS idx_lvs_runs_created_at ON lvs_runs (created_at DESC);
`

// maxBatchRows keeps a single insert under the 65535 bind parameter limit
const maxBatchRows = 1000

// Store records LVS runs and their per-rule violation counts
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// New connects to PostgreSQL and configures the connection pool
func New(config *Config, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	s := &Store{
		db:     db,
		logger: log.WithComponent("store"),
	}

	s.logger.Info("Run store initialized successfully",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return s, nil
}

// Migrate creates the run history tables when they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate run store: %w", err)
	}
	s.logger.Info("Run store schema ready")
	return nil
}

// RecordRun inserts run and fills in its ID and CreatedAt
func (s *Store) RecordRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO lvs_runs (run_id, layout, netlist, cells, checks, status, error,
			report_name, report_size, violations, duration_ms)
		VALUES (:run_id, :layout, :netlist, :cells, :checks, :status, :error,
			:report_name, :report_size, :violations, :duration_ms)
		RETURNING id, created_at`

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare run insert: %w", err)
	}
	defer stmt.Close()

	if err := stmt.QueryRowxContext(ctx, run).Scan(&run.ID, &run.CreatedAt); err != nil {
		s.logger.Error("Failed to record run",
			zap.Error(err),
			zap.String("run_id", run.RunID))
		return fmt.Errorf("failed to record run: %w", err)
	}

	s.logger.Debug("Run recorded",
		zap.Int64("id", run.ID),
		zap.String("run_id", run.RunID),
		zap.String("status", run.Status))

	return nil
}

// RecordRuleCounts stores the per-rule violation table of a run
func (s *Store) RecordRuleCounts(ctx context.Context, runID int64, rows []logparse.RuleCount) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := 0; i < len(rows); i += maxBatchRows {
		end := min(i+maxBatchRows, len(rows))
		query, args := ruleCountInsert(runID, rows[i:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			s.logger.Error("Rule count insert failed", zap.Error(err), zap.Int64("run", runID))
			return fmt.Errorf("failed to insert rule counts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule counts: %w", err)
	}

	s.logger.Debug("Rule counts recorded",
		zap.Int64("run", runID),
		zap.Int("rules", len(rows)),
		zap.Duration("duration", time.Since(start)))

	return nil
}

// ruleCountInsert builds a multi-row insert for one batch of rule counts
func ruleCountInsert(runID int64, rows []logparse.RuleCount) (string, []any) {
	valueStrings := make([]string, 0, len(rows))
	valueArgs := make([]any, 0, len(rows)*3)

	for i, row := range rows {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3))
		valueArgs = append(valueArgs, runID, row.Rule, row.Count)
	}

	query := fmt.Sprintf(`
		INSERT INTO run_rule_counts (run_id, rule, count)
		VALUES %s
		ON CONFLICT (run_id, rule) DO UPDATE SET count = EXCLUDED.count`,
		strings.Join(valueStrings, ","))

	return query, valueArgs
}

// RecentRuns returns the latest runs, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	runs := []Run{}
	query := `
		SELECT id, run_id, layout, netlist, cells, checks, status, error,
			report_name, report_size, violations, duration_ms, created_at
		FROM lvs_runs
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// RuleCounts returns the violation table recorded for a run
func (s *Store) RuleCounts(ctx context.Context, runID int64) ([]logparse.RuleCount, error) {
	rows := []logparse.RuleCount{}
	query := `
		SELECT rule, count
		FROM run_rule_counts
		WHERE run_id = $1
		ORDER BY count DESC, rule`

	if err := s.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to load rule counts: %w", err)
	}
	return rows, nil
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	start := 0
	if i := strings.Index(userPart, "://"); i >= 0 {
		start = i + 3
	}
	colon := strings.LastIndex(userPart[start:], ":")
	if colon < 0 {
		return url
	}
	return userPart[:start+colon+1] + "***" + url[at:]
}
