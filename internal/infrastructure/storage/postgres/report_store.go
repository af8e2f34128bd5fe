package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"dizzycode.xyz/dca-backtest/internal/application"
	"dizzycode.xyz/dca-backtest/internal/infrastructure/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:embed schema.sql
var schema string

// ReportStore persists finished runs in backtest_runs.
type ReportStore struct {
	pool *Pool
}

// NewReportStore creates a new ReportStore.
func NewReportStore(pool *Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Compile-time interface check.
var _ application.ReportSink = (*ReportStore)(nil)

// EnsureSchema creates the backtest_runs table when missing.
func (s *ReportStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Publish implements application.ReportSink.
func (s *ReportStore) Publish(ctx context.Context, record application.RunRecord) error {
	return s.Insert(ctx, record)
}

// Insert stores a run. Returns storage.ErrDuplicateKey if run_id exists.
func (s *ReportStore) Insert(ctx context.Context, record application.RunRecord) error {
	runID, err := uuid.Parse(record.RunID)
	if err != nil {
		return fmt.Errorf("parse run id %q: %w", record.RunID, err)
	}
	report, err := json.Marshal(record.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	query := `
		INSERT INTO backtest_runs (
			run_id, job, inst_id, bar, final_cash, liquidated, cycles, report, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.pool.Exec(ctx, query,
		runID.String(), record.Job, record.InstID, record.Bar,
		record.Report.FinalCash, record.Report.Liquidated, len(record.Report.CompletedCycles),
		report, record.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert backtest run: %w", err)
	}
	return nil
}

// GetByID retrieves a run. Returns storage.ErrNotFound if it does not exist.
func (s *ReportStore) GetByID(ctx context.Context, runID string) (*application.RunRecord, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("parse run id %q: %w", runID, err)
	}

	query := `
		SELECT run_id::text, job, inst_id, bar, report, created_at
		FROM backtest_runs
		WHERE run_id = $1
	`
	record, err := scanRun(s.pool.QueryRow(ctx, query, id.String()))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get backtest run: %w", err)
	}
	return record, nil
}

// ListByMarket returns the newest runs for one instrument and bar size.
func (s *ReportStore) ListByMarket(ctx context.Context, instID, bar string, limit int) ([]*application.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT run_id::text, job, inst_id, bar, report, created_at
		FROM backtest_runs
		WHERE inst_id = $1 AND bar = $2
		ORDER BY created_at DESC, job
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, instID, bar, limit)
	if err != nil {
		return nil, fmt.Errorf("query backtest runs: %w", err)
	}
	defer rows.Close()

	var records []*application.RunRecord
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backtest run: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtest runs: %w", err)
	}
	return records, nil
}

func scanRun(row pgx.Row) (*application.RunRecord, error) {
	var (
		record    application.RunRecord
		report    []byte
		createdAt time.Time
	)
	if err := row.Scan(&record.RunID, &record.Job, &record.InstID, &record.Bar, &report, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(report, &record.Report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	record.CreatedAt = createdAt.UTC()
	return &record, nil
}
