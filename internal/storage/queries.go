package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// SyncState is a row of sync_state.
type SyncState struct {
	BudgetID        string
	Resource        string
	ServerKnowledge int64
	UpdatedAt       string
}

// ReportRun is a row of report_runs. Timestamps are RFC 3339 text.
type ReportRun struct {
	ID               string
	BudgetID         string
	Status           string
	StartedAt        string
	FinishedAt       sql.NullString
	ReportPath       string
	CategoryCount    int64
	TransactionCount int64
	TotalAvailable   int64
	ErrorType        string
	ErrorMessage     string
}

const getSyncState = `
SELECT budget_id, resource, server_knowledge, updated_at
FROM sync_state
WHERE budget_id = ? AND resource = ?
`

func (q *Queries) GetSyncState(ctx context.Context, budgetID, resource string) (SyncState, error) {
	row := q.db.QueryRowContext(ctx, getSyncState, budgetID, resource)
	var s SyncState
	err := row.Scan(&s.BudgetID, &s.Resource, &s.ServerKnowledge, &s.UpdatedAt)
	return s, err
}

const upsertSyncState = `
INSERT INTO sync_state (budget_id, resource, server_knowledge, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (budget_id, resource) DO UPDATE SET
    server_knowledge = excluded.server_knowledge,
    updated_at = excluded.updated_at
`

type UpsertSyncStateParams struct {
	BudgetID        string
	Resource        string
	ServerKnowledge int64
	UpdatedAt       string
}

func (q *Queries) UpsertSyncState(ctx context.Context, arg UpsertSyncStateParams) error {
	_, err := q.db.ExecContext(ctx, upsertSyncState, arg.BudgetID, arg.Resource, arg.ServerKnowledge, arg.UpdatedAt)
	return err
}

const deleteSyncState = `
DELETE FROM sync_state WHERE budget_id = ?
`

func (q *Queries) DeleteSyncState(ctx context.Context, budgetID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteSyncState, budgetID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const createReportRun = `
INSERT INTO report_runs (id, budget_id, status, started_at)
VALUES (?, ?, 'running', ?)
`

type CreateReportRunParams struct {
	ID        string
	BudgetID  string
	StartedAt string
}

func (q *Queries) CreateReportRun(ctx context.Context, arg CreateReportRunParams) error {
	_, err := q.db.ExecContext(ctx, createReportRun, arg.ID, arg.BudgetID, arg.StartedAt)
	return err
}

const completeReportRun = `
UPDATE report_runs
SET status = 'success',
    finished_at = ?,
    report_path = ?,
    category_count = ?,
    transaction_count = ?,
    total_available = ?
WHERE id = ? AND status = 'running'
`

type CompleteReportRunParams struct {
	ID               string
	FinishedAt       string
	ReportPath       string
	CategoryCount    int64
	TransactionCount int64
	TotalAvailable   int64
}

func (q *Queries) CompleteReportRun(ctx context.Context, arg CompleteReportRunParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, completeReportRun,
		arg.FinishedAt, arg.ReportPath, arg.CategoryCount, arg.TransactionCount, arg.TotalAvailable, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const failReportRun = `
UPDATE report_runs
SET status = 'failed',
    finished_at = ?,
    error_type = ?,
    error_message = ?
WHERE id = ? AND status = 'running'
`

type FailReportRunParams struct {
	ID           string
	FinishedAt   string
	ErrorType    string
	ErrorMessage string
}

func (q *Queries) FailReportRun(ctx context.Context, arg FailReportRunParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, failReportRun, arg.FinishedAt, arg.ErrorType, arg.ErrorMessage, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const reportRunColumns = `id, budget_id, status, started_at, finished_at, report_path,
    category_count, transaction_count, total_available, error_type, error_message`

const getReportRun = `
SELECT ` + reportRunColumns + `
FROM report_runs
WHERE id = ?
`

func (q *Queries) GetReportRun(ctx context.Context, id string) (ReportRun, error) {
	row := q.db.QueryRowContext(ctx, getReportRun, id)
	return scanReportRun(row)
}

const listReportRuns = `
SELECT ` + reportRunColumns + `
FROM report_runs
ORDER BY started_at DESC, id DESC
LIMIT ?
`

func (q *Queries) ListReportRuns(ctx context.Context, limit int64) ([]ReportRun, error) {
	rows, err := q.db.QueryContext(ctx, listReportRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ReportRun
	for rows.Next() {
		r, err := scanReportRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReportRun(s scanner) (ReportRun, error) {
	var r ReportRun
	err := s.Scan(
		&r.ID,
		&r.BudgetID,
		&r.Status,
		&r.StartedAt,
		&r.FinishedAt,
		&r.ReportPath,
		&r.CategoryCount,
		&r.TransactionCount,
		&r.TotalAvailable,
		&r.ErrorType,
		&r.ErrorMessage,
	)
	return r, err
}
