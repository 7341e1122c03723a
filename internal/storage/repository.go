// Package storage persists delta tokens and run history in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"budgetreport/internal/core"
	applog "budgetreport/internal/log"

	_ "modernc.org/sqlite"
)

// Resource keys for persisted delta tokens.
const (
	ResourceTransactions = "transactions"
	ResourceCategories   = "categories"
)

// Run statuses as stored in report_runs.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunFailed  = "failed"
)

// ErrRunNotFound is returned when a run id is unknown or already finished.
var ErrRunNotFound = errors.New("report run not found")

// Error wraps a state database failure.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "state store: " + e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorType() string { return applog.ErrorTypeDatabase }

// Run is one recorded invocation of the report pipeline.
type Run struct {
	ID               string
	BudgetID         string
	Status           string
	StartedAt        time.Time
	FinishedAt       time.Time
	ReportPath       string
	CategoryCount    int
	TransactionCount int
	TotalAvailable   core.Milliunits
	ErrorType        string
	ErrorMessage     string
}

// RunResult is recorded when a run completes.
type RunResult struct {
	ReportPath       string
	CategoryCount    int
	TransactionCount int
	TotalAvailable   core.Milliunits
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *applog.Logger
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string, logger *applog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, &Error{Op: "create db directory", Err: err}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &Error{Op: "open sqlite database", Err: err}
	}
	// One process, one writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &Error{Op: "ping database", Err: err}
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, &Error{Op: "run migrations", Err: err}
	}
	logger.Debug("State database ready", applog.FieldPath, dbPath, "schema_version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// GetKnowledge returns the stored delta token, or zero when none was saved.
func (r *SQLiteRepository) GetKnowledge(ctx context.Context, budgetID, resource string) (core.Knowledge, error) {
	state, err := r.queries.GetSyncState(ctx, budgetID, resource)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, &Error{Op: "get sync state " + resource, Err: err}
	}
	return core.Knowledge(state.ServerKnowledge), nil
}

// SaveKnowledge stores the delta token for the next run.
func (r *SQLiteRepository) SaveKnowledge(ctx context.Context, budgetID, resource string, k core.Knowledge) error {
	err := r.queries.UpsertSyncState(ctx, UpsertSyncStateParams{
		BudgetID:        budgetID,
		Resource:        resource,
		ServerKnowledge: int64(k),
		UpdatedAt:       formatTime(r.now()),
	})
	if err != nil {
		return &Error{Op: "save sync state " + resource, Err: err}
	}

	r.logger.InfoContext(ctx, "Delta token saved",
		"resource", resource,
		applog.FieldKnowledge, int64(k))
	return nil
}

// ResetKnowledge forgets every token for a budget so the next run is a full sync.
func (r *SQLiteRepository) ResetKnowledge(ctx context.Context, budgetID string) (int64, error) {
	n, err := r.queries.DeleteSyncState(ctx, budgetID)
	if err != nil {
		return 0, &Error{Op: "reset sync state", Err: err}
	}
	return n, nil
}

// StartRun records a new running invocation.
func (r *SQLiteRepository) StartRun(ctx context.Context, runID, budgetID string, startedAt time.Time) error {
	err := r.queries.CreateReportRun(ctx, CreateReportRunParams{
		ID:        runID,
		BudgetID:  budgetID,
		StartedAt: formatTime(startedAt),
	})
	if err != nil {
		return &Error{Op: "create report run", Err: err}
	}
	return nil
}

// FinishRun marks a running invocation as successful.
func (r *SQLiteRepository) FinishRun(ctx context.Context, runID string, res RunResult) error {
	n, err := r.queries.CompleteReportRun(ctx, CompleteReportRunParams{
		ID:               runID,
		FinishedAt:       formatTime(r.now()),
		ReportPath:       res.ReportPath,
		CategoryCount:    int64(res.CategoryCount),
		TransactionCount: int64(res.TransactionCount),
		TotalAvailable:   int64(res.TotalAvailable),
	})
	if err != nil {
		return &Error{Op: "complete report run", Err: err}
	}
	if n == 0 {
		return &Error{Op: "complete report run " + runID, Err: ErrRunNotFound}
	}
	return nil
}

// FailRun marks a running invocation as failed with the error's category.
func (r *SQLiteRepository) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	n, err := r.queries.FailReportRun(ctx, FailReportRunParams{
		ID:           runID,
		FinishedAt:   formatTime(r.now()),
		ErrorType:    applog.ErrorType(runErr),
		ErrorMessage: msg,
	})
	if err != nil {
		return &Error{Op: "fail report run", Err: err}
	}
	if n == 0 {
		return &Error{Op: "fail report run " + runID, Err: ErrRunNotFound}
	}
	return nil
}

// GetRun returns one run by id.
func (r *SQLiteRepository) GetRun(ctx context.Context, runID string) (Run, error) {
	row, err := r.queries.GetReportRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, &Error{Op: "get report run", Err: err}
	}
	return toRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.queries.ListReportRuns(ctx, int64(limit))
	if err != nil {
		return nil, &Error{Op: "list report runs", Err: err}
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := toRun(row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func toRun(row ReportRun) (Run, error) {
	started, err := parseTime(row.StartedAt)
	if err != nil {
		return Run{}, &Error{Op: "parse report run " + row.ID, Err: err}
	}
	run := Run{
		ID:               row.ID,
		BudgetID:         row.BudgetID,
		Status:           row.Status,
		StartedAt:        started,
		ReportPath:       row.ReportPath,
		CategoryCount:    int(row.CategoryCount),
		TransactionCount: int(row.TransactionCount),
		TotalAvailable:   core.Milliunits(row.TotalAvailable),
		ErrorType:        row.ErrorType,
		ErrorMessage:     row.ErrorMessage,
	}
	if row.FinishedAt.Valid {
		finished, err := parseTime(row.FinishedAt.String)
		if err != nil {
			return Run{}, &Error{Op: "parse report run " + row.ID, Err: err}
		}
		run.FinishedAt = finished
	}
	return run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
