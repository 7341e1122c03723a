package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"budgetreport/internal/amqp"
	"budgetreport/internal/archive"
	"budgetreport/internal/config"
	"budgetreport/internal/core"
	applog "budgetreport/internal/log"
	"budgetreport/internal/report"
	"budgetreport/internal/sheets"
	"budgetreport/internal/storage"
	"budgetreport/internal/ynab"

	"github.com/google/uuid"
)

// BudgetSource fetches budget data from the remote API.
type BudgetSource interface {
	FetchCategories(ctx context.Context, knowledge core.Knowledge) ([]core.CategoryGroup, core.Knowledge, error)
	FetchTransactions(ctx context.Context, q ynab.TransactionQuery) ([]core.Transaction, core.Knowledge, error)
	FetchSummary(ctx context.Context) (core.BudgetSummary, error)
}

// StateStore persists delta tokens and run history between invocations.
type StateStore interface {
	GetKnowledge(ctx context.Context, budgetID, resource string) (core.Knowledge, error)
	SaveKnowledge(ctx context.Context, budgetID, resource string, k core.Knowledge) error
	StartRun(ctx context.Context, runID, budgetID string, startedAt time.Time) error
	FinishRun(ctx context.Context, runID string, res storage.RunResult) error
	FailRun(ctx context.Context, runID string, runErr error) error
}

// ReportArchive keeps rendered reports on disk.
type ReportArchive interface {
	Save(ctx context.Context, html string, ts time.Time) (string, error)
	Prune(ctx context.Context, retentionDays int, now time.Time) (archive.PruneResult, error)
}

// Mailer delivers messages to the configured recipients.
type Mailer interface {
	Send(ctx context.Context, subject, htmlBody string) error
	SendPlain(ctx context.Context, subject, text string) error
	TestConnection(ctx context.Context) error
}

// EventPublisher announces delivered reports.
type EventPublisher interface {
	PublishReportGenerated(ctx context.Context, msg *amqp.ReportGeneratedMessage) error
}

// Deps are the collaborators of a Runner. Publisher and Ledger are optional.
type Deps struct {
	Source    BudgetSource
	State     StateStore
	Archive   ReportArchive
	Mailer    Mailer
	Publisher EventPublisher
	Ledger    sheets.SummaryAppender
	Logger    *applog.Logger
}

// Outcome describes a successful run.
type Outcome struct {
	RunID      string
	ReportPath string
	Subject    string
	Report     report.Report
}

// Runner executes one report invocation end to end.
type Runner struct {
	cfg      *config.Config
	deps     Deps
	currency core.Currency
	logger   *applog.Logger
	now      func() time.Time
	newRunID func() string
}

func NewRunner(cfg *config.Config, deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	return &Runner{
		cfg:      cfg,
		deps:     deps,
		currency: core.NewCurrency(cfg.Currency),
		logger:   logger.WithComponent(applog.ComponentScheduler),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// Run fetches, builds, saves, prunes and mails one report, then advances the
// transaction delta token. The token only moves after the mail was accepted,
// so a failed delivery repeats the same transactions next time.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	ts := r.now()
	runID := r.newRunID()
	logger := r.logger.With(applog.FieldRunID, runID, applog.FieldBudgetID, r.cfg.BudgetID)

	if err := r.deps.State.StartRun(ctx, runID, r.cfg.BudgetID, ts); err != nil {
		logger.LogError(ctx, "Report run could not be recorded", err, applog.OpPersist, nil)
		return Outcome{}, err
	}
	logger.InfoContext(ctx, "Report run started")

	out, op, err := r.run(ctx, logger, runID, ts)
	if err != nil {
		r.fail(ctx, logger, runID, op, err)
		return Outcome{}, err
	}

	logger.InfoContext(ctx, "Report run finished",
		applog.FieldPath, out.ReportPath,
		applog.FieldDuration, r.now().Sub(ts).Milliseconds())
	return out, nil
}

// run returns the operation that failed alongside any error.
func (r *Runner) run(ctx context.Context, logger *applog.Logger, runID string, ts time.Time) (Outcome, string, error) {
	built, txKnowledge, newKnowledge, err := r.fetchAndBuild(ctx, logger, ts)
	if err != nil {
		return Outcome{}, applog.OpFetch, err
	}

	html, err := report.Render(built, report.RenderOptions{Title: r.cfg.ReportTitle, Currency: r.currency})
	if err != nil {
		return Outcome{}, applog.OpRender, fmt.Errorf("render report: %w", err)
	}

	path, err := r.deps.Archive.Save(ctx, html, ts)
	if err != nil {
		return Outcome{}, applog.OpSave, err
	}

	if _, err := r.deps.Archive.Prune(ctx, r.cfg.RetainDays, ts); err != nil {
		logger.WarnContext(ctx, "Pruning old reports failed",
			applog.FieldOperation, applog.OpPrune,
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorType(err))
	}

	subject := report.Subject(built, r.cfg.ReportTitle)
	if err := r.deps.Mailer.Send(ctx, subject, html); err != nil {
		return Outcome{}, applog.OpSend, err
	}

	if newKnowledge != 0 && newKnowledge != txKnowledge {
		if err := r.deps.State.SaveKnowledge(ctx, r.cfg.BudgetID, storage.ResourceTransactions, newKnowledge); err != nil {
			return Outcome{}, applog.OpPersist, err
		}
	}

	out := Outcome{RunID: runID, ReportPath: path, Subject: subject, Report: built}
	r.publish(ctx, logger, out, ts)
	r.appendLedger(ctx, logger, out, ts)

	err = r.deps.State.FinishRun(ctx, runID, storage.RunResult{
		ReportPath:       path,
		CategoryCount:    built.Stats.CategoryCount,
		TransactionCount: len(built.Recent),
		TotalAvailable:   built.Stats.TotalAvailable,
	})
	if err != nil {
		// A delivered report exits 0 even if its history row is lost.
		logger.WarnContext(ctx, "Recording run result failed",
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorType(err))
	}
	return out, "", nil
}

// fetchAndBuild loads the summary, categories and transactions and builds the
// report. It returns the delta token sent for transactions and the one the
// server answered with.
func (r *Runner) fetchAndBuild(ctx context.Context, logger *applog.Logger, ts time.Time) (report.Report, core.Knowledge, core.Knowledge, error) {
	var summary *core.BudgetSummary
	if s, err := r.deps.Source.FetchSummary(ctx); err != nil {
		if ynab.IsUnauthorized(err) || errors.Is(err, context.Canceled) {
			return report.Report{}, 0, 0, err
		}
		logger.WarnContext(ctx, "Budget summary unavailable, continuing without it",
			applog.FieldError, err.Error(),
			applog.FieldErrorType, applog.ErrorType(err))
	} else {
		summary = &s
	}

	// Categories carry running balances, so they are always fetched in full.
	groups, _, err := r.deps.Source.FetchCategories(ctx, 0)
	if err != nil {
		return report.Report{}, 0, 0, err
	}

	var known core.Knowledge
	if r.deps.State != nil {
		known, err = r.deps.State.GetKnowledge(ctx, r.cfg.BudgetID, storage.ResourceTransactions)
		if err != nil {
			return report.Report{}, 0, 0, err
		}
	}

	// Window still bounds the refetch when the server rejects a stale token.
	window := sinceDate(ts, r.cfg.TransactionDays)
	query := ynab.TransactionQuery{Knowledge: known, Window: window}
	if known == 0 {
		query.SinceDate = window
	}
	txs, newKnowledge, err := r.deps.Source.FetchTransactions(ctx, query)
	if err != nil {
		return report.Report{}, 0, 0, err
	}

	built := report.Build(groups, txs, report.Options{
		IncludedGroups:   r.cfg.IncludedGroups,
		CreditCardGroups: r.cfg.CreditCardGroups,
		GeneratedAt:      ts,
		Summary:          summary,
	})
	logger.InfoContext(ctx, "Report built",
		applog.FieldOperation, applog.OpBuild,
		"categories", built.Stats.CategoryCount,
		"transactions", len(built.Recent),
		"negative_balances", built.Stats.NegativeBalanceCount,
		applog.FieldAmountMilli, int64(built.Stats.TotalAvailable))

	return built, known, newKnowledge, nil
}

// fail records the failure and optionally mails a plain-text notice. The
// bookkeeping outlives a cancelled run context.
func (r *Runner) fail(ctx context.Context, logger *applog.Logger, runID, op string, runErr error) {
	logger.LogError(ctx, "Report run failed", runErr, op, nil)

	bg := context.WithoutCancel(ctx)
	if err := r.deps.State.FailRun(bg, runID, runErr); err != nil {
		logger.WarnContext(ctx, "Recording run failure failed", applog.FieldError, err.Error())
	}

	if !r.cfg.NotifyOnFailure || applog.ErrorType(runErr) == applog.ErrorTypeMail {
		return
	}
	subject, body := failureNotice(r.cfg.ReportTitle, runID, runErr, r.now())
	if err := r.deps.Mailer.SendPlain(bg, subject, body); err != nil {
		logger.WarnContext(ctx, "Failure notice not sent", applog.FieldError, err.Error())
	}
}

func (r *Runner) publish(ctx context.Context, logger *applog.Logger, out Outcome, ts time.Time) {
	if r.deps.Publisher == nil {
		return
	}
	msg := &amqp.ReportGeneratedMessage{
		RunID:                out.RunID,
		BudgetID:             r.cfg.BudgetID,
		Subject:              out.Subject,
		ReportPath:           out.ReportPath,
		Recipients:           len(r.cfg.Recipients),
		CategoryCount:        out.Report.Stats.CategoryCount,
		TransactionCount:     len(out.Report.Recent),
		TotalAvailable:       int64(out.Report.Stats.TotalAvailable),
		NegativeBalanceCount: out.Report.Stats.NegativeBalanceCount,
		CreditCardDebtCount:  out.Report.Stats.CreditCardDebtCount,
		GeneratedAt:          ts,
	}
	if s := out.Report.Summary; s != nil {
		msg.BudgetName = s.BudgetName
	}
	if err := r.deps.Publisher.PublishReportGenerated(ctx, msg); err != nil {
		logger.WarnContext(ctx, "Publishing report event failed",
			applog.FieldOperation, applog.OpPublish,
			applog.FieldError, err.Error())
	}
}

func (r *Runner) appendLedger(ctx context.Context, logger *applog.Logger, out Outcome, ts time.Time) {
	if r.deps.Ledger == nil {
		return
	}
	stats := out.Report.Stats
	row := sheets.SummaryRow{
		GeneratedAt:          ts,
		RunID:                out.RunID,
		TotalAvailable:       stats.TotalAvailable,
		NegativeBalanceTotal: stats.NegativeBalanceTotal,
		NegativeBalanceCount: stats.NegativeBalanceCount,
		CreditCardDebtCount:  stats.CreditCardDebtCount,
		CategoryCount:        stats.CategoryCount,
		TransactionCount:     len(out.Report.Recent),
		ReportPath:           out.ReportPath,
	}
	if s := out.Report.Summary; s != nil {
		row.BudgetName = s.BudgetName
		row.Month = s.Month.MonthName()
		row.ReadyToAssign = s.ReadyToAssign
		row.CreditCardDebt = s.CreditCardDebt
	}
	if _, err := r.deps.Ledger.AppendSummary(ctx, row); err != nil {
		logger.WarnContext(ctx, "Appending ledger row failed",
			applog.FieldOperation, applog.OpAppend,
			applog.FieldError, err.Error())
	}
}

// TestSMTP checks mail settings and the server handshake. Nothing else is
// touched and no message is sent.
func (r *Runner) TestSMTP(ctx context.Context) error {
	if err := r.cfg.ValidateSMTP(); err != nil {
		r.logger.LogError(ctx, "SMTP settings are invalid", err, applog.OpValidate, nil)
		return err
	}
	if err := r.deps.Mailer.TestConnection(ctx); err != nil {
		r.logger.LogError(ctx, "SMTP connection test failed", err, applog.OpTestSMTP, nil)
		return err
	}
	r.logger.InfoContext(ctx, "SMTP connection test passed",
		"host", r.cfg.EmailHost,
		"port", r.cfg.EmailPort)
	return nil
}

// DryRun fetches and builds a report and prints it to w. No file is saved,
// no mail is sent and no token is advanced.
func (r *Runner) DryRun(ctx context.Context, w io.Writer) (report.Report, error) {
	built, _, _, err := r.fetchAndBuild(ctx, r.logger, r.now())
	if err != nil {
		r.logger.LogError(ctx, "Dry run failed", err, applog.OpFetch, nil)
		return report.Report{}, err
	}
	report.WriteConsole(w, built, r.currency)
	return built, nil
}

func sinceDate(ts time.Time, days int) core.Date {
	d := ts.AddDate(0, 0, -days)
	return core.NewDate(d.Year(), int(d.Month()), d.Day())
}

func failureNotice(title, runID string, err error, at time.Time) (string, string) {
	if title == "" {
		title = "Budget Update"
	}
	subject := fmt.Sprintf("%s - run failed - %s", title, at.Format(core.DateLayout))

	var b strings.Builder
	fmt.Fprintf(&b, "The budget report run %s failed at %s.\n\n", runID, at.Format(time.RFC1123))
	fmt.Fprintf(&b, "Error type: %s\n", applog.ErrorType(err))
	fmt.Fprintf(&b, "Error: %v\n", err)
	return subject, b.String()
}
