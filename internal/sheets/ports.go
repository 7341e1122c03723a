package sheets

import (
	"context"
	"time"

	"budgetreport/internal/core"
)

// Header names the ledger columns in the order Values writes them.
var Header = []any{
	"Generated At", "Run ID", "Budget", "Month",
	"Total Available", "Negative Balances", "Ready to Assign", "Credit Card Debt",
	"Negative Categories", "Card Debt Categories", "Categories", "Transactions",
	"Report",
}

// SummaryRow is one ledger line describing a delivered report.
type SummaryRow struct {
	GeneratedAt          time.Time
	RunID                string
	BudgetName           string
	Month                string
	TotalAvailable       core.Milliunits
	NegativeBalanceTotal core.Milliunits
	ReadyToAssign        core.Milliunits
	CreditCardDebt       core.Milliunits
	NegativeBalanceCount int
	CreditCardDebtCount  int
	CategoryCount        int
	TransactionCount     int
	ReportPath           string
}

// Values returns the row cells. Amounts are written in currency units so the
// sheet can format and sum them.
func (r SummaryRow) Values() []any {
	return []any{
		r.GeneratedAt.Format("2006-01-02 15:04:05"),
		r.RunID,
		r.BudgetName,
		r.Month,
		r.TotalAvailable.Units(),
		r.NegativeBalanceTotal.Units(),
		r.ReadyToAssign.Units(),
		r.CreditCardDebt.Units(),
		r.NegativeBalanceCount,
		r.CreditCardDebtCount,
		r.CategoryCount,
		r.TransactionCount,
		r.ReportPath,
	}
}

// Ports for outbound adapters.
type (
	SummaryAppender interface {
		AppendSummary(ctx context.Context, row SummaryRow) (rowRef string, err error)
	}
)
