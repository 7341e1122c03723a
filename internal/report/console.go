package report

import (
	"fmt"
	"io"

	"budgetreport/internal/core"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteConsole prints the report as terminal tables for a dry run.
func WriteConsole(w io.Writer, r Report, cur core.Currency) {
	if r.Summary != nil {
		fmt.Fprintf(w, "%s (%s)\n", r.Summary.BudgetName, r.Summary.Month.MonthName())
		fmt.Fprintf(w, "Ready to assign: %s  Credit card debt: %s\n",
			colorAmount(cur, r.Summary.ReadyToAssign), cur.Format(r.Summary.CreditCardDebt))
	}
	fmt.Fprintf(w, "Generated %s\n\n", formatGenerated(r.GeneratedAt))

	writeRecentTable(w, r, cur)
	fmt.Fprintln(w)
	writeCategoryTable(w, r, cur)
}

func writeRecentTable(w io.Writer, r Report, cur core.Currency) {
	if len(r.Recent) == 0 {
		fmt.Fprintln(w, "No new approved transactions in tracked categories.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Recent Transactions (%d)", len(r.Recent)))
	t.AppendHeader(table.Row{"Date", "Payee", "Category", "Memo", "Amount"})
	for _, tx := range r.Recent {
		t.AppendRow(table.Row{tx.Date.String(), tx.PayeeName, tx.CategoryName, tx.Memo, colorAmount(cur, tx.Amount)})
	}
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
	})
	t.Render()
}

func writeCategoryTable(w io.Writer, r Report, cur core.Currency) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Category Balances")
	t.AppendHeader(table.Row{"Group", "Category", "Available", "Budgeted", "Activity"})

	for _, g := range r.Groups {
		groupCell := g.Name
		for _, c := range g.Categories {
			t.AppendRow(table.Row{
				text.Bold.Sprint(groupCell),
				c.Name,
				colorAmount(cur, c.Available),
				cur.Format(c.Budgeted),
				cur.Format(c.Activity),
			})
			groupCell = ""
		}
		t.AppendSeparator()
	}

	s := r.Stats
	t.AppendFooter(table.Row{
		"", text.Bold.Sprint("Total available"), text.Bold.Sprint(cur.Format(s.TotalAvailable)),
		fmt.Sprintf("negative: %d", s.NegativeBalanceCount),
		fmt.Sprintf("card debt: %d", s.CreditCardDebtCount),
	})

	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	t.Render()
}

func colorAmount(cur core.Currency, m core.Milliunits) string {
	switch {
	case m < 0:
		return text.FgRed.Sprint(cur.Format(m))
	case m > 0:
		return text.FgGreen.Sprint(cur.Format(m))
	default:
		return text.FgHiBlack.Sprint(cur.Format(m))
	}
}
