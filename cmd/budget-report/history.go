package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"budgetreport/internal/config"
	"budgetreport/internal/core"
	applog "budgetreport/internal/log"
	"budgetreport/internal/storage"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent report runs from the state database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := loadConfig(flags, nil)
			if err != nil {
				return err
			}
			defer closeLog()

			repo, err := storage.NewSQLiteRepository(cfg.StateDBPath, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			runs, err := repo.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			writeHistory(os.Stdout, runs, core.NewCurrency(cfg.Currency))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func newResetStateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-state",
		Short: "Forget the stored delta token so the next run fetches the full window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closeLog, err := loadConfig(flags, nil)
			if err != nil {
				return err
			}
			defer closeLog()
			if cfg.BudgetID == "" {
				return &config.Error{Missing: []string{config.EnvBudgetID}}
			}

			repo, err := storage.NewSQLiteRepository(cfg.StateDBPath, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			return resetState(cmd.Context(), repo, cfg.BudgetID, logger)
		},
	}
}

func resetState(ctx context.Context, repo *storage.SQLiteRepository, budgetID string, logger *applog.Logger) error {
	n, err := repo.ResetKnowledge(ctx, budgetID)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Delta tokens cleared",
		applog.FieldBudgetID, budgetID,
		applog.FieldCount, n)
	return nil
}

func writeHistory(w io.Writer, runs []storage.Run, cur core.Currency) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No report runs recorded.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Report Runs")
	t.AppendHeader(table.Row{"Started", "Status", "Duration", "Categories", "Transactions", "Available", "Report / Error"})
	for _, run := range runs {
		detail := run.ReportPath
		if run.Status == storage.RunFailed {
			detail = run.ErrorType + ": " + run.ErrorMessage
		}
		duration := "-"
		if !run.FinishedAt.IsZero() {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			statusText(run.Status),
			duration,
			run.CategoryCount,
			run.TransactionCount,
			cur.Format(run.TotalAvailable),
			detail,
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, WidthMax: 60},
	})
	t.Render()
}

func statusText(status string) string {
	switch status {
	case storage.RunSuccess:
		return text.FgGreen.Sprint(status)
	case storage.RunFailed:
		return text.FgRed.Sprint(status)
	default:
		return text.FgYellow.Sprint(status)
	}
}
