package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"budgetreport/internal/amqp"
	"budgetreport/internal/archive"
	"budgetreport/internal/cli"
	"budgetreport/internal/config"
	applog "budgetreport/internal/log"
	"budgetreport/internal/mailer"
	"budgetreport/internal/services"
	gsheet "budgetreport/internal/sheets/google"
	"budgetreport/internal/storage"
	"budgetreport/internal/ynab"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	envFile  string
	testSMTP bool
	dryRun   bool
}

func main() {
	os.Exit(execute(newRootCmd(), cli.BootstrapLogger()))
}

// execute runs cmd and maps its result to an exit code. Cobra's own error
// output is silenced, so the returned error is logged here.
func execute(cmd *cobra.Command, logger *applog.Logger) int {
	if err := cmd.Execute(); err != nil {
		logger.LogError(context.Background(), "budget-report failed", err, applog.OpShutdown, nil)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "budget-report",
		Short: "Email a summary of tracked budget categories",
		Long: "Fetches categories and recent transactions from the budgeting API, " +
			"renders an HTML report, archives it and emails it to the configured recipients.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd.Context(), flags)
		},
	}
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "load settings from this file instead of ./.env")
	cmd.Flags().BoolVar(&flags.testSMTP, "test-smtp", false, "check the mail server login and exit without sending")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print the report to the terminal without saving or mailing it")
	cmd.MarkFlagsMutuallyExclusive("test-smtp", "dry-run")

	cmd.AddCommand(newHistoryCmd(flags), newResetStateCmd(flags))
	return cmd
}

// loadConfig reads the env file and configuration and swaps the bootstrap
// logger for the configured one. Nothing else is opened before this returns.
func loadConfig(flags *rootFlags, validate func(*config.Config) error) (*config.Config, *applog.Logger, func(), error) {
	boot := cli.BootstrapLogger().WithComponent(applog.ComponentConfig)

	if err := cli.LoadEnvFile(flags.envFile); err != nil {
		boot.LogError(context.Background(), "Environment file could not be loaded", err, applog.OpLoad, nil)
		return nil, nil, nil, err
	}

	cfg := config.Load()
	if validate != nil {
		if err := validate(cfg); err != nil {
			boot.LogError(context.Background(), "Configuration validation failed", err, applog.OpValidate, nil)
			return nil, nil, nil, err
		}
	}

	logger, closeFn, err := cli.SetupLogger(cfg)
	if err != nil {
		boot.LogError(context.Background(), "Log file could not be opened", err, applog.OpStartup,
			applog.NewFields().With(applog.FieldPath, cfg.LogFile))
		return nil, nil, nil, err
	}
	return cfg, logger, closeFn, nil
}

func runReport(parent context.Context, flags *rootFlags) error {
	validate := (*config.Config).Validate
	if flags.testSMTP {
		// The connection test validates only the mail settings.
		validate = nil
	}
	cfg, logger, closeLog, err := loadConfig(flags, validate)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := cli.SignalContext(parent)
	defer stop()

	if flags.testSMTP {
		runner := services.NewRunner(cfg, services.Deps{Mailer: newMailer(cfg, logger), Logger: logger})
		return runner.TestSMTP(ctx)
	}

	source := ynab.New(ynab.Options{
		BaseURL:  cfg.BaseURL,
		Token:    cfg.APIToken,
		BudgetID: cfg.BudgetID,
		Timeout:  cfg.APITimeout,
		Logger:   logger,
	})

	if flags.dryRun {
		runner := services.NewRunner(cfg, services.Deps{Source: source, Logger: logger})
		_, err := runner.DryRun(ctx, os.Stdout)
		return err
	}

	repo, err := storage.NewSQLiteRepository(cfg.StateDBPath, logger)
	if err != nil {
		logger.LogError(ctx, "State database unavailable", err, applog.OpStartup,
			applog.NewFields().With(applog.FieldPath, cfg.StateDBPath))
		return err
	}
	defer repo.Close()

	deps := services.Deps{
		Source:  source,
		State:   repo,
		Archive: archive.New(cfg.ReportPath, logger),
		Mailer:  newMailer(cfg, logger),
		Logger:  logger,
	}

	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.WarnContext(ctx, "Report events disabled, broker unavailable",
				applog.FieldError, err.Error())
		} else {
			defer publisher.Close()
			deps.Publisher = publisher
		}
	}

	if cfg.GoogleSpreadsheetID != "" {
		ledger, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			Logger:          logger,
		})
		if err != nil {
			logger.WarnContext(ctx, "Spreadsheet ledger disabled",
				applog.FieldError, err.Error())
		} else {
			deps.Ledger = ledger
		}
	}

	out, err := services.NewRunner(cfg, deps).Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Run interrupted")
		}
		return err
	}
	fmt.Fprintf(os.Stdout, "Report sent: %s\n", out.ReportPath)
	return nil
}

func newMailer(cfg *config.Config, logger *applog.Logger) *mailer.Mailer {
	return mailer.New(mailer.Options{
		Host:       cfg.EmailHost,
		Port:       cfg.EmailPort,
		Username:   cfg.EmailUser,
		Password:   cfg.EmailPass,
		From:       cfg.EmailFrom,
		FromName:   cfg.EmailFromName,
		Recipients: cfg.Recipients,
		TLS:        cfg.EmailTLS,
		Timeout:    cfg.EmailTimeout,
		Logger:     logger,
	})
}
