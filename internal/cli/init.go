// Package cli provides the start-up plumbing shared by the commands:
// environment files, logger setup and signal handling.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"budgetreport/internal/config"
	applog "budgetreport/internal/log"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read when present and ignored when absent.
const DefaultEnvFile = ".env"

// LoadEnvFile loads variables from path without overriding ones already set.
// An explicitly named file must exist; the default one is optional.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", DefaultEnvFile, err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// BootstrapLogger logs to stderr until the configuration is known.
func BootstrapLogger() *applog.Logger {
	return applog.New(applog.Config{Output: os.Stderr, Component: applog.ComponentApp})
}

// SetupLogger builds the process logger from configuration. With LOG_FILE set,
// lines go to stdout and to the file. The returned close func is never nil.
func SetupLogger(cfg *config.Config) (*applog.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closeFn := func() {}

	if cfg.LogFile != "" {
		f, err := applog.OpenFile(cfg.LogFile)
		if err != nil {
			return nil, closeFn, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}

	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentApp,
		Output:    out,
	})
	applog.SetDefault(logger)
	return logger, closeFn, nil
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
