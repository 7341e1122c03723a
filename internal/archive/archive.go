// Package archive keeps timestamped copies of rendered reports on disk.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "budgetreport/internal/log"
)

const (
	filePrefix = "budget_report_"
	fileSuffix = ".html"
	// stampLayout is the YYYYMMDD_HHMMSS part of a report file name.
	stampLayout = "20060102_150405"
)

// StorageError reports a filesystem failure while saving or listing reports.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("report storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) ErrorType() string { return applog.ErrorTypeStorage }

// PruneResult counts what a prune pass did.
type PruneResult struct {
	Deleted int
	Failed  int
	Kept    int
}

// Store saves reports into one directory and prunes them by age.
type Store struct {
	dir    string
	logger *applog.Logger
	remove func(string) error
}

func New(dir string, logger *applog.Logger) *Store {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Store{
		dir:    dir,
		logger: logger.WithComponent(applog.ComponentArchive),
		remove: os.Remove,
	}
}

// FileName returns the report file name for a timestamp.
func FileName(ts time.Time) string {
	return filePrefix + ts.Format(stampLayout) + fileSuffix
}

// Save writes html to a new file named after ts and returns its path. An
// existing file with the same name is never overwritten.
func (s *Store) Save(ctx context.Context, html string, ts time.Time) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", &StorageError{Op: "mkdir", Path: s.dir, Err: err}
	}

	path := filepath.Join(s.dir, FileName(ts))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", &StorageError{Op: "create", Path: path, Err: err}
	}

	if _, err := f.WriteString(html); err != nil {
		f.Close()
		return "", &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &StorageError{Op: "close", Path: path, Err: err}
	}

	s.logger.InfoContext(ctx, "Report saved", applog.FieldPath, path, "bytes", len(html))
	return path, nil
}

// Prune deletes reports whose file name stamp is strictly older than
// retentionDays before now. Files that do not look like reports are ignored.
// Per-file delete failures are logged and counted, not returned.
func (s *Store) Prune(ctx context.Context, retentionDays int, now time.Time) (PruneResult, error) {
	var res PruneResult

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "Report directory does not exist, nothing to prune", applog.FieldPath, s.dir)
			return res, nil
		}
		return res, &StorageError{Op: "list", Path: s.dir, Err: err}
	}

	// Stamps have second precision; so does the cutoff, so a report saved
	// with the same now survives a zero-day retention.
	cutoff := now.Truncate(time.Second).Add(-time.Duration(retentionDays) * 24 * time.Hour)

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		stamp, ok := parseStamp(entry.Name(), now.Location())
		if !ok {
			continue
		}
		if !stamp.Before(cutoff) {
			res.Kept++
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := s.remove(path); err != nil {
			res.Failed++
			s.logger.WarnContext(ctx, "Failed to delete old report",
				applog.FieldPath, path,
				applog.FieldError, err.Error())
			continue
		}
		res.Deleted++
		s.logger.DebugContext(ctx, "Deleted old report", applog.FieldPath, path)
	}

	s.logger.InfoContext(ctx, "Pruned old reports",
		applog.FieldRetainDays, retentionDays,
		"deleted", res.Deleted,
		"failed", res.Failed,
		"kept", res.Kept)

	return res, nil
}

func parseStamp(name string, loc *time.Location) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	ts, err := time.ParseInLocation(stampLayout, raw, loc)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
