package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "budgetreport/internal/sheets"
)

var _ ports.SummaryAppender = (*Store)(nil)

// Store keeps ledger rows in memory.
type Store struct {
	mu   sync.Mutex
	rows []ports.SummaryRow
	// Err, when set, is returned by every append.
	Err error
}

func New() *Store {
	return &Store{}
}

// AppendSummary stores the row and returns a synthetic row reference.
func (s *Store) AppendSummary(_ context.Context, row ports.SummaryRow) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	if row.RunID == "" {
		return "", errors.New("summary row without run id")
	}
	s.rows = append(s.rows, row)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of the stored rows in append order.
func (s *Store) Rows() []ports.SummaryRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.SummaryRow(nil), s.rows...)
}
