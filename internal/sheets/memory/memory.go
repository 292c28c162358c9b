package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"emitrack/internal/sheets"
)

// Entry is a mirrored row plus its status column.
type Entry struct {
	Row    sheets.Row
	Status string
}

// Store is an in-process ledger mirror used when no spreadsheet is
// configured and in tests.
type Store struct {
	mu   sync.Mutex
	rows []Entry
}

func New() *Store {
	return &Store{}
}

// Append stores the row and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, r sheets.Row) (string, error) {
	if r.TransactionID == "" {
		return "", errors.New("row without transaction id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, Entry{Row: r})
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// MarkDeleted flags the first row holding transactionID.
func (s *Store) MarkDeleted(_ context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].Row.TransactionID == transactionID {
			s.rows[i].Status = sheets.StatusDeleted
			return nil
		}
	}
	return fmt.Errorf("%w: %s", sheets.ErrRowNotFound, transactionID)
}

// Rows returns a copy of the mirrored rows in append order.
func (s *Store) Rows() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.rows...)
}
