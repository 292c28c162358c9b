// Package memory is an in-process store used by tests and DATA_BACKEND=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"emitrack/internal/core"
	"emitrack/internal/ports"

	"github.com/google/uuid"
)

type Store struct {
	mu   sync.RWMutex
	emis map[string]core.EMI
	txs  map[string]core.Transaction
	now  func() time.Time
}

func New() *Store {
	return &Store{
		emis: make(map[string]core.EMI),
		txs:  make(map[string]core.Transaction),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) CreateEMI(_ context.Context, e core.EMI) (core.EMI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := s.emis[e.ID]; exists {
		return core.EMI{}, fmt.Errorf("create emi %s: %w", e.ID, core.ErrConflict)
	}
	ts := s.now()
	e.CreatedAt, e.UpdatedAt = ts, ts
	e.Version = 1
	s.emis[e.ID] = e
	return e, nil
}

func (s *Store) GetEMI(_ context.Context, id string) (core.EMI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.emis[id]
	if !ok {
		return core.EMI{}, fmt.Errorf("get emi %s: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (s *Store) UpdateEMI(_ context.Context, e core.EMI, expectedVersion int64) (core.EMI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.emis[e.ID]
	if !ok {
		return core.EMI{}, fmt.Errorf("update emi %s: %w", e.ID, core.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return core.EMI{}, fmt.Errorf("update emi %s at version %d: %w", e.ID, expectedVersion, core.ErrConflict)
	}
	e.UserID = cur.UserID
	e.CreatedAt = cur.CreatedAt
	e.UpdatedAt = s.now()
	e.Version = cur.Version + 1
	s.emis[e.ID] = e
	return e, nil
}

func (s *Store) DeleteEMI(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emis[id]; !ok {
		return fmt.Errorf("delete emi %s: %w", id, core.ErrNotFound)
	}
	delete(s.emis, id)
	return nil
}

func (s *Store) ListEMIs(_ context.Context, userID string, f ports.EMIFilter) ([]core.EMI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.EMI, 0)
	for _, e := range s.emis {
		if e.UserID != userID || !matchEMI(e, f) {
			continue
		}
		out = append(out, e)
	}
	sortByDue(out)
	return out, nil
}

func (s *Store) ListActiveDueBefore(_ context.Context, before core.Date) ([]core.EMI, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.EMI, 0)
	for _, e := range s.emis {
		if e.Status == core.StatusActive && e.NextDueDate != nil && e.NextDueDate.Before(before) {
			out = append(out, e)
		}
	}
	sortByDue(out)
	return out, nil
}

func matchEMI(e core.EMI, f ports.EMIFilter) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.PaymentType != "" && e.PaymentType != f.PaymentType {
		return false
	}
	if f.DueAfter != nil || f.DueBefore != nil {
		if e.NextDueDate == nil {
			return false
		}
		if f.DueAfter != nil && e.NextDueDate.Before(*f.DueAfter) {
			return false
		}
		if f.DueBefore != nil && !e.NextDueDate.Before(*f.DueBefore) {
			return false
		}
	}
	return true
}

// sortByDue orders by nextDueDate ascending with nulls last, then by id.
func sortByDue(emis []core.EMI) {
	sort.Slice(emis, func(i, j int) bool {
		a, b := emis[i].NextDueDate, emis[j].NextDueDate
		switch {
		case a == nil && b == nil:
			return emis[i].ID < emis[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return emis[i].ID < emis[j].ID
	})
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTx(t), nil
}

func (s *Store) CreateTransactions(_ context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(ts))
	for _, t := range ts {
		out = append(out, s.insertTx(t))
	}
	return out, nil
}

func (s *Store) insertTx(t core.Transaction) core.Transaction {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	ts := s.now()
	t.CreatedAt, t.UpdatedAt = ts, ts
	t.Tags = cloneTags(t.Tags)
	s.txs[t.ID] = t
	return t
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[t.ID]
	if !ok {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, core.ErrNotFound)
	}
	t.UserID = cur.UserID
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = s.now()
	t.Tags = cloneTags(t.Tags)
	s.txs[t.ID] = t
	return t, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("delete transaction %s: %w", id, core.ErrNotFound)
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, f ports.TransactionFilter) ([]core.Transaction, int, error) {
	f = f.Normalize()
	s.mu.RLock()
	matched := make([]core.Transaction, 0)
	for _, t := range s.txs {
		if t.UserID == userID && matchTx(t, f) {
			matched = append(matched, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		c := compareTx(matched[i], matched[j], f.SortBy)
		if c == 0 {
			c = compareStrings(matched[i].ID, matched[j].ID)
		}
		if f.SortOrder == ports.Asc {
			return c < 0
		}
		return c > 0
	})

	total := len(matched)
	start := f.Offset()
	if start >= total {
		return []core.Transaction{}, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matchTx(t core.Transaction, f ports.TransactionFilter) bool {
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.EMIID != "" && t.EMIID != f.EMIID {
		return false
	}
	if f.StartDate != nil && t.Date.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && t.Date.After(*f.EndDate) {
		return false
	}
	return true
}

func compareTx(a, b core.Transaction, by ports.SortField) int {
	switch by {
	case ports.SortByAmount:
		return a.Amount.Cmp(b.Amount)
	case ports.SortByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return a.Date.Compare(b.Date.Time)
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// cloneTags copies tags, never returning nil so JSON renders [].
func cloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
