package ports

import (
	"context"

	"emitrack/internal/core"
)

type (
	SortField string
	SortOrder string
)

const (
	SortByDate      SortField = "date"
	SortByAmount    SortField = "amount"
	SortByCreatedAt SortField = "createdAt"

	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"

	DefaultPageSize = 10
	MaxPageSize     = 100
)

// EMIFilter narrows ListEMIs. Zero values mean no constraint.
type EMIFilter struct {
	Status      core.Status
	PaymentType core.PaymentType
	DueAfter    *core.Date // inclusive
	DueBefore   *core.Date // exclusive
}

// TransactionFilter narrows and pages ListTransactions.
type TransactionFilter struct {
	Type      core.TransactionType
	StartDate *core.Date // inclusive
	EndDate   *core.Date // inclusive
	EMIID     string
	SortBy    SortField
	SortOrder SortOrder
	Page      int
	Limit     int
}

// Normalize fills defaults and clamps paging.
func (f TransactionFilter) Normalize() TransactionFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	switch f.SortBy {
	case SortByDate, SortByAmount, SortByCreatedAt:
	default:
		f.SortBy = SortByDate
	}
	if f.SortOrder != Asc {
		f.SortOrder = Desc
	}
	return f
}

// Offset is the number of rows skipped before the current page.
func (f TransactionFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Ports for the persistence collaborator.
type (
	// EMIStore persists EMIs. UpdateEMI is a compare-and-swap on Version:
	// it fails with core.ErrConflict when the stored version differs from
	// expectedVersion and bumps the version on success.
	EMIStore interface {
		CreateEMI(ctx context.Context, e core.EMI) (core.EMI, error)
		GetEMI(ctx context.Context, id string) (core.EMI, error)
		UpdateEMI(ctx context.Context, e core.EMI, expectedVersion int64) (core.EMI, error)
		DeleteEMI(ctx context.Context, id string) error
		// ListEMIs returns a user's EMIs ordered by nextDueDate, nulls last.
		ListEMIs(ctx context.Context, userID string, f EMIFilter) ([]core.EMI, error)
		// ListActiveDueBefore returns active EMIs of every user whose
		// nextDueDate is before the given day.
		ListActiveDueBefore(ctx context.Context, before core.Date) ([]core.EMI, error)
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		CreateTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id string) error
		// ListTransactions returns one page and the total number of matches.
		ListTransactions(ctx context.Context, userID string, f TransactionFilter) ([]core.Transaction, int, error)
	}

	Store interface {
		EMIStore
		TransactionStore
		Ping(ctx context.Context) error
		Close() error
	}

	// LedgerPublisher announces ledger changes to downstream consumers.
	LedgerPublisher interface {
		PublishTransactionCreated(ctx context.Context, t core.Transaction) error
		PublishTransactionDeleted(ctx context.Context, t core.Transaction) error
		PublishEMIPaid(ctx context.Context, e core.EMI, t core.Transaction) error
	}
)
