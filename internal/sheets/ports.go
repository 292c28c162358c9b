package sheets

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"emitrack/internal/core"
)

// ErrRowNotFound is returned when no mirrored row holds a transaction id.
var ErrRowNotFound = errors.New("ledger row not found")

// StatusDeleted marks a mirrored row whose transaction was deleted.
const StatusDeleted = "deleted"

// Row is one mirrored ledger transaction.
type Row struct {
	Date          core.Date
	Description   string
	Type          core.TransactionType
	Amount        decimal.Decimal
	EMIID         string
	TransactionID string
}

// Values renders the row in column order: date, description, type, amount,
// emiId, id.
func (r Row) Values() []any {
	return []any{
		r.Date.String(),
		r.Description,
		string(r.Type),
		r.Amount.StringFixed(2),
		r.EMIID,
		r.TransactionID,
	}
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		Append(ctx context.Context, r Row) (rowRef string, err error)
	}

	// LedgerMarker flags the row of a deleted transaction. Rows are never
	// removed so the sheet keeps its history.
	LedgerMarker interface {
		MarkDeleted(ctx context.Context, transactionID string) error
	}
)
