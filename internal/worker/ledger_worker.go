package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"emitrack/internal/amqp"
	"emitrack/internal/sheets"
)

// LedgerWorker mirrors ledger events into a spreadsheet.
type LedgerWorker struct {
	writer sheets.LedgerWriter
	marker sheets.LedgerMarker
}

func NewLedgerWorker(writer sheets.LedgerWriter, marker sheets.LedgerMarker) *LedgerWorker {
	return &LedgerWorker{writer: writer, marker: marker}
}

// HandleEvent processes one ledger event. A returned error makes the
// consumer requeue the message.
func (w *LedgerWorker) HandleEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	switch msg.Type {
	case amqp.EventTransactionCreated, amqp.EventEMIPaid:
		return w.appendRow(ctx, msg)
	case amqp.EventTransactionDeleted:
		return w.markDeleted(ctx, msg)
	default:
		slog.WarnContext(ctx, "Ignoring unknown ledger event",
			"type", msg.Type,
			"transaction_id", msg.TransactionID)
		return nil
	}
}

func (w *LedgerWorker) appendRow(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if w.writer == nil {
		slog.WarnContext(ctx, "No ledger writer configured, skipping append",
			"transaction_id", msg.TransactionID)
		return nil
	}

	ref, err := w.writer.Append(ctx, RowFromEvent(msg))
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}

	slog.InfoContext(ctx, "Mirrored ledger transaction",
		"type", msg.Type,
		"transaction_id", msg.TransactionID,
		"emi_id", msg.EMIID,
		"sheets_ref", ref,
		"amount", msg.Amount.String())
	return nil
}

func (w *LedgerWorker) markDeleted(ctx context.Context, msg *amqp.LedgerEventMessage) error {
	if w.marker == nil {
		slog.WarnContext(ctx, "No ledger marker configured, skipping delete",
			"transaction_id", msg.TransactionID)
		return nil
	}

	err := w.marker.MarkDeleted(ctx, msg.TransactionID)
	if errors.Is(err, sheets.ErrRowNotFound) {
		// never mirrored, e.g. created before the worker existed
		slog.WarnContext(ctx, "Deleted transaction has no mirrored row",
			"transaction_id", msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark ledger row deleted: %w", err)
	}

	slog.InfoContext(ctx, "Marked mirrored transaction deleted",
		"transaction_id", msg.TransactionID)
	return nil
}

// RowFromEvent converts an event into its spreadsheet row.
func RowFromEvent(msg *amqp.LedgerEventMessage) sheets.Row {
	return sheets.Row{
		Date:          msg.Date,
		Description:   msg.Description,
		Type:          msg.TransactionType,
		Amount:        msg.Amount,
		EMIID:         msg.EMIID,
		TransactionID: msg.TransactionID,
	}
}
