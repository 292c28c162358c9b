package memory

import (
	"context"
	"errors"
	"testing"

	"emitrack/internal/sheets"
)

func TestMemoryStoreAppendAndMark(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.Append(ctx, sheets.Row{TransactionID: "tx-1", Description: "Rent"})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	if _, err := s.Append(ctx, sheets.Row{TransactionID: "tx-2"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.Append(ctx, sheets.Row{}); err == nil {
		t.Fatal("expected error for row without id")
	}

	if err := s.MarkDeleted(ctx, "tx-2"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.MarkDeleted(ctx, "tx-9"); !errors.Is(err, sheets.ErrRowNotFound) {
		t.Fatalf("expected ErrRowNotFound, got %v", err)
	}

	rows := s.Rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Status != "" || rows[1].Status != sheets.StatusDeleted {
		t.Fatalf("unexpected statuses %+v", rows)
	}
}
