package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"emitrack/internal/core"
	"emitrack/internal/ports"

	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "emitrack.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleEMI(user, name string, due *core.Date) core.EMI {
	return core.EMI{
		UserID:            user,
		Name:              name,
		Type:              "personal_loan",
		PaymentType:       core.PaymentTypeEMI,
		EMIAmount:         decimal.RequireFromString("1000.50"),
		TotalInstallments: 12,
		RemainingAmount:   decimal.RequireFromString("12006"),
		StartDate:         core.NewDate(2024, 1, 15),
		NextDueDate:       due,
		EndDate:           core.NewDate(2025, 1, 15).Ptr(),
		Status:            core.StatusActive,
		Notes:             "note",
	}
}

func TestSQLiteEMIRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created, err := repo.CreateEMI(ctx, sampleEMI("u1", "Phone Loan", core.NewDate(2024, 2, 15).Ptr()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Version != 1 || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected created emi %+v", created)
	}

	got, err := repo.GetEMI(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.EMIAmount.Equal(decimal.RequireFromString("1000.50")) {
		t.Fatalf("emiAmount: got %s", got.EMIAmount)
	}
	if !got.NextDueDate.Equal(core.NewDate(2024, 2, 15)) || !got.EndDate.Equal(core.NewDate(2025, 1, 15)) {
		t.Fatalf("dates: next=%s end=%s", got.NextDueDate, got.EndDate)
	}
	if got.Notes != "note" || got.UserID != "u1" {
		t.Fatalf("unexpected fields %+v", got)
	}

	got.PaidInstallments = 1
	updated, err := repo.UpdateEMI(ctx, got, got.Version)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 || updated.PaidInstallments != 1 {
		t.Fatalf("unexpected updated emi %+v", updated)
	}

	if _, err := repo.UpdateEMI(ctx, got, 1); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := repo.DeleteEMI(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetEMI(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.UpdateEMI(ctx, got, 2); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on missing update, got %v", err)
	}
	if err := repo.DeleteEMI(ctx, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestSQLiteRejectsUnknownType(t *testing.T) {
	repo := newTestRepo(t)
	e := sampleEMI("u1", "Boat", nil)
	e.Type = "boat_loan"
	if _, err := repo.CreateEMI(context.Background(), e); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSQLiteListEMIs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	for _, e := range []core.EMI{
		sampleEMI("u1", "late", core.NewDate(2024, 6, 1).Ptr()),
		sampleEMI("u1", "none", nil),
		sampleEMI("u1", "early", core.NewDate(2024, 2, 1).Ptr()),
		sampleEMI("u2", "foreign", core.NewDate(2024, 1, 1).Ptr()),
	} {
		if _, err := repo.CreateEMI(ctx, e); err != nil {
			t.Fatalf("create %s: %v", e.Name, err)
		}
	}

	list, err := repo.ListEMIs(ctx, "u1", ports.EMIFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Name != "early" || list[1].Name != "late" || list[2].Name != "none" {
		t.Fatalf("unexpected order %v", list)
	}

	window, err := repo.ListEMIs(ctx, "u1", ports.EMIFilter{DueBefore: core.NewDate(2024, 3, 1).Ptr()})
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(window) != 1 || window[0].Name != "early" {
		t.Fatalf("unexpected window %v", window)
	}

	due, err := repo.ListActiveDueBefore(ctx, core.NewDate(2024, 3, 1))
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due across users, got %d", len(due))
	}
}

func TestSQLiteTransactions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	batch := make([]core.Transaction, 0, 12)
	for i := 1; i <= 12; i++ {
		batch = append(batch, core.Transaction{
			UserID:        "u1",
			Type:          core.Expense,
			Amount:        decimal.NewFromInt(int64(i * 100)),
			Description:   "EMI Payment: Car",
			Date:          core.NewDate(2024, i, 1),
			Tags:          []string{"emi"},
			PaymentMethod: core.BankTransfer,
			Recurring:     core.Recurring{IsRecurring: true, Frequency: core.Monthly, NextDueDate: core.NewDate(2024, i, 1).Ptr()},
			EMIID:         "emi-1",
		})
	}
	created, err := repo.CreateTransactions(ctx, batch)
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if len(created) != 12 {
		t.Fatalf("expected 12 created, got %d", len(created))
	}

	single, err := repo.CreateTransaction(ctx, core.Transaction{
		UserID:        "u1",
		Type:          core.Income,
		Amount:        decimal.RequireFromString("50000"),
		Description:   "Salary",
		Date:          core.NewDate(2024, 3, 31),
		PaymentMethod: core.DefaultPaymentMethod,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if single.Tags == nil || len(single.Tags) != 0 || single.EMIID != "" {
		t.Fatalf("unexpected defaults %+v", single)
	}

	page, total, err := repo.ListTransactions(ctx, "u1", ports.TransactionFilter{Limit: 5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 13 || len(page) != 5 {
		t.Fatalf("expected 5 of 13, got %d of %d", len(page), total)
	}
	if !page[0].Date.Equal(core.NewDate(2024, 12, 1)) {
		t.Fatalf("expected newest first, got %s", page[0].Date)
	}

	byAmount, _, err := repo.ListTransactions(ctx, "u1", ports.TransactionFilter{EMIID: "emi-1", SortBy: ports.SortByAmount, SortOrder: ports.Asc, Limit: 3})
	if err != nil {
		t.Fatalf("list by amount: %v", err)
	}
	if !byAmount[0].Amount.Equal(decimal.NewFromInt(100)) || !byAmount[2].Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("unexpected amount order %v", byAmount)
	}

	_, total, err = repo.ListTransactions(ctx, "u1", ports.TransactionFilter{
		Type:      core.Expense,
		StartDate: core.NewDate(2024, 3, 1).Ptr(),
		EndDate:   core.NewDate(2024, 5, 1).Ptr(),
	})
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 in range, got %d", total)
	}

	single.Description = "Salary March"
	updated, err := repo.UpdateTransaction(ctx, single)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Description != "Salary March" || updated.UserID != "u1" {
		t.Fatalf("unexpected update %+v", updated)
	}

	if err := repo.DeleteTransaction(ctx, single.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetTransaction(ctx, single.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
