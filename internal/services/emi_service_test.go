package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"emitrack/internal/cache"
	"emitrack/internal/core"
	"emitrack/internal/ports"
	"emitrack/internal/storage/memory"

	"github.com/shopspring/decimal"
)

type recordingPublisher struct {
	mu      sync.Mutex
	created []core.Transaction
	deleted []core.Transaction
	paid    []core.EMI
	err     error
}

func (p *recordingPublisher) PublishTransactionCreated(_ context.Context, t core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, t)
	return p.err
}

func (p *recordingPublisher) PublishTransactionDeleted(_ context.Context, t core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, t)
	return p.err
}

func (p *recordingPublisher) PublishEMIPaid(_ context.Context, e core.EMI, _ core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return p.err
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intPtr(i int) *int { return &i }

func newTestEMIService(t *testing.T) (*EMIService, *memory.Store, *recordingPublisher) {
	t.Helper()
	store := memory.New()
	pub := &recordingPublisher{}
	return NewEMIService(store, store, pub, cache.NewSummaryCache(16, time.Minute)), store, pub
}

func createPhoneLoan(t *testing.T, svc *EMIService, user string) core.EMI {
	t.Helper()
	e, err := svc.Create(context.Background(), user, CreateEMIInput{
		Name:              "Phone Loan",
		Type:              "mobile_emi",
		PaymentType:       core.PaymentTypeEMI,
		EMIAmount:         dec("1000"),
		TotalInstallments: intPtr(12),
		StartDate:         core.NewDate(2024, 1, 15).Ptr(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return e
}

func TestCreateEMIScenario(t *testing.T) {
	svc, _, _ := newTestEMIService(t)
	e := createPhoneLoan(t, svc, "u1")

	if e.Status != core.StatusActive {
		t.Fatalf("expected active, got %s", e.Status)
	}
	if !e.EndDate.Equal(core.NewDate(2025, 1, 15)) || !e.NextDueDate.Equal(core.NewDate(2024, 2, 15)) {
		t.Fatalf("unexpected dates end=%s next=%s", e.EndDate, e.NextDueDate)
	}
	if !e.RemainingAmount.Equal(decimal.NewFromInt(12000)) {
		t.Fatalf("remaining: got %s", e.RemainingAmount)
	}
}

func TestCreateEMIValidation(t *testing.T) {
	svc, _, _ := newTestEMIService(t)
	start := core.NewDate(2024, 1, 1).Ptr()

	cases := []struct {
		name  string
		in    CreateEMIInput
		field string
	}{
		{"emi without amount", CreateEMIInput{Name: "Loan", PaymentType: core.PaymentTypeEMI, TotalInstallments: intPtr(3), StartDate: start}, "emiAmount"},
		{"emi without installments", CreateEMIInput{Name: "Loan", PaymentType: core.PaymentTypeEMI, EMIAmount: dec("10"), StartDate: start}, "totalInstallments"},
		{"subscription zero amount", CreateEMIInput{Name: "Music", PaymentType: core.PaymentTypeSubscription, EMIAmount: dec("0"), StartDate: start}, "emiAmount"},
		{"full payment without amount", CreateEMIInput{Name: "TV", PaymentType: core.PaymentTypeFullPayment, StartDate: start}, "emiAmount"},
		{"missing start", CreateEMIInput{Name: "Loan", PaymentType: core.PaymentTypeEMI, EMIAmount: dec("10"), TotalInstallments: intPtr(3)}, "startDate"},
		{"short name", CreateEMIInput{Name: "L", PaymentType: core.PaymentTypeEMI, EMIAmount: dec("10"), TotalInstallments: intPtr(3), StartDate: start}, "name"},
		{"unknown payment type", CreateEMIInput{Name: "Loan", PaymentType: "weekly", StartDate: start}, "paymentType"},
		{"unknown type", CreateEMIInput{Name: "Loan", Type: "yacht", PaymentType: core.PaymentTypeEMI, EMIAmount: dec("10"), TotalInstallments: intPtr(3), StartDate: start}, "type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "u1", tc.in)
			var verr *core.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Fields[0].Field != tc.field {
				t.Fatalf("expected field %s, got %+v", tc.field, verr.Fields)
			}
		})
	}
}

func TestCreateFullPaymentInvariants(t *testing.T) {
	svc, _, _ := newTestEMIService(t)
	e, err := svc.Create(context.Background(), "u1", CreateEMIInput{
		Name:              "Television",
		PaymentType:       core.PaymentTypeFullPayment,
		EMIAmount:         dec("45000"),
		TotalInstallments: intPtr(9),
		StartDate:         core.NewDate(2024, 4, 2).Ptr(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.TotalInstallments != 1 || e.PaidInstallments != 1 || !e.RemainingAmount.IsZero() {
		t.Fatalf("full payment invariants broken: %+v", e)
	}
	if e.Type != core.DefaultEMIType {
		t.Fatalf("expected default type, got %s", e.Type)
	}
}

func TestPayScenario(t *testing.T) {
	svc, store, pub := newTestEMIService(t)
	e := createPhoneLoan(t, svc, "u1")

	res, err := svc.Pay(context.Background(), "u1", e.ID, PayInput{
		Amount: decimal.NewFromInt(1000),
		Date:   core.NewDate(2024, 2, 15),
	})
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if res.EMI.PaidInstallments != 1 || !res.EMI.RemainingAmount.Equal(decimal.NewFromInt(11000)) {
		t.Fatalf("unexpected emi %+v", res.EMI)
	}
	if !res.EMI.NextDueDate.Equal(core.NewDate(2024, 3, 15)) {
		t.Fatalf("nextDueDate: got %s", res.EMI.NextDueDate)
	}

	tx := res.Transaction
	if !tx.Amount.Equal(decimal.NewFromInt(1000)) || tx.Type != core.Expense {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if tx.Description != "EMI Payment: Phone Loan" || tx.Notes != "EMI payment for Phone Loan" {
		t.Fatalf("unexpected text %q / %q", tx.Description, tx.Notes)
	}
	if tx.PaymentMethod != core.BankTransfer || !tx.Recurring.IsRecurring || tx.Recurring.Frequency != core.Monthly {
		t.Fatalf("unexpected payment metadata %+v", tx)
	}
	if tx.EMIID != e.ID || !tx.Recurring.NextDueDate.Equal(core.NewDate(2024, 3, 15)) {
		t.Fatalf("unexpected linkage %+v", tx)
	}

	_, total, _ := store.ListTransactions(context.Background(), "u1", ports.TransactionFilter{})
	if total != 1 {
		t.Fatalf("expected exactly one transaction, got %d", total)
	}
	if len(pub.paid) != 1 {
		t.Fatalf("expected one paid event, got %d", len(pub.paid))
	}
}

func TestPayInactiveIsRejected(t *testing.T) {
	for _, status := range []core.Status{core.StatusCompleted, core.StatusDefaulted} {
		t.Run(string(status), func(t *testing.T) {
			svc, store, _ := newTestEMIService(t)
			e := createPhoneLoan(t, svc, "u1")
			if _, err := svc.Edit(context.Background(), "u1", e.ID, EditEMIInput{Status: &status}); err != nil {
				t.Fatalf("edit: %v", err)
			}
			before, _ := store.GetEMI(context.Background(), e.ID)

			_, err := svc.Pay(context.Background(), "u1", e.ID, PayInput{Amount: decimal.NewFromInt(1000), Date: core.NewDate(2024, 2, 15)})
			if !errors.Is(err, core.ErrInvalidState) {
				t.Fatalf("expected ErrInvalidState, got %v", err)
			}
			after, _ := store.GetEMI(context.Background(), e.ID)
			if after.Version != before.Version || after.PaidInstallments != before.PaidInstallments {
				t.Fatal("EMI must not change")
			}
			_, total, _ := store.ListTransactions(context.Background(), "u1", ports.TransactionFilter{})
			if total != 0 {
				t.Fatalf("no transaction expected, got %d", total)
			}
		})
	}
}

func TestPayUntilCompleted(t *testing.T) {
	svc, _, _ := newTestEMIService(t)
	e, err := svc.Create(context.Background(), "u1", CreateEMIInput{
		Name:              "Laptop",
		Type:              "laptop_emi",
		EMIAmount:         dec("2500"),
		TotalInstallments: intPtr(3),
		StartDate:         core.NewDate(2024, 1, 31).Ptr(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var res PaymentResult
	for i := 0; i < 3; i++ {
		res, err = svc.Pay(context.Background(), "u1", e.ID, PayInput{Amount: decimal.NewFromInt(2500), Date: core.NewDate(2024, 2, 1)})
		if err != nil {
			t.Fatalf("pay %d: %v", i, err)
		}
	}
	if res.EMI.Status != core.StatusCompleted || !res.EMI.RemainingAmount.IsZero() {
		t.Fatalf("expected completion, got %+v", res.EMI)
	}
	if !res.EMI.NextDueDate.Equal(*res.EMI.EndDate) {
		t.Fatalf("nextDueDate should be endDate, got %s", res.EMI.NextDueDate)
	}
}

func TestCrossUserAccess(t *testing.T) {
	svc, store, _ := newTestEMIService(t)
	e := createPhoneLoan(t, svc, "owner")
	ctx := context.Background()

	if _, err := svc.Get(ctx, "intruder", e.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("get: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Pay(ctx, "intruder", e.ID, PayInput{Amount: decimal.NewFromInt(1), Date: core.NewDate(2024, 2, 1)}); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("pay: expected ErrUnauthorized, got %v", err)
	}
	name := "Hijacked"
	if _, err := svc.Edit(ctx, "intruder", e.ID, EditEMIInput{Name: &name}); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("edit: expected ErrUnauthorized, got %v", err)
	}
	if err := svc.Delete(ctx, "intruder", e.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("delete: expected ErrUnauthorized, got %v", err)
	}

	after, err := store.GetEMI(ctx, e.ID)
	if err != nil {
		t.Fatalf("EMI should still exist: %v", err)
	}
	if after.Name != "Phone Loan" || after.PaidInstallments != 0 || after.Version != e.Version {
		t.Fatalf("EMI changed: %+v", after)
	}

	if _, err := svc.Get(ctx, "owner", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEditRecomputesWithStoredType(t *testing.T) {
	svc, _, _ := newTestEMIService(t)
	ctx := context.Background()
	e := createPhoneLoan(t, svc, "u1")
	if _, err := svc.Pay(ctx, "u1", e.ID, PayInput{Amount: decimal.NewFromInt(1000), Date: core.NewDate(2024, 2, 15)}); err != nil {
		t.Fatalf("pay: %v", err)
	}

	edited, err := svc.Edit(ctx, "u1", e.ID, EditEMIInput{
		StartDate:         core.NewDate(2024, 3, 1).Ptr(),
		TotalInstallments: intPtr(6),
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if !edited.EndDate.Equal(core.NewDate(2024, 9, 1)) {
		t.Fatalf("endDate: got %s", edited.EndDate)
	}
	if !edited.NextDueDate.Equal(core.NewDate(2024, 5, 1)) {
		t.Fatalf("nextDueDate: got %s", edited.NextDueDate)
	}
	if !edited.RemainingAmount.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("remaining: got %s", edited.RemainingAmount)
	}
}

func TestEditSwitchToFullPayment(t *testing.T) {
	svc, _, _ := newTestEMIService(t)
	e := createPhoneLoan(t, svc, "u1")
	full := core.PaymentTypeFullPayment

	edited, err := svc.Edit(context.Background(), "u1", e.ID, EditEMIInput{PaymentType: &full})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if edited.TotalInstallments != 1 || edited.PaidInstallments != 1 || !edited.RemainingAmount.IsZero() {
		t.Fatalf("expected terminal state, got %+v", edited)
	}
	if !edited.EndDate.Equal(e.StartDate) || !edited.NextDueDate.Equal(e.StartDate) {
		t.Fatalf("dates should collapse to start, got end=%s next=%s", edited.EndDate, edited.NextDueDate)
	}
}

func TestEditSwitchToEMIRequiresAmount(t *testing.T) {
	svc, _, _ := newTestEMIService(t)
	ctx := context.Background()
	e, err := svc.Create(ctx, "u1", CreateEMIInput{
		Name:        "Gift",
		PaymentType: core.PaymentTypeFullPayment,
		EMIAmount:   dec("0"),
		StartDate:   core.NewDate(2024, 1, 1).Ptr(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	emi := core.PaymentTypeEMI
	if _, err := svc.Edit(ctx, "u1", e.ID, EditEMIInput{PaymentType: &emi}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestBulkTransactions(t *testing.T) {
	svc, store, pub := newTestEMIService(t)
	ctx := context.Background()
	e := createPhoneLoan(t, svc, "u1")

	res, err := svc.BulkTransactions(ctx, "u1", e.ID, BulkTransactionsInput{
		StartDate:        core.NewDate(2023, 1, 31),
		NumberOfPayments: 3,
		PaymentAmount:    decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if len(res.Transactions) != 3 || !res.TotalAmount.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("unexpected result %d %s", len(res.Transactions), res.TotalAmount)
	}
	wantDates := []core.Date{core.NewDate(2023, 1, 31), core.NewDate(2023, 2, 28), core.NewDate(2023, 3, 31)}
	for i, tx := range res.Transactions {
		if !tx.Date.Equal(wantDates[i]) {
			t.Fatalf("tx %d date: got %s", i, tx.Date)
		}
		if tx.EMIID != e.ID {
			t.Fatalf("tx %d not linked", i)
		}
	}
	if res.Transactions[1].Description != "EMI Payment: Phone Loan (Installment 2)" {
		t.Fatalf("unexpected description %q", res.Transactions[1].Description)
	}
	if res.Transactions[2].Notes != "Historical EMI payment for Phone Loan - Installment 3 of 3" {
		t.Fatalf("unexpected notes %q", res.Transactions[2].Notes)
	}
	if !res.Transactions[0].Recurring.NextDueDate.Equal(core.NewDate(2023, 2, 28)) {
		t.Fatalf("unexpected recurring next due %s", res.Transactions[0].Recurring.NextDueDate)
	}

	after, _ := store.GetEMI(ctx, e.ID)
	if after.PaidInstallments != 0 || after.Version != e.Version {
		t.Fatal("bulk backfill must not mutate the EMI")
	}
	if len(pub.created) != 3 {
		t.Fatalf("expected 3 created events, got %d", len(pub.created))
	}

	if _, err := svc.BulkTransactions(ctx, "u1", e.ID, BulkTransactionsInput{StartDate: core.NewDate(2023, 1, 1), NumberOfPayments: 61}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation for 61 payments, got %v", err)
	}
}

func TestBulkUpdate(t *testing.T) {
	svc, store, _ := newTestEMIService(t)
	ctx := context.Background()
	e := createPhoneLoan(t, svc, "u1")

	if _, err := svc.BulkUpdate(ctx, "u1", e.ID, BulkUpdateInput{PaidInstallments: 13, LastPaymentDate: core.NewDate(2024, 6, 1)}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	unchanged, _ := store.GetEMI(ctx, e.ID)
	if unchanged.Version != e.Version {
		t.Fatal("failed bulk update must not write")
	}

	updated, err := svc.BulkUpdate(ctx, "u1", e.ID, BulkUpdateInput{PaidInstallments: 4, LastPaymentDate: core.NewDate(2024, 5, 15)})
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if updated.PaidInstallments != 4 || !updated.RemainingAmount.Equal(decimal.NewFromInt(8000)) {
		t.Fatalf("unexpected state %+v", updated)
	}
	if !updated.NextDueDate.Equal(core.NewDate(2024, 6, 15)) {
		t.Fatalf("nextDueDate: got %s", updated.NextDueDate)
	}

	done, err := svc.BulkUpdate(ctx, "u1", e.ID, BulkUpdateInput{PaidInstallments: 12, LastPaymentDate: core.NewDate(2024, 12, 15)})
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if done.Status != core.StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if _, err := svc.BulkUpdate(ctx, "u1", e.ID, BulkUpdateInput{PaidInstallments: 1, LastPaymentDate: core.NewDate(2024, 1, 1)}); !errors.Is(err, core.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on completed EMI, got %v", err)
	}
}

func TestSummaryIsInvalidatedByWrites(t *testing.T) {
	svc, _, _ := newTestEMIService(t)
	ctx := context.Background()
	e := createPhoneLoan(t, svc, "u1")

	s, err := svc.Summary(ctx, "u1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Total != 1 || !s.TotalRemaining.Equal(decimal.NewFromInt(12000)) || !s.MonthlyEMI.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected summary %+v", s)
	}

	if _, err := svc.Pay(ctx, "u1", e.ID, PayInput{Amount: decimal.NewFromInt(1000), Date: core.NewDate(2024, 2, 15)}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	s, _ = svc.Summary(ctx, "u1")
	if !s.TotalRemaining.Equal(decimal.NewFromInt(11000)) || !s.TotalPaid.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("summary not refreshed after pay: %+v", s)
	}

	if err := svc.Delete(ctx, "u1", e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	s, _ = svc.Summary(ctx, "u1")
	if s.Total != 0 {
		t.Fatalf("summary not refreshed after delete: %+v", s)
	}
}

// conflictingStore fails the first n EMI updates with a version conflict.
type conflictingStore struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
}

func (c *conflictingStore) UpdateEMI(ctx context.Context, e core.EMI, v int64) (core.EMI, error) {
	c.mu.Lock()
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return core.EMI{}, core.ErrConflict
	}
	c.mu.Unlock()
	return c.Store.UpdateEMI(ctx, e, v)
}

func TestMutateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{Store: memory.New()}
	svc := NewEMIService(store, store, nil, nil)
	e := createPhoneLoan(t, svc, "u1")

	store.conflicts = 2
	res, err := svc.Pay(ctx, "u1", e.ID, PayInput{Amount: decimal.NewFromInt(1000), Date: core.NewDate(2024, 2, 15)})
	if err != nil {
		t.Fatalf("pay after two conflicts: %v", err)
	}
	if res.EMI.PaidInstallments != 1 {
		t.Fatalf("expected one payment applied, got %d", res.EMI.PaidInstallments)
	}

	store.conflicts = 3
	if _, err := svc.Pay(ctx, "u1", e.ID, PayInput{Amount: decimal.NewFromInt(1000), Date: core.NewDate(2024, 3, 15)}); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict after exhausting retries, got %v", err)
	}
}
