package services

import (
	"context"
	"testing"

	"emitrack/internal/core"
	"emitrack/internal/storage/memory"

	"github.com/shopspring/decimal"
)

func TestMatchKey(t *testing.T) {
	tests := []struct {
		description string
		want        string
	}{
		{"EMI Payment: Phone Loan", "Phone Loan"},
		{"EMI Payment:   Phone Loan  ", "Phone Loan"},
		{"Paid EMI Payment: Car", "Car"},
		{"Cheetu installment", "Cheetu"},
		{"Sangam EMI", "Sangam"},
		{"True Balance payment", "True Balance"},
		{"installment", ""},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := MatchKey(tt.description); got != tt.want {
				t.Errorf("MatchKey(%q) = %q, want %q", tt.description, got, tt.want)
			}
		})
	}
}

func TestReconciler_Triggered(t *testing.T) {
	r := NewReconciler(nil, nil, nil)
	tests := []struct {
		description string
		want        bool
	}{
		{"EMI Payment: Phone Loan", true},
		{"Cheetu", true},
		{"monthly installment", true},
		{"Groceries", false},
		{"emi payment: phone loan", false},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			if got := r.Triggered(tt.description); got != tt.want {
				t.Errorf("Triggered(%q) = %v, want %v", tt.description, got, tt.want)
			}
		})
	}

	custom := NewReconciler(nil, nil, []string{"Bajaj"})
	if !custom.Triggered("Bajaj Finance") {
		t.Error("configured keyword should trigger")
	}
	if custom.Triggered("Cheetu") {
		t.Error("configured keywords replace the defaults")
	}
	if !custom.Triggered("EMI Payment: x") {
		t.Error("payment prefix always triggers")
	}
}

func newReconcileFixture(t *testing.T) (*Reconciler, *EMIService, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := NewEMIService(store, store, nil, nil)
	return NewReconciler(store, svc, nil), svc, store
}

func expense(user, description string) core.Transaction {
	return core.Transaction{
		ID:            "tx-1",
		UserID:        user,
		Type:          core.Expense,
		Amount:        decimal.NewFromInt(1000),
		Description:   description,
		Date:          core.NewDate(2024, 2, 15),
		PaymentMethod: core.BankTransfer,
	}
}

func TestReconciler_AppliesSingleMatch(t *testing.T) {
	ctx := context.Background()
	r, svc, store := newReconcileFixture(t)
	e := createPhoneLoan(t, svc, "u1")

	if got := r.Reconcile(ctx, expense("u1", "EMI Payment: phone loan")); got != OutcomeApplied {
		t.Fatalf("Reconcile() = %s, want applied", got)
	}
	after, _ := store.GetEMI(ctx, e.ID)
	if after.PaidInstallments != 1 || !after.RemainingAmount.Equal(decimal.NewFromInt(11000)) {
		t.Fatalf("payment not applied: %+v", after)
	}
	if !after.NextDueDate.Equal(core.NewDate(2024, 3, 15)) {
		t.Fatalf("nextDueDate = %s", after.NextDueDate)
	}
}

func TestReconciler_Outcomes(t *testing.T) {
	ctx := context.Background()
	r, svc, store := newReconcileFixture(t)
	phone := createPhoneLoan(t, svc, "u1")
	for _, name := range []string{"Cheetu Monthly", "Cheetu Weekly"} {
		if _, err := svc.Create(ctx, "u1", CreateEMIInput{
			Name:              name,
			Type:              "cheetu",
			EMIAmount:         dec("500"),
			TotalInstallments: intPtr(10),
			StartDate:         core.NewDate(2024, 1, 1).Ptr(),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	linked := expense("u1", "EMI Payment: Phone Loan")
	linked.EMIID = phone.ID
	income := expense("u1", "EMI Payment: Phone Loan")
	income.Type = core.Income

	tests := []struct {
		name string
		tx   core.Transaction
		want Outcome
	}{
		{"not a repayment", expense("u1", "Groceries"), OutcomeSkipped},
		{"already linked", linked, OutcomeSkipped},
		{"income", income, OutcomeSkipped},
		{"unknown name", expense("u1", "EMI Payment: Car Loan"), OutcomeNoMatch},
		{"several candidates", expense("u1", "Cheetu installment"), OutcomeAmbiguous},
		{"other user", expense("u2", "EMI Payment: Phone Loan"), OutcomeNoMatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Reconcile(ctx, tt.tx); got != tt.want {
				t.Errorf("Reconcile() = %s, want %s", got, tt.want)
			}
		})
	}

	after, _ := store.GetEMI(ctx, phone.ID)
	if after.PaidInstallments != 0 {
		t.Fatalf("no outcome above should have paid the phone loan, got %d", after.PaidInstallments)
	}
}

func TestReconciler_ExactNameBreaksTie(t *testing.T) {
	ctx := context.Background()
	r, svc, store := newReconcileFixture(t)
	var ids []string
	for _, name := range []string{"Car", "Car Insurance"} {
		e, err := svc.Create(ctx, "u1", CreateEMIInput{
			Name:              name,
			EMIAmount:         dec("100"),
			TotalInstallments: intPtr(5),
			StartDate:         core.NewDate(2024, 1, 10).Ptr(),
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, e.ID)
	}

	if got := r.Reconcile(ctx, expense("u1", "EMI Payment: car")); got != OutcomeApplied {
		t.Fatalf("Reconcile() = %s, want applied", got)
	}
	car, _ := store.GetEMI(ctx, ids[0])
	insurance, _ := store.GetEMI(ctx, ids[1])
	if car.PaidInstallments != 1 || insurance.PaidInstallments != 0 {
		t.Fatalf("wrong EMI paid: car=%d insurance=%d", car.PaidInstallments, insurance.PaidInstallments)
	}
}

func TestReconciler_IgnoresInactiveEMIs(t *testing.T) {
	ctx := context.Background()
	r, svc, _ := newReconcileFixture(t)
	e := createPhoneLoan(t, svc, "u1")
	done := core.StatusCompleted
	if _, err := svc.Edit(ctx, "u1", e.ID, EditEMIInput{Status: &done}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	if got := r.Reconcile(ctx, expense("u1", "EMI Payment: Phone Loan")); got != OutcomeNoMatch {
		t.Fatalf("Reconcile() = %s, want no_match", got)
	}
}
