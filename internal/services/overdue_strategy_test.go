package services

import (
	"testing"
	"time"

	"emitrack/internal/core"
)

func TestInstallmentChecker_ShouldDefault(t *testing.T) {
	checker := InstallmentChecker{Grace: 30 * 24 * time.Hour}
	due := core.NewDate(2024, 3, 1)

	active := core.EMI{
		Status:            core.StatusActive,
		PaymentType:       core.PaymentTypeEMI,
		TotalInstallments: 12,
		PaidInstallments:  2,
		NextDueDate:       due.Ptr(),
	}

	tests := []struct {
		name string
		emi  func() core.EMI
		now  time.Time
		want bool
	}{
		{
			name: "within grace period",
			emi:  func() core.EMI { return active },
			now:  time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "last day of grace period",
			emi:  func() core.EMI { return active },
			now:  time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "past grace period",
			emi:  func() core.EMI { return active },
			now:  time.Date(2024, 4, 1, 0, 30, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "already completed",
			emi: func() core.EMI {
				e := active
				e.Status = core.StatusCompleted
				return e
			},
			now:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "all installments paid",
			emi: func() core.EMI {
				e := active
				e.PaidInstallments = 12
				return e
			},
			now:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "no due date",
			emi: func() core.EMI {
				e := active
				e.NextDueDate = nil
				return e
			},
			now:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checker.ShouldDefault(tt.emi(), tt.now)
			if got != tt.want {
				t.Errorf("InstallmentChecker.ShouldDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNeverDefault(t *testing.T) {
	e := core.EMI{
		Status:      core.StatusActive,
		PaymentType: core.PaymentTypeSubscription,
		NextDueDate: core.NewDate(2020, 1, 1).Ptr(),
	}
	if (NeverDefault{}).ShouldDefault(e, time.Now()) {
		t.Error("NeverDefault.ShouldDefault() = true, want false")
	}
}

func TestGetOverdueChecker(t *testing.T) {
	tests := []struct {
		paymentType core.PaymentType
		wantErr     bool
	}{
		{core.PaymentTypeEMI, false},
		{core.PaymentTypeSubscription, false},
		{core.PaymentTypeFullPayment, false},
		{"lease", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.paymentType), func(t *testing.T) {
			checker, err := GetOverdueChecker(tt.paymentType)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetOverdueChecker() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && checker == nil {
				t.Error("GetOverdueChecker() returned nil checker")
			}
		})
	}
}

func TestSetGraceDays(t *testing.T) {
	t.Cleanup(func() { SetGraceDays(DefaultGraceDays) })

	SetGraceDays(5)
	checker, err := GetOverdueChecker(core.PaymentTypeEMI)
	if err != nil {
		t.Fatal(err)
	}
	ic, ok := checker.(InstallmentChecker)
	if !ok {
		t.Fatalf("expected InstallmentChecker, got %T", checker)
	}
	if ic.Grace != 5*24*time.Hour {
		t.Errorf("Grace = %v, want 120h", ic.Grace)
	}

	SetGraceDays(-3)
	checker, _ = GetOverdueChecker(core.PaymentTypeEMI)
	if checker.(InstallmentChecker).Grace != 0 {
		t.Error("negative grace should clamp to zero")
	}
}

func TestRegisterOverdueChecker(t *testing.T) {
	const custom core.PaymentType = "custom"
	RegisterOverdueChecker(custom, NeverDefault{})

	checker, err := GetOverdueChecker(custom)
	if err != nil {
		t.Fatalf("GetOverdueChecker() error = %v", err)
	}
	if _, ok := checker.(NeverDefault); !ok {
		t.Errorf("expected NeverDefault, got %T", checker)
	}
}
