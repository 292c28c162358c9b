// Package services provides business logic and orchestration services.
//
// This file holds the per-payment-type strategies that decide when an
// unpaid EMI has been overdue long enough to be marked defaulted.

package services

import (
	"fmt"
	"sync"
	"time"

	"emitrack/internal/core"
)

// DefaultGraceDays is how long an installment may stay unpaid past its due
// date before the EMI defaults.
const DefaultGraceDays = 30

// OverdueChecker is the strategy interface for deciding whether an active
// EMI should move to defaulted.
type OverdueChecker interface {
	// ShouldDefault reports whether e, evaluated at now, has defaulted.
	ShouldDefault(e core.EMI, now time.Time) bool
}

// InstallmentChecker defaults an installment EMI once its next due date is
// more than Grace in the past.
type InstallmentChecker struct {
	Grace time.Duration
}

func (c InstallmentChecker) ShouldDefault(e core.EMI, now time.Time) bool {
	if e.Status != core.StatusActive || e.NextDueDate == nil {
		return false
	}
	if e.PaidInstallments >= e.TotalInstallments {
		return false
	}
	deadline := e.NextDueDate.Add(c.Grace)
	return core.DateOf(now).After(core.DateOf(deadline))
}

// NeverDefault is used for subscriptions and one-off payments.
type NeverDefault struct{}

func (NeverDefault) ShouldDefault(core.EMI, time.Time) bool { return false }

var (
	overdueMu         sync.RWMutex
	overdueStrategies = map[core.PaymentType]OverdueChecker{
		core.PaymentTypeEMI:          InstallmentChecker{Grace: DefaultGraceDays * 24 * time.Hour},
		core.PaymentTypeSubscription: NeverDefault{},
		core.PaymentTypeFullPayment:  NeverDefault{},
	}
)

// GetOverdueChecker returns the checker registered for a payment type.
func GetOverdueChecker(pt core.PaymentType) (OverdueChecker, error) {
	overdueMu.RLock()
	defer overdueMu.RUnlock()
	checker, ok := overdueStrategies[pt]
	if !ok {
		return nil, fmt.Errorf("unknown payment type: %s", pt)
	}
	return checker, nil
}

// RegisterOverdueChecker replaces the checker for a payment type.
func RegisterOverdueChecker(pt core.PaymentType, checker OverdueChecker) {
	overdueMu.Lock()
	defer overdueMu.Unlock()
	overdueStrategies[pt] = checker
}

// SetGraceDays reconfigures the installment checker's grace period.
func SetGraceDays(days int) {
	if days < 0 {
		days = 0
	}
	RegisterOverdueChecker(core.PaymentTypeEMI, InstallmentChecker{Grace: time.Duration(days) * 24 * time.Hour})
}
