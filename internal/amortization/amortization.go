// Package amortization computes EMI schedules: initial state, remaining
// balance, due-date rollforward and completion. Every function takes an EMI
// by value and returns the updated copy; nothing here touches storage.
//
// Month arithmetic clamps to the last valid day of the target month, so
// Jan 31 + 1 month is Feb 28 (or 29), never March.
package amortization

import (
	"time"

	"emitrack/internal/core"

	"github.com/shopspring/decimal"
)

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths moves d by n calendar months, clamping the day of month.
func AddMonths(d core.Date, n int) core.Date {
	return onDay(d, n, d.Day())
}

// onDay returns the date n months after d on the given day, clamped to the
// length of the target month.
func onDay(d core.Date, n int, day int) core.Date {
	// first of the target month; time.Date normalizes month overflow
	first := time.Date(d.Year(), d.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return core.NewDate(first.Year(), int(first.Month()), day)
}

// NextDue advances a due date by one month. When current sits on a clamped
// month end (Feb 28 for an EMI started on the 31st) the anchor day is
// restored, so the schedule goes Jan 31, Feb 29, Mar 31.
func NextDue(current core.Date, anchorDay int) core.Date {
	day := current.Day()
	if current.IsLastDayOfMonth() && anchorDay > day {
		day = anchorDay
	}
	return onDay(current, 1, day)
}

// Remaining is the outstanding balance for the given payment type.
func Remaining(pt core.PaymentType, emiAmount decimal.Decimal, total, paid int) decimal.Decimal {
	if pt != core.PaymentTypeEMI {
		return decimal.Zero
	}
	left := emiAmount.Mul(decimal.NewFromInt(int64(total - paid)))
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// Initial computes the schedule of a freshly created EMI from its payment
// type, amount, installment count and start date. The result is active.
func Initial(e core.EMI) core.EMI {
	start := core.DateOf(e.StartDate.Time)
	e.StartDate = start
	e.Status = core.StatusActive

	switch e.PaymentType {
	case core.PaymentTypeFullPayment:
		return FullPayment(e)
	case core.PaymentTypeSubscription:
		e.PaidInstallments = 0
		e.RemainingAmount = decimal.Zero
		e.EndDate = nil
		e.NextDueDate = AddMonths(start, 1).Ptr()
	default:
		e.PaidInstallments = 0
		e.EndDate = AddMonths(start, e.TotalInstallments).Ptr()
		e.NextDueDate = AddMonths(start, 1).Ptr()
		e.RemainingAmount = Remaining(e.PaymentType, e.EMIAmount, e.TotalInstallments, 0)
	}
	return e
}

// FullPayment forces the terminal amortized state of a one-off payment.
// Status is left untouched.
func FullPayment(e core.EMI) core.EMI {
	e.TotalInstallments = 1
	e.PaidInstallments = 1
	e.RemainingAmount = decimal.Zero
	e.EndDate = e.StartDate.Ptr()
	e.NextDueDate = e.StartDate.Ptr()
	return e
}

// ApplyPayment records one installment. It fails with core.ErrInvalidState
// unless the EMI is active.
func ApplyPayment(e core.EMI) (core.EMI, error) {
	if e.Status != core.StatusActive {
		return e, core.NewStateError("Cannot make payment for inactive EMI")
	}

	e.PaidInstallments++
	e.RemainingAmount = Remaining(e.PaymentType, e.EMIAmount, e.TotalInstallments, e.PaidInstallments)

	current := e.StartDate
	if e.NextDueDate != nil {
		current = *e.NextDueDate
	}
	e.NextDueDate = NextDue(current, e.StartDate.Day()).Ptr()

	return complete(e), nil
}

// SetPaid sets an absolute number of paid installments and derives the next
// due date from the last payment.
func SetPaid(e core.EMI, paid int, lastPayment core.Date) (core.EMI, error) {
	if e.Status != core.StatusActive {
		return e, core.NewStateError("Cannot update inactive EMI")
	}
	if paid < 0 {
		return e, core.NewValidationError("paidInstallments", "Paid installments must be a non-negative integer")
	}
	if paid > e.TotalInstallments {
		return e, core.NewValidationError("paidInstallments", "Paid installments cannot exceed total installments")
	}

	e.PaidInstallments = paid
	e.RemainingAmount = Remaining(e.PaymentType, e.EMIAmount, e.TotalInstallments, paid)
	e.NextDueDate = AddMonths(lastPayment, 1).Ptr()

	return complete(e), nil
}

// Recompute rebuilds endDate, nextDueDate and remainingAmount after an edit.
// formula selects the calculation; callers pass the payment type the EMI had
// before the edit.
func Recompute(e core.EMI, formula core.PaymentType, datesChanged, amountsChanged bool) core.EMI {
	if datesChanged {
		switch formula {
		case core.PaymentTypeEMI:
			e.EndDate = AddMonths(e.StartDate, e.TotalInstallments).Ptr()
		case core.PaymentTypeSubscription:
			e.EndDate = nil
		}
		e.NextDueDate = AddMonths(e.StartDate, e.PaidInstallments+1).Ptr()
	}
	if amountsChanged {
		if formula == core.PaymentTypeSubscription {
			e.RemainingAmount = decimal.Zero
		} else {
			e.RemainingAmount = Remaining(core.PaymentTypeEMI, e.EMIAmount, e.TotalInstallments, e.PaidInstallments)
		}
	}
	return e
}

// complete moves an installment EMI that reached its last installment into
// the completed state. Subscriptions never complete.
func complete(e core.EMI) core.EMI {
	if e.PaymentType == core.PaymentTypeSubscription {
		return e
	}
	if e.PaidInstallments >= e.TotalInstallments {
		e.Status = core.StatusCompleted
		e.RemainingAmount = decimal.Zero
		if e.EndDate != nil {
			e.NextDueDate = e.EndDate.Ptr()
		}
	}
	return e
}
