package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"emitrack/internal/core"
)

// SweepResult summarizes one sweep.
type SweepResult struct {
	Checked   int
	Defaulted int
	Failed    int
}

// OverdueSweeper marks long-overdue active EMIs as defaulted. It only runs
// from the sweeper command, never from request handling.
type OverdueSweeper struct {
	service *EMIService
}

func NewOverdueSweeper(service *EMIService) *OverdueSweeper {
	return &OverdueSweeper{service: service}
}

// Sweep scans active EMIs due before now and defaults those whose checker
// says so. Per-EMI failures are logged and counted, not returned.
func (p *OverdueSweeper) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	if p.service == nil {
		return SweepResult{}, fmt.Errorf("sweeper not properly initialized")
	}

	due, err := p.service.emis.ListActiveDueBefore(ctx, core.DateOf(now))
	if err != nil {
		return SweepResult{}, fmt.Errorf("list overdue emis: %w", err)
	}

	slog.InfoContext(ctx, "Sweeping overdue EMIs",
		"candidates", len(due),
		"sweep_date", now.Format(core.DateLayout))

	var res SweepResult
	for _, e := range due {
		res.Checked++

		checker, err := GetOverdueChecker(e.PaymentType)
		if err != nil {
			slog.ErrorContext(ctx, "No overdue checker for EMI",
				"id", e.ID, "payment_type", e.PaymentType, "error", err)
			res.Failed++
			continue
		}
		if !checker.ShouldDefault(e, now) {
			continue
		}

		updated, err := p.service.mutate(ctx, e.UserID, e.ID, msgNotAuthorized, func(cur core.EMI) (core.EMI, error) {
			// re-check against the fresh copy; a payment may have landed meanwhile
			if !checker.ShouldDefault(cur, now) {
				return cur, errNoLongerOverdue
			}
			cur.Status = core.StatusDefaulted
			return cur, nil
		})
		if err == errNoLongerOverdue {
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to default EMI", "id", e.ID, "error", err)
			res.Failed++
			continue
		}

		res.Defaulted++
		slog.InfoContext(ctx, "EMI marked defaulted",
			"id", updated.ID,
			"user_id", updated.UserID,
			"next_due_date", updated.NextDueDate.String())
	}

	slog.InfoContext(ctx, "Overdue sweep complete",
		"checked", res.Checked,
		"defaulted", res.Defaulted,
		"failed", res.Failed)

	return res, nil
}

var errNoLongerOverdue = fmt.Errorf("emi no longer overdue")
