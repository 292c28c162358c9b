package services

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"emitrack/internal/core"
	"emitrack/internal/ports"
)

// paymentPrefix marks descriptions written as "EMI Payment: <name>".
const paymentPrefix = "EMI Payment:"

// DefaultReconcileKeywords are the description fragments, besides
// paymentPrefix and "installment", that identify a loan repayment.
var DefaultReconcileKeywords = []string{"Cheetu", "Cashe", "True Balance", "Sangam", "Suresh"}

var noiseWords = regexp.MustCompile(`(?i)installment|EMI|Payment`)

// Outcome of one reconciliation attempt.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeNoMatch   Outcome = "no_match"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeApplied   Outcome = "applied"
	OutcomeFailed    Outcome = "failed"
)

// Reconciler links free-text expense transactions to the user's active EMIs
// and records a payment on the matched EMI.
type Reconciler struct {
	emis     ports.EMIStore
	payments *EMIService
	triggers []string
}

// NewReconciler builds a reconciler. extraKeywords replaces the default
// keyword list when non-empty.
func NewReconciler(emis ports.EMIStore, payments *EMIService, extraKeywords []string) *Reconciler {
	keywords := DefaultReconcileKeywords
	if len(extraKeywords) > 0 {
		keywords = extraKeywords
	}
	triggers := make([]string, 0, len(keywords)+2)
	triggers = append(triggers, paymentPrefix, "installment")
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			triggers = append(triggers, k)
		}
	}
	return &Reconciler{emis: emis, payments: payments, triggers: triggers}
}

// Triggered reports whether description looks like a loan repayment.
func (r *Reconciler) Triggered(description string) bool {
	for _, t := range r.triggers {
		if strings.Contains(description, t) {
			return true
		}
	}
	return false
}

// MatchKey extracts the EMI name to search for from a description.
func MatchKey(description string) string {
	if i := strings.Index(description, paymentPrefix); i >= 0 {
		return strings.TrimSpace(description[i+len(paymentPrefix):])
	}
	return strings.TrimSpace(noiseWords.ReplaceAllString(description, ""))
}

// Reconcile applies a payment to the single active EMI whose name contains
// the key extracted from tx. It never returns an error: every failure is
// logged and reported through the outcome.
func (r *Reconciler) Reconcile(ctx context.Context, tx core.Transaction) Outcome {
	if tx.EMIID != "" || tx.Type != core.Expense || !r.Triggered(tx.Description) {
		return OutcomeSkipped
	}
	key := MatchKey(tx.Description)
	if key == "" {
		return OutcomeSkipped
	}

	active, err := r.emis.ListEMIs(ctx, tx.UserID, ports.EMIFilter{Status: core.StatusActive})
	if err != nil {
		slog.ErrorContext(ctx, "Reconcile: list active EMIs failed",
			"transaction_id", tx.ID, "error", err)
		return OutcomeFailed
	}

	target, outcome := pickCandidate(active, key)
	switch outcome {
	case OutcomeNoMatch:
		slog.InfoContext(ctx, "Reconcile: no EMI matched",
			"transaction_id", tx.ID, "key", key)
		return outcome
	case OutcomeAmbiguous:
		slog.WarnContext(ctx, "Reconcile: ambiguous EMI match",
			"transaction_id", tx.ID, "key", key, "candidates", candidateIDs(active, key))
		return outcome
	}

	updated, err := r.payments.ApplyMatchedPayment(ctx, tx.UserID, target.ID)
	if err != nil {
		slog.ErrorContext(ctx, "Reconcile: applying payment failed",
			"transaction_id", tx.ID, "emi_id", target.ID, "error", err)
		return OutcomeFailed
	}

	slog.InfoContext(ctx, "Reconcile: EMI updated from transaction",
		"transaction_id", tx.ID,
		"emi_id", updated.ID,
		"paid", updated.PaidInstallments,
		"status", updated.Status)
	return OutcomeApplied
}

// pickCandidate chooses among EMIs whose name contains key, ignoring case.
// With several candidates an exact name match wins; otherwise nothing does.
func pickCandidate(emis []core.EMI, key string) (core.EMI, Outcome) {
	lowered := strings.ToLower(key)
	var matches []core.EMI
	for _, e := range emis {
		if strings.Contains(strings.ToLower(e.Name), lowered) {
			matches = append(matches, e)
		}
	}
	switch len(matches) {
	case 0:
		return core.EMI{}, OutcomeNoMatch
	case 1:
		return matches[0], OutcomeApplied
	}

	var exact []core.EMI
	for _, e := range matches {
		if strings.EqualFold(strings.TrimSpace(e.Name), key) {
			exact = append(exact, e)
		}
	}
	if len(exact) == 1 {
		return exact[0], OutcomeApplied
	}
	return core.EMI{}, OutcomeAmbiguous
}

func candidateIDs(emis []core.EMI, key string) []string {
	lowered := strings.ToLower(key)
	var ids []string
	for _, e := range emis {
		if strings.Contains(strings.ToLower(e.Name), lowered) {
			ids = append(ids, e.ID)
		}
	}
	return ids
}
