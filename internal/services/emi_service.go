package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"emitrack/internal/amortization"
	"emitrack/internal/cache"
	"emitrack/internal/core"
	"emitrack/internal/ports"

	"github.com/shopspring/decimal"
)

// maxWriteAttempts bounds the read-modify-write retries on version conflicts.
const maxWriteAttempts = 3

const (
	MaxBulkPayments = 60

	msgEMINotFound       = "EMI not found"
	msgNotAuthorized     = "Not authorized to access this EMI"
	msgNotAuthorizedEdit = "Not authorized to update this EMI"
	msgNotAuthorizedDel  = "Not authorized to delete this EMI"
)

type (
	CreateEMIInput struct {
		Name              string
		Type              core.EMIType
		PaymentType       core.PaymentType
		EMIAmount         *decimal.Decimal
		TotalInstallments *int
		StartDate         *core.Date
		Notes             string
	}

	// EditEMIInput is a partial update; nil fields are left unchanged.
	EditEMIInput struct {
		Name              *string
		Type              *core.EMIType
		PaymentType       *core.PaymentType
		EMIAmount         *decimal.Decimal
		TotalInstallments *int
		PaidInstallments  *int
		StartDate         *core.Date
		Status            *core.Status
		Notes             *string
	}

	PayInput struct {
		Amount decimal.Decimal
		Date   core.Date
		Notes  string
	}

	BulkTransactionsInput struct {
		StartDate        core.Date
		NumberOfPayments int
		PaymentAmount    decimal.Decimal
	}

	BulkUpdateInput struct {
		PaidInstallments int
		LastPaymentDate  core.Date
	}

	PaymentResult struct {
		EMI         core.EMI         `json:"emi"`
		Transaction core.Transaction `json:"transaction"`
	}

	BulkTransactionsResult struct {
		EMI          core.EMI           `json:"emi"`
		Transactions []core.Transaction `json:"transactions"`
		TotalAmount  decimal.Decimal    `json:"totalAmount"`
	}
)

// EMIService owns the EMI lifecycle: creation, edits, payments and the
// summary. Writes use optimistic concurrency on the EMI version.
type EMIService struct {
	emis      ports.EMIStore
	txs       ports.TransactionStore
	publisher ports.LedgerPublisher
	summaries *cache.SummaryCache
}

func NewEMIService(emis ports.EMIStore, txs ports.TransactionStore, publisher ports.LedgerPublisher, summaries *cache.SummaryCache) *EMIService {
	return &EMIService{
		emis:      emis,
		txs:       txs,
		publisher: publisher,
		summaries: summaries,
	}
}

// List returns the caller's EMIs ordered by next due date.
func (s *EMIService) List(ctx context.Context, userID string, f ports.EMIFilter) ([]core.EMI, error) {
	emis, err := s.emis.ListEMIs(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list emis: %w", err)
	}
	return emis, nil
}

func (s *EMIService) Get(ctx context.Context, userID, id string) (core.EMI, error) {
	return s.load(ctx, userID, id, msgNotAuthorized)
}

func (s *EMIService) Create(ctx context.Context, userID string, in CreateEMIInput) (core.EMI, error) {
	e, err := buildEMI(userID, in)
	if err != nil {
		return core.EMI{}, err
	}

	created, err := s.emis.CreateEMI(ctx, e)
	if err != nil {
		return core.EMI{}, fmt.Errorf("create emi: %w", err)
	}
	s.invalidate(userID)

	slog.InfoContext(ctx, "EMI created",
		"id", created.ID,
		"payment_type", created.PaymentType,
		"remaining", created.RemainingAmount.String())
	return created, nil
}

func buildEMI(userID string, in CreateEMIInput) (core.EMI, error) {
	verr := &core.ValidationError{}
	if in.Type == "" {
		in.Type = core.DefaultEMIType
	}
	if in.PaymentType == "" {
		in.PaymentType = core.PaymentTypeEMI
	}
	if !in.PaymentType.Valid() {
		verr.Add("paymentType", "Payment type must be either EMI, Subscription or Full Payment")
	}
	if in.StartDate == nil || in.StartDate.IsZero() {
		verr.Add("startDate", "Please provide a valid start date")
	}
	if in.EMIAmount != nil && in.EMIAmount.IsNegative() {
		verr.Add("emiAmount", "EMI amount must be a positive number")
	}
	if in.TotalInstallments != nil && *in.TotalInstallments < 0 {
		verr.Add("totalInstallments", "Total installments must be a non-negative integer")
	}

	switch in.PaymentType {
	case core.PaymentTypeEMI:
		if in.EMIAmount == nil || !in.EMIAmount.IsPositive() {
			verr.Add("emiAmount", "EMI amount is required for EMI payment type")
		}
		if in.TotalInstallments == nil || *in.TotalInstallments < 1 {
			verr.Add("totalInstallments", "Total installments is required for EMI payment type")
		}
	case core.PaymentTypeSubscription:
		if in.EMIAmount == nil || !in.EMIAmount.IsPositive() {
			verr.Add("emiAmount", "Amount is required for subscription payment type")
		}
	case core.PaymentTypeFullPayment:
		if in.EMIAmount == nil {
			verr.Add("emiAmount", "Amount is required for full payment")
		}
	}
	if err := verr.OrNil(); err != nil {
		return core.EMI{}, err
	}

	e := core.EMI{
		UserID:      userID,
		Name:        strings.TrimSpace(in.Name),
		Type:        in.Type,
		PaymentType: in.PaymentType,
		EMIAmount:   decimal.Zero,
		StartDate:   *in.StartDate,
		Notes:       strings.TrimSpace(in.Notes),
	}
	if in.EMIAmount != nil {
		e.EMIAmount = *in.EMIAmount
	}
	if in.PaymentType == core.PaymentTypeEMI && in.TotalInstallments != nil {
		e.TotalInstallments = *in.TotalInstallments
	}
	e = amortization.Initial(e)

	if err := e.Validate(); err != nil {
		return core.EMI{}, err
	}
	return e, nil
}

// Edit applies a partial update. Recomputation of the schedule uses the
// payment type stored before the edit.
func (s *EMIService) Edit(ctx context.Context, userID, id string, in EditEMIInput) (core.EMI, error) {
	updated, err := s.mutate(ctx, userID, id, msgNotAuthorizedEdit, func(e core.EMI) (core.EMI, error) {
		return applyEdit(e, in)
	})
	if err != nil {
		return core.EMI{}, err
	}
	slog.InfoContext(ctx, "EMI updated", "id", updated.ID, "version", updated.Version)
	return updated, nil
}

func applyEdit(stored core.EMI, in EditEMIInput) (core.EMI, error) {
	e := stored
	verr := &core.ValidationError{}

	if in.Name != nil {
		e.Name = strings.TrimSpace(*in.Name)
	}
	if in.Type != nil {
		e.Type = *in.Type
	}
	if in.Notes != nil {
		e.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.Status != nil {
		e.Status = *in.Status
	}
	if in.EMIAmount != nil {
		if in.EMIAmount.IsNegative() {
			verr.Add("emiAmount", "EMI amount must be a positive number")
		}
		e.EMIAmount = *in.EMIAmount
	}
	if in.TotalInstallments != nil {
		if *in.TotalInstallments < 0 {
			verr.Add("totalInstallments", "Total installments must be a non-negative integer")
		}
		e.TotalInstallments = *in.TotalInstallments
	}
	if in.PaidInstallments != nil {
		if *in.PaidInstallments < 0 {
			verr.Add("paidInstallments", "Paid installments must be a non-negative integer")
		}
		e.PaidInstallments = *in.PaidInstallments
	}
	if in.StartDate != nil {
		e.StartDate = *in.StartDate
	}
	if err := verr.OrNil(); err != nil {
		return stored, err
	}

	toFullPayment := false
	if in.PaymentType != nil && *in.PaymentType != stored.PaymentType {
		switch *in.PaymentType {
		case core.PaymentTypeFullPayment:
			toFullPayment = true
		case core.PaymentTypeEMI:
			if !e.EMIAmount.IsPositive() {
				return stored, core.NewValidationError("emiAmount", "EMI amount is required when switching to EMI payment type")
			}
			if e.TotalInstallments < 1 {
				return stored, core.NewValidationError("totalInstallments", "Total installments is required when switching to EMI payment type")
			}
		}
		e.PaymentType = *in.PaymentType
	}

	datesChanged := in.StartDate != nil || in.TotalInstallments != nil
	amountsChanged := in.EMIAmount != nil || in.PaidInstallments != nil || in.TotalInstallments != nil
	e = amortization.Recompute(e, stored.PaymentType, datesChanged, amountsChanged)
	if toFullPayment {
		e = amortization.FullPayment(e)
	}
	if e.PaymentType == core.PaymentTypeEMI && e.EndDate == nil {
		e.EndDate = amortization.AddMonths(e.StartDate, e.TotalInstallments).Ptr()
	}

	if err := e.Validate(); err != nil {
		return stored, err
	}
	return e, nil
}

// Pay records one installment and appends the matching ledger transaction.
func (s *EMIService) Pay(ctx context.Context, userID, id string, in PayInput) (PaymentResult, error) {
	if in.Amount.IsNegative() {
		return PaymentResult{}, core.NewValidationError("amount", "Payment amount must be a positive number")
	}
	if in.Date.IsZero() {
		return PaymentResult{}, core.NewValidationError("date", "Please provide a valid payment date")
	}
	if len(in.Notes) > 500 {
		return PaymentResult{}, core.NewValidationError("notes", "Notes cannot exceed 500 characters")
	}

	paid, err := s.mutate(ctx, userID, id, msgNotAuthorized, amortization.ApplyPayment)
	if err != nil {
		return PaymentResult{}, err
	}

	notes := strings.TrimSpace(in.Notes)
	if notes == "" {
		notes = "EMI payment for " + paid.Name
	}
	tx, err := s.txs.CreateTransaction(ctx, core.Transaction{
		UserID:        userID,
		Type:          core.Expense,
		Amount:        in.Amount,
		Description:   "EMI Payment: " + paid.Name,
		Date:          in.Date,
		Tags:          []string{},
		PaymentMethod: core.BankTransfer,
		Notes:         notes,
		Recurring: core.Recurring{
			IsRecurring: true,
			Frequency:   core.Monthly,
			NextDueDate: paid.NextDueDate,
		},
		EMIID: paid.ID,
	})
	if err != nil {
		// the EMI write already happened; surface the failure so the client can retry the ledger entry
		return PaymentResult{}, fmt.Errorf("record payment transaction for emi %s: %w", paid.ID, err)
	}

	s.publishPaid(ctx, paid, tx)

	slog.InfoContext(ctx, "EMI payment recorded",
		"id", paid.ID,
		"paid", paid.PaidInstallments,
		"status", paid.Status,
		"transaction_id", tx.ID)
	return PaymentResult{EMI: paid, Transaction: tx}, nil
}

// ApplyMatchedPayment advances an EMI for a payment that already exists in
// the ledger. No transaction is created.
func (s *EMIService) ApplyMatchedPayment(ctx context.Context, userID, id string) (core.EMI, error) {
	return s.mutate(ctx, userID, id, msgNotAuthorized, amortization.ApplyPayment)
}

// BulkTransactions backfills historical payments as ledger entries without
// touching the EMI.
func (s *EMIService) BulkTransactions(ctx context.Context, userID, id string, in BulkTransactionsInput) (BulkTransactionsResult, error) {
	verr := &core.ValidationError{}
	if in.StartDate.IsZero() {
		verr.Add("startDate", "Please provide a valid start date")
	}
	if in.NumberOfPayments < 1 || in.NumberOfPayments > MaxBulkPayments {
		verr.Add("numberOfPayments", "Number of payments must be between 1 and 60")
	}
	if in.PaymentAmount.IsNegative() {
		verr.Add("paymentAmount", "Payment amount must be a positive number")
	}
	if err := verr.OrNil(); err != nil {
		return BulkTransactionsResult{}, err
	}

	e, err := s.load(ctx, userID, id, msgNotAuthorized)
	if err != nil {
		return BulkTransactionsResult{}, err
	}
	if e.Status != core.StatusActive {
		return BulkTransactionsResult{}, core.NewStateError("Cannot add transactions for inactive EMI")
	}

	batch := make([]core.Transaction, 0, in.NumberOfPayments)
	for i := 0; i < in.NumberOfPayments; i++ {
		date := amortization.AddMonths(in.StartDate, i)
		batch = append(batch, core.Transaction{
			UserID:        userID,
			Type:          core.Expense,
			Amount:        in.PaymentAmount,
			Description:   fmt.Sprintf("EMI Payment: %s (Installment %d)", e.Name, i+1),
			Date:          date,
			Tags:          []string{},
			PaymentMethod: core.BankTransfer,
			Notes:         fmt.Sprintf("Historical EMI payment for %s - Installment %d of %d", e.Name, i+1, in.NumberOfPayments),
			Recurring: core.Recurring{
				IsRecurring: true,
				Frequency:   core.Monthly,
				NextDueDate: amortization.AddMonths(date, 1).Ptr(),
			},
			EMIID: e.ID,
		})
	}

	created, err := s.txs.CreateTransactions(ctx, batch)
	if err != nil {
		return BulkTransactionsResult{}, fmt.Errorf("create bulk transactions: %w", err)
	}
	amounts := make([]decimal.Decimal, 0, len(created))
	for _, tx := range created {
		amounts = append(amounts, tx.Amount)
		s.publishCreated(ctx, tx)
	}

	slog.InfoContext(ctx, "Bulk transactions created", "emi_id", e.ID, "count", len(created))
	return BulkTransactionsResult{
		EMI:          e,
		Transactions: created,
		TotalAmount:  core.SumAmounts(amounts...),
	}, nil
}

// BulkUpdate sets an absolute number of paid installments.
func (s *EMIService) BulkUpdate(ctx context.Context, userID, id string, in BulkUpdateInput) (core.EMI, error) {
	if in.PaidInstallments < 0 {
		return core.EMI{}, core.NewValidationError("paidInstallments", "Paid installments must be a non-negative integer")
	}
	if in.LastPaymentDate.IsZero() {
		return core.EMI{}, core.NewValidationError("lastPaymentDate", "Please provide a valid last payment date")
	}
	return s.mutate(ctx, userID, id, msgNotAuthorizedEdit, func(e core.EMI) (core.EMI, error) {
		return amortization.SetPaid(e, in.PaidInstallments, in.LastPaymentDate)
	})
}

// Delete removes the EMI. Linked transactions are kept.
func (s *EMIService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.load(ctx, userID, id, msgNotAuthorizedDel); err != nil {
		return err
	}
	if err := s.emis.DeleteEMI(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.NewNotFoundError(msgEMINotFound)
		}
		return fmt.Errorf("delete emi: %w", err)
	}
	s.invalidate(userID)
	slog.InfoContext(ctx, "EMI deleted", "id", id)
	return nil
}

// Summary aggregates the caller's EMIs.
func (s *EMIService) Summary(ctx context.Context, userID string) (core.EMISummary, error) {
	load := func(ctx context.Context) (core.EMISummary, error) {
		emis, err := s.emis.ListEMIs(ctx, userID, ports.EMIFilter{})
		if err != nil {
			return core.EMISummary{}, fmt.Errorf("summarize emis: %w", err)
		}
		return core.Summarize(emis), nil
	}
	if s.summaries == nil {
		return load(ctx)
	}
	return s.summaries.Get(ctx, userID, load)
}

// load fetches an EMI and checks ownership.
func (s *EMIService) load(ctx context.Context, userID, id, denied string) (core.EMI, error) {
	e, err := s.emis.GetEMI(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.EMI{}, core.NewNotFoundError(msgEMINotFound)
	}
	if err != nil {
		return core.EMI{}, fmt.Errorf("load emi: %w", err)
	}
	if !e.OwnedBy(userID) {
		slog.WarnContext(ctx, "EMI access denied", "id", id, "user_id", userID)
		return core.EMI{}, core.NewUnauthorizedError(denied)
	}
	return e, nil
}

// mutate runs a read-modify-write on one EMI, retrying when another writer
// bumped the version in between.
func (s *EMIService) mutate(ctx context.Context, userID, id, denied string, fn func(core.EMI) (core.EMI, error)) (core.EMI, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		current, err := s.load(ctx, userID, id, denied)
		if err != nil {
			return core.EMI{}, err
		}
		next, err := fn(current)
		if err != nil {
			return core.EMI{}, err
		}
		saved, err := s.emis.UpdateEMI(ctx, next, current.Version)
		if errors.Is(err, core.ErrConflict) {
			slog.WarnContext(ctx, "EMI version conflict, retrying",
				"id", id, "attempt", attempt, "version", current.Version)
			continue
		}
		if errors.Is(err, core.ErrNotFound) {
			return core.EMI{}, core.NewNotFoundError(msgEMINotFound)
		}
		if err != nil {
			return core.EMI{}, fmt.Errorf("update emi: %w", err)
		}
		s.invalidate(userID)
		return saved, nil
	}
	return core.EMI{}, core.NewConflictError("EMI was modified concurrently, please retry")
}

func (s *EMIService) invalidate(userID string) {
	if s.summaries != nil {
		s.summaries.Invalidate(userID)
	}
}

func (s *EMIService) publishPaid(ctx context.Context, e core.EMI, tx core.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEMIPaid(ctx, e, tx); err != nil {
		slog.ErrorContext(ctx, "Failed to publish emi paid event",
			"id", e.ID, "transaction_id", tx.ID, "error", err)
	}
}

func (s *EMIService) publishCreated(ctx context.Context, tx core.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionCreated(ctx, tx); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction created event",
			"id", tx.ID, "error", err)
	}
}
