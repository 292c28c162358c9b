package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"emitrack/internal/core"
	"emitrack/internal/ports"

	"github.com/shopspring/decimal"
)

const (
	msgTransactionNotFound = "Transaction not found"
	msgTxNotAuthorized     = "Not authorized to access this transaction"
	msgTxNotAuthorizedEdit = "Not authorized to update this transaction"
	msgTxNotAuthorizedDel  = "Not authorized to delete this transaction"
)

type (
	CreateTransactionInput struct {
		Type          core.TransactionType
		Amount        *decimal.Decimal
		Description   string
		Date          *core.Date
		Tags          []string
		PaymentMethod core.PaymentMethod
		Notes         string
		Recurring     *core.Recurring
	}

	// UpdateTransactionInput is a partial update; nil fields are left unchanged.
	UpdateTransactionInput struct {
		Type          *core.TransactionType
		Amount        *decimal.Decimal
		Description   *string
		Date          *core.Date
		Tags          *[]string
		PaymentMethod *core.PaymentMethod
		Notes         *string
		Recurring     *core.Recurring
	}

	TransactionPage struct {
		Items      []core.Transaction
		Page       int
		Limit      int
		TotalItems int
	}
)

// TotalPages rounds up.
func (p TransactionPage) TotalPages() int {
	if p.Limit < 1 {
		return 0
	}
	return (p.TotalItems + p.Limit - 1) / p.Limit
}

// LedgerService manages transactions and hands repayment-looking entries to
// the reconciler.
type LedgerService struct {
	txs        ports.TransactionStore
	reconciler *Reconciler
	publisher  ports.LedgerPublisher
	today      func() core.Date
}

func NewLedgerService(txs ports.TransactionStore, reconciler *Reconciler, publisher ports.LedgerPublisher) *LedgerService {
	return &LedgerService{
		txs:        txs,
		reconciler: reconciler,
		publisher:  publisher,
		today:      core.Today,
	}
}

func (s *LedgerService) List(ctx context.Context, userID string, f ports.TransactionFilter) (TransactionPage, error) {
	f = f.Normalize()
	items, total, err := s.txs.ListTransactions(ctx, userID, f)
	if err != nil {
		return TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	return TransactionPage{Items: items, Page: f.Page, Limit: f.Limit, TotalItems: total}, nil
}

func (s *LedgerService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.load(ctx, userID, id, msgTxNotAuthorized)
}

// Create stores the transaction, then runs reconciliation and publishes the
// ledger event. Neither side effect can fail the write.
func (s *LedgerService) Create(ctx context.Context, userID string, in CreateTransactionInput) (core.Transaction, error) {
	tx := core.Transaction{
		UserID:        userID,
		Type:          in.Type,
		Description:   strings.TrimSpace(in.Description),
		Tags:          in.Tags,
		PaymentMethod: in.PaymentMethod,
		Notes:         strings.TrimSpace(in.Notes),
	}
	if tx.Type == "" {
		tx.Type = core.Expense
	}
	if tx.PaymentMethod == "" {
		tx.PaymentMethod = core.DefaultPaymentMethod
	}
	if tx.Tags == nil {
		tx.Tags = []string{}
	}
	if in.Amount == nil {
		return core.Transaction{}, core.NewValidationError("amount", "Amount must be a positive number")
	}
	tx.Amount = *in.Amount
	tx.Date = s.today()
	if in.Date != nil && !in.Date.IsZero() {
		tx.Date = *in.Date
	}
	if in.Recurring != nil {
		tx.Recurring = *in.Recurring
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.txs.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.reconcile(ctx, created)
	s.publishCreated(ctx, created)
	return created, nil
}

// Update applies a partial update. Reconciliation reruns only when the
// description changed.
func (s *LedgerService) Update(ctx context.Context, userID, id string, in UpdateTransactionInput) (core.Transaction, error) {
	stored, err := s.load(ctx, userID, id, msgTxNotAuthorizedEdit)
	if err != nil {
		return core.Transaction{}, err
	}

	tx := stored
	if in.Type != nil {
		tx.Type = *in.Type
	}
	if in.Amount != nil {
		tx.Amount = *in.Amount
	}
	if in.Description != nil {
		tx.Description = strings.TrimSpace(*in.Description)
	}
	if in.Date != nil {
		tx.Date = *in.Date
	}
	if in.Tags != nil {
		tx.Tags = *in.Tags
	}
	if in.PaymentMethod != nil {
		tx.PaymentMethod = *in.PaymentMethod
	}
	if in.Notes != nil {
		tx.Notes = strings.TrimSpace(*in.Notes)
	}
	if in.Recurring != nil {
		tx.Recurring = *in.Recurring
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.txs.UpdateTransaction(ctx, tx)
	if errors.Is(err, core.ErrNotFound) {
		return core.Transaction{}, core.NewNotFoundError(msgTransactionNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	if updated.Description != stored.Description {
		s.reconcile(ctx, updated)
	}
	return updated, nil
}

func (s *LedgerService) Delete(ctx context.Context, userID, id string) error {
	tx, err := s.load(ctx, userID, id, msgTxNotAuthorizedDel)
	if err != nil {
		return err
	}
	if err := s.txs.DeleteTransaction(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.NewNotFoundError(msgTransactionNotFound)
		}
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.publishDeleted(ctx, tx)
	return nil
}

func (s *LedgerService) load(ctx context.Context, userID, id, denied string) (core.Transaction, error) {
	tx, err := s.txs.GetTransaction(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Transaction{}, core.NewNotFoundError(msgTransactionNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load transaction: %w", err)
	}
	if !tx.OwnedBy(userID) {
		slog.WarnContext(ctx, "Transaction access denied", "id", id, "user_id", userID)
		return core.Transaction{}, core.NewUnauthorizedError(denied)
	}
	return tx, nil
}

func (s *LedgerService) reconcile(ctx context.Context, tx core.Transaction) {
	if s.reconciler == nil {
		return
	}
	s.reconciler.Reconcile(ctx, tx)
}

func (s *LedgerService) publishCreated(ctx context.Context, tx core.Transaction) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No ledger publisher configured, skipping created event")
		return
	}
	if err := s.publisher.PublishTransactionCreated(ctx, tx); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction created event",
			"id", tx.ID, "error", err)
	}
}

func (s *LedgerService) publishDeleted(ctx context.Context, tx core.Transaction) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No ledger publisher configured, skipping deleted event")
		return
	}
	if err := s.publisher.PublishTransactionDeleted(ctx, tx); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction deleted event",
			"id", tx.ID, "error", err)
	}
}
