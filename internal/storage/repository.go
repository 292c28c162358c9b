package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"emitrack/internal/core"
	"emitrack/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Fixed width so timestamps sort as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

var _ ports.Store = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(timestampLayout)
}

func (r *SQLiteRepository) CreateEMI(ctx context.Context, e core.EMI) (core.EMI, error) {
	if !e.Type.Valid() {
		return core.EMI{}, core.NewValidationError("type", "Invalid EMI type")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	ts := r.stamp()
	row, err := r.queries.CreateEmi(ctx, CreateEmiParams{
		ID:                e.ID,
		UserID:            e.UserID,
		Name:              e.Name,
		Type:              string(e.Type),
		PaymentType:       string(e.PaymentType),
		EmiAmount:         e.EMIAmount.String(),
		TotalInstallments: int64(e.TotalInstallments),
		PaidInstallments:  int64(e.PaidInstallments),
		RemainingAmount:   e.RemainingAmount.String(),
		StartDate:         e.StartDate.String(),
		NextDueDate:       nullDate(e.NextDueDate),
		EndDate:           nullDate(e.EndDate),
		Status:            string(e.Status),
		Notes:             e.Notes,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	})
	if err != nil {
		return core.EMI{}, fmt.Errorf("create emi: %w", err)
	}

	slog.InfoContext(ctx, "EMI saved to SQLite",
		"id", row.ID,
		"user_id", row.UserID,
		"payment_type", row.PaymentType)

	return emiFromRow(row)
}

func (r *SQLiteRepository) GetEMI(ctx context.Context, id string) (core.EMI, error) {
	row, err := r.queries.GetEmi(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EMI{}, fmt.Errorf("get emi %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.EMI{}, fmt.Errorf("get emi %s: %w", id, err)
	}
	return emiFromRow(row)
}

func (r *SQLiteRepository) UpdateEMI(ctx context.Context, e core.EMI, expectedVersion int64) (core.EMI, error) {
	if !e.Type.Valid() {
		return core.EMI{}, core.NewValidationError("type", "Invalid EMI type")
	}
	row, err := r.queries.UpdateEmi(ctx, UpdateEmiParams{
		Name:              e.Name,
		Type:              string(e.Type),
		PaymentType:       string(e.PaymentType),
		EmiAmount:         e.EMIAmount.String(),
		TotalInstallments: int64(e.TotalInstallments),
		PaidInstallments:  int64(e.PaidInstallments),
		RemainingAmount:   e.RemainingAmount.String(),
		StartDate:         e.StartDate.String(),
		NextDueDate:       nullDate(e.NextDueDate),
		EndDate:           nullDate(e.EndDate),
		Status:            string(e.Status),
		Notes:             e.Notes,
		UpdatedAt:         r.stamp(),
		ID:                e.ID,
		Version:           expectedVersion,
	})
	if errors.Is(err, sql.ErrNoRows) {
		// either gone or someone else wrote first
		if _, getErr := r.queries.GetEmi(ctx, e.ID); errors.Is(getErr, sql.ErrNoRows) {
			return core.EMI{}, fmt.Errorf("update emi %s: %w", e.ID, core.ErrNotFound)
		}
		return core.EMI{}, fmt.Errorf("update emi %s at version %d: %w", e.ID, expectedVersion, core.ErrConflict)
	}
	if err != nil {
		return core.EMI{}, fmt.Errorf("update emi %s: %w", e.ID, err)
	}
	return emiFromRow(row)
}

func (r *SQLiteRepository) DeleteEMI(ctx context.Context, id string) error {
	n, err := r.queries.DeleteEmi(ctx, id)
	if err != nil {
		return fmt.Errorf("delete emi %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete emi %s: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "EMI deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) ListEMIs(ctx context.Context, userID string, f ports.EMIFilter) ([]core.EMI, error) {
	rows, err := r.queries.ListEmisByUser(ctx, ListEmisByUserParams{
		UserID:      userID,
		Status:      string(f.Status),
		PaymentType: string(f.PaymentType),
		DueAfter:    dateParam(f.DueAfter),
		DueBefore:   dateParam(f.DueBefore),
	})
	if err != nil {
		return nil, fmt.Errorf("list emis: %w", err)
	}
	return emisFromRows(rows)
}

func (r *SQLiteRepository) ListActiveDueBefore(ctx context.Context, before core.Date) ([]core.EMI, error) {
	rows, err := r.queries.ListActiveEmisDueBefore(ctx, before.String())
	if err != nil {
		return nil, fmt.Errorf("list due emis: %w", err)
	}
	return emisFromRows(rows)
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	created, err := r.insertTransaction(ctx, r.queries, t)
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", created.ID,
		"type", created.Type,
		"amount", created.Amount.String(),
		"date", created.Date.String())
	return created, nil
}

// CreateTransactions inserts all rows in one database transaction.
func (r *SQLiteRepository) CreateTransactions(ctx context.Context, ts []core.Transaction) ([]core.Transaction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	out := make([]core.Transaction, 0, len(ts))
	for _, t := range ts {
		created, err := r.insertTransaction(ctx, q, t)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	slog.InfoContext(ctx, "Transactions saved to SQLite", "count", len(out))
	return out, nil
}

func (r *SQLiteRepository) insertTransaction(ctx context.Context, q *Queries, t core.Transaction) (core.Transaction, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return core.Transaction{}, err
	}
	ts := r.stamp()
	row, err := q.CreateTransaction(ctx, CreateTransactionParams{
		ID:               t.ID,
		UserID:           t.UserID,
		Type:             string(t.Type),
		Amount:           t.Amount.String(),
		Description:      t.Description,
		Date:             t.Date.String(),
		Tags:             tags,
		PaymentMethod:    string(t.PaymentMethod),
		Notes:            t.Notes,
		IsRecurring:      boolInt(t.Recurring.IsRecurring),
		Frequency:        string(t.Recurring.Frequency),
		RecurringNextDue: nullDate(t.Recurring.NextDueDate),
		EmiID:            nullString(t.EMIID),
		CreatedAt:        ts,
		UpdatedAt:        ts,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return transactionFromRow(row)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return transactionFromRow(row)
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return core.Transaction{}, err
	}
	row, err := r.queries.UpdateTransaction(ctx, UpdateTransactionParams{
		Type:             string(t.Type),
		Amount:           t.Amount.String(),
		Description:      t.Description,
		Date:             t.Date.String(),
		Tags:             tags,
		PaymentMethod:    string(t.PaymentMethod),
		Notes:            t.Notes,
		IsRecurring:      boolInt(t.Recurring.IsRecurring),
		Frequency:        string(t.Recurring.Frequency),
		RecurringNextDue: nullDate(t.Recurring.NextDueDate),
		EmiID:            nullString(t.EMIID),
		UpdatedAt:        r.stamp(),
		ID:               t.ID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return transactionFromRow(row)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	n, err := r.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete transaction %s: %w", id, core.ErrNotFound)
	}
	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, f ports.TransactionFilter) ([]core.Transaction, int, error) {
	f = f.Normalize()
	count, err := r.queries.CountTransactions(ctx, CountTransactionsParams{
		UserID:    userID,
		Type:      string(f.Type),
		StartDate: dateParam(f.StartDate),
		EndDate:   dateParam(f.EndDate),
		EmiID:     f.EMIID,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	rows, err := r.queries.ListTransactions(ctx, ListTransactionsParams{
		UserID:    userID,
		Type:      string(f.Type),
		StartDate: dateParam(f.StartDate),
		EndDate:   dateParam(f.EndDate),
		EmiID:     f.EMIID,
		OrderBy:   string(f.SortBy) + " " + string(f.SortOrder),
		Limit:     int64(f.Limit),
		Offset:    int64(f.Offset()),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		t, err := transactionFromRow(row)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, int(count), nil
}

func emisFromRows(rows []Emi) ([]core.EMI, error) {
	out := make([]core.EMI, 0, len(rows))
	for _, row := range rows {
		e, err := emiFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func emiFromRow(row Emi) (core.EMI, error) {
	amount, err := decimal.NewFromString(row.EmiAmount)
	if err != nil {
		return core.EMI{}, fmt.Errorf("emi %s: parse emi_amount: %w", row.ID, err)
	}
	remaining, err := decimal.NewFromString(row.RemainingAmount)
	if err != nil {
		return core.EMI{}, fmt.Errorf("emi %s: parse remaining_amount: %w", row.ID, err)
	}
	start, err := core.ParseDate(row.StartDate)
	if err != nil {
		return core.EMI{}, fmt.Errorf("emi %s: parse start_date: %w", row.ID, err)
	}
	next, err := parseNullDate(row.NextDueDate)
	if err != nil {
		return core.EMI{}, fmt.Errorf("emi %s: parse next_due_date: %w", row.ID, err)
	}
	end, err := parseNullDate(row.EndDate)
	if err != nil {
		return core.EMI{}, fmt.Errorf("emi %s: parse end_date: %w", row.ID, err)
	}
	return core.EMI{
		ID:                row.ID,
		UserID:            row.UserID,
		Name:              row.Name,
		Type:              core.EMIType(row.Type),
		PaymentType:       core.PaymentType(row.PaymentType),
		EMIAmount:         amount,
		TotalInstallments: int(row.TotalInstallments),
		PaidInstallments:  int(row.PaidInstallments),
		RemainingAmount:   remaining,
		StartDate:         start,
		NextDueDate:       next,
		EndDate:           end,
		Status:            core.Status(row.Status),
		Notes:             row.Notes,
		Version:           row.Version,
		CreatedAt:         parseTimestamp(row.CreatedAt),
		UpdatedAt:         parseTimestamp(row.UpdatedAt),
	}, nil
}

func transactionFromRow(row Transaction) (core.Transaction, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: parse amount: %w", row.ID, err)
	}
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: parse date: %w", row.ID, err)
	}
	next, err := parseNullDate(row.RecurringNextDue)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: parse recurring_next_due: %w", row.ID, err)
	}
	var tags []string
	if err := json.Unmarshal([]byte(row.Tags), &tags); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: decode tags: %w", row.ID, err)
	}
	return core.Transaction{
		ID:            row.ID,
		UserID:        row.UserID,
		Type:          core.TransactionType(row.Type),
		Amount:        amount,
		Description:   row.Description,
		Date:          date,
		Tags:          tags,
		PaymentMethod: core.PaymentMethod(row.PaymentMethod),
		Notes:         row.Notes,
		Recurring: core.Recurring{
			IsRecurring: row.IsRecurring != 0,
			Frequency:   core.Frequency(row.Frequency),
			NextDueDate: next,
		},
		EMIID:     row.EmiID.String,
		CreatedAt: parseTimestamp(row.CreatedAt),
		UpdatedAt: parseTimestamp(row.UpdatedAt),
	}, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func nullDate(d *core.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(ns sql.NullString) (*core.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := core.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func dateParam(d *core.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
