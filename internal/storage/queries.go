package storage

import (
	"context"
	"database/sql"
	"fmt"
)

const emiColumns = `id, user_id, name, type, payment_type, emi_amount, total_installments,
paid_installments, remaining_amount, start_date, next_due_date, end_date, status, notes,
version, created_at, updated_at`

const transactionColumns = `id, user_id, type, amount, description, date, tags, payment_method,
notes, is_recurring, frequency, recurring_next_due, emi_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEmi(row rowScanner) (Emi, error) {
	var i Emi
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Name,
		&i.Type,
		&i.PaymentType,
		&i.EmiAmount,
		&i.TotalInstallments,
		&i.PaidInstallments,
		&i.RemainingAmount,
		&i.StartDate,
		&i.NextDueDate,
		&i.EndDate,
		&i.Status,
		&i.Notes,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Type,
		&i.Amount,
		&i.Description,
		&i.Date,
		&i.Tags,
		&i.PaymentMethod,
		&i.Notes,
		&i.IsRecurring,
		&i.Frequency,
		&i.RecurringNextDue,
		&i.EmiID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createEmi = `INSERT INTO emis (` + emiColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
RETURNING ` + emiColumns

type CreateEmiParams struct {
	ID                string
	UserID            string
	Name              string
	Type              string
	PaymentType       string
	EmiAmount         string
	TotalInstallments int64
	PaidInstallments  int64
	RemainingAmount   string
	StartDate         string
	NextDueDate       sql.NullString
	EndDate           sql.NullString
	Status            string
	Notes             string
	CreatedAt         string
	UpdatedAt         string
}

func (q *Queries) CreateEmi(ctx context.Context, arg CreateEmiParams) (Emi, error) {
	row := q.db.QueryRowContext(ctx, createEmi,
		arg.ID,
		arg.UserID,
		arg.Name,
		arg.Type,
		arg.PaymentType,
		arg.EmiAmount,
		arg.TotalInstallments,
		arg.PaidInstallments,
		arg.RemainingAmount,
		arg.StartDate,
		arg.NextDueDate,
		arg.EndDate,
		arg.Status,
		arg.Notes,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanEmi(row)
}

const getEmi = `SELECT ` + emiColumns + ` FROM emis WHERE id = ?`

func (q *Queries) GetEmi(ctx context.Context, id string) (Emi, error) {
	row := q.db.QueryRowContext(ctx, getEmi, id)
	return scanEmi(row)
}

// The user_id column is never rewritten.
const updateEmi = `UPDATE emis SET
    name = ?, type = ?, payment_type = ?, emi_amount = ?, total_installments = ?,
    paid_installments = ?, remaining_amount = ?, start_date = ?, next_due_date = ?,
    end_date = ?, status = ?, notes = ?, updated_at = ?, version = version + 1
WHERE id = ? AND version = ?
RETURNING ` + emiColumns

type UpdateEmiParams struct {
	Name              string
	Type              string
	PaymentType       string
	EmiAmount         string
	TotalInstallments int64
	PaidInstallments  int64
	RemainingAmount   string
	StartDate         string
	NextDueDate       sql.NullString
	EndDate           sql.NullString
	Status            string
	Notes             string
	UpdatedAt         string
	ID                string
	Version           int64
}

func (q *Queries) UpdateEmi(ctx context.Context, arg UpdateEmiParams) (Emi, error) {
	row := q.db.QueryRowContext(ctx, updateEmi,
		arg.Name,
		arg.Type,
		arg.PaymentType,
		arg.EmiAmount,
		arg.TotalInstallments,
		arg.PaidInstallments,
		arg.RemainingAmount,
		arg.StartDate,
		arg.NextDueDate,
		arg.EndDate,
		arg.Status,
		arg.Notes,
		arg.UpdatedAt,
		arg.ID,
		arg.Version,
	)
	return scanEmi(row)
}

const deleteEmi = `DELETE FROM emis WHERE id = ?`

func (q *Queries) DeleteEmi(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteEmi, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listEmisByUser = `SELECT ` + emiColumns + ` FROM emis
WHERE user_id = ?1
  AND (?2 = '' OR status = ?2)
  AND (?3 = '' OR payment_type = ?3)
  AND (?4 = '' OR (next_due_date IS NOT NULL AND next_due_date >= ?4))
  AND (?5 = '' OR (next_due_date IS NOT NULL AND next_due_date < ?5))
ORDER BY next_due_date IS NULL, next_due_date, id`

type ListEmisByUserParams struct {
	UserID      string
	Status      string
	PaymentType string
	DueAfter    string
	DueBefore   string
}

func (q *Queries) ListEmisByUser(ctx context.Context, arg ListEmisByUserParams) ([]Emi, error) {
	rows, err := q.db.QueryContext(ctx, listEmisByUser,
		arg.UserID,
		arg.Status,
		arg.PaymentType,
		arg.DueAfter,
		arg.DueBefore,
	)
	if err != nil {
		return nil, err
	}
	return collectEmis(rows)
}

const listActiveEmisDueBefore = `SELECT ` + emiColumns + ` FROM emis
WHERE status = 'active' AND next_due_date IS NOT NULL AND next_due_date < ?
ORDER BY next_due_date, id`

func (q *Queries) ListActiveEmisDueBefore(ctx context.Context, before string) ([]Emi, error) {
	rows, err := q.db.QueryContext(ctx, listActiveEmisDueBefore, before)
	if err != nil {
		return nil, err
	}
	return collectEmis(rows)
}

func collectEmis(rows *sql.Rows) ([]Emi, error) {
	defer rows.Close()
	items := []Emi{}
	for rows.Next() {
		i, err := scanEmi(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createTransaction = `INSERT INTO transactions (` + transactionColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	ID               string
	UserID           string
	Type             string
	Amount           string
	Description      string
	Date             string
	Tags             string
	PaymentMethod    string
	Notes            string
	IsRecurring      int64
	Frequency        string
	RecurringNextDue sql.NullString
	EmiID            sql.NullString
	CreatedAt        string
	UpdatedAt        string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.ID,
		arg.UserID,
		arg.Type,
		arg.Amount,
		arg.Description,
		arg.Date,
		arg.Tags,
		arg.PaymentMethod,
		arg.Notes,
		arg.IsRecurring,
		arg.Frequency,
		arg.RecurringNextDue,
		arg.EmiID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanTransaction(row)
}

const getTransaction = `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, getTransaction, id)
	return scanTransaction(row)
}

const updateTransaction = `UPDATE transactions SET
    type = ?, amount = ?, description = ?, date = ?, tags = ?, payment_method = ?,
    notes = ?, is_recurring = ?, frequency = ?, recurring_next_due = ?, emi_id = ?,
    updated_at = ?
WHERE id = ?
RETURNING ` + transactionColumns

type UpdateTransactionParams struct {
	Type             string
	Amount           string
	Description      string
	Date             string
	Tags             string
	PaymentMethod    string
	Notes            string
	IsRecurring      int64
	Frequency        string
	RecurringNextDue sql.NullString
	EmiID            sql.NullString
	UpdatedAt        string
	ID               string
}

func (q *Queries) UpdateTransaction(ctx context.Context, arg UpdateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, updateTransaction,
		arg.Type,
		arg.Amount,
		arg.Description,
		arg.Date,
		arg.Tags,
		arg.PaymentMethod,
		arg.Notes,
		arg.IsRecurring,
		arg.Frequency,
		arg.RecurringNextDue,
		arg.EmiID,
		arg.UpdatedAt,
		arg.ID,
	)
	return scanTransaction(row)
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const transactionFilter = `WHERE user_id = ?1
  AND (?2 = '' OR type = ?2)
  AND (?3 = '' OR date >= ?3)
  AND (?4 = '' OR date <= ?4)
  AND (?5 = '' OR emi_id = ?5)`

type ListTransactionsParams struct {
	UserID    string
	Type      string
	StartDate string
	EndDate   string
	EmiID     string
	// OrderBy must come from transactionOrderings.
	OrderBy string
	Limit   int64
	Offset  int64
}

// transactionOrderings maps sort keys to fixed ORDER BY clauses; the key is
// never interpolated.
var transactionOrderings = map[string]string{
	"date asc":       "date ASC, id ASC",
	"date desc":      "date DESC, id DESC",
	"amount asc":     "CAST(amount AS REAL) ASC, id ASC",
	"amount desc":    "CAST(amount AS REAL) DESC, id DESC",
	"createdAt asc":  "created_at ASC, id ASC",
	"createdAt desc": "created_at DESC, id DESC",
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	order, ok := transactionOrderings[arg.OrderBy]
	if !ok {
		return nil, fmt.Errorf("unknown ordering %q", arg.OrderBy)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions ` + transactionFilter +
		` ORDER BY ` + order + ` LIMIT ?6 OFFSET ?7`
	rows, err := q.db.QueryContext(ctx, query,
		arg.UserID,
		arg.Type,
		arg.StartDate,
		arg.EndDate,
		arg.EmiID,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Transaction{}
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countTransactions = `SELECT COUNT(*) FROM transactions ` + transactionFilter

type CountTransactionsParams struct {
	UserID    string
	Type      string
	StartDate string
	EndDate   string
	EmiID     string
}

func (q *Queries) CountTransactions(ctx context.Context, arg CountTransactionsParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countTransactions,
		arg.UserID,
		arg.Type,
		arg.StartDate,
		arg.EndDate,
		arg.EmiID,
	)
	var count int64
	err := row.Scan(&count)
	return count, err
}
