package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Emi struct {
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
	Version           int64
	CreatedAt         string
	UpdatedAt         string
}

type Transaction struct {
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
