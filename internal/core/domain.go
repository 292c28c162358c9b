package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentTypeEMI          PaymentType = "emi"
	PaymentTypeFullPayment  PaymentType = "full_payment"
	PaymentTypeSubscription PaymentType = "subscription"

	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusDefaulted Status = "defaulted"

	Income  TransactionType = "income"
	Expense TransactionType = "expense"

	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

type (
	PaymentType     string
	Status          string
	EMIType         string
	TransactionType string
	PaymentMethod   string
	Frequency       string

	// EMI is one financing obligation: an installment loan, a subscription
	// or a one-off full payment.
	EMI struct {
		ID                string          `json:"id"`
		UserID            string          `json:"user"`
		Name              string          `json:"name"`
		Type              EMIType         `json:"type"`
		PaymentType       PaymentType     `json:"paymentType"`
		EMIAmount         decimal.Decimal `json:"emiAmount"`
		TotalInstallments int             `json:"totalInstallments"`
		PaidInstallments  int             `json:"paidInstallments"`
		RemainingAmount   decimal.Decimal `json:"remainingAmount"`
		StartDate         Date            `json:"startDate"`
		NextDueDate       *Date           `json:"nextDueDate"`
		EndDate           *Date           `json:"endDate"`
		Status            Status          `json:"status"`
		Notes             string          `json:"notes,omitempty"`
		Version           int64           `json:"version"`
		CreatedAt         time.Time       `json:"createdAt"`
		UpdatedAt         time.Time       `json:"updatedAt"`
	}

	Recurring struct {
		IsRecurring bool      `json:"isRecurring"`
		Frequency   Frequency `json:"frequency"`
		NextDueDate *Date     `json:"nextDueDate,omitempty"`
	}

	// Transaction is a dated ledger entry. EMIID is only set when the entry
	// was generated by an EMI payment; externally authored entries are linked
	// by description matching at write time and never stored as a relation.
	Transaction struct {
		ID            string          `json:"id"`
		UserID        string          `json:"user"`
		Type          TransactionType `json:"type"`
		Amount        decimal.Decimal `json:"amount"`
		Description   string          `json:"description"`
		Date          Date            `json:"date"`
		Tags          []string        `json:"tags"`
		PaymentMethod PaymentMethod   `json:"paymentMethod"`
		Notes         string          `json:"notes,omitempty"`
		Recurring     Recurring       `json:"recurring"`
		EMIID         string          `json:"emiId,omitempty"`
		CreatedAt     time.Time       `json:"createdAt"`
		UpdatedAt     time.Time       `json:"updatedAt"`
	}
)

// EMITypes is the single list of EMI classifications accepted by both the
// API validators and the storage layer.
var EMITypes = []EMIType{
	"personal_loan", "mobile_emi", "laptop_emi", "savings_emi",
	"car_loan", "home_loan", "business_loan", "education_loan",
	"credit_card", "appliance_emi", "furniture_emi", "bike_emi",
	"cheetu", "income_emi", "rent", "subscription", "other",
}

const DefaultEMIType EMIType = "other"

var PaymentMethods = []PaymentMethod{
	"cash", "credit_card", "debit_card", "bank_transfer", "digital_wallet", "other",
}

const (
	DefaultPaymentMethod PaymentMethod = "other"
	BankTransfer         PaymentMethod = "bank_transfer"
)

func (t EMIType) Valid() bool {
	for _, v := range EMITypes {
		if v == t {
			return true
		}
	}
	return false
}

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentTypeEMI, PaymentTypeFullPayment, PaymentTypeSubscription:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusDefaulted:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

func (m PaymentMethod) Valid() bool {
	for _, v := range PaymentMethods {
		if v == m {
			return true
		}
	}
	return false
}

func (f Frequency) Valid() bool {
	switch f {
	case Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// TotalAmount is the full obligation: the single charge for a full payment,
// otherwise one installment times the number of installments.
func (e EMI) TotalAmount() decimal.Decimal {
	if e.PaymentType == PaymentTypeFullPayment {
		return e.EMIAmount
	}
	return e.EMIAmount.Mul(decimal.NewFromInt(int64(e.TotalInstallments)))
}

// PaidAmount is the money accounted for by paid installments.
func (e EMI) PaidAmount() decimal.Decimal {
	return e.EMIAmount.Mul(decimal.NewFromInt(int64(e.PaidInstallments)))
}

// OwnedBy reports whether userID owns the EMI.
func (e EMI) OwnedBy(userID string) bool {
	return userID != "" && e.UserID == userID
}

func (t Transaction) OwnedBy(userID string) bool {
	return userID != "" && t.UserID == userID
}

// Validate checks the stored shape of an EMI.
func (e EMI) Validate() error {
	verr := &ValidationError{}
	name := strings.TrimSpace(e.Name)
	if len(name) < 2 {
		verr.Add("name", "Name must be at least 2 characters long")
	} else if len(name) > 100 {
		verr.Add("name", "EMI name cannot be more than 100 characters")
	}
	if !e.Type.Valid() {
		verr.Add("type", "Invalid EMI type")
	}
	if !e.PaymentType.Valid() {
		verr.Add("paymentType", "Payment type must be either EMI, Subscription or Full Payment")
	}
	if e.EMIAmount.IsNegative() {
		verr.Add("emiAmount", "EMI amount cannot be negative")
	}
	if e.PaymentType == PaymentTypeEMI && e.TotalInstallments < 1 {
		verr.Add("totalInstallments", "Total installments must be at least 1")
	}
	if e.PaidInstallments < 0 {
		verr.Add("paidInstallments", "Paid installments cannot be negative")
	}
	if e.StartDate.IsZero() {
		verr.Add("startDate", "Please provide a valid start date")
	}
	if e.PaymentType != PaymentTypeFullPayment && e.NextDueDate == nil {
		verr.Add("nextDueDate", "Next due date is required")
	}
	if e.PaymentType == PaymentTypeEMI && e.EndDate == nil {
		verr.Add("endDate", "End date is required")
	}
	if !e.Status.Valid() {
		verr.Add("status", "Invalid status")
	}
	if len(e.Notes) > 500 {
		verr.Add("notes", "Notes cannot exceed 500 characters")
	}
	return verr.OrNil()
}

// Validate checks the stored shape of a transaction.
func (t Transaction) Validate() error {
	verr := &ValidationError{}
	if !t.Type.Valid() {
		verr.Add("type", "Type must be income or expense")
	}
	if t.Amount.IsNegative() {
		verr.Add("amount", "Amount must be a positive number")
	}
	desc := strings.TrimSpace(t.Description)
	if len(desc) == 0 || len(desc) > 200 {
		verr.Add("description", "Description is required and must be less than 200 characters")
	}
	if t.Date.IsZero() {
		verr.Add("date", "Date must be a valid ISO date")
	}
	if !t.PaymentMethod.Valid() {
		verr.Add("paymentMethod", "Invalid payment method")
	}
	if t.Recurring.Frequency != "" && !t.Recurring.Frequency.Valid() {
		verr.Add("recurring.frequency", "Frequency must be weekly, monthly or yearly")
	}
	if len(t.Notes) > 500 {
		verr.Add("notes", "Notes cannot be more than 500 characters")
	}
	return verr.OrNil()
}
