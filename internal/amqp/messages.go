package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"emitrack/internal/core"

	"github.com/shopspring/decimal"
)

// EventType names a ledger event. It doubles as the AMQP message type.
type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionDeleted EventType = "transaction.deleted"
	EventEMIPaid            EventType = "emi.paid"
)

var errMissingTransactionID = errors.New("missing transaction id")

// LedgerEventMessage carries enough of a transaction for the mirror worker
// to write or mark a row without reading the database.
type LedgerEventMessage struct {
	Type            EventType            `json:"type"`
	TransactionID   string               `json:"transactionId"`
	UserID          string               `json:"userId"`
	TransactionType core.TransactionType `json:"transactionType"`
	Amount          decimal.Decimal      `json:"amount"`
	Description     string               `json:"description"`
	Date            core.Date            `json:"date"`
	EMIID           string               `json:"emiId,omitempty"`
	EMIStatus       core.Status          `json:"emiStatus,omitempty"`
	PaidInstallment int                  `json:"paidInstallments,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}

// NewTransactionEvent builds a created or deleted event for t.
func NewTransactionEvent(kind EventType, t core.Transaction) *LedgerEventMessage {
	return &LedgerEventMessage{
		Type:            kind,
		TransactionID:   t.ID,
		UserID:          t.UserID,
		TransactionType: t.Type,
		Amount:          t.Amount,
		Description:     t.Description,
		Date:            t.Date,
		EMIID:           t.EMIID,
		Timestamp:       time.Now(),
	}
}

// NewEMIPaidEvent builds the event emitted after an EMI payment and its
// ledger transaction were both stored.
func NewEMIPaidEvent(e core.EMI, t core.Transaction) *LedgerEventMessage {
	msg := NewTransactionEvent(EventEMIPaid, t)
	msg.EMIID = e.ID
	msg.EMIStatus = e.Status
	msg.PaidInstallment = e.PaidInstallments
	return msg
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes and checks a message body.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	switch msg.Type {
	case EventTransactionCreated, EventTransactionDeleted, EventEMIPaid:
	default:
		return nil, fmt.Errorf("unknown event type %q", msg.Type)
	}
	if msg.TransactionID == "" {
		return nil, errMissingTransactionID
	}
	return &msg, nil
}
