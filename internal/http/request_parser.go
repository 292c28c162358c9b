// Package http provides the JSON REST API.
//
// This file holds request decoding: JSON bodies into service inputs and
// query strings into list filters. Every problem is reported as a
// *core.ValidationError so the handlers map it to a 400.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"emitrack/internal/core"
	"emitrack/internal/ports"
	"emitrack/internal/services"

	"github.com/shopspring/decimal"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type (
	createEMIRequest struct {
		Name              string           `json:"name"`
		Type              core.EMIType     `json:"type"`
		PaymentType       core.PaymentType `json:"paymentType"`
		EMIAmount         *decimal.Decimal `json:"emiAmount"`
		TotalInstallments *int             `json:"totalInstallments"`
		StartDate         *core.Date       `json:"startDate"`
		Notes             string           `json:"notes"`
	}

	editEMIRequest struct {
		Name              *string           `json:"name"`
		Type              *core.EMIType     `json:"type"`
		PaymentType       *core.PaymentType `json:"paymentType"`
		EMIAmount         *decimal.Decimal  `json:"emiAmount"`
		TotalInstallments *int              `json:"totalInstallments"`
		PaidInstallments  *int              `json:"paidInstallments"`
		StartDate         *core.Date        `json:"startDate"`
		Status            *core.Status      `json:"status"`
		Notes             *string           `json:"notes"`
	}

	payRequest struct {
		Amount *decimal.Decimal `json:"amount"`
		Date   *core.Date       `json:"date"`
		Notes  string           `json:"notes"`
	}

	bulkTransactionsRequest struct {
		StartDate        *core.Date       `json:"startDate"`
		NumberOfPayments *int             `json:"numberOfPayments"`
		PaymentAmount    *decimal.Decimal `json:"paymentAmount"`
	}

	bulkUpdateRequest struct {
		PaidInstallments *int       `json:"paidInstallments"`
		LastPaymentDate  *core.Date `json:"lastPaymentDate"`
	}

	createTransactionRequest struct {
		Type          core.TransactionType `json:"type"`
		Amount        *decimal.Decimal     `json:"amount"`
		Description   string               `json:"description"`
		Date          *core.Date           `json:"date"`
		Tags          []string             `json:"tags"`
		PaymentMethod core.PaymentMethod   `json:"paymentMethod"`
		Notes         string               `json:"notes"`
		Recurring     *core.Recurring      `json:"recurring"`
	}

	updateTransactionRequest struct {
		Type          *core.TransactionType `json:"type"`
		Amount        *decimal.Decimal      `json:"amount"`
		Description   *string               `json:"description"`
		Date          *core.Date            `json:"date"`
		Tags          *[]string             `json:"tags"`
		PaymentMethod *core.PaymentMethod   `json:"paymentMethod"`
		Notes         *string               `json:"notes"`
		Recurring     *core.Recurring       `json:"recurring"`
	}
)

// decodeJSON reads a single JSON object from the request body into dst.
// An empty body decodes to the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return bodyError(err)
	}
	if dec.More() {
		return core.NewValidationError("body", "Request body must contain a single JSON object")
	}
	return nil
}

// bodyError turns a decoding failure into a field-level validation error.
func bodyError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		sizeErr   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return core.NewValidationError("body", fmt.Sprintf("Malformed JSON at offset %d", syntaxErr.Offset))
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return core.NewValidationError(field, fmt.Sprintf("Expected %s", typeErr.Type))
	case errors.As(err, &sizeErr):
		return core.NewValidationError("body", "Request body is too large")
	case errors.Is(err, core.ErrInvalidDate):
		return core.NewValidationError("date", "Date must be a valid ISO date")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return core.NewValidationError("body", "Malformed JSON")
	default:
		return core.NewValidationError("body", "Invalid request body")
	}
}

func (req createEMIRequest) toInput() services.CreateEMIInput {
	return services.CreateEMIInput{
		Name:              sanitizeInput(req.Name),
		Type:              req.Type,
		PaymentType:       req.PaymentType,
		EMIAmount:         req.EMIAmount,
		TotalInstallments: req.TotalInstallments,
		StartDate:         req.StartDate,
		Notes:             sanitizeInput(req.Notes),
	}
}

func (req editEMIRequest) toInput() services.EditEMIInput {
	return services.EditEMIInput{
		Name:              sanitizePtr(req.Name),
		Type:              req.Type,
		PaymentType:       req.PaymentType,
		EMIAmount:         req.EMIAmount,
		TotalInstallments: req.TotalInstallments,
		PaidInstallments:  req.PaidInstallments,
		StartDate:         req.StartDate,
		Status:            req.Status,
		Notes:             sanitizePtr(req.Notes),
	}
}

func (req payRequest) toInput() (services.PayInput, error) {
	verr := &core.ValidationError{}
	if req.Amount == nil {
		verr.Add("amount", "Payment amount must be a positive number")
	}
	if req.Date == nil || req.Date.IsZero() {
		verr.Add("date", "Please provide a valid payment date")
	}
	if err := verr.OrNil(); err != nil {
		return services.PayInput{}, err
	}
	return services.PayInput{
		Amount: *req.Amount,
		Date:   *req.Date,
		Notes:  sanitizeInput(req.Notes),
	}, nil
}

func (req bulkTransactionsRequest) toInput() (services.BulkTransactionsInput, error) {
	verr := &core.ValidationError{}
	if req.StartDate == nil || req.StartDate.IsZero() {
		verr.Add("startDate", "Please provide a valid start date")
	}
	if req.NumberOfPayments == nil {
		verr.Add("numberOfPayments", "Number of payments must be between 1 and 60")
	}
	if req.PaymentAmount == nil {
		verr.Add("paymentAmount", "Payment amount must be a positive number")
	}
	if err := verr.OrNil(); err != nil {
		return services.BulkTransactionsInput{}, err
	}
	return services.BulkTransactionsInput{
		StartDate:        *req.StartDate,
		NumberOfPayments: *req.NumberOfPayments,
		PaymentAmount:    *req.PaymentAmount,
	}, nil
}

func (req bulkUpdateRequest) toInput() (services.BulkUpdateInput, error) {
	verr := &core.ValidationError{}
	if req.PaidInstallments == nil {
		verr.Add("paidInstallments", "Paid installments must be a non-negative integer")
	}
	if req.LastPaymentDate == nil || req.LastPaymentDate.IsZero() {
		verr.Add("lastPaymentDate", "Please provide a valid last payment date")
	}
	if err := verr.OrNil(); err != nil {
		return services.BulkUpdateInput{}, err
	}
	return services.BulkUpdateInput{
		PaidInstallments: *req.PaidInstallments,
		LastPaymentDate:  *req.LastPaymentDate,
	}, nil
}

func (req createTransactionRequest) toInput() services.CreateTransactionInput {
	return services.CreateTransactionInput{
		Type:          req.Type,
		Amount:        req.Amount,
		Description:   sanitizeInput(req.Description),
		Date:          req.Date,
		Tags:          sanitizeTags(req.Tags),
		PaymentMethod: req.PaymentMethod,
		Notes:         sanitizeInput(req.Notes),
		Recurring:     req.Recurring,
	}
}

func (req updateTransactionRequest) toInput() services.UpdateTransactionInput {
	in := services.UpdateTransactionInput{
		Type:          req.Type,
		Amount:        req.Amount,
		Description:   sanitizePtr(req.Description),
		Date:          req.Date,
		PaymentMethod: req.PaymentMethod,
		Notes:         sanitizePtr(req.Notes),
		Recurring:     req.Recurring,
	}
	if req.Tags != nil {
		tags := sanitizeTags(*req.Tags)
		in.Tags = &tags
	}
	return in
}

// ParseEMIFilter reads status, paymentType, dueAfter and dueBefore.
func ParseEMIFilter(query url.Values) (ports.EMIFilter, error) {
	var f ports.EMIFilter
	verr := &core.ValidationError{}

	if v := strings.TrimSpace(query.Get("status")); v != "" {
		f.Status = core.Status(v)
		if !f.Status.Valid() {
			verr.Add("status", "Status must be active, completed or defaulted")
		}
	}
	if v := strings.TrimSpace(query.Get("paymentType")); v != "" {
		f.PaymentType = core.PaymentType(v)
		if !f.PaymentType.Valid() {
			verr.Add("paymentType", "Payment type must be emi, full_payment or subscription")
		}
	}
	f.DueAfter = parseDateParam(query, "dueAfter", verr)
	f.DueBefore = parseDateParam(query, "dueBefore", verr)

	return f, verr.OrNil()
}

// ParseTransactionFilter reads paging, sorting and filter parameters. Paging
// values that are not numbers fall back to the defaults; filter values that
// cannot be understood are rejected.
func ParseTransactionFilter(query url.Values) (ports.TransactionFilter, error) {
	f := ports.TransactionFilter{
		Page:  parseIntParam(query, "page", 1),
		Limit: parseIntParam(query, "limit", ports.DefaultPageSize),
		EMIID: strings.TrimSpace(query.Get("emiId")),
	}
	verr := &core.ValidationError{}

	if v := strings.TrimSpace(query.Get("type")); v != "" {
		f.Type = core.TransactionType(v)
		if !f.Type.Valid() {
			verr.Add("type", "Type must be income or expense")
		}
	}
	f.StartDate = parseDateParam(query, "startDate", verr)
	f.EndDate = parseDateParam(query, "endDate", verr)

	if v := strings.TrimSpace(query.Get("sortBy")); v != "" {
		switch sf := ports.SortField(v); sf {
		case ports.SortByDate, ports.SortByAmount, ports.SortByCreatedAt:
			f.SortBy = sf
		default:
			verr.Add("sortBy", "Sort field must be date, amount or createdAt")
		}
	}
	if v := strings.ToLower(strings.TrimSpace(query.Get("sortOrder"))); v != "" {
		switch so := ports.SortOrder(v); so {
		case ports.Asc, ports.Desc:
			f.SortOrder = so
		default:
			verr.Add("sortOrder", "Sort order must be asc or desc")
		}
	}

	if err := verr.OrNil(); err != nil {
		return ports.TransactionFilter{}, err
	}
	return f.Normalize(), nil
}

func parseIntParam(query url.Values, key string, fallback int) int {
	if v := strings.TrimSpace(query.Get(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func parseDateParam(query url.Values, key string, verr *core.ValidationError) *core.Date {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		verr.Add(key, "Date must be a valid ISO date")
		return nil
	}
	return &d
}

func sanitizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	clean := sanitizeInput(*s)
	return &clean
}

func sanitizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = sanitizeInput(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
