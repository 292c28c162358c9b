// Package http provides the JSON REST API.
//
// This file implements the Builder Pattern for the response envelope
// {success, data, message, errors, pagination} shared by every endpoint.

package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"emitrack/internal/core"
	"emitrack/internal/services"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool              `json:"success"`
	Data       any               `json:"data,omitempty"`
	Message    string            `json:"message,omitempty"`
	Errors     []core.FieldError `json:"errors,omitempty"`
	Pagination *Pagination       `json:"pagination,omitempty"`
}

// Pagination describes one page of a list response.
type Pagination struct {
	CurrentPage  int `json:"currentPage"`
	TotalPages   int `json:"totalPages"`
	TotalItems   int `json:"totalItems"`
	ItemsPerPage int `json:"itemsPerPage"`
}

// PaginationFromPage builds the pagination block for a transaction page.
func PaginationFromPage(p services.TransactionPage) *Pagination {
	return &Pagination{
		CurrentPage:  p.Page,
		TotalPages:   p.TotalPages(),
		TotalItems:   p.TotalItems,
		ItemsPerPage: p.Limit,
	}
}

// ResponseBuilder provides a fluent API for building envelope responses.
type ResponseBuilder struct {
	statusCode int
	envelope   Envelope
	headers    map[string]string
}

// NewResponse creates a successful response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		envelope:   Envelope{Success: true},
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Created is Status(201).
func (b *ResponseBuilder) Created() *ResponseBuilder {
	return b.Status(http.StatusCreated)
}

// Data sets the payload.
func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.envelope.Data = data
	return b
}

// Message sets the human readable message.
func (b *ResponseBuilder) Message(msg string) *ResponseBuilder {
	b.envelope.Message = msg
	return b
}

// Errors sets the field errors and marks the response as failed.
func (b *ResponseBuilder) Errors(fields []core.FieldError) *ResponseBuilder {
	b.envelope.Success = false
	b.envelope.Errors = fields
	return b
}

// Pagination attaches list paging metadata.
func (b *ResponseBuilder) Pagination(p *Pagination) *ResponseBuilder {
	b.envelope.Pagination = p
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// Envelope returns the body that Write would send.
func (b *ResponseBuilder) Envelope() Envelope {
	return b.envelope
}

// StatusCode returns the status that Write would send.
func (b *ResponseBuilder) StatusCode() int {
	return b.statusCode
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	body, err := json.Marshal(b.envelope)
	if err != nil {
		slog.Error("Failed to encode response envelope", "component", "http", "error", err)
		body = []byte(`{"success":false,"message":"Internal server error"}`)
		b.statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorResponse creates a failed response with a message.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	b := NewResponse().Status(statusCode).Message(message)
	b.envelope.Success = false
	return b
}

// ValidationErrorResponse creates a 400 listing each rejected field. A single
// field error also becomes the message.
func ValidationErrorResponse(fields []core.FieldError) *ResponseBuilder {
	msg := "Validation failed"
	if len(fields) == 1 {
		msg = fields[0].Message
	}
	return ErrorResponse(http.StatusBadRequest, msg).Errors(fields)
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnauthorizedError creates a 401 Unauthorized error response.
func UnauthorizedError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// ConflictError creates a 409 Conflict error response.
func ConflictError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusConflict, message)
}

// TooManyRequestsError creates a 429 Too Many Requests error response.
func TooManyRequestsError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *ResponseBuilder {
	b := ErrorResponse(http.StatusMethodNotAllowed, "Method not allowed")
	if allowedMethods != "" {
		b.Header("Allow", allowedMethods)
	}
	return b
}
