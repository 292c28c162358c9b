package http

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"emitrack/internal/auth"
	"emitrack/internal/core"
	applog "emitrack/internal/log"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// emiView is the wire form of an EMI; it adds the derived total amount.
type emiView struct {
	core.EMI
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

func newEMIView(e core.EMI) emiView {
	return emiView{EMI: e, TotalAmount: e.TotalAmount()}
}

func newEMIViews(emis []core.EMI) []emiView {
	views := make([]emiView, 0, len(emis))
	for _, e := range emis {
		views = append(views, newEMIView(e))
	}
	return views
}

// userID returns the caller resolved by the auth gate. The gate runs before
// every /api handler, so a miss here is a wiring bug.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		UnauthorizedError(auth.MsgNoToken).Write(w)
		return "", false
	}
	return id, true
}

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// writeError classifies err and writes the matching envelope. Anything not
// recognized is logged and answered with a 500 carrying fallback.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, operation, fallback string) {
	var (
		verr *core.ValidationError
		derr *core.Error
	)
	logger := applog.FromContext(r.Context())

	switch {
	case errors.As(err, &verr):
		ValidationErrorResponse(verr.Fields).Write(w)
	case errors.As(err, &derr):
		status := statusForKind(derr.Kind)
		if status == http.StatusConflict {
			atomic.AddInt64(&s.appMetrics.conflicts, 1)
			logger.WarnContext(r.Context(), "Concurrent update gave up",
				applog.FieldOperation, operation,
				applog.FieldErrorType, applog.ErrorTypeConflict)
		}
		ErrorResponse(status, derr.Message).Write(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError("Resource not found").Write(w)
	case errors.Is(err, core.ErrConflict):
		atomic.AddInt64(&s.appMetrics.conflicts, 1)
		ConflictError("Resource was modified concurrently, please retry").Write(w)
	case errors.Is(err, context.DeadlineExceeded):
		s.events.LogError(r.Context(), "Request timed out", err, applog.ComponentHTTP, operation,
			applog.NewFields().WithErrorType(applog.ErrorTypeTimeout))
		InternalServerError(fallback).Write(w)
	default:
		s.events.LogError(r.Context(), fallback, err, applog.ComponentHTTP, operation,
			applog.NewFields().WithErrorType(applog.ErrorTypeInternal))
		InternalServerError(fallback).Write(w)
	}
}

func statusForKind(kind error) int {
	switch {
	case errors.Is(kind, core.ErrValidation), errors.Is(kind, core.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(kind, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, core.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
