package http

import (
	"net/http"
	"sync/atomic"

	"emitrack/internal/core"
	applog "emitrack/internal/log"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	filter, err := ParseTransactionFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, applog.OpList, "Error getting transactions")
		return
	}

	page, err := s.ledger.List(r.Context(), userID, filter)
	if err != nil {
		s.writeError(w, r, err, applog.OpList, "Error getting transactions")
		return
	}
	items := page.Items
	if items == nil {
		items = []core.Transaction{}
	}
	NewResponse().Data(items).Pagination(PaginationFromPage(page)).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	tx, err := s.ledger.Get(r.Context(), userID, pathID(r))
	if err != nil {
		s.writeError(w, r, err, applog.OpRead, "Error getting transaction")
		return
	}
	NewResponse().Data(tx).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req createTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpCreate, "Error creating transaction")
		return
	}

	tx, err := s.ledger.Create(r.Context(), userID, req.toInput())
	if err != nil {
		s.writeError(w, r, err, applog.OpCreate, "Error creating transaction")
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	NewResponse().Created().Data(tx).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req updateTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpUpdate, "Error updating transaction")
		return
	}

	tx, err := s.ledger.Update(r.Context(), userID, pathID(r), req.toInput())
	if err != nil {
		s.writeError(w, r, err, applog.OpUpdate, "Error updating transaction")
		return
	}
	NewResponse().Data(tx).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Delete(r.Context(), userID, pathID(r)); err != nil {
		s.writeError(w, r, err, applog.OpDelete, "Error deleting transaction")
		return
	}
	NewResponse().Message("Transaction deleted successfully").Write(w)
}
