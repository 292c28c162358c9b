package http

import (
	"fmt"
	"net/http"
	"sync/atomic"

	applog "emitrack/internal/log"
)

func (s *Server) handleListEMIs(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	filter, err := ParseEMIFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err, applog.OpList, "Error fetching EMIs")
		return
	}

	emis, err := s.emis.List(r.Context(), userID, filter)
	if err != nil {
		s.writeError(w, r, err, applog.OpList, "Error fetching EMIs")
		return
	}
	NewResponse().Data(newEMIViews(emis)).Write(w)
}

func (s *Server) handleGetEMI(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	e, err := s.emis.Get(r.Context(), userID, pathID(r))
	if err != nil {
		s.writeError(w, r, err, applog.OpRead, "Error fetching EMI")
		return
	}
	NewResponse().Data(newEMIView(e)).Write(w)
}

func (s *Server) handleCreateEMI(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req createEMIRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpCreate, "Error creating EMI")
		return
	}

	e, err := s.emis.Create(r.Context(), userID, req.toInput())
	if err != nil {
		s.writeError(w, r, err, applog.OpCreate, "Error creating EMI")
		return
	}
	atomic.AddInt64(&s.appMetrics.emisCreated, 1)
	NewResponse().Created().Data(newEMIView(e)).Write(w)
}

func (s *Server) handleEditEMI(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req editEMIRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpUpdate, "Error updating EMI")
		return
	}

	e, err := s.emis.Edit(r.Context(), userID, pathID(r), req.toInput())
	if err != nil {
		s.writeError(w, r, err, applog.OpUpdate, "Error updating EMI")
		return
	}
	NewResponse().Data(newEMIView(e)).Write(w)
}

func (s *Server) handleDeleteEMI(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	if err := s.emis.Delete(r.Context(), userID, pathID(r)); err != nil {
		s.writeError(w, r, err, applog.OpDelete, "Error deleting EMI")
		return
	}
	NewResponse().Message("EMI deleted successfully").Write(w)
}

func (s *Server) handlePayEMI(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req payRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpPay, "Error recording EMI payment")
		return
	}
	in, err := req.toInput()
	if err != nil {
		s.writeError(w, r, err, applog.OpPay, "Error recording EMI payment")
		return
	}

	res, err := s.emis.Pay(r.Context(), userID, pathID(r), in)
	if err != nil {
		s.writeError(w, r, err, applog.OpPay, "Error recording EMI payment")
		return
	}
	atomic.AddInt64(&s.appMetrics.paymentsRecorded, 1)
	s.events.LogEMIPaid(r.Context(), userID, res.EMI.ID, res.EMI.Name, string(res.EMI.Status),
		res.EMI.PaidInstallments, res.Transaction.ID, res.Transaction.Amount.String())

	NewResponse().
		Message("EMI payment recorded successfully").
		Data(map[string]any{
			"emi":         newEMIView(res.EMI),
			"transaction": res.Transaction,
		}).
		Write(w)
}

func (s *Server) handleBulkTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req bulkTransactionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpBulk, "Error creating bulk transactions")
		return
	}
	in, err := req.toInput()
	if err != nil {
		s.writeError(w, r, err, applog.OpBulk, "Error creating bulk transactions")
		return
	}

	res, err := s.emis.BulkTransactions(r.Context(), userID, pathID(r), in)
	if err != nil {
		s.writeError(w, r, err, applog.OpBulk, "Error creating bulk transactions")
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsCreated, int64(len(res.Transactions)))

	NewResponse().
		Created().
		Message(fmt.Sprintf("Successfully created %d transaction records for %s", len(res.Transactions), res.EMI.Name)).
		Data(map[string]any{
			"emi":          newEMIView(res.EMI),
			"transactions": res.Transactions,
			"totalAmount":  res.TotalAmount,
		}).
		Write(w)
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req bulkUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err, applog.OpBulk, "Error updating EMI with bulk payments")
		return
	}
	in, err := req.toInput()
	if err != nil {
		s.writeError(w, r, err, applog.OpBulk, "Error updating EMI with bulk payments")
		return
	}

	e, err := s.emis.BulkUpdate(r.Context(), userID, pathID(r), in)
	if err != nil {
		s.writeError(w, r, err, applog.OpBulk, "Error updating EMI with bulk payments")
		return
	}
	NewResponse().
		Message("EMI updated successfully with bulk payment information").
		Data(newEMIView(e)).
		Write(w)
}

func (s *Server) handleEMISummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	summary, err := s.emis.Summary(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err, applog.OpSummary, "Error fetching EMI summary")
		return
	}
	NewResponse().Data(summary).Write(w)
}
