package core

import "github.com/shopspring/decimal"

// EMISummary aggregates a user's EMIs.
type EMISummary struct {
	Total          int             `json:"total"`
	Active         int             `json:"active"`
	Completed      int             `json:"completed"`
	Defaulted      int             `json:"defaulted"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	TotalRemaining decimal.Decimal `json:"totalRemaining"`
	TotalPaid      decimal.Decimal `json:"totalPaid"`
	MonthlyEMI     decimal.Decimal `json:"monthlyEMI"`
}

// Summarize folds emis into an EMISummary. monthlyEMI only counts active
// EMIs.
func Summarize(emis []EMI) EMISummary {
	s := EMISummary{
		TotalAmount:    decimal.Zero,
		TotalRemaining: decimal.Zero,
		TotalPaid:      decimal.Zero,
		MonthlyEMI:     decimal.Zero,
	}
	for _, e := range emis {
		s.Total++
		switch e.Status {
		case StatusActive:
			s.Active++
			s.MonthlyEMI = s.MonthlyEMI.Add(e.EMIAmount)
		case StatusCompleted:
			s.Completed++
		case StatusDefaulted:
			s.Defaulted++
		}
		s.TotalAmount = s.TotalAmount.Add(e.TotalAmount())
		s.TotalRemaining = s.TotalRemaining.Add(e.RemainingAmount)
		s.TotalPaid = s.TotalPaid.Add(e.PaidAmount())
	}
	return s
}
