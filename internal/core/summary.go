package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stats is the aggregate view the backend returns for a collection.
type Stats struct {
	Total         int64 `json:"total"`
	TotalAmount   Money `json:"totalAmount"`
	MonthAmount   Money `json:"monthAmount"`
	AverageAmount Money `json:"averageAmount"`
}

// ComputeStats aggregates tickets; now selects the current month.
func ComputeStats(tickets []Ticket, now time.Time) Stats {
	var st Stats
	for _, t := range tickets {
		st.Total++
		st.TotalAmount.Cents += t.Amount.Cents
		if t.Date.Year() == now.Year() && t.Date.Month() == now.Month() {
			st.MonthAmount.Cents += t.Amount.Cents
		}
	}
	if st.Total > 0 {
		avg := st.TotalAmount.Decimal().Div(decimal.NewFromInt(st.Total))
		st.AverageAmount = Money{Cents: avg.Shift(2).Round(0).IntPart()}
	}
	return st
}
