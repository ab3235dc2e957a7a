package model

import "github.com/shopspring/decimal"

// Summary is the aggregate block the order endpoint may include. When absent
// the client derives it from the paid non-cancelled subset.
type Summary struct {
	TotalOrders          int             `json:"totalOrders"`
	ConfirmedOrders      int             `json:"confirmedOrders"`
	CancelledOrderAmount decimal.Decimal `json:"cancelledOrderAmount"`
	TotalRevenue         decimal.Decimal `json:"totalRevenue"`
}

// DeriveSummary computes a Summary from a normalized order list.
func DeriveSummary(orders []NormalizedOrder) Summary {
	var s Summary
	for _, o := range orders {
		if o.Status == "cancelled" {
			s.CancelledOrderAmount = s.CancelledOrderAmount.Add(o.Total)
			continue
		}
		if !o.Paid() {
			continue
		}
		s.TotalOrders++
		if o.Status == "confirmed" {
			s.ConfirmedOrders++
		}
		s.TotalRevenue = s.TotalRevenue.Add(o.Total)
	}
	return s
}
