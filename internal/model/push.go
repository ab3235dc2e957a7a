package model

import "strings"

// PushEvent is one advisory event from the push channel. Any field may be
// absent; the canonical order list always comes from the poller.
type PushEvent struct {
	OrderID       string `json:"orderId,omitempty"`
	OrderNumber   string `json:"orderNumber,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	Order         *Order `json:"order,omitempty"`
}

// Identity returns the event's order identity, falling back to the embedded
// order record when the top-level fields are empty.
func (e PushEvent) Identity() Identity {
	id := NewIdentity(e.OrderID, e.OrderNumber)
	if !id.Valid() && e.Order != nil {
		id = NewIdentity(firstNonEmpty(e.Order.ID, e.Order.MongoID), e.Order.Number)
	}
	return id
}

// Negative reports whether the event explicitly carries a failed, refunded,
// or cancelled payment status. Such events trigger a silent refresh only.
func (e PushEvent) Negative() bool {
	switch strings.ToLower(strings.TrimSpace(e.PaymentStatus)) {
	case "failed", "refunded", "cancelled":
		return true
	}
	return false
}
