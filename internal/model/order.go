package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the raw record as returned by the order-fetch endpoint. The API
// has gone through several payload revisions, so most fields have one or two
// historical aliases. Nothing downstream of Normalize may read this type.
type Order struct {
	ID        string `json:"orderId"`
	MongoID   string `json:"_id"`
	Number    string `json:"orderNumber"`
	Status    string `json:"status"`
	OrderType string `json:"orderType"`
	Source    string `json:"source"`

	PaymentStatus string `json:"paymentStatus"`
	PaymentMethod string `json:"paymentMethod"`

	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	Items []OrderItem `json:"items"`

	// Pricing block — newer payloads nest it, older ones carry flat totals.
	Pricing     *Pricing         `json:"pricing,omitempty"`
	TotalAmount *decimal.Decimal `json:"totalAmount,omitempty"`
	Total       *decimal.Decimal `json:"total,omitempty"`

	CustomerName  string `json:"customerName"`
	CustomerPhone string `json:"customerPhone"`

	ScreenNumber string `json:"screenNumber"`
	SeatNumber   string `json:"seatNumber"`
}

// OrderItem is one raw line item. Category lives in a different field
// depending on payload age; ResolveCategory picks the first non-empty one.
type OrderItem struct {
	Name            string `json:"name"`
	Size            string `json:"size"`
	Category        string `json:"category"`
	CategoryName    string `json:"categoryName"`
	ProductCategory string `json:"productCategory"`

	Quantity  int              `json:"quantity"`
	Price     decimal.Decimal  `json:"price"`
	LineTotal *decimal.Decimal `json:"total,omitempty"`
}

// Pricing is the nested pricing block of newer payloads.
type Pricing struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// OtherCategory is the sentinel for items whose category cannot be resolved.
const OtherCategory = "Other"

// ResolveCategory returns the line item's category, checking the historical
// field locations in order. This is the only place category fallbacks live.
func ResolveCategory(it OrderItem) string {
	for _, c := range []string{it.Category, it.CategoryName, it.ProductCategory} {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return OtherCategory
}

// paidStatuses unifies the payment-status vocabulary across providers.
var paidStatuses = map[string]bool{
	"paid":      true,
	"completed": true,
	"success":   true,
}

// IsPaidStatus reports whether a raw paymentStatus string counts as paid.
func IsPaidStatus(s string) bool {
	return paidStatuses[strings.ToLower(strings.TrimSpace(s))]
}

var onlineSources = map[string]bool{
	"qr_code":  true,
	"qr_order": true,
	"online":   true,
	"web":      true,
	"app":      true,
	"customer": true,
}

var onlineOrderTypes = map[string]bool{
	"qr_order": true,
	"online":   true,
}

// LineItem is a normalized line item with the category already resolved.
type LineItem struct {
	Name     string
	Size     string
	Category string
	Quantity int
	Rate     decimal.Decimal
	Amount   decimal.Decimal
}

// NormalizedOrder is the stable shape every component downstream of ingress
// works with. Produced exactly once per record by Normalize; no field
// fallbacks exist past this point.
type NormalizedOrder struct {
	Identity Identity

	Status        string
	PaymentStatus string
	PaymentMethod string
	Online        bool

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	UpdatedAt   time.Time

	Items []LineItem

	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal

	CustomerName  string
	CustomerPhone string
	ScreenNumber  string
	SeatNumber    string
}

// Paid reports whether the order may trigger notifications or prints.
func (o NormalizedOrder) Paid() bool { return IsPaidStatus(o.PaymentStatus) }

// Normalize collapses a raw Order into its stable form.
func Normalize(raw Order) NormalizedOrder {
	o := NormalizedOrder{
		Identity:      NewIdentity(firstNonEmpty(raw.ID, raw.MongoID), raw.Number),
		Status:        strings.ToLower(strings.TrimSpace(raw.Status)),
		PaymentStatus: strings.ToLower(strings.TrimSpace(raw.PaymentStatus)),
		PaymentMethod: raw.PaymentMethod,
		Online:        onlineSources[strings.ToLower(raw.Source)] || onlineOrderTypes[strings.ToLower(raw.OrderType)],
		CreatedAt:     raw.CreatedAt,
		ConfirmedAt:   raw.ConfirmedAt,
		UpdatedAt:     raw.UpdatedAt,
		CustomerName:  strings.TrimSpace(raw.CustomerName),
		CustomerPhone: strings.TrimSpace(raw.CustomerPhone),
		ScreenNumber:  raw.ScreenNumber,
		SeatNumber:    raw.SeatNumber,
	}

	for _, it := range raw.Items {
		li := LineItem{
			Name:     it.Name,
			Size:     it.Size,
			Category: ResolveCategory(it),
			Quantity: it.Quantity,
			Rate:     it.Price,
		}
		if it.LineTotal != nil {
			li.Amount = *it.LineTotal
		} else {
			li.Amount = it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		}
		o.Items = append(o.Items, li)
	}

	switch {
	case raw.Pricing != nil:
		o.Subtotal = raw.Pricing.Subtotal
		o.Tax = raw.Pricing.Tax
		o.Discount = raw.Pricing.Discount
		o.Total = raw.Pricing.Total
	case raw.TotalAmount != nil:
		o.Total = *raw.TotalAmount
	case raw.Total != nil:
		o.Total = *raw.Total
	}
	if o.Total.IsZero() {
		for _, li := range o.Items {
			o.Total = o.Total.Add(li.Amount)
		}
	}
	return o
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
