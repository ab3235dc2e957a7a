// Package receipt renders the overall GST bill and the per-category kitchen
// tickets. The layout is computed as 32-column monospace text lines first,
// then drawn onto an 80mm PDF; tests assert on the lines.
package receipt

import (
	"fmt"
	"strings"
	"time"

	"cinepos/internal/model"

	"github.com/shopspring/decimal"
)

// TheaterInfo is the header block printed on every receipt.
type TheaterInfo struct {
	Name     string
	FSSAI    string
	GST      string
	LogoPath string
}

const lineWidth = 32

// Items table column widths: Item(15) Qty(3) Rate(7) Amount(7).
const (
	colItem   = 15
	colQty    = 3
	colRate   = 7
	colAmount = 7
)

// FormatAmount renders a money value without a trailing .00 for integers.
func FormatAmount(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.StringFixed(0)
	}
	return d.StringFixed(2)
}

// Column math counts runes, not bytes, so a Devanagari or accented item
// name cannot be cut mid-rune or shift the amount column.
func padRight(s string, w int) string {
	r := []rune(s)
	if len(r) > w {
		return string(r[:w])
	}
	return s + strings.Repeat(" ", w-len(r))
}

func padLeft(s string, w int) string {
	r := []rune(s)
	if len(r) > w {
		return string(r[len(r)-w:])
	}
	return strings.Repeat(" ", w-len(r)) + s
}

func center(s string) string {
	r := []rune(s)
	if len(r) >= lineWidth {
		return string(r[:lineWidth])
	}
	pad := (lineWidth - len(r)) / 2
	return strings.Repeat(" ", pad) + s
}

func separator() string { return strings.Repeat("-", lineWidth) }

func itemName(li model.LineItem) string {
	if li.Size != "" {
		return fmt.Sprintf("%s (%s)", li.Name, li.Size)
	}
	return li.Name
}

// splitRow renders an item row, wrapping long names onto continuation lines
// under the Item column.
func itemRows(li model.LineItem) []string {
	name := itemName(li)
	qty := padLeft(fmt.Sprintf("%d", li.Quantity), colQty)
	rate := padLeft(FormatAmount(li.Rate), colRate)
	amount := padLeft(FormatAmount(li.Amount), colAmount)

	first, rest := splitAt(name, colItem)
	rows := []string{padRight(first, colItem) + qty + rate + amount}
	for rest != "" {
		var chunk string
		chunk, rest = splitAt(rest, colItem)
		rows = append(rows, padRight(chunk, colItem))
	}
	return rows
}

// splitAt breaks s after w runes, trimming the leading space of the tail.
func splitAt(s string, w int) (head, tail string) {
	r := []rune(s)
	if len(r) <= w {
		return s, ""
	}
	return string(r[:w]), strings.TrimSpace(string(r[w:]))
}

// keyValueRow right-aligns a value against its label across the full width.
func keyValueRow(label, value string) string {
	gap := lineWidth - len(label) - len(value)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + value
}

func headerLines(info TheaterInfo) []string {
	lines := []string{center(info.Name)}
	if info.FSSAI != "" {
		lines = append(lines, center("FSSAI: "+info.FSSAI))
	}
	if info.GST != "" {
		lines = append(lines, center("GSTIN: "+info.GST))
	}
	return lines
}

// BillLines produces the overall GST bill as 32-column lines. POS and kiosk
// receipts never include customer details even when the order carries them.
func BillLines(info TheaterInfo, o model.NormalizedOrder, generatedAt time.Time) []string {
	lines := headerLines(info)
	lines = append(lines, separator())

	lines = append(lines, keyValueRow("Invoice", o.Identity.String()))
	lines = append(lines, keyValueRow("Date", o.CreatedAt.Format("02/01/2006 15:04")))
	if o.Online && o.CustomerName != "" {
		lines = append(lines, keyValueRow("Name", o.CustomerName))
	}
	if o.PaymentMethod != "" {
		lines = append(lines, keyValueRow("Payment", o.PaymentMethod))
	}
	lines = append(lines, separator())

	lines = append(lines,
		padRight("Item", colItem)+padLeft("Qty", colQty)+padLeft("Rate", colRate)+padLeft("Amount", colAmount))
	lines = append(lines, separator())
	for _, li := range o.Items {
		lines = append(lines, itemRows(li)...)
	}
	lines = append(lines, separator())

	if o.Subtotal.IsPositive() {
		lines = append(lines, keyValueRow("Subtotal", FormatAmount(o.Subtotal)))
	}
	if o.Tax.IsPositive() {
		half := o.Tax.Div(decimal.NewFromInt(2))
		lines = append(lines, keyValueRow("CGST: "+FormatAmount(half), "SGST: "+FormatAmount(half)))
	}
	if o.Discount.IsPositive() {
		lines = append(lines, keyValueRow("Discount", "-"+FormatAmount(o.Discount)))
	}
	lines = append(lines, keyValueRow("TOTAL", FormatAmount(o.Total)))
	lines = append(lines, separator())

	lines = append(lines, center("Thank you! Visit again"))
	lines = append(lines, center(generatedAt.Format("02/01/2006 15:04:05")))
	return lines
}

// CategoryTicketLines produces one kitchen ticket: item names and quantities
// only, no prices, no customer details.
func CategoryTicketLines(info TheaterInfo, o model.NormalizedOrder, group CategoryGroup, generatedAt time.Time) []string {
	lines := headerLines(info)
	lines = append(lines, separator())
	lines = append(lines, center("Category Bill"))
	lines = append(lines, center(strings.ToUpper(group.Name)))
	lines = append(lines, keyValueRow("Invoice", o.Identity.String()))
	lines = append(lines, separator())

	lines = append(lines, padRight("Item", lineWidth-colQty)+padLeft("Qty", colQty))
	lines = append(lines, separator())
	for _, li := range group.Items {
		name := itemName(li)
		qty := padLeft(fmt.Sprintf("%d", li.Quantity), colQty)
		if len(name) > lineWidth-colQty {
			name = name[:lineWidth-colQty]
		}
		lines = append(lines, padRight(name, lineWidth-colQty)+qty)
	}
	lines = append(lines, separator())
	lines = append(lines, center("for kitchen"))
	lines = append(lines, center(generatedAt.Format("02/01/2006 15:04:05")))
	return lines
}
