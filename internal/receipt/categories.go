package receipt

import "cinepos/internal/model"

// CategoryGroup is one kitchen ticket's worth of items.
type CategoryGroup struct {
	Name  string
	Items []model.LineItem
}

// GroupByCategory buckets the line items by resolved category, preserving
// first-seen order. Items with no resolvable category are already tagged
// "Other" at normalization.
func GroupByCategory(items []model.LineItem) []CategoryGroup {
	byName := make(map[string]int)
	var groups []CategoryGroup
	for _, li := range items {
		idx, ok := byName[li.Category]
		if !ok {
			idx = len(groups)
			byName[li.Category] = idx
			groups = append(groups, CategoryGroup{Name: li.Category})
		}
		groups[idx].Items = append(groups[idx].Items, li)
	}
	return groups
}

// WantsCategoryTickets reports whether an order gets per-category kitchen
// tickets: POS/Kiosk channel and at least two distinct real categories.
func WantsCategoryTickets(o model.NormalizedOrder) bool {
	if o.Online {
		return false
	}
	distinct := 0
	for _, g := range GroupByCategory(o.Items) {
		if g.Name != model.OtherCategory {
			distinct++
		}
	}
	return distinct >= 2
}
