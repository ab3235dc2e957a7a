package model

import "strings"

// Identity is the canonicalized pair of orderId and orderNumber. Either side
// may be empty on a given event; the two non-empty forms are aliases of the
// same order and must dedupe against each other.
type Identity struct {
	ID     string
	Number string
}

// NewIdentity trims both forms. An identity with both sides empty is invalid
// and matches nothing.
func NewIdentity(id, number string) Identity {
	return Identity{ID: strings.TrimSpace(id), Number: strings.TrimSpace(number)}
}

// Valid reports whether at least one form is present.
func (id Identity) Valid() bool { return id.ID != "" || id.Number != "" }

// Forms returns the non-empty alias strings, id form first.
func (id Identity) Forms() []string {
	forms := make([]string, 0, 2)
	if id.ID != "" {
		forms = append(forms, id.ID)
	}
	if id.Number != "" {
		forms = append(forms, id.Number)
	}
	return forms
}

// Matches reports whether any non-empty form of the two identities is equal.
func (id Identity) Matches(other Identity) bool {
	if !id.Valid() || !other.Valid() {
		return false
	}
	for _, a := range id.Forms() {
		for _, b := range other.Forms() {
			if a == b {
				return true
			}
		}
	}
	return false
}

// Merge unions the alias forms of two identities for the same order; one
// side may carry only the id and the other only the number.
func (id Identity) Merge(other Identity) Identity {
	if id.ID == "" {
		id.ID = other.ID
	}
	if id.Number == "" {
		id.Number = other.Number
	}
	return id
}

// String returns the preferred display form (number when present).
func (id Identity) String() string {
	if id.Number != "" {
		return id.Number
	}
	return id.ID
}
