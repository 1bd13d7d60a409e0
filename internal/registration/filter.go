package registration

import "strings"

// Query narrows a record set by free-text term and exact category.
// The zero Query matches everything.
type Query struct {
	Term     string
	Category string
}

// Matches reports whether r satisfies both predicates: the term is a
// case-insensitive substring of the full name, the email or the category,
// and the category equals q.Category when one is selected.
func (q Query) Matches(r Registration) bool {
	if q.Category != "" && string(r.Category) != q.Category {
		return false
	}
	term := strings.ToLower(q.Term)
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.FullName()), term) ||
		strings.Contains(strings.ToLower(r.Email), term) ||
		strings.Contains(strings.ToLower(string(r.Category)), term)
}

// Filter returns the records matching q in their original order.
func Filter(records []Registration, q Query) []Registration {
	out := make([]Registration, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
