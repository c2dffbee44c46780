package order

import (
	"cmp"
	"slices"
	"strings"

	"github.com/taldoflemis/pizzeria/pacchetto/apperr"
)

type SortField string

const (
	SortByID         SortField = "id"
	SortByCreatedAt  SortField = "createdAt"
	SortByTotalPrice SortField = "totalPrice"
	SortByStatus     SortField = "status"
)

type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// ListQuery is always normalized: Status is empty (no filter) or a valid
// status, SortBy is one of the allowed fields.
type ListQuery struct {
	Status        Status
	SortBy        SortField
	SortDirection SortDirection
}

var DefaultListQuery = ListQuery{
	SortBy:        SortByCreatedAt,
	SortDirection: SortDescending,
}

// NormalizeListQuery turns raw query parameters into a ListQuery. Unknown
// sort fields fall back to createdAt and unknown directions to descending.
// Only an unknown status is rejected.
func NormalizeListQuery(status, sortBy, sortOrder string) (ListQuery, error) {
	q := DefaultListQuery

	switch SortField(sortBy) {
	case SortByID, SortByCreatedAt, SortByTotalPrice, SortByStatus:
		q.SortBy = SortField(sortBy)
	}

	switch strings.ToLower(sortOrder) {
	case "asc", "ascending":
		q.SortDirection = SortAscending
	}

	switch s := strings.ToLower(strings.TrimSpace(status)); s {
	case "", "all":
	default:
		if !Status(s).Valid() {
			return ListQuery{}, apperr.Validation("invalid status filter")
		}
		q.Status = Status(s)
	}

	return q, nil
}

// Matches reports whether o passes the status filter.
func (q ListQuery) Matches(o Order) bool {
	return q.Status == "" || o.Status == q.Status
}

// Compare orders a and b the way the query asks for. Ties are broken by id
// so that the result is stable across stores.
func (q ListQuery) Compare(a, b Order) int {
	var c int
	switch q.SortBy {
	case SortByID:
		c = cmp.Compare(a.ID, b.ID)
	case SortByTotalPrice:
		c = a.TotalPrice.Cmp(b.TotalPrice)
	case SortByStatus:
		c = strings.Compare(string(a.Status), string(b.Status))
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}
	if c == 0 {
		c = cmp.Compare(a.ID, b.ID)
	}
	if q.SortDirection == SortDescending {
		c = -c
	}
	return c
}

// Apply filters and sorts orders in place and returns the kept prefix.
func (q ListQuery) Apply(orders []Order) []Order {
	orders = slices.DeleteFunc(orders, func(o Order) bool { return !q.Matches(o) })
	slices.SortFunc(orders, q.Compare)
	return orders
}
