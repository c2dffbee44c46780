package order

import "github.com/shopspring/decimal"

// Stats backs the admin dashboard counters.
type Stats struct {
	Total     int
	Pending   int
	Confirmed int
	// Revenue only counts confirmed orders.
	Revenue decimal.Decimal
}

func Summarize(orders []Order) Stats {
	stats := Stats{Total: len(orders), Revenue: decimal.Zero}
	for _, o := range orders {
		switch o.Status {
		case StatusPending:
			stats.Pending++
		case StatusConfirmed:
			stats.Confirmed++
			stats.Revenue = stats.Revenue.Add(o.TotalPrice)
		}
	}
	return stats
}
