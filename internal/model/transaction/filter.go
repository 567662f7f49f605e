package transaction

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sort orders accepted by Filter.
const (
	SortDateDesc   = "date_desc"
	SortDateAsc    = "date_asc"
	SortAmountDesc = "amount_desc"
	SortAmountAsc  = "amount_asc"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Filter narrows a transaction lookup. Zero values mean "any".
type Filter struct {
	UserID    string
	Category  string
	Merchant  string
	From      *time.Time
	To        *time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Sort      string
	Limit     int
}

// Normalize clamps the limit and replaces unknown sort orders.
func (f Filter) Normalize() Filter {
	switch f.Sort {
	case SortDateDesc, SortDateAsc, SortAmountDesc, SortAmountAsc:
	default:
		f.Sort = SortDateDesc
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		f.From, f.To = f.To, f.From
	}
	if f.MinAmount != nil && f.MaxAmount != nil && f.MaxAmount.LessThan(*f.MinAmount) {
		f.MinAmount, f.MaxAmount = f.MaxAmount, f.MinAmount
	}
	return f
}

// UpsertResult reports the outcome of a batch write.
type UpsertResult struct {
	Stored     int `json:"stored"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Add accumulates another result.
func (r *UpsertResult) Add(other UpsertResult) {
	r.Stored += other.Stored
	r.Duplicates += other.Duplicates
	r.Errors += other.Errors
}

// CategoryTotal aggregates spend per category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}
