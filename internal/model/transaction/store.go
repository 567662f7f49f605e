package transaction

import (
	"context"
	"errors"
	"time"
)

// ErrSourceUnavailable marks a failed call to the external transaction source.
var ErrSourceUnavailable = errors.New("transaction source unavailable")

// Source fetches a user's transactions from an external provider. It is safe
// to call repeatedly; the caller bounds each call through ctx.
type Source interface {
	Fetch(ctx context.Context, userID string) ([]Record, error)
}

// Store is the local transaction store keyed by canonical hash.
type Store interface {
	ExistsAny(ctx context.Context, userID string) (bool, error)
	Query(ctx context.Context, filter Filter) ([]Record, error)
	BatchUpsert(ctx context.Context, records []Record) (UpsertResult, error)
	CategoryTotals(ctx context.Context, userID string, since time.Time) ([]CategoryTotal, error)
}
