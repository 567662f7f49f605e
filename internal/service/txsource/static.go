package txsource

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
)

type sample struct {
	daysAgo  int
	amount   string
	merchant string
}

var samples = []sample{
	{1, "-4.75", "Blue Bottle Coffee"},
	{2, "-82.13", "Whole Foods Market"},
	{3, "-15.99", "Netflix"},
	{5, "-42.00", "Shell"},
	{6, "-1850.00", "Parkside Apartments"},
	{8, "-23.40", "Uber"},
	{10, "3200.00", "Acme Corp Payroll"},
	{12, "-64.27", "Target"},
	{15, "-120.00", "City Utilities"},
	{18, "-9.50", "Chipotle"},
}

// StaticSource serves a fixed set of sample transactions for local
// development when no aggregator is configured.
type StaticSource struct {
	now func() time.Time
}

var _ transaction.Source = (*StaticSource)(nil)

// NewStaticSource creates a sample source dated relative to now.
func NewStaticSource(now func() time.Time) *StaticSource {
	if now == nil {
		now = time.Now
	}
	return &StaticSource{now: now}
}

// Fetch returns the samples for userID. The same day yields the same hashes.
func (s *StaticSource) Fetch(ctx context.Context, userID string) ([]transaction.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	records := make([]transaction.Record, 0, len(samples))
	for i, smp := range samples {
		records = append(records, transaction.Record{
			UserID:     userID,
			Provider:   "sample",
			ExternalID: "sample-" + userID + "-" + string(rune('a'+i)),
			AccountID:  "sample-checking",
			Date:       today.AddDate(0, 0, -smp.daysAgo),
			Amount:     decimal.RequireFromString(smp.amount),
			Currency:   "USD",
			Merchant:   smp.merchant,
		}.WithHash())
	}
	return records, nil
}
