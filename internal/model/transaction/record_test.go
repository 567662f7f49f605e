package transaction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func sampleRecord() Record {
	return Record{
		Provider:   "plaid",
		ExternalID: "tx-1",
		Date:       time.Date(2024, 3, 9, 15, 4, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString("-12.50"),
		Merchant:   "Blue Bottle",
	}
}

func TestCanonicalHashIsDeterministic(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.Description = "different description does not matter"
	assert.Equal(t, CanonicalHash(a), CanonicalHash(b))
	assert.Len(t, CanonicalHash(a), 64)
}

func TestCanonicalHashChangesWithKeyFields(t *testing.T) {
	base := CanonicalHash(sampleRecord())

	mutations := map[string]func(r *Record){
		"external id": func(r *Record) { r.ExternalID = "tx-2" },
		"date":        func(r *Record) { r.Date = r.Date.AddDate(0, 0, 1) },
		"amount":      func(r *Record) { r.Amount = decimal.RequireFromString("-12.51") },
		"merchant":    func(r *Record) { r.Merchant = "Starbucks" },
		"provider":    func(r *Record) { r.Provider = "mx" },
	}
	for name, mutate := range mutations {
		r := sampleRecord()
		mutate(&r)
		assert.NotEqual(t, base, CanonicalHash(r), name)
	}
}

func TestFilterNormalize(t *testing.T) {
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	f := Filter{Sort: "random", Limit: 500, From: &from, To: &to}.Normalize()

	assert.Equal(t, SortDateDesc, f.Sort)
	assert.Equal(t, maxLimit, f.Limit)
	assert.True(t, f.From.Before(*f.To))
	assert.Equal(t, defaultLimit, Filter{}.Normalize().Limit)
}
