package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one bank transaction as stored locally.
type Record struct {
	Hash        string          `json:"hash"`
	UserID      string          `json:"userId"`
	Provider    string          `json:"provider"`
	ExternalID  string          `json:"externalId"`
	AccountID   string          `json:"accountId,omitempty"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"` // negative = expense, positive = income
	Currency    string          `json:"currency,omitempty"`
	Merchant    string          `json:"merchant"`
	Description string          `json:"description,omitempty"`

	Category    *string  `json:"category,omitempty"`
	Subcategory *string  `json:"subcategory,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// CanonicalHash derives the dedup key from
// provider|external_id|date|amount|merchant.
func CanonicalHash(r Record) string {
	parts := []string{
		strings.TrimSpace(r.Provider),
		strings.TrimSpace(r.ExternalID),
		r.Date.UTC().Format("2006-01-02"),
		r.Amount.String(),
		strings.TrimSpace(r.Merchant),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// WithHash returns r with Hash filled in.
func (r Record) WithHash() Record {
	r.Hash = CanonicalHash(r)
	return r
}

// IsCategorized reports whether AI categorization ran for the row.
func (r Record) IsCategorized() bool {
	return r.Category != nil && *r.Category != ""
}
