package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
)

// TransactionRepository implements transaction.Store.
type TransactionRepository struct {
	db *gorm.DB
}

var _ transaction.Store = (*TransactionRepository)(nil)

// NewTransactionRepository creates a repository on s.
func NewTransactionRepository(s *Store) *TransactionRepository {
	return &TransactionRepository{db: s.DB}
}

var sortOrders = map[string]string{
	transaction.SortDateDesc:   "date DESC, id DESC",
	transaction.SortDateAsc:    "date ASC, id ASC",
	transaction.SortAmountDesc: "ABS(amount) DESC, id DESC",
	transaction.SortAmountAsc:  "ABS(amount) ASC, id ASC",
}

// ExistsAny reports whether the user has at least one stored row.
func (r *TransactionRepository) ExistsAny(ctx context.Context, userID string) (bool, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&TransactionRow{}).
		Where("user_id = ?", userID).
		Limit(1).
		Pluck("id", &ids).Error
	if err != nil {
		return false, fmt.Errorf("check transactions for %s: %w", userID, err)
	}
	return len(ids) > 0, nil
}

// Query runs a parameterized lookup. Amount bounds match the absolute
// amount so spending and income are filtered by magnitude.
func (r *TransactionRepository) Query(ctx context.Context, filter transaction.Filter) ([]transaction.Record, error) {
	filter = filter.Normalize()
	if filter.UserID == "" {
		return nil, fmt.Errorf("query transactions: user id is required")
	}

	q := r.db.WithContext(ctx).Model(&TransactionRow{}).Where("user_id = ?", filter.UserID)
	if c := strings.TrimSpace(filter.Category); c != "" {
		q = q.Where("LOWER(category) = ?", strings.ToLower(c))
	}
	if m := strings.TrimSpace(filter.Merchant); m != "" {
		q = q.Where("LOWER(merchant) LIKE ?", "%"+strings.ToLower(m)+"%")
	}
	if filter.From != nil {
		q = q.Where("date >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("date <= ?", filter.To.UTC())
	}
	if filter.MinAmount != nil {
		q = q.Where("ABS(amount) >= ?", filter.MinAmount.Abs().InexactFloat64())
	}
	if filter.MaxAmount != nil {
		q = q.Where("ABS(amount) <= ?", filter.MaxAmount.Abs().InexactFloat64())
	}

	var rows []TransactionRow
	if err := q.Order(sortOrders[filter.Sort]).Limit(filter.Limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query transactions for %s: %w", filter.UserID, err)
	}

	records := make([]transaction.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

// BatchUpsert inserts each row unless its canonical hash already exists.
// Rows are written one by one so duplicates and failures are counted
// exactly; one bad row never aborts the batch.
func (r *TransactionRepository) BatchUpsert(ctx context.Context, records []transaction.Record) (transaction.UpsertResult, error) {
	var result transaction.UpsertResult
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if rec.Hash == "" {
			rec = rec.WithHash()
		}

		row := fromRecord(rec)
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "canonical_hash"}},
			DoNothing: true,
		}).Create(&row)

		switch {
		case res.Error != nil:
			result.Errors++
			log.Warn().Str("component", "store").Err(res.Error).Str("hash", rec.Hash).Msg("transaction insert failed")
		case res.RowsAffected == 0:
			result.Duplicates++
		default:
			result.Stored++
		}
	}
	return result, nil
}

// CategoryTotals sums spending (negative amounts) per category since the
// given time, largest spend first.
func (r *TransactionRepository) CategoryTotals(ctx context.Context, userID string, since time.Time) ([]transaction.CategoryTotal, error) {
	var rows []struct {
		Category string
		Total    decimal.Decimal
		Count    int
	}
	err := r.db.WithContext(ctx).Model(&TransactionRow{}).
		Select("COALESCE(category, 'uncategorized') AS category, SUM(amount) AS total, COUNT(*) AS count").
		Where("user_id = ? AND date >= ? AND amount < 0", userID, since.UTC()).
		Group("COALESCE(category, 'uncategorized')").
		Order("total ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("category totals for %s: %w", userID, err)
	}

	totals := make([]transaction.CategoryTotal, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, transaction.CategoryTotal{
			Category: row.Category,
			Total:    row.Total.Abs(),
			Count:    row.Count,
		})
	}
	return totals, nil
}

func fromRecord(rec transaction.Record) TransactionRow {
	return TransactionRow{
		CanonicalHash: rec.Hash,
		UserID:        rec.UserID,
		Provider:      rec.Provider,
		ExternalID:    rec.ExternalID,
		AccountID:     rec.AccountID,
		Date:          rec.Date.UTC(),
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		Merchant:      rec.Merchant,
		Description:   rec.Description,
		Category:      rec.Category,
		Subcategory:   rec.Subcategory,
		Confidence:    rec.Confidence,
		Tags:          rec.Tags,
	}
}

func (row TransactionRow) toRecord() transaction.Record {
	return transaction.Record{
		Hash:        row.CanonicalHash,
		UserID:      row.UserID,
		Provider:    row.Provider,
		ExternalID:  row.ExternalID,
		AccountID:   row.AccountID,
		Date:        row.Date,
		Amount:      row.Amount,
		Currency:    row.Currency,
		Merchant:    row.Merchant,
		Description: row.Description,
		Category:    row.Category,
		Subcategory: row.Subcategory,
		Confidence:  row.Confidence,
		Tags:        row.Tags,
	}
}
