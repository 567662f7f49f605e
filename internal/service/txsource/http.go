package txsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
)

// Config configures the HTTP transaction source.
type Config struct {
	BaseURL  string
	Token    string
	Provider string
	Client   *http.Client
}

// HTTPSource pulls transactions from the aggregator API at
// GET {BaseURL}/users/{userID}/transactions.
type HTTPSource struct {
	baseURL  string
	token    string
	provider string
	client   *http.Client
}

var _ transaction.Source = (*HTTPSource)(nil)

// NewHTTPSource creates a source for cfg.
func NewHTTPSource(cfg Config) (*HTTPSource, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("transaction source url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid transaction source url: %w", err)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "aggregator"
	}

	return &HTTPSource{
		baseURL:  base,
		token:    strings.TrimSpace(cfg.Token),
		provider: provider,
		client:   client,
	}, nil
}

type wireTransaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Date        string          `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Merchant    string          `json:"merchant_name"`
	Description string          `json:"name"`
}

type wireResponse struct {
	Provider     string            `json:"provider"`
	Transactions []wireTransaction `json:"transactions"`
}

// Fetch returns the user's transactions with canonical hashes set. Every
// failure wraps transaction.ErrSourceUnavailable.
func (s *HTTPSource) Fetch(ctx context.Context, userID string) ([]transaction.Record, error) {
	endpoint := s.baseURL + "/users/" + url.PathEscape(userID) + "/transactions"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transaction.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transaction.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: unexpected status %d", transaction.ErrSourceUnavailable, resp.StatusCode)
	}

	var payload wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", transaction.ErrSourceUnavailable, err)
	}

	provider := payload.Provider
	if provider == "" {
		provider = s.provider
	}

	records := make([]transaction.Record, 0, len(payload.Transactions))
	for _, wt := range payload.Transactions {
		date, err := parseDate(wt.Date)
		if err != nil {
			log.Warn().Str("component", "txsource").Str("id", wt.ID).Str("date", wt.Date).Msg("skip transaction with invalid date")
			continue
		}
		merchant := strings.TrimSpace(wt.Merchant)
		if merchant == "" {
			merchant = strings.TrimSpace(wt.Description)
		}
		records = append(records, transaction.Record{
			UserID:      userID,
			Provider:    provider,
			ExternalID:  wt.ID,
			AccountID:   wt.AccountID,
			Date:        date,
			Amount:      wt.Amount,
			Currency:    strings.ToUpper(wt.Currency),
			Merchant:    merchant,
			Description: wt.Description,
		}.WithHash())
	}
	return records, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
