// Package currency converts amounts between currencies using the currconv v7 REST API.
package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stocks-daily/internal/models"
	"go.uber.org/zap"
)

var (
	ErrUnsupportedPair = errors.New("unsupported currency pair")
	ErrInvalidAmount   = errors.New("amount must not be negative")
	ErrInvalidCurrency = errors.New("invalid currency code")
)

// APIError is an error body returned by the provider
type APIError struct {
	StatusCode int    `json:"-"`
	Status     int    `json:"status"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("currency api error (http %d, status %d): %s", e.StatusCode, e.Status, e.Message)
}

// Client talks to the currency API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	listTTL    time.Duration
	logger     *zap.Logger
	now        func() time.Time

	mu   sync.Mutex
	list *models.CurrencyList
}

// NewClient creates a client. A zero listTTL refetches the currency list on every call.
func NewClient(baseURL, apiKey string, timeout, listTTL time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		listTTL:    listTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Pair returns the provider pair key FROM_TO
func Pair(from, to string) string {
	return from + "_" + to
}

// RoundAmount rounds to 2 decimal places, half away from zero
func RoundAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// ListCurrencies returns the supported currency codes, sorted
func (c *Client) ListCurrencies(ctx context.Context) (*models.CurrencyList, error) {
	c.mu.Lock()
	if c.list != nil && c.listTTL > 0 && c.now().Sub(c.list.FetchedAt) < c.listTTL {
		list := c.list
		c.mu.Unlock()
		return list, nil
	}
	c.mu.Unlock()

	var body struct {
		Results map[string]json.RawMessage `json:"results"`
	}
	if err := c.get(ctx, "/currencies", nil, &body); err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(body.Results))
	for code := range body.Results {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	list := &models.CurrencyList{Codes: codes, FetchedAt: c.now()}

	c.mu.Lock()
	c.list = list
	c.mu.Unlock()

	c.logger.Debug("fetched currency list", zap.Int("count", len(codes)))
	return list, nil
}

// Rate returns the price of one unit of from in to
func (c *Client) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to, err := normalizeCodes(from, to)
	if err != nil {
		return decimal.Zero, err
	}

	pair := Pair(from, to)
	q := url.Values{}
	q.Set("q", pair)
	q.Set("compact", "ultra")

	var body map[string]json.RawMessage
	if err := c.get(ctx, "/convert", q, &body); err != nil {
		return decimal.Zero, err
	}
	raw, ok := body[pair]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedPair, pair)
	}
	var rate decimal.Decimal
	if err := json.Unmarshal(raw, &rate); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rate for %s: %w", pair, err)
	}
	return rate, nil
}

// Convert converts amount, rounded to 2 dp, from one currency to another
func (c *Client) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (*models.Conversion, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	from, to, err := normalizeCodes(from, to)
	if err != nil {
		return nil, err
	}
	amount = RoundAmount(amount)

	rate := decimal.NewFromInt(1)
	if from != to {
		if rate, err = c.Rate(ctx, from, to); err != nil {
			return nil, err
		}
	}

	conv := &models.Conversion{
		From:        from,
		To:          to,
		Pair:        Pair(from, to),
		Amount:      amount,
		Rate:        rate,
		Converted:   amount.Mul(rate),
		Summary:     fmt.Sprintf("1 %s = %s %s", from, rate.String(), to),
		ConvertedAt: c.now(),
	}
	c.logger.Info("converted currency",
		zap.String("pair", conv.Pair),
		zap.String("amount", amount.String()),
		zap.String("rate", rate.String()))
	return conv, nil
}

func normalizeCodes(from, to string) (string, string, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" || strings.Contains(from, "_") || strings.Contains(to, "_") {
		return "", "", fmt.Errorf("%w: %q to %q", ErrInvalidCurrency, from, to)
	}
	return from, to, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("apiKey", c.apiKey)
	reqURL := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("currency api request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read currency api response: %w", err)
	}

	var apiErr APIError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode currency api response: %w", err)
	}
	return nil
}
