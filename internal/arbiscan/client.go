// Package arbiscan implements the Etherscan-style account and stats API
// client for Arbitrum: page/offset pagination with explicit cursors,
// retry with exponential backoff for transient failures, and a shared
// token-bucket rate limiter safe for concurrent use.
package arbiscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

const (
	// DefaultBaseURL is the public Arbiscan API endpoint.
	DefaultBaseURL = "https://api.arbiscan.io/api"

	// DefaultPageSize matches the explorer's capped page size.
	DefaultPageSize = 100
)

// Client is an HTTP client for the Arbiscan API with retry, timeout and
// rate-limit support.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pageSize     int
	maxRetries   int
	retryBackoff time.Duration
	limiter      *rate.Limiter
	logger       *logrus.Logger
}

// ClientConfig holds configuration for the Arbiscan client.
type ClientConfig struct {
	BaseURL      string
	APIKey       string
	PageSize     int
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	RateLimit    rate.Limit // requests per second across all goroutines
	RateBurst    int
	Logger       *logrus.Logger
}

// NewClient creates a new Arbiscan client. Zero-value config fields fall
// back to conservative defaults suitable for the free API tier.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pageSize:     cfg.PageSize,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		limiter:      rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:       cfg.Logger,
	}
}

// PageSize returns the configured page size.
func (c *Client) PageSize() int { return c.pageSize }

// Transactions fetches one page of normal (native) transactions for the
// address, ascending by block number. An empty batch means the history is
// exhausted. The returned cursor resumes at the following page.
func (c *Client) Transactions(ctx context.Context, address string, rng models.BlockRange, cur Cursor) ([]models.RawTransaction, Cursor, error) {
	q := c.accountQuery("txlist", address, rng, cur)

	raw, err := c.get(ctx, address, cur, q)
	if err != nil {
		return nil, cur, err
	}

	var records []txRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, cur, &FatalError{Address: address, Cursor: cur, Err: fmt.Errorf("malformed txlist result: %w", err)}
	}

	txs := make([]models.RawTransaction, 0, len(records))
	for _, rec := range records {
		tx, err := parseTransaction(rec)
		if err != nil {
			return nil, cur, &FatalError{Address: address, Cursor: cur, Err: err}
		}
		txs = append(txs, tx)
	}

	return txs, cur.Next(), nil
}

// TokenTransfers fetches one page of ERC-20 transfer events for the
// address. An empty batch means the history is exhausted.
func (c *Client) TokenTransfers(ctx context.Context, address string, rng models.BlockRange, cur Cursor) ([]models.RawTokenTransfer, Cursor, error) {
	q := c.accountQuery("tokentx", address, rng, cur)

	raw, err := c.get(ctx, address, cur, q)
	if err != nil {
		return nil, cur, err
	}

	var records []tokenTransferRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, cur, &FatalError{Address: address, Cursor: cur, Err: fmt.Errorf("malformed tokentx result: %w", err)}
	}

	transfers := make([]models.RawTokenTransfer, 0, len(records))
	for _, rec := range records {
		tr, err := parseTokenTransfer(rec)
		if err != nil {
			return nil, cur, &FatalError{Address: address, Cursor: cur, Err: err}
		}
		transfers = append(transfers, tr)
	}

	return transfers, cur.Next(), nil
}

// EthDailyPrice fetches the USD close price of ETH for the given day.
func (c *Client) EthDailyPrice(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("module", "stats")
	q.Set("action", "ethdailyprice")
	q.Set("date", day.Format("2006-01-02"))
	return c.price(ctx, "eth", q)
}

// TokenDailyPrice fetches the USD close price of a token contract for the
// given day.
func (c *Client) TokenDailyPrice(ctx context.Context, contract string, day time.Time) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("module", "stats")
	// Arbiscan serves per-contract daily closes under tokenpricehistory;
	// Etherscan proper documents the same data as tokendailyprice.
	q.Set("action", "tokenpricehistory")
	q.Set("contractaddress", models.NormalizeAddress(contract))
	q.Set("date", day.Format("2006-01-02"))
	return c.price(ctx, contract, q)
}

func (c *Client) price(ctx context.Context, label string, q url.Values) (decimal.Decimal, error) {
	raw, err := c.get(ctx, label, FirstPage(), q)
	if err != nil {
		return decimal.Zero, err
	}

	// The stats actions return either a single object or a one-element
	// array depending on the action.
	var records []priceRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		var single priceRecord
		if err := json.Unmarshal(raw, &single); err != nil {
			return decimal.Zero, &FatalError{Address: label, Err: fmt.Errorf("malformed price result: %w", err)}
		}
		records = append(records, single)
	}
	if len(records) == 0 {
		return decimal.Zero, &FatalError{Address: label, Err: fmt.Errorf("empty price result")}
	}

	s := records[0].EthUSD
	if s == "" {
		s = records[0].TokenPriceUSD
	}
	price, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &FatalError{Address: label, Err: fmt.Errorf("malformed price value %q: %w", s, err)}
	}
	return price, nil
}

func (c *Client) accountQuery(action, address string, rng models.BlockRange, cur Cursor) url.Values {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", action)
	q.Set("address", models.NormalizeAddress(address))
	q.Set("page", strconv.Itoa(cur.Page))
	q.Set("offset", strconv.Itoa(c.pageSize))
	q.Set("sort", "asc")
	if rng.Start > 0 {
		q.Set("startblock", strconv.FormatUint(rng.Start, 10))
	}
	if rng.End > 0 {
		q.Set("endblock", strconv.FormatUint(rng.End, 10))
	}
	return q
}

// get performs one API call with retry. Transient failures are retried
// with exponential backoff up to maxRetries and then escalated to a
// FatalError carrying the last transient cause.
func (c *Client) get(ctx context.Context, address string, cur Cursor, q url.Values) (json.RawMessage, error) {
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	u := c.baseURL + "?" + q.Encode()

	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
				"address": address,
				"page":    cur.Page,
			}).Debug("retrying arbiscan call")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		raw, err := c.doRequest(ctx, u, address, cur)
		if err == nil {
			return raw, nil
		}
		if IsFatal(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	return nil, &FatalError{Address: address, Cursor: cur, Err: fmt.Errorf("retries exhausted: %w", lastErr)}
}

func (c *Client) doRequest(ctx context.Context, u, address string, cur Cursor) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FatalError{Address: address, Cursor: cur, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Address: address, Cursor: cur, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &TransientError{Address: address, Cursor: cur, Err: fmt.Errorf("rate limited (429)")}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &FatalError{Address: address, Cursor: cur, Err: fmt.Errorf("authentication rejected (%d)", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return nil, &TransientError{Address: address, Cursor: cur, Err: fmt.Errorf("server error (%d)", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &FatalError{Address: address, Cursor: cur, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Address: address, Cursor: cur, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &FatalError{Address: address, Cursor: cur, Err: fmt.Errorf("malformed response envelope: %w", err)}
	}

	if env.Status != "1" {
		// The interesting detail often arrives in result rather than
		// message, e.g. {"message":"NOTOK","result":"Max rate limit
		// reached"}. Classify on both.
		detail := env.Message
		var resultStr string
		if err := json.Unmarshal(env.Result, &resultStr); err == nil && resultStr != "" {
			detail += ": " + resultStr
		}
		msg := strings.ToLower(detail)
		switch {
		case strings.Contains(msg, "no transactions found"), strings.Contains(msg, "no records found"):
			return json.RawMessage("[]"), nil
		case strings.Contains(msg, "rate limit"):
			return nil, &TransientError{Address: address, Cursor: cur, Err: fmt.Errorf("api rate limit: %s", detail)}
		case strings.Contains(msg, "invalid api key"):
			return nil, &FatalError{Address: address, Cursor: cur, Err: fmt.Errorf("invalid api key")}
		default:
			return nil, &FatalError{Address: address, Cursor: cur, Err: fmt.Errorf("api error: %s", detail)}
		}
	}

	return env.Result, nil
}

func parseTransaction(rec txRecord) (models.RawTransaction, error) {
	block, err := strconv.ParseUint(rec.BlockNumber, 10, 64)
	if err != nil {
		return models.RawTransaction{}, fmt.Errorf("malformed blockNumber %q: %w", rec.BlockNumber, err)
	}
	ts, err := strconv.ParseInt(rec.TimeStamp, 10, 64)
	if err != nil {
		return models.RawTransaction{}, fmt.Errorf("malformed timeStamp %q: %w", rec.TimeStamp, err)
	}
	value, err := decimal.NewFromString(rec.Value)
	if err != nil {
		return models.RawTransaction{}, fmt.Errorf("malformed value %q: %w", rec.Value, err)
	}
	gasUsed, err := decimal.NewFromString(rec.GasUsed)
	if err != nil {
		return models.RawTransaction{}, fmt.Errorf("malformed gasUsed %q: %w", rec.GasUsed, err)
	}
	gasPrice, err := decimal.NewFromString(rec.GasPrice)
	if err != nil {
		return models.RawTransaction{}, fmt.Errorf("malformed gasPrice %q: %w", rec.GasPrice, err)
	}
	if rec.Hash == "" {
		return models.RawTransaction{}, fmt.Errorf("transaction record missing hash")
	}

	status := models.TxStatusSuccess
	if rec.IsError == "1" || rec.TxReceiptStatus == "0" {
		status = models.TxStatusFailed
	}

	return models.RawTransaction{
		Hash:        strings.ToLower(rec.Hash),
		BlockNumber: block,
		Timestamp:   time.Unix(ts, 0).UTC(),
		From:        models.NormalizeAddress(rec.From),
		To:          models.NormalizeAddress(rec.To),
		Value:       value,
		GasUsed:     gasUsed,
		GasPrice:    gasPrice,
		Status:      status,
	}, nil
}

func parseTokenTransfer(rec tokenTransferRecord) (models.RawTokenTransfer, error) {
	block, err := strconv.ParseUint(rec.BlockNumber, 10, 64)
	if err != nil {
		return models.RawTokenTransfer{}, fmt.Errorf("malformed blockNumber %q: %w", rec.BlockNumber, err)
	}
	logIndex, err := strconv.ParseUint(rec.LogIndex, 10, 32)
	if err != nil {
		return models.RawTokenTransfer{}, fmt.Errorf("malformed logIndex %q: %w", rec.LogIndex, err)
	}
	amount, err := decimal.NewFromString(rec.Value)
	if err != nil {
		return models.RawTokenTransfer{}, fmt.Errorf("malformed token value %q: %w", rec.Value, err)
	}
	decimals := int64(0)
	if rec.TokenDecimal != "" {
		decimals, err = strconv.ParseInt(rec.TokenDecimal, 10, 32)
		if err != nil {
			return models.RawTokenTransfer{}, fmt.Errorf("malformed tokenDecimal %q: %w", rec.TokenDecimal, err)
		}
	}
	if rec.Hash == "" {
		return models.RawTokenTransfer{}, fmt.Errorf("token transfer record missing hash")
	}

	return models.RawTokenTransfer{
		Hash:          strings.ToLower(rec.Hash),
		BlockNumber:   block,
		LogIndex:      uint32(logIndex),
		Contract:      models.NormalizeAddress(rec.ContractAddress),
		From:          models.NormalizeAddress(rec.From),
		To:            models.NormalizeAddress(rec.To),
		RawAmount:     amount,
		TokenName:     rec.TokenName,
		TokenSymbol:   rec.TokenSymbol,
		TokenDecimals: int32(decimals),
	}, nil
}
