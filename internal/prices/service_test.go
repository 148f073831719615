package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

type stubQuoter struct {
	ethCalls   int
	tokenCalls int
	err        error
}

func (q *stubQuoter) EthDailyPrice(context.Context, time.Time) (decimal.Decimal, error) {
	q.ethCalls++
	if q.err != nil {
		return decimal.Zero, q.err
	}
	return decimal.RequireFromString("3421.57"), nil
}

func (q *stubQuoter) TokenDailyPrice(context.Context, string, time.Time) (decimal.Decimal, error) {
	q.tokenCalls++
	if q.err != nil {
		return decimal.Zero, q.err
	}
	return decimal.RequireFromString("0.9998"), nil
}

type memCache map[string]decimal.Decimal

func (m memCache) Get(_ context.Context, key string) (decimal.Decimal, bool, error) {
	p, ok := m[key]
	return p, ok, nil
}

func (m memCache) Put(_ context.Context, key string, price decimal.Decimal) error {
	m[key] = price
	return nil
}

func (m memCache) Close() error { return nil }

func TestDailyCachesThrough(t *testing.T) {
	quoter := &stubQuoter{}
	svc := NewService(quoter, memCache{}, nil)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first, err := svc.Daily(context.Background(), "", day)
	require.NoError(t, err)
	second, err := svc.Daily(context.Background(), "", day)
	require.NoError(t, err)

	assert.Equal(t, "3421.57", first.String())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, quoter.ethCalls, "second lookup must hit the cache")
}

func TestDailyDistinguishesEthFromContracts(t *testing.T) {
	quoter := &stubQuoter{}
	svc := NewService(quoter, memCache{}, nil)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Daily(context.Background(), "", day)
	require.NoError(t, err)
	_, err = svc.Daily(context.Background(), "0xff970a61a04b1ca14834a43f5de4533ebddb5cc8", day)
	require.NoError(t, err)

	assert.Equal(t, 1, quoter.ethCalls)
	assert.Equal(t, 1, quoter.tokenCalls)
}

func TestAnnotateSetsUSDPrices(t *testing.T) {
	svc := NewService(&stubQuoter{}, memCache{}, nil)
	entries := []models.LedgerEntry{{
		Hash:      "0xabc",
		Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Legs: []models.Leg{
			{Currency: "ETH", Amount: decimal.NewFromInt(-1)},
			{Currency: "ETH", Amount: decimal.NewFromInt(1)},
		},
	}}

	svc.Annotate(context.Background(), entries)

	for _, leg := range entries[0].Legs {
		require.True(t, leg.USDPrice.Valid)
		assert.Equal(t, "3421.57", leg.USDPrice.Decimal.String())
	}
}

func TestAnnotateFailureLeavesLegsUnpriced(t *testing.T) {
	quoter := &stubQuoter{err: errors.New("stats api down")}
	svc := NewService(quoter, memCache{}, nil)
	entries := []models.LedgerEntry{{
		Hash:      "0xabc",
		Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Legs: []models.Leg{
			{Currency: "ETH", Amount: decimal.NewFromInt(-1)},
			{Currency: "ETH", Amount: decimal.NewFromInt(1)},
		},
	}}

	svc.Annotate(context.Background(), entries)

	for _, leg := range entries[0].Legs {
		assert.False(t, leg.USDPrice.Valid)
	}
	assert.Equal(t, 1, quoter.ethCalls, "a failed key is not retried within a run")
}
