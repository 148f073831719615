package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBruno/arb-gnucash-importer/internal/arbiscan"
	"github.com/RyanBruno/arb-gnucash-importer/internal/fetch"
	"github.com/RyanBruno/arb-gnucash-importer/internal/ledger"
	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

const (
	walletAddr   = "0x1111111111111111111111111111111111111111"
	exchangeAddr = "0x2222222222222222222222222222222222222222"
	usdcContract = "0xff970a61a04b1ca14834a43f5de4533ebddb5cc8"
)

// stubSource serves a fixed single-page history for every address.
type stubSource struct {
	txs       []models.RawTransaction
	transfers []models.RawTokenTransfer
}

func (s *stubSource) Transactions(_ context.Context, _ string, _ models.BlockRange, cur arbiscan.Cursor) ([]models.RawTransaction, arbiscan.Cursor, error) {
	if cur.Page > 1 {
		return nil, cur, nil
	}
	return s.txs, cur.Next(), nil
}

func (s *stubSource) TokenTransfers(_ context.Context, _ string, _ models.BlockRange, cur arbiscan.Cursor) ([]models.RawTokenTransfer, arbiscan.Cursor, error) {
	if cur.Page > 1 {
		return nil, cur, nil
	}
	return s.transfers, cur.Next(), nil
}

// memStore records inserted entries.
type memStore struct {
	mu      sync.Mutex
	entries []models.LedgerEntry
}

func (m *memStore) InsertEntries(_ context.Context, entries []models.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memStore) RecentEntries(context.Context, int) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func fixtureSource() *stubSource {
	ts := time.Unix(1700000000, 0).UTC()
	return &stubSource{
		txs: []models.RawTransaction{
			{
				Hash:        "0xaaa",
				BlockNumber: 100,
				Timestamp:   ts,
				From:        walletAddr,
				To:          exchangeAddr,
				Value:       decimal.RequireFromString("1000000000000000000"),
				GasUsed:     decimal.NewFromInt(21000),
				GasPrice:    decimal.NewFromInt(100000000),
				Status:      models.TxStatusSuccess,
			},
			{
				Hash:        "0xbbb",
				BlockNumber: 101,
				Timestamp:   ts,
				From:        walletAddr,
				To:          exchangeAddr,
				GasUsed:     decimal.NewFromInt(21000),
				GasPrice:    decimal.NewFromInt(100000000),
				Value:       decimal.Zero,
				Status:      models.TxStatusFailed,
			},
		},
		transfers: []models.RawTokenTransfer{
			{
				Hash:          "0xaaa",
				BlockNumber:   100,
				LogIndex:      3,
				Contract:      usdcContract,
				From:          exchangeAddr,
				To:            walletAddr,
				RawAmount:     decimal.NewFromInt(2500000),
				TokenDecimals: 6,
			},
			{
				Hash:        "0xorphan",
				BlockNumber: 102,
				LogIndex:    0,
				Contract:    usdcContract,
				From:        exchangeAddr,
				To:          walletAddr,
				RawAmount:   decimal.NewFromInt(1),
			},
		},
	}
}

func newOptions(src fetch.Source, store *memStore) Options {
	opts := Options{
		Fetcher:   fetch.New(fetch.Config{Source: src}),
		Addresses: []string{walletAddr},
		Builder: ledger.NewBuilder(ledger.BuilderConfig{
			TrackedAddresses: []string{walletAddr},
		}),
	}
	if store != nil {
		opts.Store = store
	}
	return opts
}

func TestRunEndToEnd(t *testing.T) {
	store := &memStore{}
	result, err := Run(context.Background(), newOptions(fixtureSource(), store))
	require.NoError(t, err)

	// Two transactions became entries; the orphan transfer did not.
	require.Len(t, result.Entries, 2)
	assert.Equal(t, "0xaaa", result.Entries[0].Hash)
	assert.Equal(t, "0xbbb", result.Entries[1].Hash)

	// Entry 0: native pair + token pair + gas pair.
	assert.Len(t, result.Entries[0].Legs, 6)
	// Entry 1: failed, gas only.
	assert.Len(t, result.Entries[1].Legs, 2)

	for _, entry := range result.Entries {
		for currency, sum := range entry.BalanceByCurrency() {
			assert.True(t, sum.IsZero(), "entry %s currency %s off by %s", entry.Hash, currency, sum)
		}
	}

	require.Len(t, result.Orphans, 1)
	assert.Equal(t, "0xorphan", result.Orphans[0].Hash)
	assert.Empty(t, result.FailedAddresses)

	assert.Len(t, store.entries, 2, "entries persisted to the store")
}

func TestRunWithoutOptionalStages(t *testing.T) {
	result, err := Run(context.Background(), newOptions(fixtureSource(), nil))
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
}

func TestRunCancelledContextPersistsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &memStore{}
	_, err := Run(ctx, newOptions(fixtureSource(), store))
	require.Error(t, err)
	assert.Empty(t, store.entries)
}
