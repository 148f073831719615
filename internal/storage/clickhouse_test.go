package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

func setupStore(t *testing.T) (*ClickHouseStore, context.Context) {
	t.Helper()

	addr := os.Getenv("CLICKHOUSE_ADDR")
	if addr == "" {
		addr = "localhost:9000"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	store, err := NewClickHouseStore(ctx, ClickHouseConfig{
		Addr:     addr,
		Database: "default",
		Username: "default",
	})
	if err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store, ctx
}

func sampleEntry(hash string, block uint64) models.LedgerEntry {
	return models.LedgerEntry{
		Hash:        hash,
		BlockNumber: block,
		Timestamp:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:      models.TxStatusSuccess,
		Memo:        "exchange deposit",
		Legs: []models.Leg{
			{
				Kind:     models.LegNative,
				Currency: "ETH",
				Address:  "0x1111111111111111111111111111111111111111",
				Label:    "Main Wallet",
				Category: "Assets:Crypto",
				Amount:   decimal.RequireFromString("-1.5"),
				USDPrice: decimal.NullDecimal{Decimal: decimal.RequireFromString("3421.57"), Valid: true},
			},
			{
				Kind:     models.LegNative,
				Currency: "ETH",
				Address:  "0x2222222222222222222222222222222222222222",
				Amount:   decimal.RequireFromString("1.5"),
			},
		},
	}
}

func TestInsertAndRecentEntries(t *testing.T) {
	store, ctx := setupStore(t)

	// Block numbers derive from the clock so this run's rows are always
	// the newest in a shared test database.
	base := uint64(time.Now().Unix())
	entries := []models.LedgerEntry{
		sampleEntry("0xtest-storage-aaa", base),
		sampleEntry("0xtest-storage-bbb", base+1),
	}
	require.NoError(t, store.InsertEntries(ctx, entries))

	got, err := store.RecentEntries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Newest block first.
	assert.Equal(t, "0xtest-storage-bbb", got[0].Hash)
	assert.Equal(t, "0xtest-storage-aaa", got[1].Hash)

	first := got[1]
	require.Len(t, first.Legs, 2)
	assert.Equal(t, "exchange deposit", first.Memo)
	assert.Equal(t, "-1.5", first.Legs[0].Amount.String())
	assert.True(t, first.Legs[0].USDPrice.Valid)
	assert.Equal(t, "3421.57", first.Legs[0].USDPrice.Decimal.String())
	assert.False(t, first.Legs[1].USDPrice.Valid)
}

func TestInsertEntriesIsIdempotent(t *testing.T) {
	store, ctx := setupStore(t)

	entry := sampleEntry("0xtest-storage-dup", uint64(time.Now().Unix())+2)
	require.NoError(t, store.InsertEntries(ctx, []models.LedgerEntry{entry}))
	require.NoError(t, store.InsertEntries(ctx, []models.LedgerEntry{entry}))

	got, err := store.RecentEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Legs, 2, "re-insert must not duplicate legs")
}

func TestInsertEmptyBatchIsNoop(t *testing.T) {
	store, ctx := setupStore(t)
	require.NoError(t, store.InsertEntries(ctx, nil))
}

func TestPing(t *testing.T) {
	store, ctx := setupStore(t)
	require.NoError(t, store.Ping(ctx))
}
