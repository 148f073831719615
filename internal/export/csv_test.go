package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

func sampleEntries() []models.LedgerEntry {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	return []models.LedgerEntry{
		{
			Hash:        "0xbbb",
			BlockNumber: 200,
			Timestamp:   ts,
			Status:      models.TxStatusSuccess,
			Memo:        "exchange deposit",
			Legs: []models.Leg{
				{
					Currency: "ETH",
					Address:  "0x1111111111111111111111111111111111111111",
					Label:    "Main Wallet",
					Category: "Assets:Crypto",
					Amount:   decimal.RequireFromString("-1.5"),
					USDPrice: decimal.NullDecimal{Decimal: decimal.RequireFromString("3421.57"), Valid: true},
				},
				{
					Currency: "ETH",
					Address:  "0x2222222222222222222222222222222222222222",
					Amount:   decimal.RequireFromString("1.5"),
				},
			},
		},
		{
			Hash:        "0xaaa",
			BlockNumber: 100,
			Timestamp:   ts,
			Status:      models.TxStatusSuccess,
			Legs: []models.Leg{
				{
					Currency: "USDC",
					Address:  "0x1111111111111111111111111111111111111111",
					Amount:   decimal.RequireFromString("2.5"),
				},
			},
		},
	}
}

func TestExportOrdersByBlockThenHash(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSV().Export(&buf, sampleEntries()))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4) // header + 3 legs

	assert.Equal(t, header, records[0])
	assert.Equal(t, "0xaaa", records[1][1], "lower block number exports first")
	assert.Equal(t, "0xbbb", records[2][1])
}

func TestExportRowFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSV().Export(&buf, sampleEntries()))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)

	// Unlabelled deposit leg with no memo.
	unlabelled := records[1]
	assert.Equal(t, "2024-03-01", unlabelled[0])
	assert.Equal(t, "deposit", unlabelled[2])
	assert.Equal(t, UnknownAccount, unlabelled[4])
	assert.Equal(t, "USDC", unlabelled[6])
	assert.Equal(t, "2.5", unlabelled[7])
	assert.Equal(t, "", unlabelled[8])

	// Labelled withdrawal leg with memo and price.
	labelled := records[2]
	assert.Equal(t, "exchange deposit", labelled[2])
	assert.Equal(t, "Main Wallet", labelled[4])
	assert.Equal(t, "Assets:Crypto", labelled[5])
	assert.Equal(t, "", labelled[7])
	assert.Equal(t, "1.5", labelled[8], "withdrawal column holds the magnitude")
	assert.Equal(t, "3421.57", labelled[9])
}

func TestExportIsByteIdenticalAcrossRuns(t *testing.T) {
	entries := sampleEntries()

	var first, second bytes.Buffer
	require.NoError(t, NewCSV().Export(&first, entries))
	require.NoError(t, NewCSV().Export(&second, entries))

	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestExportDoesNotReorderInput(t *testing.T) {
	entries := sampleEntries()
	var buf bytes.Buffer
	require.NoError(t, NewCSV().Export(&buf, entries))

	assert.Equal(t, "0xbbb", entries[0].Hash, "input slice must not be mutated")
}

func TestWriteFileReplacesExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte("stale content"), 0o644))

	require.NoError(t, NewCSV().WriteFile(path, sampleEntries()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Date,"))
	assert.NotContains(t, string(data), "stale content")
}

func TestExportEmptyEntriesWritesHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSV().Export(&buf, nil))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, header, records[0])
}
