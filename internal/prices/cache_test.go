package prices

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFormat(t *testing.T) {
	day := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, "eth_2024-03-01", Key("", day))
	assert.Equal(t,
		"0xff970a61a04b1ca14834a43f5de4533ebddb5cc8_2024-03-01",
		Key("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8", day))
}

func TestFileCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	ctx := context.Background()

	c := OpenFileCache(path)
	require.NoError(t, c.Put(ctx, "eth_2024-03-01", decimal.RequireFromString("3421.57")))
	require.NoError(t, c.Close())

	reopened := OpenFileCache(path)
	price, ok, err := reopened.Get(ctx, "eth_2024-03-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3421.57", price.String())
	assert.Equal(t, 1, reopened.Len())
}

func TestFileCacheMissingFileIsEmpty(t *testing.T) {
	c := OpenFileCache(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, 0, c.Len())

	_, ok, err := c.Get(context.Background(), "eth_2024-03-01")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCacheCleanCloseDoesNotWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")

	c := OpenFileCache(path)
	require.NoError(t, c.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "a clean cache must not create the file")
}

func TestFileCacheCorruptValueSurfacesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"eth_2024-03-01":"not-a-number"}`), 0o644))

	c := OpenFileCache(path)
	_, _, err := c.Get(context.Background(), "eth_2024-03-01")
	require.Error(t, err)
}
