package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolWhitelist(t *testing.T) {
	sym, ok := Symbol("0xff970a61a04b1ca14834a43f5de4533ebddb5cc8")
	assert.True(t, ok)
	assert.Equal(t, "USDC", sym)

	// Checksummed casing resolves too.
	sym, ok = Symbol("0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8")
	assert.True(t, ok)
	assert.Equal(t, "USDC", sym)

	_, ok = Symbol("0x0000000000000000000000000000000000000000")
	assert.False(t, ok)
}

func TestDisplaySymbolPrecedence(t *testing.T) {
	// Whitelist beats the spoofable reported symbol.
	assert.Equal(t, "USDC",
		DisplaySymbol("0xff970a61a04b1ca14834a43f5de4533ebddb5cc8", "FAKE"))

	// Unknown contract falls back to the reported symbol.
	assert.Equal(t, "ARB",
		DisplaySymbol("0x912ce59144191c1204e64559fe8253a0e49e6548", "ARB"))

	// No symbol at all: shortened contract address.
	assert.Equal(t, "0x912c...6548",
		DisplaySymbol("0x912CE59144191C1204E64559FE8253a0e49E6548", ""))
}
