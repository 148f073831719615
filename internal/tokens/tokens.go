// Package tokens maps known-good Arbitrum token contracts to canonical
// symbols. Explorer-reported symbols are spoofable, so whitelisted
// contracts always win over what the API reports.
package tokens

import "github.com/RyanBruno/arb-gnucash-importer/internal/models"

var goodTokens = map[string]string{
	"0xff970a61a04b1ca14834a43f5de4533ebddb5cc8": "USDC",
	"0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9": "USDT",
	"0xda10009cbd5d07dd0cecc66161fc93d7c9000da1": "DAI",
	"0x2f2a2543b76a4166549f7aab2e75bef0aefc5b63": "WBTC",
	"0x82af49447d8a07e3bd95bd0d56f35241523fbab1": "WETH",
}

// Symbol returns the canonical symbol for a whitelisted token contract.
func Symbol(contract string) (string, bool) {
	sym, ok := goodTokens[models.NormalizeAddress(contract)]
	return sym, ok
}

// DisplaySymbol resolves the symbol to use in ledger output: the
// whitelist entry if present, else the explorer-reported symbol, else a
// shortened contract address.
func DisplaySymbol(contract, reported string) string {
	if sym, ok := Symbol(contract); ok {
		return sym
	}
	if reported != "" {
		return reported
	}
	return shorten(models.NormalizeAddress(contract))
}

func shorten(addr string) string {
	if len(addr) > 10 {
		return addr[:6] + "..." + addr[len(addr)-4:]
	}
	return addr
}
