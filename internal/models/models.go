// Package models defines the core domain types shared by every pipeline
// stage: raw records as fetched from the chain explorer, reconciled
// transactions, and the balanced ledger entries handed to the exporter.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus indicates whether a transaction succeeded on chain.
// Failed transactions still consume gas.
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailed  TxStatus = "failed"
)

// NativeSymbol is the base-currency unit for Arbitrum exports.
const NativeSymbol = "ETH"

// NativeDecimals is the decimal precision of the native currency (wei).
const NativeDecimals = 18

// RawTransaction is a native chain-level transaction as returned by the
// explorer account API. Immutable once fetched.
type RawTransaction struct {
	Hash        string          `json:"hash"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   time.Time       `json:"timestamp"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Value       decimal.Decimal `json:"value"` // raw wei
	GasUsed     decimal.Decimal `json:"gas_used"`
	GasPrice    decimal.Decimal `json:"gas_price"` // wei per gas unit
	Status      TxStatus        `json:"status"`
}

// GasFee returns the total gas cost in wei.
func (t RawTransaction) GasFee() decimal.Decimal {
	return t.GasUsed.Mul(t.GasPrice)
}

// RawTokenTransfer is a single ERC-20 Transfer event. Multiple transfers
// may share one transaction hash; (Hash, LogIndex) is unique.
type RawTokenTransfer struct {
	Hash          string          `json:"hash"`
	BlockNumber   uint64          `json:"block_number"`
	LogIndex      uint32          `json:"log_index"`
	Contract      string          `json:"contract"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	RawAmount     decimal.Decimal `json:"raw_amount"` // integer token base units
	TokenName     string          `json:"token_name"`
	TokenSymbol   string          `json:"token_symbol"`
	TokenDecimals int32           `json:"token_decimals"`
}

// Amount returns the transfer amount scaled by the token's declared
// decimal precision.
func (t RawTokenTransfer) Amount() decimal.Decimal {
	return t.RawAmount.Shift(-t.TokenDecimals)
}

// BlockRange bounds a fetch window. End == 0 means "latest".
type BlockRange struct {
	Start uint64
	End   uint64
}

// AddressHistory is the fully drained fetch result for one address.
// Downstream stages only ever see complete histories, never a partially
// fetched address.
type AddressHistory struct {
	Address      string
	Transactions []RawTransaction
	Transfers    []RawTokenTransfer
}

// ReconciledTransaction groups a native transaction with all ERC-20
// transfers sharing its hash, ordered by log index.
type ReconciledTransaction struct {
	Tx        RawTransaction
	Transfers []RawTokenTransfer
}

// Classification is the user-supplied mapping result for one address.
// The zero value means "unclassified" and is never an error.
type Classification struct {
	Label       string `json:"label"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// LegKind distinguishes the economic role of a ledger leg.
type LegKind string

const (
	LegNative LegKind = "native"
	LegToken  LegKind = "token"
	LegGas    LegKind = "gas"
)

// Leg is one signed debit or credit inside a ledger entry. Negative
// amounts are outflows from Address, positive amounts inflows.
type Leg struct {
	Kind     LegKind             `json:"kind"`
	Currency string              `json:"currency"` // "ETH" or token symbol
	Contract string              `json:"contract,omitempty"`
	LogIndex uint32              `json:"log_index"`
	Address  string              `json:"address"`
	Label    string              `json:"label,omitempty"`
	Category string              `json:"category,omitempty"`
	Amount   decimal.Decimal     `json:"amount"`
	USDPrice decimal.NullDecimal `json:"usd_price,omitempty"`
}

// LedgerEntry is the final artifact: one balanced economic event per
// transaction hash. Legs are ordered native value legs first, then token
// legs by log index, then gas legs.
type LedgerEntry struct {
	Hash        string    `json:"hash"`
	BlockNumber uint64    `json:"block_number"`
	Timestamp   time.Time `json:"timestamp"`
	Status      TxStatus  `json:"status"`
	Memo        string    `json:"memo,omitempty"`
	Legs        []Leg     `json:"legs"`
}

// BalanceByCurrency sums signed leg amounts per currency unit. For a
// well-formed entry every sum is exactly zero; there is no cross-currency
// netting.
func (e LedgerEntry) BalanceByCurrency() map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, leg := range e.Legs {
		sums[leg.Currency] = sums[leg.Currency].Add(leg.Amount)
	}
	return sums
}
