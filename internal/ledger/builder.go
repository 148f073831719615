// Package ledger converts reconciled, classified transactions into
// balanced double-entry records. Every entry balances to zero per
// currency unit: the native currency and each token are tracked
// independently with no cross-currency netting.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
	"github.com/RyanBruno/arb-gnucash-importer/internal/tokens"
)

// GasAccountLabel names the synthetic expense counter-leg for gas fees.
const GasAccountLabel = "Gas"

// GasAccountCategory is the expense category for gas fee legs.
const GasAccountCategory = "Expenses:Gas"

// Lookup resolves an address to its user-supplied classification.
// Satisfied by classify.Classifier.
type Lookup interface {
	Lookup(address string) models.Classification
}

// noClassification is used when no mapping files were supplied.
type noClassification struct{}

func (noClassification) Lookup(string) models.Classification { return models.Classification{} }

// Builder builds LedgerEntry values from reconciled transactions.
type Builder struct {
	tracked        map[string]struct{}
	gasForIncoming bool
	classes        Lookup
}

// BuilderConfig holds configuration for a Builder.
type BuilderConfig struct {
	// TrackedAddresses are the wallet addresses whose books we are
	// exporting. Gas fees are attributed only when a tracked address is
	// involved.
	TrackedAddresses []string

	// GasForIncoming also attributes gas when the tracked address is
	// only the receiver of a transaction. Off by default: the receiver
	// did not pay the fee.
	GasForIncoming bool

	// Classifier resolves addresses to labels/categories. Optional.
	Classifier Lookup
}

// NewBuilder creates a Builder for the given tracked address set.
func NewBuilder(cfg BuilderConfig) *Builder {
	tracked := make(map[string]struct{}, len(cfg.TrackedAddresses))
	for _, a := range cfg.TrackedAddresses {
		tracked[models.NormalizeAddress(a)] = struct{}{}
	}
	classes := cfg.Classifier
	if classes == nil {
		classes = noClassification{}
	}
	return &Builder{
		tracked:        tracked,
		gasForIncoming: cfg.GasForIncoming,
		classes:        classes,
	}
}

// BuildAll converts a reconciled sequence into ledger entries, preserving
// input order.
func (b *Builder) BuildAll(rts []models.ReconciledTransaction) []models.LedgerEntry {
	entries := make([]models.LedgerEntry, 0, len(rts))
	for _, rt := range rts {
		entries = append(entries, b.Build(rt))
	}
	return entries
}

// Build converts one reconciled transaction into a balanced ledger entry.
// Failed transactions produce a gas-only entry with no value legs. Legs
// are ordered: native value legs, token legs by log index, gas legs.
func (b *Builder) Build(rt models.ReconciledTransaction) models.LedgerEntry {
	tx := rt.Tx
	entry := models.LedgerEntry{
		Hash:        tx.Hash,
		BlockNumber: tx.BlockNumber,
		Timestamp:   tx.Timestamp,
		Status:      tx.Status,
		Memo:        b.memo(tx),
	}

	if tx.Status == models.TxStatusSuccess {
		if tx.Value.IsPositive() {
			amount := tx.Value.Shift(-models.NativeDecimals)
			entry.Legs = append(entry.Legs,
				b.leg(models.LegNative, models.NativeSymbol, "", 0, tx.From, amount.Neg()),
				b.leg(models.LegNative, models.NativeSymbol, "", 0, tx.To, amount),
			)
		}

		for _, tr := range rt.Transfers {
			symbol := tokens.DisplaySymbol(tr.Contract, tr.TokenSymbol)
			amount := tr.Amount()
			entry.Legs = append(entry.Legs,
				b.leg(models.LegToken, symbol, tr.Contract, tr.LogIndex, tr.From, amount.Neg()),
				b.leg(models.LegToken, symbol, tr.Contract, tr.LogIndex, tr.To, amount),
			)
		}
	}

	if b.attributeGas(tx) {
		fee := tx.GasFee().Shift(-models.NativeDecimals)
		if fee.IsPositive() {
			payer := b.leg(models.LegGas, models.NativeSymbol, "", 0, tx.From, fee.Neg())
			expense := models.Leg{
				Kind:     models.LegGas,
				Currency: models.NativeSymbol,
				Label:    GasAccountLabel,
				Category: GasAccountCategory,
				Amount:   fee,
			}
			entry.Legs = append(entry.Legs, payer, expense)
		}
	}

	return entry
}

func (b *Builder) leg(kind models.LegKind, currency, contract string, logIndex uint32, address string, amount decimal.Decimal) models.Leg {
	cl := b.classes.Lookup(address)
	return models.Leg{
		Kind:     kind,
		Currency: currency,
		Contract: contract,
		LogIndex: logIndex,
		Address:  address,
		Label:    cl.Label,
		Category: cl.Category,
		Amount:   amount,
	}
}

// memo derives the entry memo from the counterparty classification,
// preferring the receiver over the sender.
func (b *Builder) memo(tx models.RawTransaction) string {
	if cl := b.classes.Lookup(tx.To); cl.Description != "" {
		return cl.Description
	}
	if cl := b.classes.Lookup(tx.From); cl.Description != "" {
		return cl.Description
	}
	return ""
}

// attributeGas decides whether this transaction's fee belongs in the
// exported books. The sender always pays; when only the receiver is
// tracked, attribution is opt-in.
func (b *Builder) attributeGas(tx models.RawTransaction) bool {
	if _, ok := b.tracked[tx.From]; ok {
		return true
	}
	if b.gasForIncoming {
		_, ok := b.tracked[tx.To]
		return ok
	}
	return false
}
