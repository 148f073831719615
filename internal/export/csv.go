// Package export serializes ledger entries into a GnuCash-importable CSV
// record set. Output is deterministic: the same entry sequence always
// produces byte-identical bytes, so re-running an export is idempotent.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

// UnknownAccount is the account name used for legs whose address has no
// user-supplied label.
const UnknownAccount = "Unknown"

// header is the GnuCash multi-split import column set.
var header = []string{
	"Date", "Transaction ID", "Description", "Memo",
	"Account", "Category", "Commodity", "Deposit", "Withdrawal", "Price",
}

// CSV writes ledger entries as transaction-grouped CSV rows, one row per
// leg, ordered by (block number, transaction hash, log index).
type CSV struct{}

// NewCSV creates a CSV exporter.
func NewCSV() *CSV { return &CSV{} }

// Export writes the entries to w. The input slice is not modified.
func (e *CSV) Export(w io.Writer, entries []models.LedgerEntry) error {
	ordered := make([]models.LedgerEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].BlockNumber != ordered[j].BlockNumber {
			return ordered[i].BlockNumber < ordered[j].BlockNumber
		}
		return ordered[i].Hash < ordered[j].Hash
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, entry := range ordered {
		for _, leg := range entry.Legs {
			if err := cw.Write(row(entry, leg)); err != nil {
				return fmt.Errorf("write csv row for %s: %w", entry.Hash, err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile exports the entries to a file at path, replacing any
// existing content.
func (e *CSV) WriteFile(path string, entries []models.LedgerEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	if err := e.Export(f, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func row(entry models.LedgerEntry, leg models.Leg) []string {
	account := leg.Label
	if account == "" {
		account = UnknownAccount
	}

	description := entry.Memo
	if description == "" {
		if leg.Amount.IsNegative() {
			description = "withdrawal"
		} else {
			description = "deposit"
		}
	}

	var deposit, withdrawal string
	if leg.Amount.IsNegative() {
		withdrawal = leg.Amount.Neg().String()
	} else {
		deposit = leg.Amount.String()
	}

	var price string
	if leg.USDPrice.Valid {
		price = leg.USDPrice.Decimal.String()
	}

	return []string{
		entry.Timestamp.UTC().Format("2006-01-02"),
		entry.Hash,
		description,
		entry.Memo,
		account,
		leg.Category,
		leg.Currency,
		deposit,
		withdrawal,
		price,
	}
}
