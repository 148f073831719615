// Package reconcile merges native transactions with the ERC-20 transfer
// events sharing their hash into one ReconciledTransaction per hash.
//
// Records may arrive in any interleaving across addresses, and the same
// record may arrive more than once: a transaction appears in both the
// sender's and the receiver's history, and overlapping paginated
// re-fetches repeat (hash, log index) pairs. The reconciler collapses
// all of these to a single effect.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

// OrphanTransferWarning reports a token transfer whose parent transaction
// never arrived within the fetch window. Emitted exactly once per orphan
// at the end of a run; orphans are excluded from the ledger but never
// silently dropped.
type OrphanTransferWarning struct {
	Hash     string
	LogIndex uint32
	Contract string
}

func (w OrphanTransferWarning) String() string {
	return fmt.Sprintf("orphan token transfer: tx %s log %d (token %s) has no parent transaction in the fetch window", w.Hash, w.LogIndex, w.Contract)
}

// Reconciler accumulates raw records and resolves them into reconciled
// transactions. Not safe for concurrent use; the pipeline feeds it
// sequentially from fully drained address histories.
type Reconciler struct {
	byHash  map[string]*models.ReconciledTransaction
	pending map[string][]models.RawTokenTransfer // transfers awaiting their parent tx
	seen    map[string]map[uint32]struct{}       // (hash, log index) dedup
	logger  *logrus.Logger
}

// New creates an empty Reconciler.
func New(logger *logrus.Logger) *Reconciler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reconciler{
		byHash:  make(map[string]*models.ReconciledTransaction),
		pending: make(map[string][]models.RawTokenTransfer),
		seen:    make(map[string]map[uint32]struct{}),
		logger:  logger,
	}
}

// AddHistory feeds one address's complete fetch result.
func (r *Reconciler) AddHistory(h models.AddressHistory) {
	for _, tx := range h.Transactions {
		r.AddTransaction(tx)
	}
	for _, tr := range h.Transfers {
		r.AddTransfer(tr)
	}
}

// AddTransaction registers a native transaction. Duplicate hashes (the
// same transaction seen from another tracked address) collapse to one
// record. Any transfers held pending for this hash are resolved.
func (r *Reconciler) AddTransaction(tx models.RawTransaction) {
	if _, ok := r.byHash[tx.Hash]; ok {
		r.logger.WithField("hash", tx.Hash).Debug("duplicate transaction collapsed")
		return
	}
	rt := &models.ReconciledTransaction{Tx: tx}
	r.byHash[tx.Hash] = rt

	if held, ok := r.pending[tx.Hash]; ok {
		rt.Transfers = append(rt.Transfers, held...)
		delete(r.pending, tx.Hash)
	}
}

// AddTransfer registers an ERC-20 transfer. Identical (hash, log index)
// pairs collapse to one record. A transfer without a known parent
// transaction is held pending until the parent arrives or the run ends.
func (r *Reconciler) AddTransfer(tr models.RawTokenTransfer) {
	indices, ok := r.seen[tr.Hash]
	if !ok {
		indices = make(map[uint32]struct{})
		r.seen[tr.Hash] = indices
	}
	if _, dup := indices[tr.LogIndex]; dup {
		r.logger.WithFields(logrus.Fields{
			"hash":      tr.Hash,
			"log_index": tr.LogIndex,
		}).Debug("duplicate token transfer collapsed")
		return
	}
	indices[tr.LogIndex] = struct{}{}

	if rt, ok := r.byHash[tr.Hash]; ok {
		rt.Transfers = append(rt.Transfers, tr)
		return
	}
	r.pending[tr.Hash] = append(r.pending[tr.Hash], tr)
}

// Finish returns the reconciled transactions ordered by (block number,
// hash) with each transaction's transfers ordered by log index, plus one
// warning per transfer that was never resolved.
func (r *Reconciler) Finish() ([]models.ReconciledTransaction, []OrphanTransferWarning) {
	out := make([]models.ReconciledTransaction, 0, len(r.byHash))
	for _, rt := range r.byHash {
		sort.Slice(rt.Transfers, func(i, j int) bool {
			return rt.Transfers[i].LogIndex < rt.Transfers[j].LogIndex
		})
		out = append(out, *rt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tx.BlockNumber != out[j].Tx.BlockNumber {
			return out[i].Tx.BlockNumber < out[j].Tx.BlockNumber
		}
		return out[i].Tx.Hash < out[j].Tx.Hash
	})

	var warnings []OrphanTransferWarning
	for _, held := range r.pending {
		for _, tr := range held {
			warnings = append(warnings, OrphanTransferWarning{
				Hash:     tr.Hash,
				LogIndex: tr.LogIndex,
				Contract: tr.Contract,
			})
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].Hash != warnings[j].Hash {
			return warnings[i].Hash < warnings[j].Hash
		}
		return warnings[i].LogIndex < warnings[j].LogIndex
	})

	return out, warnings
}
