// Package pipeline runs one import: fetch, reconcile, classify, build,
// and optionally price-annotate and persist. Warnings are collected and
// reported once at the end of the run rather than interleaved with
// progress output.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/RyanBruno/arb-gnucash-importer/internal/fetch"
	"github.com/RyanBruno/arb-gnucash-importer/internal/ledger"
	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
	"github.com/RyanBruno/arb-gnucash-importer/internal/prices"
	"github.com/RyanBruno/arb-gnucash-importer/internal/reconcile"
	"github.com/RyanBruno/arb-gnucash-importer/internal/storage"
)

// Options wires the stages for one run. Prices and Store are optional.
type Options struct {
	Fetcher   *fetch.Fetcher
	Addresses []string
	Range     models.BlockRange
	Builder   *ledger.Builder
	Prices    *prices.Service
	Store     storage.EntryStore
	Logger    *logrus.Logger
}

// Result is the outcome of a completed run.
type Result struct {
	Entries         []models.LedgerEntry
	Orphans         []reconcile.OrphanTransferWarning
	FailedAddresses []fetch.AddressFailure
}

// Run executes the pipeline. On cancellation in-flight fetches are
// abandoned and nothing is persisted or exported.
func Run(ctx context.Context, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	logger.WithFields(logrus.Fields{
		"addresses":   len(opts.Addresses),
		"start_block": opts.Range.Start,
		"end_block":   opts.Range.End,
	}).Info("starting import run")

	histories, failed, err := opts.Fetcher.FetchAll(ctx, opts.Addresses, opts.Range)
	if err != nil {
		return nil, err
	}

	rec := reconcile.New(logger)
	for _, h := range histories {
		rec.AddHistory(h)
	}
	reconciled, orphans := rec.Finish()

	entries := opts.Builder.BuildAll(reconciled)
	for _, entry := range entries {
		for currency, sum := range entry.BalanceByCurrency() {
			if !sum.IsZero() {
				return nil, fmt.Errorf("entry %s does not balance: %s off by %s", entry.Hash, currency, sum)
			}
		}
	}

	if opts.Prices != nil {
		opts.Prices.Annotate(ctx, entries)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.Store != nil {
		if err := opts.Store.InsertEntries(ctx, entries); err != nil {
			return nil, fmt.Errorf("store entries: %w", err)
		}
	}

	logger.WithFields(logrus.Fields{
		"entries": len(entries),
		"orphans": len(orphans),
		"skipped": len(failed),
	}).Info("import run complete")

	return &Result{
		Entries:         entries,
		Orphans:         orphans,
		FailedAddresses: failed,
	}, nil
}

// ReportWarnings emits every collected warning once, after all progress
// output.
func (r *Result) ReportWarnings(logger *logrus.Logger) {
	for _, w := range r.Orphans {
		logger.Warn(w.String())
	}
	for _, f := range r.FailedAddresses {
		logger.Warn(f.String())
	}
	if len(r.Orphans) == 0 && len(r.FailedAddresses) == 0 {
		return
	}
	logger.WithFields(logrus.Fields{
		"orphan_transfers":  len(r.Orphans),
		"skipped_addresses": len(r.FailedAddresses),
	}).Warn("run finished with warnings")
}
