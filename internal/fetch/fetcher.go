// Package fetch drains complete transaction histories for a set of
// addresses from the explorer API. Addresses are fetched concurrently
// with a bounded fan-out, but a single address's history is always fully
// drained before it is handed downstream, so the reconciler never sees a
// partial history.
package fetch

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBruno/arb-gnucash-importer/internal/arbiscan"
	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

// Source is the paginated record source. Satisfied by arbiscan.Client.
// Implementations return an empty batch when the history is exhausted
// and thread the cursor explicitly so retries can resume mid-history.
type Source interface {
	Transactions(ctx context.Context, address string, rng models.BlockRange, cur arbiscan.Cursor) ([]models.RawTransaction, arbiscan.Cursor, error)
	TokenTransfers(ctx context.Context, address string, rng models.BlockRange, cur arbiscan.Cursor) ([]models.RawTokenTransfer, arbiscan.Cursor, error)
}

// AddressFailure records an address whose sub-stream was aborted after
// retries were exhausted, while the rest of the run continued.
type AddressFailure struct {
	Address string
	Err     error
}

func (f AddressFailure) String() string {
	return fmt.Sprintf("address %s skipped: %v", f.Address, f.Err)
}

// Fetcher fans out over addresses with bounded concurrency.
type Fetcher struct {
	src         Source
	concurrency int
	logger      *logrus.Logger
}

// Config holds configuration for a Fetcher.
type Config struct {
	Source      Source
	Concurrency int // max addresses fetched in parallel
	Logger      *logrus.Logger
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Fetcher{
		src:         cfg.Source,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

// FetchAll drains histories for all addresses within the block range.
// Histories are returned in input-address order. An exhausted-retries
// failure aborts only that address and is reported in the failure list;
// auth failures and malformed responses abort the whole run.
func (f *Fetcher) FetchAll(ctx context.Context, addresses []string, rng models.BlockRange) ([]models.AddressHistory, []AddressFailure, error) {
	results := make([]models.AddressHistory, len(addresses))
	failures := make([]*AddressFailure, len(addresses))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	for i, addr := range addresses {
		i, addr := i, addr
		g.Go(func() error {
			h, err := f.drain(ctx, addr, rng)
			if err == nil {
				results[i] = h
				return nil
			}
			if addressScoped(err) {
				f.logger.WithError(err).WithField("address", addr).Warn("address fetch aborted after retries")
				failures[i] = &AddressFailure{Address: models.NormalizeAddress(addr), Err: err}
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	histories := make([]models.AddressHistory, 0, len(addresses))
	failed := make([]AddressFailure, 0)
	for i := range addresses {
		if failures[i] != nil {
			failed = append(failed, *failures[i])
			continue
		}
		histories = append(histories, results[i])
	}
	return histories, failed, nil
}

// drain follows continuation cursors until both record streams for one
// address are exhausted.
func (f *Fetcher) drain(ctx context.Context, address string, rng models.BlockRange) (models.AddressHistory, error) {
	h := models.AddressHistory{Address: models.NormalizeAddress(address)}

	cur := arbiscan.FirstPage()
	for {
		batch, next, err := f.src.Transactions(ctx, h.Address, rng, cur)
		if err != nil {
			return h, err
		}
		if len(batch) == 0 {
			break
		}
		f.logger.WithFields(logrus.Fields{
			"address": h.Address,
			"page":    cur.Page,
			"count":   len(batch),
		}).Debug("fetched transaction page")
		h.Transactions = append(h.Transactions, batch...)
		cur = next
	}

	cur = arbiscan.FirstPage()
	for {
		batch, next, err := f.src.TokenTransfers(ctx, h.Address, rng, cur)
		if err != nil {
			return h, err
		}
		if len(batch) == 0 {
			break
		}
		f.logger.WithFields(logrus.Fields{
			"address": h.Address,
			"page":    cur.Page,
			"count":   len(batch),
		}).Debug("fetched token transfer page")
		h.Transfers = append(h.Transfers, batch...)
		cur = next
	}

	// Downstream relies on non-decreasing block order within an address.
	sort.SliceStable(h.Transactions, func(i, j int) bool {
		return h.Transactions[i].BlockNumber < h.Transactions[j].BlockNumber
	})
	sort.SliceStable(h.Transfers, func(i, j int) bool {
		return h.Transfers[i].BlockNumber < h.Transfers[j].BlockNumber
	})

	f.logger.WithFields(logrus.Fields{
		"address":   h.Address,
		"txs":       len(h.Transactions),
		"transfers": len(h.Transfers),
	}).Info("address history drained")

	return h, nil
}

// addressScoped reports whether the error is an exhausted-retries
// escalation, which isolates to the one address, as opposed to a global
// condition like an auth failure or malformed API contract.
func addressScoped(err error) bool {
	return arbiscan.IsFatal(err) && arbiscan.IsTransient(err)
}
