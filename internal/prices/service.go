package prices

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

// Quoter fetches daily prices from the explorer stats API. Satisfied by
// arbiscan.Client.
type Quoter interface {
	EthDailyPrice(ctx context.Context, day time.Time) (decimal.Decimal, error)
	TokenDailyPrice(ctx context.Context, contract string, day time.Time) (decimal.Decimal, error)
}

// Service is a cache-through price lookup.
type Service struct {
	quoter Quoter
	cache  Cache
	logger *logrus.Logger
}

// NewService creates a price service over the given quoter and cache.
func NewService(quoter Quoter, cache Cache, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{quoter: quoter, cache: cache, logger: logger}
}

// Daily returns the USD close price for the contract (empty for ETH) on
// the given day, consulting the cache first.
func (s *Service) Daily(ctx context.Context, contract string, day time.Time) (decimal.Decimal, error) {
	key := Key(contract, day)

	if price, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("price cache read failed")
	} else if ok {
		return price, nil
	}

	var price decimal.Decimal
	var err error
	if contract == "" {
		price, err = s.quoter.EthDailyPrice(ctx, day)
	} else {
		price, err = s.quoter.TokenDailyPrice(ctx, contract, day)
	}
	if err != nil {
		return decimal.Zero, err
	}

	if err := s.cache.Put(ctx, key, price); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("price cache write failed")
	}
	return price, nil
}

// Annotate sets the USD price on every leg of the given entries. Price
// lookup failures leave the leg unpriced and are logged once per key;
// they never fail the run.
func (s *Service) Annotate(ctx context.Context, entries []models.LedgerEntry) {
	failed := make(map[string]struct{})

	for i := range entries {
		day := entries[i].Timestamp
		for j := range entries[i].Legs {
			leg := &entries[i].Legs[j]
			key := Key(leg.Contract, day)
			if _, bad := failed[key]; bad {
				continue
			}
			price, err := s.Daily(ctx, leg.Contract, day)
			if err != nil {
				failed[key] = struct{}{}
				s.logger.WithError(err).WithField("key", key).Warn("price lookup failed; leaving leg unpriced")
				continue
			}
			leg.USDPrice = decimal.NullDecimal{Decimal: price, Valid: true}
		}
	}
}
