package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

// ClickHouseConfig holds connection settings for the entry store.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseStore stores ledger entries one row per leg, keyed by
// (block_number, hash, leg_seq).
type ClickHouseStore struct {
	conn driver.Conn
}

const createLegsTable = `
	CREATE TABLE IF NOT EXISTS ledger_legs (
		hash         String,
		block_number UInt64,
		ts           DateTime('UTC'),
		status       LowCardinality(String),
		memo         String,
		leg_seq      UInt16,
		kind         LowCardinality(String),
		currency     LowCardinality(String),
		contract     String,
		log_index    UInt32,
		address      String,
		label        String,
		category     String,
		amount       String,
		usd_price    String
	) ENGINE = ReplacingMergeTree
	ORDER BY (block_number, hash, leg_seq)
`

// NewClickHouseStore connects to ClickHouse and ensures the schema
// exists.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := conn.Exec(ctx, createLegsTable); err != nil {
		return nil, fmt.Errorf("failed to create ledger_legs table: %w", err)
	}

	return &ClickHouseStore{conn: conn}, nil
}

// InsertEntries stores a batch of ledger entries. Re-inserting the same
// entries is harmless: the ReplacingMergeTree collapses duplicate keys.
func (c *ClickHouseStore) InsertEntries(ctx context.Context, entries []models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO ledger_legs")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, entry := range entries {
		for seq, leg := range entry.Legs {
			var price string
			if leg.USDPrice.Valid {
				price = leg.USDPrice.Decimal.String()
			}
			err := batch.Append(
				entry.Hash,
				entry.BlockNumber,
				entry.Timestamp.UTC(),
				string(entry.Status),
				entry.Memo,
				uint16(seq),
				string(leg.Kind),
				leg.Currency,
				leg.Contract,
				leg.LogIndex,
				leg.Address,
				leg.Label,
				leg.Category,
				leg.Amount.String(),
				price,
			)
			if err != nil {
				return fmt.Errorf("failed to append leg for %s: %w", entry.Hash, err)
			}
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert ledger legs: %w", err)
	}
	return nil
}

// RecentEntries retrieves up to limit entries, newest block first, with
// legs in stored order.
func (c *ClickHouseStore) RecentEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT hash, block_number, ts, status, memo, leg_seq,
		       kind, currency, contract, log_index, address, label, category, amount, usd_price
		FROM ledger_legs FINAL
		WHERE hash IN (
			SELECT hash FROM ledger_legs
			GROUP BY hash, block_number
			ORDER BY block_number DESC, hash ASC
			LIMIT ?
		)
		ORDER BY block_number DESC, hash ASC, leg_seq ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger legs: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	var current *models.LedgerEntry

	for rows.Next() {
		var (
			hash, status, memo                            string
			blockNumber                                   uint64
			ts                                            time.Time
			legSeq                                        uint16
			kind, currency, contract                      string
			logIndex                                      uint32
			address, label, category, amountStr, priceStr string
		)
		if err := rows.Scan(&hash, &blockNumber, &ts, &status, &memo, &legSeq,
			&kind, &currency, &contract, &logIndex, &address, &label, &category, &amountStr, &priceStr); err != nil {
			return nil, fmt.Errorf("failed to scan ledger leg: %w", err)
		}

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("corrupt stored amount for %s: %w", hash, err)
		}
		var price decimal.NullDecimal
		if priceStr != "" {
			p, err := decimal.NewFromString(priceStr)
			if err != nil {
				return nil, fmt.Errorf("corrupt stored price for %s: %w", hash, err)
			}
			price = decimal.NullDecimal{Decimal: p, Valid: true}
		}

		if current == nil || current.Hash != hash {
			entries = append(entries, models.LedgerEntry{
				Hash:        hash,
				BlockNumber: blockNumber,
				Timestamp:   ts,
				Status:      models.TxStatus(status),
				Memo:        memo,
			})
			current = &entries[len(entries)-1]
		}
		current.Legs = append(current.Legs, models.Leg{
			Kind:     models.LegKind(kind),
			Currency: currency,
			Contract: contract,
			LogIndex: logIndex,
			Address:  address,
			Label:    label,
			Category: category,
			Amount:   amount,
			USDPrice: price,
		})
	}

	return entries, rows.Err()
}

// Ping checks connectivity.
func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the connection.
func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
