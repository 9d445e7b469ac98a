package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"trade-performance/src/engine"
)

//go:generate mockgen -source=store.go -destination=mock/db_mock.go -package=mock DB

// DB is the slice of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const (
	migrateSQL = `CREATE TABLE IF NOT EXISTS account_trades (
	symbol      TEXT        NOT NULL,
	trade_id    BIGINT      NOT NULL,
	order_id    BIGINT      NOT NULL,
	side        TEXT        NOT NULL,
	price       NUMERIC     NOT NULL,
	quantity    NUMERIC     NOT NULL,
	fee_amount  NUMERIC     NOT NULL,
	fee_asset   TEXT        NOT NULL,
	traded_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (symbol, trade_id)
)`
	migrateIndexSQL = `CREATE INDEX IF NOT EXISTS account_trades_symbol_time_idx ON account_trades (symbol, traded_at)`

	insertTradeSQL = `INSERT INTO account_trades
	(symbol, trade_id, order_id, side, price, quantity, fee_amount, fee_asset, traded_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9)
ON CONFLICT (symbol, trade_id) DO NOTHING`

	selectTradesSQL = `SELECT trade_id, order_id, side, price::text, quantity::text, fee_amount::text, fee_asset, traded_at
FROM account_trades
WHERE symbol = $1 AND traded_at >= $2 AND traded_at < $3
ORDER BY traded_at, trade_id`

	latestTradeSQL = `SELECT max(traded_at) FROM account_trades WHERE symbol = $1`
)

// Store persists account trades in Postgres. Re-saving a trade is a no-op,
// so overlapping syncs are safe.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, migrateSQL); err != nil {
		return fmt.Errorf("failed to create account_trades: %w", err)
	}
	if _, err := s.db.Exec(ctx, migrateIndexSQL); err != nil {
		return fmt.Errorf("failed to index account_trades: %w", err)
	}
	return nil
}

// SaveTrades returns how many trades were new.
func (s *Store) SaveTrades(ctx context.Context, trades []engine.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTradeSQL,
			t.Symbol, t.ID, t.OrderID, string(t.Side),
			t.Price.String(), t.Quantity.String(), t.FeeAmount.String(), t.FeeAsset,
			time.UnixMilli(t.Timestamp).UTC(),
		)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for i := range trades {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to store trade %d: %w", trades[i].ID, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// FetchTrades reads the stored trades of one instrument inside the window.
func (s *Store) FetchTrades(ctx context.Context, q Query) ([]engine.Trade, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	symbol := q.Instrument.Symbol()
	rows, err := s.db.Query(ctx, selectTradesSQL, symbol, q.Since.UTC(), q.Until.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]engine.Trade, 0)
	for rows.Next() {
		var (
			t                  engine.Trade
			side               string
			price, qty, feeAmt string
			tradedAt           time.Time
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &side, &price, &qty, &feeAmt, &t.FeeAsset, &tradedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Symbol = symbol
		t.Side = engine.TradeSide(side)
		t.Timestamp = tradedAt.UnixMilli()
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %d price: %w", t.ID, err)
		}
		if t.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("trade %d quantity: %w", t.ID, err)
		}
		if t.FeeAmount, err = decimal.NewFromString(feeAmt); err != nil {
			return nil, fmt.Errorf("trade %d fee: %w", t.ID, err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// LatestTradeTime reports the newest stored trade time, false when the
// instrument has no rows yet.
func (s *Store) LatestTradeTime(ctx context.Context, inst Instrument) (time.Time, bool, error) {
	var latest *time.Time
	err := s.db.QueryRow(ctx, latestTradeSQL, inst.Symbol()).Scan(&latest)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read latest trade: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return *latest, true, nil
}
