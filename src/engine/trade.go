package engine

import (
	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// edge case: prices and quantities are decimals, binary floats drift across many small matches
type Trade struct {
	ID        int64
	OrderID   int64
	Symbol    string
	Side      TradeSide
	Price     decimal.Decimal // quote per base unit
	Quantity  decimal.Decimal // base units
	Timestamp int64           // unix timestamp in milliseconds
	FeeAmount decimal.Decimal
	FeeAsset  string
}

func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

func (t Trade) Validate() error {
	if t.Side != SideBuy && t.Side != SideSell {
		return &InvalidTradeError{TradeID: t.ID, Field: "side", Reason: "must be BUY or SELL"}
	}
	if !t.Quantity.IsPositive() {
		return &InvalidTradeError{TradeID: t.ID, Field: "quantity", Reason: "must be positive"}
	}
	if !t.Price.IsPositive() {
		return &InvalidTradeError{TradeID: t.ID, Field: "price", Reason: "must be positive"}
	}
	if t.FeeAmount.IsNegative() {
		return &InvalidTradeError{TradeID: t.ID, Field: "fee_amount", Reason: "must not be negative"}
	}
	return nil
}

// tradeLess orders by timestamp, then trade id
func tradeLess(a, b Trade) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.ID < b.ID
}

// Lot is an unconsumed or partially consumed buy.
type Lot struct {
	OriginTradeID     int64
	Price             decimal.Decimal
	OriginalQuantity  decimal.Decimal
	RemainingQuantity decimal.Decimal
	OpenedAt          int64
}

func (l Lot) CostBasis() decimal.Decimal {
	return l.Price.Mul(l.RemainingQuantity)
}

// Match pairs part of one sell with part of one lot.
type Match struct {
	BuyTradeID    int64
	SellTradeID   int64
	BuyPrice      decimal.Decimal
	SellPrice     decimal.Decimal
	Quantity      decimal.Decimal
	RealizedPnL   decimal.Decimal
	SellTimestamp int64
}

func newMatch(lot *Lot, sell Trade, qty decimal.Decimal) Match {
	return Match{
		BuyTradeID:    lot.OriginTradeID,
		SellTradeID:   sell.ID,
		BuyPrice:      lot.Price,
		SellPrice:     sell.Price,
		Quantity:      qty,
		RealizedPnL:   qty.Mul(sell.Price.Sub(lot.Price)),
		SellTimestamp: sell.Timestamp,
	}
}
