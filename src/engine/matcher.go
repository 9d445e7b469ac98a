package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

type SellOutcome string

const (
	SellMatched            SellOutcome = "MATCHED"
	SellUnmatchedRemainder SellOutcome = "UNMATCHED_REMAINDER"
)

// SellResult is the per-sell outcome of a run. Remainder is set only for
// SellUnmatchedRemainder.
type SellResult struct {
	SellTradeID     int64
	Outcome         SellOutcome
	MatchedQuantity decimal.Decimal
	Remainder       *InsufficientLotsError
}

type UnmatchedSell struct {
	SellTradeID int64
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Timestamp   int64
}

type MatchResult struct {
	Matches  []Match
	OpenLots []Lot
	Sells    []SellResult
	// Unmatched lists sells (or their remainders) with no lot left to consume.
	Unmatched []UnmatchedSell
}

func (r *MatchResult) RealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, m := range r.Matches {
		total = total.Add(m.RealizedPnL)
	}
	return total
}

func (r *MatchResult) UnmatchedQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, u := range r.Unmatched {
		total = total.Add(u.Quantity)
	}
	return total
}

// SortTrades returns a copy ordered by (timestamp, trade id). Stable, so
// exact duplicates keep their relative order.
func SortTrades(trades []Trade) []Trade {
	sorted := make([]Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return tradeLess(sorted[i], sorted[j])
	})
	return sorted
}

// Match pairs sells against earlier buys first-in-first-out. Feed order is
// not trusted; trades are sorted before matching. A malformed trade aborts
// the run; a sell exceeding tracked inventory is recorded and skipped.
func Match(trades []Trade) (*MatchResult, error) {
	for _, t := range trades {
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}

	result := &MatchResult{
		Matches:   make([]Match, 0),
		Sells:     make([]SellResult, 0),
		Unmatched: make([]UnmatchedSell, 0),
	}

	var queue lotQueue

	for _, trade := range SortTrades(trades) {
		if trade.Side == SideBuy {
			queue.Push(Lot{
				OriginTradeID:     trade.ID,
				Price:             trade.Price,
				OriginalQuantity:  trade.Quantity,
				RemainingQuantity: trade.Quantity,
				OpenedAt:          trade.Timestamp,
			})
			continue
		}

		result.Sells = append(result.Sells, matchSell(&queue, trade, result))
	}

	result.OpenLots = queue.Snapshot()
	return result, nil
}

func matchSell(queue *lotQueue, sell Trade, result *MatchResult) SellResult {
	remaining := sell.Quantity

	for remaining.IsPositive() {
		lot := queue.Front()
		if lot == nil {
			// edge case: buy predates the observed window, record and move on
			miss := &InsufficientLotsError{
				SellTradeID: sell.ID,
				Requested:   sell.Quantity,
				Unmatched:   remaining,
			}
			result.Unmatched = append(result.Unmatched, UnmatchedSell{
				SellTradeID: sell.ID,
				Price:       sell.Price,
				Quantity:    remaining,
				Timestamp:   sell.Timestamp,
			})
			return SellResult{
				SellTradeID:     sell.ID,
				Outcome:         SellUnmatchedRemainder,
				MatchedQuantity: sell.Quantity.Sub(remaining),
				Remainder:       miss,
			}
		}

		take := decimal.Min(remaining, lot.RemainingQuantity)
		result.Matches = append(result.Matches, newMatch(lot, sell, take))

		lot.RemainingQuantity = lot.RemainingQuantity.Sub(take)
		if !lot.RemainingQuantity.IsPositive() {
			queue.PopFront()
		}
		remaining = remaining.Sub(take)
	}

	return SellResult{
		SellTradeID:     sell.ID,
		Outcome:         SellMatched,
		MatchedQuantity: sell.Quantity,
	}
}
