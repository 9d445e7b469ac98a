package engine_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-performance/src/engine"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func buy(id int64, qty, price string, ts int64) engine.Trade {
	return engine.Trade{ID: id, Symbol: "BTCEUR", Side: engine.SideBuy, Price: dec(price), Quantity: dec(qty), Timestamp: ts}
}

func sell(id int64, qty, price string, ts int64) engine.Trade {
	return engine.Trade{ID: id, Symbol: "BTCEUR", Side: engine.SideSell, Price: dec(price), Quantity: dec(qty), Timestamp: ts}
}

// TestMatchConsumesOldestLotFirst: two buys, one sell of the first buy's size
func TestMatchConsumesOldestLotFirst(t *testing.T) {
	trades := []engine.Trade{
		buy(1, "1", "100", 1),
		buy(2, "1", "105", 2),
		sell(3, "1", "110", 3),
	}

	result, err := engine.Match(trades)
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	m := result.Matches[0]
	assert.Equal(t, int64(1), m.BuyTradeID)
	assert.Equal(t, int64(3), m.SellTradeID)
	assert.True(t, m.RealizedPnL.Equal(dec("10")), "pnl %s", m.RealizedPnL)

	require.Len(t, result.OpenLots, 1)
	assert.Equal(t, int64(2), result.OpenLots[0].OriginTradeID)
	assert.True(t, result.OpenLots[0].RemainingQuantity.Equal(dec("1")))
	assert.Empty(t, result.Unmatched)
}

// TestMatchSplitsSellAcrossLots: one sell spans two half lots
func TestMatchSplitsSellAcrossLots(t *testing.T) {
	trades := []engine.Trade{
		buy(1, "0.5", "100", 1000),
		buy(2, "0.5", "105", 2000),
		sell(3, "1.0", "110", 3000),
	}

	result, err := engine.Match(trades)
	require.NoError(t, err)

	require.Len(t, result.Matches, 2)
	assert.True(t, result.Matches[0].BuyPrice.Equal(dec("100")))
	assert.True(t, result.Matches[0].Quantity.Equal(dec("0.5")))
	assert.True(t, result.Matches[0].RealizedPnL.Equal(dec("5")))
	assert.True(t, result.Matches[1].BuyPrice.Equal(dec("105")))
	assert.True(t, result.Matches[1].Quantity.Equal(dec("0.5")))
	assert.True(t, result.Matches[1].RealizedPnL.Equal(dec("2.5")))

	assert.True(t, result.RealizedPnL().Equal(dec("7.5")))
	assert.Empty(t, result.OpenLots)

	require.Len(t, result.Sells, 1)
	assert.Equal(t, engine.SellMatched, result.Sells[0].Outcome)
	assert.Nil(t, result.Sells[0].Remainder)
}

// TestMatchPartialLotStaysOpen: a sell smaller than the lot leaves the rest queued
func TestMatchPartialLotStaysOpen(t *testing.T) {
	trades := []engine.Trade{
		buy(1, "2", "100", 1),
		sell(2, "0.75", "120", 2),
		sell(3, "0.25", "90", 3),
	}

	result, err := engine.Match(trades)
	require.NoError(t, err)

	require.Len(t, result.Matches, 2)
	assert.True(t, result.Matches[0].RealizedPnL.Equal(dec("15")))
	assert.True(t, result.Matches[1].RealizedPnL.Equal(dec("-2.5")))

	require.Len(t, result.OpenLots, 1)
	lot := result.OpenLots[0]
	assert.True(t, lot.RemainingQuantity.Equal(dec("1")))
	assert.True(t, lot.OriginalQuantity.Equal(dec("2")))
}

// TestMatchInventoryConservation checks matched + remaining == original for every buy
func TestMatchInventoryConservation(t *testing.T) {
	trades := []engine.Trade{
		buy(1, "0.3", "100", 1),
		buy(2, "0.7", "101", 2),
		sell(3, "0.4", "102", 3),
		buy(4, "1.25", "99", 4),
		sell(5, "0.9", "103", 5),
		sell(6, "0.05", "104", 6),
		buy(7, "0.1", "98", 7),
		sell(8, "2", "105", 8),
	}

	result, err := engine.Match(trades)
	require.NoError(t, err)

	matched := make(map[int64]decimal.Decimal)
	for _, m := range result.Matches {
		matched[m.BuyTradeID] = matched[m.BuyTradeID].Add(m.Quantity)
	}
	open := make(map[int64]decimal.Decimal)
	for _, lot := range result.OpenLots {
		open[lot.OriginTradeID] = lot.RemainingQuantity
	}

	for _, tr := range trades {
		if tr.Side != engine.SideBuy {
			continue
		}
		total := matched[tr.ID].Add(open[tr.ID])
		assert.True(t, total.Equal(tr.Quantity), "buy %d: matched+open %s != %s", tr.ID, total, tr.Quantity)
	}

	sold := decimal.Zero
	for _, tr := range trades {
		if tr.Side == engine.SideSell {
			sold = sold.Add(tr.Quantity)
		}
	}
	matchedTotal := decimal.Zero
	for _, m := range result.Matches {
		matchedTotal = matchedTotal.Add(m.Quantity)
	}
	assert.True(t, sold.Equal(matchedTotal.Add(result.UnmatchedQuantity())))
}

// TestMatchUnsortedInputMatchesSorted: reverse chronological feed yields the same matches
func TestMatchUnsortedInputMatchesSorted(t *testing.T) {
	sorted := []engine.Trade{
		buy(1, "0.5", "100", 1000),
		buy(2, "0.5", "105", 2000),
		sell(3, "0.6", "110", 3000),
		buy(4, "1", "95", 4000),
		sell(5, "1", "120", 5000),
	}
	reversed := make([]engine.Trade, len(sorted))
	for i, tr := range sorted {
		reversed[len(sorted)-1-i] = tr
	}

	want, err := engine.Match(sorted)
	require.NoError(t, err)
	got, err := engine.Match(reversed)
	require.NoError(t, err)

	assert.Equal(t, want.Matches, got.Matches)
	assert.Equal(t, want.OpenLots, got.OpenLots)
	assert.Equal(t, int64(5), reversed[0].ID, "input must not be reordered in place")
}

// TestMatchIsIdempotent: repeated runs over the same shuffled input are identical
func TestMatchIsIdempotent(t *testing.T) {
	trades := []engine.Trade{
		sell(6, "0.2", "111", 3000),
		buy(2, "0.5", "105", 2000),
		buy(9, "0.1", "104", 3000),
		buy(1, "0.5", "100", 1000),
		sell(3, "0.6", "110", 3000),
	}

	first, err := engine.Match(trades)
	require.NoError(t, err)
	second, err := engine.Match(trades)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestMatchTimestampTieBreaksOnTradeID: equal timestamps order by increasing id
func TestMatchTimestampTieBreaksOnTradeID(t *testing.T) {
	trades := []engine.Trade{
		sell(12, "1", "110", 500),
		buy(11, "1", "100", 500),
		buy(10, "1", "90", 500),
	}

	result, err := engine.Match(trades)
	require.NoError(t, err)

	require.Len(t, result.Matches, 1)
	assert.Equal(t, int64(10), result.Matches[0].BuyTradeID)
	assert.True(t, result.Matches[0].RealizedPnL.Equal(dec("20")))
	require.Len(t, result.OpenLots, 1)
	assert.Equal(t, int64(11), result.OpenLots[0].OriginTradeID)
}

// TestMatchSellBeyondInventoryIsRecorded: window boundary sells do not abort the run
func TestMatchSellBeyondInventoryIsRecorded(t *testing.T) {
	trades := []engine.Trade{
		buy(1, "0.4", "100", 1),
		sell(2, "1", "110", 2),
		buy(3, "1", "105", 3),
		sell(4, "0.5", "115", 4),
	}

	result, err := engine.Match(trades)
	require.NoError(t, err)

	require.Len(t, result.Matches, 2)
	assert.True(t, result.RealizedPnL().Equal(dec("9")), "got %s", result.RealizedPnL())

	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, int64(2), result.Unmatched[0].SellTradeID)
	assert.True(t, result.Unmatched[0].Quantity.Equal(dec("0.6")))

	require.Len(t, result.Sells, 2)
	first := result.Sells[0]
	assert.Equal(t, engine.SellUnmatchedRemainder, first.Outcome)
	assert.True(t, first.MatchedQuantity.Equal(dec("0.4")))
	require.NotNil(t, first.Remainder)
	assert.True(t, first.Remainder.Unmatched.Equal(dec("0.6")))
	assert.Equal(t, engine.SellMatched, result.Sells[1].Outcome)

	require.Len(t, result.OpenLots, 1)
	assert.True(t, result.OpenLots[0].RemainingQuantity.Equal(dec("0.5")))
}

// TestMatchAllSells: no buys at all leaves every sell unmatched
func TestMatchAllSells(t *testing.T) {
	trades := []engine.Trade{
		sell(1, "1", "110", 1),
		sell(2, "2", "111", 2),
	}

	result, err := engine.Match(trades)
	require.NoError(t, err)

	assert.Empty(t, result.Matches)
	assert.Len(t, result.Unmatched, 2)
	assert.True(t, result.UnmatchedQuantity().Equal(dec("3")))
	assert.True(t, result.RealizedPnL().IsZero())
}

func TestMatchRejectsInvalidTrades(t *testing.T) {
	testCases := []struct {
		name  string
		trade engine.Trade
		field string
	}{
		{name: "zero quantity", trade: buy(7, "0", "100", 1), field: "quantity"},
		{name: "negative quantity", trade: sell(7, "-1", "100", 1), field: "quantity"},
		{name: "zero price", trade: buy(7, "1", "0", 1), field: "price"},
		{name: "negative fee", trade: func() engine.Trade {
			tr := buy(7, "1", "100", 1)
			tr.FeeAmount = dec("-0.1")
			return tr
		}(), field: "fee_amount"},
		{name: "unknown side", trade: engine.Trade{ID: 7, Side: "HOLD", Price: dec("1"), Quantity: dec("1")}, field: "side"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			trades := []engine.Trade{buy(1, "1", "100", 0), tc.trade}
			result, err := engine.Match(trades)

			assert.Nil(t, result)
			var invalid *engine.InvalidTradeError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, int64(7), invalid.TradeID)
			assert.Equal(t, tc.field, invalid.Field)
		})
	}
}

func TestMatchEmptyInput(t *testing.T) {
	result, err := engine.Match(nil)
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.Empty(t, result.OpenLots)
	assert.Empty(t, result.Unmatched)
}

// TestMatchManySmallLots exercises queue compaction over a long run
func TestMatchManySmallLots(t *testing.T) {
	trades := make([]engine.Trade, 0, 401)
	for i := int64(1); i <= 400; i++ {
		trades = append(trades, buy(i, "0.01", "100", i))
	}
	trades = append(trades, sell(1000, "3.995", "101", 1000))

	result, err := engine.Match(trades)
	require.NoError(t, err)

	assert.Len(t, result.Matches, 400)
	require.Len(t, result.OpenLots, 1)
	assert.Equal(t, int64(400), result.OpenLots[0].OriginTradeID)
	assert.True(t, result.OpenLots[0].RemainingQuantity.Equal(dec("0.005")))
	assert.True(t, result.RealizedPnL().Equal(dec("3.995")))
}
