package engine_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-performance/src/engine"
)

func withFee(tr engine.Trade, amount, asset string) engine.Trade {
	tr.FeeAmount = dec(amount)
	tr.FeeAsset = asset
	return tr
}

func aggregate(t *testing.T, trades []engine.Trade, rate string) engine.PerformanceSnapshot {
	t.Helper()
	result, err := engine.Match(trades)
	require.NoError(t, err)
	return engine.Aggregate(engine.AggregateInput{
		Result:            result,
		Trades:            trades,
		FeeAsset:          "BNB",
		FeeAssetQuoteRate: dec(rate),
	})
}

// TestAggregateEndToEnd: two half buys, one full sell, 0.02 BNB fees at 600
func TestAggregateEndToEnd(t *testing.T) {
	trades := []engine.Trade{
		withFee(buy(1, "0.5", "100", 1000), "0.01", "BNB"),
		withFee(buy(2, "0.5", "105", 2000), "0.005", "BNB"),
		withFee(sell(3, "1.0", "110", 3000), "0.005", "BNB"),
	}

	snap := aggregate(t, trades, "600")

	assert.Equal(t, engine.Period{From: 1000, To: 3000}, snap.Period)
	assert.Equal(t, 3, snap.TotalTrades)
	assert.Equal(t, 2, snap.BuyCount)
	assert.Equal(t, 1, snap.SellCount)

	assert.True(t, snap.TotalFeeInFeeAsset.Equal(dec("0.02")))
	assert.True(t, snap.TotalFeeInQuote.Equal(dec("12")), "fee quote %s", snap.TotalFeeInQuote)
	assert.True(t, snap.RealizedPnLGrossQuote.Equal(dec("7.5")))
	assert.True(t, snap.RealizedPnLNetQuote.Equal(dec("-4.5")))

	assert.True(t, snap.TotalBuyVolumeBase.Equal(dec("1")))
	assert.True(t, snap.TotalSellVolumeBase.Equal(dec("1")))
	assert.True(t, snap.TotalBuyNotionalQuote.Equal(dec("102.5")))
	assert.True(t, snap.TotalSellNotionalQuote.Equal(dec("110")))

	require.NotNil(t, snap.AvgBuyPrice)
	require.NotNil(t, snap.AvgSellPrice)
	assert.True(t, snap.AvgBuyPrice.Equal(dec("102.5")))
	assert.True(t, snap.AvgSellPrice.Equal(dec("110")))

	require.NotNil(t, snap.WinRatePct)
	assert.Equal(t, "7.32", snap.WinRatePct.StringFixed(2))
	require.NotNil(t, snap.ROIPct)
	assert.Equal(t, "7.32", snap.ROIPct.StringFixed(2))
	require.NotNil(t, snap.ROINetPct)
	assert.Equal(t, "-4.39", snap.ROINetPct.StringFixed(2))

	assert.Equal(t, 2, snap.MatchCount)
	assert.Zero(t, snap.UnmatchedSellCount)
	assert.Zero(t, snap.OpenLotCount)
	assert.Empty(t, snap.OtherFeeAssets)
}

func TestAggregateFeeConversion(t *testing.T) {
	trades := []engine.Trade{withFee(buy(1, "1", "100", 1), "0.02", "BNB")}

	snap := aggregate(t, trades, "600")

	assert.True(t, snap.TotalFeeInQuote.Equal(dec("12.0")))
	assert.True(t, snap.FeeAssetQuoteRate.Equal(dec("600")))
}

// TestAggregateAllSellsHasNoROI: no buys means undefined ratios, not a crash
func TestAggregateAllSellsHasNoROI(t *testing.T) {
	trades := []engine.Trade{
		sell(1, "1", "110", 1),
		sell(2, "0.5", "120", 2),
	}

	snap := aggregate(t, trades, "600")

	assert.Nil(t, snap.ROIPct)
	assert.Nil(t, snap.ROINetPct)
	assert.Nil(t, snap.AvgBuyPrice)
	assert.Nil(t, snap.WinRatePct)
	require.NotNil(t, snap.AvgSellPrice)
	assert.Equal(t, 2, snap.UnmatchedSellCount)
	assert.True(t, snap.UnmatchedSellQuantity.Equal(dec("1.5")))
	assert.Len(t, snap.UnmatchedSells, 2)
	assert.True(t, snap.RealizedPnLGrossQuote.IsZero())
}

// TestAggregateReportsOtherFeeAssets: fees outside the fee asset are listed, not summed
func TestAggregateReportsOtherFeeAssets(t *testing.T) {
	trades := []engine.Trade{
		withFee(buy(1, "1", "100", 1), "0.01", "BNB"),
		withFee(buy(2, "1", "100", 2), "0.1", "eur"),
		withFee(sell(3, "1", "110", 3), "0.001", "BTC"),
		withFee(sell(4, "0.5", "110", 4), "0.2", "EUR"),
		withFee(sell(5, "0.5", "110", 5), "0", "ETH"),
	}

	snap := aggregate(t, trades, "500")

	assert.True(t, snap.TotalFeeInFeeAsset.Equal(dec("0.01")))
	assert.True(t, snap.TotalFeeInQuote.Equal(dec("5")))
	require.Len(t, snap.OtherFeeAssets, 2)
	assert.Equal(t, "BTC", snap.OtherFeeAssets[0].Asset)
	assert.True(t, snap.OtherFeeAssets[0].Amount.Equal(dec("0.001")))
	assert.Equal(t, 1, snap.OtherFeeAssets[0].TradeCount)
	assert.Equal(t, "EUR", snap.OtherFeeAssets[1].Asset)
	assert.True(t, snap.OtherFeeAssets[1].Amount.Equal(dec("0.3")))
	assert.Equal(t, 2, snap.OtherFeeAssets[1].TradeCount)
}

func TestAggregateOpenLots(t *testing.T) {
	trades := []engine.Trade{
		buy(1, "1", "100", 1),
		buy(2, "2", "110", 2),
		sell(3, "1.5", "120", 3),
	}

	snap := aggregate(t, trades, "1")

	assert.Equal(t, 1, snap.OpenLotCount)
	assert.True(t, snap.OpenQuantity.Equal(dec("1.5")))
	assert.True(t, snap.OpenCostBasis.Equal(dec("165")))
	assert.True(t, snap.RealizedPnLGrossQuote.Equal(dec("25")))
}

func TestAggregateEmpty(t *testing.T) {
	snap := engine.Aggregate(engine.AggregateInput{FeeAsset: "BNB", FeeAssetQuoteRate: decimal.Zero})

	assert.Zero(t, snap.TotalTrades)
	assert.Nil(t, snap.AvgTradeSizeQuote)
	assert.Nil(t, snap.ROIPct)
	assert.True(t, snap.TotalFeeInQuote.IsZero())
	assert.True(t, snap.RealizedPnLNetQuote.IsZero())
}

// TestAggregateDoesNotMutateInputs: repeated calls agree and leave inputs as they were
func TestAggregateDoesNotMutateInputs(t *testing.T) {
	trades := []engine.Trade{
		withFee(sell(3, "1.0", "110", 3000), "0.005", "BNB"),
		withFee(buy(1, "0.5", "100", 1000), "0.01", "BNB"),
		withFee(buy(2, "0.5", "105", 2000), "0.005", "BNB"),
	}
	result, err := engine.Match(trades)
	require.NoError(t, err)

	in := engine.AggregateInput{Result: result, Trades: trades, FeeAsset: "BNB", FeeAssetQuoteRate: dec("600")}
	first := engine.Aggregate(in)
	second := engine.Aggregate(in)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(3), trades[0].ID)
	assert.Len(t, result.Matches, 2)
}

func TestDailyBreakdown(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	day2 := time.Date(2025, 3, 2, 23, 30, 0, 0, time.UTC).UnixMilli()

	trades := []engine.Trade{
		withFee(buy(1, "1", "100", day1), "0.01", "BNB"),
		withFee(sell(2, "0.5", "120", day2), "0.01", "BNB"),
	}
	result, err := engine.Match(trades)
	require.NoError(t, err)

	rows := engine.DailyBreakdown(trades, result, "BNB", dec("600"), time.UTC)

	require.Len(t, rows, 2)
	assert.Equal(t, "2025-03-01", rows[0].Date)
	assert.True(t, rows[0].RealizedPnLGross.IsZero())
	assert.True(t, rows[0].RealizedPnLNet.Equal(dec("-6")))
	assert.True(t, rows[0].VolumeQuote.Equal(dec("100")))

	assert.Equal(t, "2025-03-02", rows[1].Date)
	assert.True(t, rows[1].RealizedPnLGross.Equal(dec("10")))
	assert.True(t, rows[1].RealizedPnLNet.Equal(dec("4")))

	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	shifted := engine.DailyBreakdown(trades, result, "BNB", dec("600"), berlin)
	require.Len(t, shifted, 2)
	assert.Equal(t, "2025-03-03", shifted[1].Date)
}

func TestTradeSetOrdersAndDeduplicates(t *testing.T) {
	set := engine.NewTradeSet()

	added := set.AddAll([]engine.Trade{
		buy(3, "1", "100", 20),
		buy(1, "1", "100", 10),
		buy(2, "1", "100", 10),
		buy(3, "1", "100", 20),
	})

	assert.Equal(t, 3, added)
	assert.Equal(t, 3, set.Len())
	assert.False(t, set.Add(buy(1, "1", "100", 10)))

	ids := make([]int64, 0)
	for _, tr := range set.Trades() {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)

	latest, ok := set.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(3), latest.ID)

	_, ok = engine.NewTradeSet().Latest()
	assert.False(t, ok)
}
