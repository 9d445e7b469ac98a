package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type DailyPerformance struct {
	Date        string // YYYY-MM-DD in the breakdown's location
	TotalTrades int
	VolumeBase  decimal.Decimal
	VolumeQuote decimal.Decimal
	FeeInAsset  decimal.Decimal
	FeeInQuote  decimal.Decimal
	// RealizedPnLGross holds matches whose sell falls on this day; the buy
	// side may come from any earlier day.
	RealizedPnLGross decimal.Decimal
	RealizedPnLNet   decimal.Decimal
}

// DailyBreakdown groups trades and matches by calendar day in loc, oldest day first.
func DailyBreakdown(trades []Trade, result *MatchResult, feeAsset string, rate decimal.Decimal, loc *time.Location) []DailyPerformance {
	if loc == nil {
		loc = time.UTC
	}

	days := make(map[string]*DailyPerformance)
	day := func(ts int64) *DailyPerformance {
		key := time.UnixMilli(ts).In(loc).Format(time.DateOnly)
		d, ok := days[key]
		if !ok {
			d = &DailyPerformance{
				Date:             key,
				VolumeBase:       decimal.Zero,
				VolumeQuote:      decimal.Zero,
				FeeInAsset:       decimal.Zero,
				RealizedPnLGross: decimal.Zero,
			}
			days[key] = d
		}
		return d
	}

	for _, t := range trades {
		d := day(t.Timestamp)
		d.TotalTrades++
		d.VolumeBase = d.VolumeBase.Add(t.Quantity)
		d.VolumeQuote = d.VolumeQuote.Add(t.Notional())
		if sameAsset(t.FeeAsset, feeAsset) {
			d.FeeInAsset = d.FeeInAsset.Add(t.FeeAmount)
		}
	}

	if result != nil {
		for _, m := range result.Matches {
			d := day(m.SellTimestamp)
			d.RealizedPnLGross = d.RealizedPnLGross.Add(m.RealizedPnL)
		}
	}

	out := make([]DailyPerformance, 0, len(days))
	for _, d := range days {
		d.FeeInQuote = d.FeeInAsset.Mul(rate)
		d.RealizedPnLNet = d.RealizedPnLGross.Sub(d.FeeInQuote)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date < out[j].Date
	})
	return out
}
