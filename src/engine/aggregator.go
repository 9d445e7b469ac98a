package engine

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Period struct {
	From int64 // unix timestamp in milliseconds
	To   int64
}

type FeeTotal struct {
	Asset      string
	Amount     decimal.Decimal
	TradeCount int
}

// PerformanceSnapshot is built once per report and never mutated.
// Pointer fields are nil when the ratio behind them is undefined.
type PerformanceSnapshot struct {
	Period Period

	TotalTrades int
	BuyCount    int
	SellCount   int

	TotalBuyVolumeBase     decimal.Decimal
	TotalSellVolumeBase    decimal.Decimal
	TotalBuyNotionalQuote  decimal.Decimal
	TotalSellNotionalQuote decimal.Decimal
	TotalVolumeBase        decimal.Decimal
	TotalVolumeQuote       decimal.Decimal
	AvgTradeSizeQuote      *decimal.Decimal

	FeeAsset           string
	FeeAssetQuoteRate  decimal.Decimal
	TotalFeeInFeeAsset decimal.Decimal
	TotalFeeInQuote    decimal.Decimal
	OtherFeeAssets     []FeeTotal

	RealizedPnLGrossQuote decimal.Decimal
	RealizedPnLNetQuote   decimal.Decimal

	AvgBuyPrice  *decimal.Decimal
	AvgSellPrice *decimal.Decimal
	WinRatePct   *decimal.Decimal
	ROIPct       *decimal.Decimal
	ROINetPct    *decimal.Decimal

	MatchCount            int
	UnmatchedSellCount    int
	UnmatchedSellQuantity decimal.Decimal
	UnmatchedSells        []UnmatchedSell

	OpenLotCount  int
	OpenQuantity  decimal.Decimal
	OpenCostBasis decimal.Decimal
}

type AggregateInput struct {
	Result            *MatchResult
	Trades            []Trade
	FeeAsset          string
	FeeAssetQuoteRate decimal.Decimal
}

// Aggregate folds a matching result and the trades behind it into a snapshot.
// The fee rate is applied uniformly: it is the rate at report time, not at
// each fee's trade time.
func Aggregate(in AggregateInput) PerformanceSnapshot {
	result := in.Result
	if result == nil {
		result = &MatchResult{}
	}

	snap := PerformanceSnapshot{
		TotalBuyVolumeBase:     decimal.Zero,
		TotalSellVolumeBase:    decimal.Zero,
		TotalBuyNotionalQuote:  decimal.Zero,
		TotalSellNotionalQuote: decimal.Zero,
		FeeAsset:               in.FeeAsset,
		FeeAssetQuoteRate:      in.FeeAssetQuoteRate,
		TotalFeeInFeeAsset:     decimal.Zero,
		OtherFeeAssets:         make([]FeeTotal, 0),
		OpenQuantity:           decimal.Zero,
		OpenCostBasis:          decimal.Zero,
	}

	other := make(map[string]*FeeTotal)

	for i, t := range in.Trades {
		if i == 0 || t.Timestamp < snap.Period.From {
			snap.Period.From = t.Timestamp
		}
		if i == 0 || t.Timestamp > snap.Period.To {
			snap.Period.To = t.Timestamp
		}

		snap.TotalTrades++
		if t.Side == SideBuy {
			snap.BuyCount++
			snap.TotalBuyVolumeBase = snap.TotalBuyVolumeBase.Add(t.Quantity)
			snap.TotalBuyNotionalQuote = snap.TotalBuyNotionalQuote.Add(t.Notional())
		} else {
			snap.SellCount++
			snap.TotalSellVolumeBase = snap.TotalSellVolumeBase.Add(t.Quantity)
			snap.TotalSellNotionalQuote = snap.TotalSellNotionalQuote.Add(t.Notional())
		}

		if t.FeeAmount.IsZero() {
			continue
		}
		if sameAsset(t.FeeAsset, in.FeeAsset) {
			snap.TotalFeeInFeeAsset = snap.TotalFeeInFeeAsset.Add(t.FeeAmount)
			continue
		}
		key := strings.ToUpper(t.FeeAsset)
		if key == "" {
			key = "UNKNOWN"
		}
		ft, ok := other[key]
		if !ok {
			ft = &FeeTotal{Asset: key, Amount: decimal.Zero}
			other[key] = ft
		}
		ft.Amount = ft.Amount.Add(t.FeeAmount)
		ft.TradeCount++
	}

	for _, ft := range other {
		snap.OtherFeeAssets = append(snap.OtherFeeAssets, *ft)
	}
	sort.Slice(snap.OtherFeeAssets, func(i, j int) bool {
		return snap.OtherFeeAssets[i].Asset < snap.OtherFeeAssets[j].Asset
	})

	snap.TotalVolumeBase = snap.TotalBuyVolumeBase.Add(snap.TotalSellVolumeBase)
	snap.TotalVolumeQuote = snap.TotalBuyNotionalQuote.Add(snap.TotalSellNotionalQuote)
	if snap.TotalTrades > 0 {
		snap.AvgTradeSizeQuote = ptr(snap.TotalVolumeQuote.Div(decimal.NewFromInt(int64(snap.TotalTrades))))
	}

	snap.TotalFeeInQuote = snap.TotalFeeInFeeAsset.Mul(in.FeeAssetQuoteRate)

	snap.RealizedPnLGrossQuote = result.RealizedPnL()
	snap.RealizedPnLNetQuote = snap.RealizedPnLGrossQuote.Sub(snap.TotalFeeInQuote)

	snap.AvgBuyPrice = safeDiv(snap.TotalBuyNotionalQuote, snap.TotalBuyVolumeBase)
	snap.AvgSellPrice = safeDiv(snap.TotalSellNotionalQuote, snap.TotalSellVolumeBase)
	if snap.AvgBuyPrice != nil && snap.AvgSellPrice != nil {
		snap.WinRatePct = pct(snap.AvgSellPrice.Sub(*snap.AvgBuyPrice), *snap.AvgBuyPrice)
	}

	snap.ROIPct = pct(snap.RealizedPnLGrossQuote, snap.TotalBuyNotionalQuote)
	snap.ROINetPct = pct(snap.RealizedPnLNetQuote, snap.TotalBuyNotionalQuote)

	snap.MatchCount = len(result.Matches)
	snap.UnmatchedSells = append(make([]UnmatchedSell, 0, len(result.Unmatched)), result.Unmatched...)
	snap.UnmatchedSellCount = len(result.Unmatched)
	snap.UnmatchedSellQuantity = result.UnmatchedQuantity()

	snap.OpenLotCount = len(result.OpenLots)
	for _, lot := range result.OpenLots {
		snap.OpenQuantity = snap.OpenQuantity.Add(lot.RemainingQuantity)
		snap.OpenCostBasis = snap.OpenCostBasis.Add(lot.CostBasis())
	}

	return snap
}

func sameAsset(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// edge case: zero denominator yields nil instead of a division panic
func safeDiv(num, den decimal.Decimal) *decimal.Decimal {
	if den.IsZero() {
		return nil
	}
	return ptr(num.Div(den))
}

func pct(num, den decimal.Decimal) *decimal.Decimal {
	q := safeDiv(num, den)
	if q == nil {
		return nil
	}
	return ptr(q.Mul(hundred))
}
