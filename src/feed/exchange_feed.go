package feed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-performance/src/engine"
	"trade-performance/src/exchange"
)

const (
	myTradesPath = "/api/v3/myTrades"
	// the endpoint rejects startTime/endTime further apart than this
	maxWindow = 24 * time.Hour
)

type accountTrade struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	QuoteQty        string `json:"quoteQty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
	IsBuyer         bool   `json:"isBuyer"`
}

func (a accountTrade) toTrade() (engine.Trade, error) {
	price, err := decimal.NewFromString(a.Price)
	if err != nil {
		return engine.Trade{}, fmt.Errorf("trade %d price %q: %w", a.ID, a.Price, err)
	}
	qty, err := decimal.NewFromString(a.Qty)
	if err != nil {
		return engine.Trade{}, fmt.Errorf("trade %d qty %q: %w", a.ID, a.Qty, err)
	}
	fee := decimal.Zero
	if a.Commission != "" {
		if fee, err = decimal.NewFromString(a.Commission); err != nil {
			return engine.Trade{}, fmt.Errorf("trade %d commission %q: %w", a.ID, a.Commission, err)
		}
	}

	side := engine.SideSell
	if a.IsBuyer {
		side = engine.SideBuy
	}

	return engine.Trade{
		ID:        a.ID,
		OrderID:   a.OrderID,
		Symbol:    a.Symbol,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Timestamp: a.Time,
		FeeAmount: fee,
		FeeAsset:  a.CommissionAsset,
	}, nil
}

// ExchangeFeed pulls the account's fills from the signed myTrades endpoint.
type ExchangeFeed struct {
	client    *exchange.Client
	pageLimit int
	logger    zerolog.Logger
}

func NewExchangeFeed(client *exchange.Client, pageLimit int, logger zerolog.Logger) *ExchangeFeed {
	if pageLimit <= 0 || pageLimit > 1000 {
		pageLimit = 1000
	}
	return &ExchangeFeed{client: client, pageLimit: pageLimit, logger: logger}
}

// FetchTrades walks the window one day at a time. A full page inside a day is
// followed by fromId paging until the day is exhausted.
func (f *ExchangeFeed) FetchTrades(ctx context.Context, q Query) ([]engine.Trade, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	set := engine.NewTradeSet()
	since := q.Since.UnixMilli()
	until := q.Until.UnixMilli()
	slices := 0

	for start := since; start < until; start += maxWindow.Milliseconds() {
		end := min(start+maxWindow.Milliseconds(), until)
		if err := f.fetchSlice(ctx, q.Instrument, start, end, set); err != nil {
			return nil, err
		}
		slices++
	}

	f.logger.Debug().
		Str("symbol", q.Instrument.Symbol()).
		Int("slices", slices).
		Int("trades", set.Len()).
		Msg("Fetched account trades")

	return set.Trades(), nil
}

func (f *ExchangeFeed) fetchSlice(ctx context.Context, inst Instrument, start, end int64, set *engine.TradeSet) error {
	params := url.Values{
		"symbol":    {inst.Symbol()},
		"startTime": {strconv.FormatInt(start, 10)},
		// endTime is inclusive upstream
		"endTime": {strconv.FormatInt(end-1, 10)},
		"limit":   {strconv.Itoa(f.pageLimit)},
	}

	for {
		var page []accountTrade
		if err := f.client.SignedGet(ctx, myTradesPath, params, &page); err != nil {
			return fmt.Errorf("fetch %s trades: %w", inst.Symbol(), err)
		}

		var lastID int64
		pastEnd := false
		for _, at := range page {
			if at.ID > lastID {
				lastID = at.ID
			}
			// edge case: fromId pages are not bounded by time
			if at.Time < start || at.Time >= end {
				pastEnd = pastEnd || at.Time >= end
				continue
			}
			tr, err := at.toTrade()
			if err != nil {
				return err
			}
			set.Add(tr)
		}

		if len(page) < f.pageLimit || pastEnd {
			return nil
		}

		params = url.Values{
			"symbol": {inst.Symbol()},
			"fromId": {strconv.FormatInt(lastID+1, 10)},
			"limit":  {strconv.Itoa(f.pageLimit)},
		}
	}
}
