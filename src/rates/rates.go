package rates

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-performance/src/engine"
	"trade-performance/src/exchange"
	"trade-performance/src/observability"
)

// Source prices one unit of asset in quote at the time of the call.
type Source interface {
	CurrentRate(ctx context.Context, asset, quote string) (decimal.Decimal, error)
}

const tickerPath = "/api/v3/ticker/price"

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// TickerSource reads the exchange ticker for ASSETQUOTE. When that pair is
// not listed it divides ASSET/CROSS by QUOTE/CROSS.
type TickerSource struct {
	client  *exchange.Client
	cross   string
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewTickerSource(client *exchange.Client, cross string, logger zerolog.Logger, metrics *observability.Metrics) *TickerSource {
	return &TickerSource{
		client:  client,
		cross:   strings.ToUpper(cross),
		logger:  logger,
		metrics: metrics,
	}
}

func (s *TickerSource) CurrentRate(ctx context.Context, asset, quote string) (decimal.Decimal, error) {
	asset, quote = strings.ToUpper(asset), strings.ToUpper(quote)
	if asset == quote {
		return decimal.NewFromInt(1), nil
	}

	direct, err := s.price(ctx, asset+quote)
	if err == nil {
		s.observe("direct")
		return direct, nil
	}
	if ctx.Err() != nil {
		s.observe("failed")
		return decimal.Zero, &engine.RateUnavailableError{Asset: asset, Quote: quote, Err: ctx.Err()}
	}

	s.logger.Warn().
		Err(err).
		Str("pair", asset+quote).
		Str("cross", s.cross).
		Msg("Direct rate unavailable, trying cross rate")

	cross, crossErr := s.crossRate(ctx, asset, quote)
	if crossErr != nil {
		s.observe("failed")
		return decimal.Zero, &engine.RateUnavailableError{
			Asset: asset,
			Quote: quote,
			Err:   fmt.Errorf("direct: %v; cross via %s: %w", err, s.cross, crossErr),
		}
	}
	s.observe("cross")
	return cross, nil
}

func (s *TickerSource) crossRate(ctx context.Context, asset, quote string) (decimal.Decimal, error) {
	if s.cross == "" || s.cross == asset || s.cross == quote {
		return decimal.Zero, fmt.Errorf("no usable cross asset")
	}
	assetCross, err := s.price(ctx, asset+s.cross)
	if err != nil {
		return decimal.Zero, err
	}
	quoteCross, err := s.price(ctx, quote+s.cross)
	if err != nil {
		return decimal.Zero, err
	}
	return assetCross.Div(quoteCross), nil
}

func (s *TickerSource) price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var tp tickerPrice
	if err := s.client.Get(ctx, tickerPath, url.Values{"symbol": {symbol}}, &tp); err != nil {
		return decimal.Zero, err
	}
	p, err := decimal.NewFromString(tp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ticker %s: bad price %q: %w", symbol, tp.Price, err)
	}
	// edge case: a zero ticker would turn every fee into zero quote
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("ticker %s: non-positive price %s", symbol, p.String())
	}
	return p, nil
}

func (s *TickerSource) observe(path string) {
	if s.metrics != nil {
		s.metrics.RateLookups.WithLabelValues(path).Inc()
	}
}

// StaticSource answers from a fixed table keyed by "ASSET/QUOTE".
type StaticSource struct {
	rates map[string]decimal.Decimal
}

func NewStaticSource(rates map[string]decimal.Decimal) *StaticSource {
	table := make(map[string]decimal.Decimal, len(rates))
	for pair, r := range rates {
		table[strings.ToUpper(pair)] = r
	}
	return &StaticSource{rates: table}
}

func (s *StaticSource) CurrentRate(_ context.Context, asset, quote string) (decimal.Decimal, error) {
	asset, quote = strings.ToUpper(asset), strings.ToUpper(quote)
	if asset == quote {
		return decimal.NewFromInt(1), nil
	}
	if r, ok := s.rates[asset+"/"+quote]; ok {
		return r, nil
	}
	// inverse pair is fine for a static table
	if r, ok := s.rates[quote+"/"+asset]; ok && !r.IsZero() {
		return decimal.NewFromInt(1).Div(r), nil
	}
	return decimal.Zero, &engine.RateUnavailableError{Asset: asset, Quote: quote}
}
