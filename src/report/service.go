package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-performance/src/engine"
	"trade-performance/src/feed"
	"trade-performance/src/observability"
	"trade-performance/src/rates"
)

type RateOrigin string

const (
	RateSupplied RateOrigin = "supplied"
	RateSource   RateOrigin = "source"
	// RateNone means there were no trades, so no rate was looked up.
	RateNone RateOrigin = "none"
)

type Settings struct {
	Instruments     []feed.Instrument
	FeeAsset        string
	LookbackDays    int
	MaxLookbackDays int
	Location        *time.Location
	RateTimeout     time.Duration
}

type Request struct {
	Instrument feed.Instrument
	// Days overrides the default lookback when positive.
	Days     int
	Since    time.Time
	Until    time.Time
	FeeAsset string
	// FeeRate skips the rate source when set.
	FeeRate  *decimal.Decimal
	Location *time.Location
}

type Window struct {
	Since time.Time
	Until time.Time
}

type Report struct {
	ID          uuid.UUID
	GeneratedAt time.Time
	Instrument  feed.Instrument
	Window      Window
	Snapshot    engine.PerformanceSnapshot
	Daily       []engine.DailyPerformance
	Matches     []engine.Match
	OpenLots    []engine.Lot
	Sells       []engine.SellResult
	RateOrigin  RateOrigin
}

// RequestError is a caller mistake: unknown instrument or a bad window.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

// FeedError wraps a failure of the trade feed.
type FeedError struct {
	Instrument feed.Instrument
	Err        error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("trade feed for %s: %v", e.Instrument, e.Err)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// Service runs feed, matcher, rate source and aggregator for one request.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	feed     feed.TradeFeed
	rates    rates.Source
	settings Settings
	logger   zerolog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewService(tf feed.TradeFeed, rs rates.Source, settings Settings, logger zerolog.Logger, metrics *observability.Metrics) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Service{
		feed:     tf,
		rates:    rs,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Location is the default timezone for daily breakdowns.
func (s *Service) Location() *time.Location {
	return s.settings.Location
}

func (s *Service) Instruments() []feed.Instrument {
	return s.settings.Instruments
}

// ResolveInstrument maps a path symbol onto a configured instrument.
func (s *Service) ResolveInstrument(symbol string) (feed.Instrument, error) {
	inst, ok := feed.LookupInstrument(s.settings.Instruments, symbol)
	if !ok {
		return feed.Instrument{}, &RequestError{Message: fmt.Sprintf("unknown instrument %q", symbol)}
	}
	return inst, nil
}

func (s *Service) Generate(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	rep, err := s.generate(ctx, req)
	symbol := req.Instrument.Symbol()
	if s.metrics != nil {
		s.metrics.ReportDuration.WithLabelValues(symbol).Observe(time.Since(start).Seconds())
		if err != nil {
			s.metrics.ReportsFailed.WithLabelValues(symbol, ErrorKind(err)).Inc()
		}
	}
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Str("kind", ErrorKind(err)).Msg("Report failed")
		return nil, err
	}
	return rep, nil
}

func (s *Service) generate(ctx context.Context, req Request) (*Report, error) {
	window, err := s.window(req)
	if err != nil {
		return nil, err
	}

	trades, err := s.feed.FetchTrades(ctx, feed.Query{Instrument: req.Instrument, Since: window.Since, Until: window.Until})
	if err != nil {
		return nil, &FeedError{Instrument: req.Instrument, Err: err}
	}

	result, err := engine.Match(trades)
	if err != nil {
		return nil, err
	}

	feeAsset := strings.ToUpper(req.FeeAsset)
	if feeAsset == "" {
		feeAsset = strings.ToUpper(s.settings.FeeAsset)
	}

	rate, origin, err := s.feeRate(ctx, req, feeAsset, len(trades))
	if err != nil {
		return nil, err
	}

	snap := engine.Aggregate(engine.AggregateInput{
		Result:            result,
		Trades:            trades,
		FeeAsset:          feeAsset,
		FeeAssetQuoteRate: rate,
	})

	loc := req.Location
	if loc == nil {
		loc = s.settings.Location
	}

	rep := &Report{
		ID:          uuid.New(),
		GeneratedAt: s.now().UTC(),
		Instrument:  req.Instrument,
		Window:      window,
		Snapshot:    snap,
		Daily:       engine.DailyBreakdown(trades, result, feeAsset, rate, loc),
		Matches:     result.Matches,
		OpenLots:    result.OpenLots,
		Sells:       result.Sells,
		RateOrigin:  origin,
	}

	s.warn(rep)
	if s.metrics != nil {
		s.metrics.TradesMatched.Add(float64(len(result.Matches)))
		s.metrics.UnmatchedSells.Add(float64(snap.UnmatchedSellCount))
		for _, ft := range snap.OtherFeeAssets {
			s.metrics.OtherFeeTrades.WithLabelValues(ft.Asset).Add(float64(ft.TradeCount))
		}
	}

	s.logger.Info().
		Str("report_id", rep.ID.String()).
		Str("symbol", req.Instrument.Symbol()).
		Int("trades", snap.TotalTrades).
		Int("matches", snap.MatchCount).
		Str("pnl_net", snap.RealizedPnLNetQuote.StringFixed(2)).
		Str("rate_origin", string(origin)).
		Msg("Report generated")

	return rep, nil
}

func (s *Service) window(req Request) (Window, error) {
	until := req.Until
	if until.IsZero() {
		until = s.now()
	}
	until = until.UTC()
	since := req.Since.UTC()
	if since.IsZero() {
		days := req.Days
		if days == 0 {
			days = s.settings.LookbackDays
		}
		if days < 0 {
			return Window{}, &RequestError{Message: "days must be positive"}
		}
		if s.settings.MaxLookbackDays > 0 && days > s.settings.MaxLookbackDays {
			return Window{}, &RequestError{Message: fmt.Sprintf("days must be at most %d", s.settings.MaxLookbackDays)}
		}
		since = until.AddDate(0, 0, -days)
	}
	if !until.After(since) {
		return Window{}, &RequestError{Message: "report window is empty"}
	}
	return Window{Since: since, Until: until}, nil
}

func (s *Service) feeRate(ctx context.Context, req Request, feeAsset string, tradeCount int) (decimal.Decimal, RateOrigin, error) {
	if req.FeeRate != nil {
		if req.FeeRate.IsNegative() {
			return decimal.Zero, "", &RequestError{Message: "fee_rate must not be negative"}
		}
		return *req.FeeRate, RateSupplied, nil
	}
	if tradeCount == 0 {
		return decimal.Zero, RateNone, nil
	}

	if s.settings.RateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.RateTimeout)
		defer cancel()
	}

	rate, err := s.rates.CurrentRate(ctx, feeAsset, req.Instrument.Quote)
	if err != nil {
		var rateErr *engine.RateUnavailableError
		if !errors.As(err, &rateErr) {
			err = &engine.RateUnavailableError{Asset: feeAsset, Quote: req.Instrument.Quote, Err: err}
		}
		return decimal.Zero, "", err
	}
	return rate, RateSource, nil
}

func (s *Service) warn(rep *Report) {
	snap := rep.Snapshot
	if snap.UnmatchedSellCount > 0 {
		s.logger.Warn().
			Str("report_id", rep.ID.String()).
			Str("symbol", rep.Instrument.Symbol()).
			Int("sells", snap.UnmatchedSellCount).
			Str("quantity", snap.UnmatchedSellQuantity.String()).
			Msg("Sells exceed buys in window, remainder left unmatched")
	}
	for _, ft := range snap.OtherFeeAssets {
		s.logger.Warn().
			Str("report_id", rep.ID.String()).
			Str("asset", ft.Asset).
			Str("amount", ft.Amount.String()).
			Int("trades", ft.TradeCount).
			Msg("Fees paid outside fee asset are not in net P&L")
	}
}

// ErrorKind names an error for API bodies and metric labels.
func ErrorKind(err error) string {
	var (
		invalid *engine.InvalidTradeError
		rate    *engine.RateUnavailableError
		reqErr  *RequestError
		feedErr *FeedError
	)
	switch {
	case errors.As(err, &invalid):
		return "invalid_trade"
	case errors.As(err, &rate):
		return "rate_unavailable"
	case errors.As(err, &reqErr):
		return "bad_request"
	case errors.As(err, &feedErr):
		return "feed_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}
