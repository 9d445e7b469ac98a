package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trade-performance/src/engine"
	"trade-performance/src/observability"
)

// TradeSink is where synced trades land; *Store is the production one.
type TradeSink interface {
	SaveTrades(ctx context.Context, trades []engine.Trade) (int, error)
	LatestTradeTime(ctx context.Context, inst Instrument) (time.Time, bool, error)
}

type SyncResult struct {
	Instrument Instrument
	Since      time.Time
	Until      time.Time
	Fetched    int
	Inserted   int
}

// Syncer copies new exchange trades into the store, resuming 1 ms after the
// newest stored trade or going back lookback on the first run.
type Syncer struct {
	source   TradeFeed
	sink     TradeSink
	lookback time.Duration
	logger   zerolog.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewSyncer(source TradeFeed, sink TradeSink, lookback time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *Syncer {
	return &Syncer{
		source:   source,
		sink:     sink,
		lookback: lookback,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (s *Syncer) Sync(ctx context.Context, inst Instrument) (SyncResult, error) {
	res, err := s.sync(ctx, inst)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if s.metrics != nil {
		s.metrics.SyncRuns.WithLabelValues(inst.Symbol(), outcome).Inc()
		s.metrics.SyncTradesInserted.WithLabelValues(inst.Symbol()).Add(float64(res.Inserted))
	}
	return res, err
}

func (s *Syncer) sync(ctx context.Context, inst Instrument) (SyncResult, error) {
	until := s.now().UTC()
	res := SyncResult{Instrument: inst, Since: until.Add(-s.lookback), Until: until}

	latest, ok, err := s.sink.LatestTradeTime(ctx, inst)
	if err != nil {
		return res, err
	}
	if ok {
		res.Since = latest.Add(time.Millisecond)
	}
	// edge case: nothing can be newer than now
	if !res.Until.After(res.Since) {
		s.logger.Debug().Str("symbol", inst.Symbol()).Msg("Trade store already current")
		return res, nil
	}

	trades, err := s.source.FetchTrades(ctx, Query{Instrument: inst, Since: res.Since, Until: res.Until})
	if err != nil {
		return res, err
	}
	res.Fetched = len(trades)

	res.Inserted, err = s.sink.SaveTrades(ctx, trades)
	if err != nil {
		return res, err
	}

	s.logger.Info().
		Str("symbol", inst.Symbol()).
		Time("since", res.Since).
		Time("until", res.Until).
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Msg("Trade sync complete")

	return res, nil
}
