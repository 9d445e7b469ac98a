package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for report generation and trade sync.
type Metrics struct {
	Registry *prometheus.Registry

	ReportsGenerated *prometheus.CounterVec
	ReportsFailed    *prometheus.CounterVec
	ReportDuration   *prometheus.HistogramVec
	TradesMatched    prometheus.Counter
	UnmatchedSells   prometheus.Counter
	OtherFeeTrades   *prometheus.CounterVec

	SyncRuns           *prometheus.CounterVec
	SyncTradesInserted *prometheus.CounterVec
	FeedRequests       *prometheus.CounterVec
	RateLookups        *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry so tests can
// build as many instances as they like.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ReportsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perf_reports_generated_total",
			Help: "Performance reports built successfully",
		}, []string{"symbol", "view"}),

		ReportsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perf_reports_failed_total",
			Help: "Performance reports that returned an error",
		}, []string{"symbol", "kind"}),

		ReportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "perf_report_duration_seconds",
			Help:    "Time from request to finished report, feed fetch included",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"symbol"}),

		TradesMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "perf_matches_emitted_total",
			Help: "FIFO matches emitted across all reports",
		}),

		UnmatchedSells: factory.NewCounter(prometheus.CounterOpts{
			Name: "perf_unmatched_sells_total",
			Help: "Sells with quantity left over after the lot queue ran dry",
		}),

		OtherFeeTrades: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perf_other_fee_asset_trades_total",
			Help: "Trades whose fee was paid outside the configured fee asset",
		}, []string{"asset"}),

		SyncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perf_trade_sync_runs_total",
			Help: "Trade sync runs by outcome",
		}, []string{"symbol", "outcome"}),

		SyncTradesInserted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perf_trade_sync_inserted_total",
			Help: "Trades newly written to the store by sync",
		}, []string{"symbol"}),

		FeedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perf_exchange_requests_total",
			Help: "Exchange REST calls by endpoint and status class",
		}, []string{"endpoint", "status"}),

		RateLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "perf_rate_lookups_total",
			Help: "Fee asset rate lookups by path (direct, cross, failed)",
		}, []string{"path"}),
	}
}
