package handlers

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"trade-performance/src/feed"
	"trade-performance/src/models"
	"trade-performance/src/observability"
	"trade-performance/src/report"
)

// TradeSyncer copies exchange trades into the store. Nil when no store is configured.
type TradeSyncer interface {
	Sync(ctx context.Context, inst feed.Instrument) (feed.SyncResult, error)
}

type PerformanceHandler struct {
	Reports   *report.Service
	Syncer    TradeSyncer
	Metrics   *observability.Metrics
	StartTime time.Time

	RequestsReceived int64
	ReportsGenerated int64
	ReportsFailed    int64
	TradesProcessed  int64
	MatchesEmitted   int64
	SyncRuns         int64

	latencies    []time.Duration
	latenciesMu  sync.RWMutex
	maxLatencies int
}

func NewPerformanceHandler(reports *report.Service, syncer TradeSyncer, metrics *observability.Metrics, maxLatencies int) *PerformanceHandler {
	if maxLatencies <= 0 {
		maxLatencies = 10000
	}
	return &PerformanceHandler{
		Reports:      reports,
		Syncer:       syncer,
		Metrics:      metrics,
		StartTime:    time.Now(),
		latencies:    make([]time.Duration, 0, maxLatencies),
		maxLatencies: maxLatencies,
	}
}

func (h *PerformanceHandler) GetPerformance(c *fiber.Ctx) error {
	rep, err := h.generate(c, "summary")
	if err != nil {
		return h.respondError(c, err)
	}

	snap := rep.Snapshot

	otherFees := make([]models.FeeAssetInfo, 0, len(snap.OtherFeeAssets))
	for _, ft := range snap.OtherFeeAssets {
		otherFees = append(otherFees, models.FeeAssetInfo{
			Asset:      ft.Asset,
			Amount:     models.Base(ft.Amount),
			TradeCount: ft.TradeCount,
		})
	}

	unmatched := make([]models.UnmatchedSellInfo, 0, len(snap.UnmatchedSells))
	for _, u := range snap.UnmatchedSells {
		unmatched = append(unmatched, models.UnmatchedSellInfo{
			SellTradeID: u.SellTradeID,
			Price:       models.Quote(u.Price),
			Quantity:    models.Base(u.Quantity),
			Timestamp:   u.Timestamp,
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.PerformanceResponse{
		ReportID:    rep.ID.String(),
		GeneratedAt: rep.GeneratedAt.UnixMilli(),
		Symbol:      rep.Instrument.Symbol(),
		Instrument:  rep.Instrument.String(),
		Window: models.WindowInfo{
			Since: rep.Window.Since.UnixMilli(),
			Until: rep.Window.Until.UnixMilli(),
		},
		Period: models.PeriodInfo{From: snap.Period.From, To: snap.Period.To},

		TotalTrades: snap.TotalTrades,
		BuyCount:    snap.BuyCount,
		SellCount:   snap.SellCount,

		TotalBuyVolumeBase:     models.Base(snap.TotalBuyVolumeBase),
		TotalSellVolumeBase:    models.Base(snap.TotalSellVolumeBase),
		TotalBuyNotionalQuote:  models.Quote(snap.TotalBuyNotionalQuote),
		TotalSellNotionalQuote: models.Quote(snap.TotalSellNotionalQuote),
		TotalVolumeBase:        models.Base(snap.TotalVolumeBase),
		TotalVolumeQuote:       models.Quote(snap.TotalVolumeQuote),
		AvgTradeSizeQuote:      models.QuotePtr(snap.AvgTradeSizeQuote),

		FeeAsset:           snap.FeeAsset,
		FeeAssetQuoteRate:  models.Rate(snap.FeeAssetQuoteRate),
		RateOrigin:         string(rep.RateOrigin),
		TotalFeeInFeeAsset: models.Base(snap.TotalFeeInFeeAsset),
		TotalFeeInQuote:    models.Quote(snap.TotalFeeInQuote),
		OtherFeeAssets:     otherFees,

		RealizedPnLGrossQuote: models.Quote(snap.RealizedPnLGrossQuote),
		RealizedPnLNetQuote:   models.Quote(snap.RealizedPnLNetQuote),

		AvgBuyPrice:  models.QuotePtr(snap.AvgBuyPrice),
		AvgSellPrice: models.QuotePtr(snap.AvgSellPrice),
		WinRatePct:   models.PctPtr(snap.WinRatePct),
		ROIPct:       models.PctPtr(snap.ROIPct),
		ROINetPct:    models.PctPtr(snap.ROINetPct),

		MatchCount:            snap.MatchCount,
		UnmatchedSellCount:    snap.UnmatchedSellCount,
		UnmatchedSellQuantity: models.Base(snap.UnmatchedSellQuantity),
		UnmatchedSells:        unmatched,

		OpenLotCount:  snap.OpenLotCount,
		OpenQuantity:  models.Base(snap.OpenQuantity),
		OpenCostBasis: models.Quote(snap.OpenCostBasis),
	})
}

func (h *PerformanceHandler) GetDailyPerformance(c *fiber.Ctx) error {
	rep, err := h.generate(c, "daily")
	if err != nil {
		return h.respondError(c, err)
	}

	days := make([]models.DailyPerformanceInfo, 0, len(rep.Daily))
	for _, d := range rep.Daily {
		days = append(days, models.DailyPerformanceInfo{
			Date:             d.Date,
			TotalTrades:      d.TotalTrades,
			VolumeBase:       models.Base(d.VolumeBase),
			VolumeQuote:      models.Quote(d.VolumeQuote),
			FeeInAsset:       models.Base(d.FeeInAsset),
			FeeInQuote:       models.Quote(d.FeeInQuote),
			RealizedPnLGross: models.Quote(d.RealizedPnLGross),
			RealizedPnLNet:   models.Quote(d.RealizedPnLNet),
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.DailyPerformanceResponse{
		ReportID: rep.ID.String(),
		Symbol:   rep.Instrument.Symbol(),
		Timezone: c.Query("tz", h.Reports.Location().String()),
		FeeAsset: rep.Snapshot.FeeAsset,
		Days:     days,
	})
}

func (h *PerformanceHandler) GetLots(c *fiber.Ctx) error {
	rep, err := h.generate(c, "lots")
	if err != nil {
		return h.respondError(c, err)
	}

	lots := make([]models.LotInfo, 0, len(rep.OpenLots))
	for _, lot := range rep.OpenLots {
		lots = append(lots, models.LotInfo{
			OriginTradeID:     lot.OriginTradeID,
			Price:             models.Quote(lot.Price),
			OriginalQuantity:  models.Base(lot.OriginalQuantity),
			RemainingQuantity: models.Base(lot.RemainingQuantity),
			CostBasis:         models.Quote(lot.CostBasis()),
			OpenedAt:          lot.OpenedAt,
		})
	}

	matches := make([]models.MatchInfo, 0, len(rep.Matches))
	for _, m := range rep.Matches {
		matches = append(matches, models.MatchInfo{
			BuyTradeID:    m.BuyTradeID,
			SellTradeID:   m.SellTradeID,
			BuyPrice:      models.Quote(m.BuyPrice),
			SellPrice:     models.Quote(m.SellPrice),
			Quantity:      models.Base(m.Quantity),
			RealizedPnL:   models.Quote(m.RealizedPnL),
			SellTimestamp: m.SellTimestamp,
		})
	}

	sells := make([]models.SellResultInfo, 0, len(rep.Sells))
	for _, s := range rep.Sells {
		info := models.SellResultInfo{
			SellTradeID:     s.SellTradeID,
			Outcome:         string(s.Outcome),
			MatchedQuantity: models.Base(s.MatchedQuantity),
		}
		if s.Remainder != nil {
			info.UnmatchedQuantity = models.Base(s.Remainder.Unmatched)
		}
		sells = append(sells, info)
	}

	return c.Status(fiber.StatusOK).JSON(models.LotsResponse{
		ReportID: rep.ID.String(),
		Symbol:   rep.Instrument.Symbol(),
		OpenLots: lots,
		Matches:  matches,
		Sells:    sells,
	})
}

func (h *PerformanceHandler) SyncTrades(c *fiber.Ctx) error {
	// edge case: sync needs a store to write to
	if h.Syncer == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Kind:    "store_disabled",
			Message: "Trade store is not configured (set POSTGRES_DSN)",
		})
	}

	inst, err := h.Reports.ResolveInstrument(c.Params("symbol"))
	if err != nil {
		return h.respondError(c, err)
	}

	atomic.AddInt64(&h.SyncRuns, 1)
	res, err := h.Syncer.Sync(c.UserContext(), inst)
	if err != nil {
		log.Error().
			Err(err).
			Str("symbol", inst.Symbol()).
			Msg("Trade sync failed")
		return c.Status(fiber.StatusBadGateway).JSON(models.ErrorResponse{
			Kind:    "sync_failed",
			Message: err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.SyncResponse{
		Symbol:   inst.Symbol(),
		Since:    res.Since.UnixMilli(),
		Until:    res.Until.UnixMilli(),
		Fetched:  res.Fetched,
		Inserted: res.Inserted,
	})
}

func (h *PerformanceHandler) HealthCheck(c *fiber.Ctx) error {
	uptime := time.Since(h.StartTime).Seconds()

	instruments := make([]string, 0, len(h.Reports.Instruments()))
	for _, inst := range h.Reports.Instruments() {
		instruments = append(instruments, inst.String())
	}

	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(uptime),
		Instruments:   instruments,
		StoreEnabled:  h.Syncer != nil,
	})
}

func (h *PerformanceHandler) GetMetrics(c *fiber.Ctx) error {
	p50, p99, p999 := h.calculateLatencyPercentiles()

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		RequestsReceived:        atomic.LoadInt64(&h.RequestsReceived),
		ReportsGenerated:        atomic.LoadInt64(&h.ReportsGenerated),
		ReportsFailed:           atomic.LoadInt64(&h.ReportsFailed),
		TradesProcessed:         atomic.LoadInt64(&h.TradesProcessed),
		MatchesEmitted:          atomic.LoadInt64(&h.MatchesEmitted),
		SyncRuns:                atomic.LoadInt64(&h.SyncRuns),
		LatencyP50Ms:            p50,
		LatencyP99Ms:            p99,
		LatencyP999Ms:           p999,
		ThroughputReportsPerSec: h.calculateThroughput(),
	})
}

func (h *PerformanceHandler) generate(c *fiber.Ctx, view string) (*report.Report, error) {
	atomic.AddInt64(&h.RequestsReceived, 1)

	inst, err := h.Reports.ResolveInstrument(c.Params("symbol"))
	if err != nil {
		return nil, err
	}

	req, err := parseReportRequest(c)
	if err != nil {
		return nil, err
	}
	req.Instrument = inst

	startTime := time.Now()
	rep, err := h.Reports.Generate(c.UserContext(), req)
	h.recordLatency(time.Since(startTime))

	if err != nil {
		atomic.AddInt64(&h.ReportsFailed, 1)
		return nil, err
	}

	atomic.AddInt64(&h.ReportsGenerated, 1)
	atomic.AddInt64(&h.TradesProcessed, int64(rep.Snapshot.TotalTrades))
	atomic.AddInt64(&h.MatchesEmitted, int64(rep.Snapshot.MatchCount))
	if h.Metrics != nil {
		h.Metrics.ReportsGenerated.WithLabelValues(inst.Symbol(), view).Inc()
	}

	log.Info().
		Str("report_id", rep.ID.String()).
		Str("symbol", inst.Symbol()).
		Str("view", view).
		Str("ip", c.IP()).
		Msg("Performance report served")

	return rep, nil
}

func (h *PerformanceHandler) respondError(c *fiber.Ctx, err error) error {
	kind := report.ErrorKind(err)
	status := fiber.StatusInternalServerError
	message := err.Error()

	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		kind = "bad_request"
		status = fiber.StatusBadRequest
	case kind == "bad_request":
		status = fiber.StatusBadRequest
	case kind == "invalid_trade":
		status = fiber.StatusUnprocessableEntity
	case kind == "rate_unavailable", kind == "feed_unavailable":
		status = fiber.StatusBadGateway
	case kind == "timeout":
		status = fiber.StatusGatewayTimeout
	default:
		message = "Internal server error"
	}

	log.Warn().
		Err(err).
		Str("kind", kind).
		Int("status", status).
		Str("path", c.Path()).
		Str("ip", c.IP()).
		Msg("Performance request failed")

	return c.Status(status).JSON(models.ErrorResponse{
		Kind:    kind,
		Message: message,
	})
}

func parseReportRequest(c *fiber.Ctx) (report.Request, error) {
	var req report.Request

	if raw := c.Query("days"); raw != "" {
		days := c.QueryInt("days", -1)
		if days <= 0 {
			return req, &ValidationError{Message: "Invalid query: days must be a positive integer"}
		}
		req.Days = days
	}

	if asset := strings.TrimSpace(c.Query("fee_asset")); asset != "" {
		req.FeeAsset = strings.ToUpper(asset)
	}

	if raw := c.Query("fee_rate"); raw != "" {
		rate, err := decimal.NewFromString(raw)
		// edge case: a negative rate would turn fees into income
		if err != nil || rate.IsNegative() {
			return req, &ValidationError{Message: "Invalid query: fee_rate must be a non-negative decimal"}
		}
		req.FeeRate = &rate
	}

	if tz := c.Query("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return req, &ValidationError{Message: "Invalid query: unknown timezone " + tz}
		}
		req.Location = loc
	}

	return req, nil
}

func (h *PerformanceHandler) recordLatency(latency time.Duration) {
	h.latenciesMu.Lock()
	defer h.latenciesMu.Unlock()

	h.latencies = append(h.latencies, latency)

	// edge case: keep a rolling window of the newest measurements
	if len(h.latencies) > h.maxLatencies {
		removeCount := len(h.latencies) - h.maxLatencies
		h.latencies = h.latencies[removeCount:]
	}
}

func (h *PerformanceHandler) calculateLatencyPercentiles() (p50, p99, p999 float64) {
	h.latenciesMu.RLock()
	latenciesCopy := make([]time.Duration, len(h.latencies))
	copy(latenciesCopy, h.latencies)
	h.latenciesMu.RUnlock()

	if len(latenciesCopy) == 0 {
		return 0, 0, 0
	}

	sort.Slice(latenciesCopy, func(i, j int) bool {
		return latenciesCopy[i] < latenciesCopy[j]
	})

	at := func(q float64) float64 {
		idx := int(float64(len(latenciesCopy)) * q)
		if idx >= len(latenciesCopy) {
			idx = len(latenciesCopy) - 1
		}
		return float64(latenciesCopy[idx].Nanoseconds()) / 1e6
	}

	return at(0.50), at(0.99), at(0.999)
}

func (h *PerformanceHandler) calculateThroughput() float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&h.ReportsGenerated)) / uptime
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
