package models

// Money and quantity fields are decimal strings rounded for display; the
// engine keeps full precision. Nullable fields are null when the ratio is
// undefined (no buys, no sells, no trades).

type PeriodInfo struct {
	From int64 `json:"from"` // unix timestamp in milliseconds
	To   int64 `json:"to"`
}

type WindowInfo struct {
	Since int64 `json:"since"` // unix timestamp in milliseconds
	Until int64 `json:"until"`
}

type FeeAssetInfo struct {
	Asset      string `json:"asset"`
	Amount     string `json:"amount"`
	TradeCount int    `json:"trade_count"`
}

type UnmatchedSellInfo struct {
	SellTradeID int64  `json:"sell_trade_id"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	Timestamp   int64  `json:"timestamp"`
}

type PerformanceResponse struct {
	ReportID    string     `json:"report_id"`
	GeneratedAt int64      `json:"generated_at"`
	Symbol      string     `json:"symbol"`
	Instrument  string     `json:"instrument"`
	Window      WindowInfo `json:"window"`
	Period      PeriodInfo `json:"period"`

	TotalTrades int `json:"total_trades"`
	BuyCount    int `json:"buy_count"`
	SellCount   int `json:"sell_count"`

	TotalBuyVolumeBase     string  `json:"total_buy_volume_base"`
	TotalSellVolumeBase    string  `json:"total_sell_volume_base"`
	TotalBuyNotionalQuote  string  `json:"total_buy_notional_quote"`
	TotalSellNotionalQuote string  `json:"total_sell_notional_quote"`
	TotalVolumeBase        string  `json:"total_volume_base"`
	TotalVolumeQuote       string  `json:"total_volume_quote"`
	AvgTradeSizeQuote      *string `json:"avg_trade_size_quote"`

	FeeAsset           string         `json:"fee_asset"`
	FeeAssetQuoteRate  string         `json:"fee_asset_quote_rate"`
	RateOrigin         string         `json:"rate_origin"`
	TotalFeeInFeeAsset string         `json:"total_fee_in_fee_asset"`
	TotalFeeInQuote    string         `json:"total_fee_in_quote"`
	OtherFeeAssets     []FeeAssetInfo `json:"other_fee_assets"`

	RealizedPnLGrossQuote string `json:"realized_pnl_gross_quote"`
	RealizedPnLNetQuote   string `json:"realized_pnl_net_quote"`

	AvgBuyPrice  *string `json:"avg_buy_price"`
	AvgSellPrice *string `json:"avg_sell_price"`
	WinRatePct   *string `json:"win_rate_pct"`
	ROIPct       *string `json:"roi_pct"`
	ROINetPct    *string `json:"roi_net_pct"`

	MatchCount            int                 `json:"match_count"`
	UnmatchedSellCount    int                 `json:"unmatched_sell_count"`
	UnmatchedSellQuantity string              `json:"unmatched_sell_quantity"`
	UnmatchedSells        []UnmatchedSellInfo `json:"unmatched_sells"`

	OpenLotCount  int    `json:"open_lot_count"`
	OpenQuantity  string `json:"open_quantity"`
	OpenCostBasis string `json:"open_cost_basis"`
}

type DailyPerformanceInfo struct {
	Date             string `json:"date"`
	TotalTrades      int    `json:"total_trades"`
	VolumeBase       string `json:"volume_base"`
	VolumeQuote      string `json:"volume_quote"`
	FeeInAsset       string `json:"fee_in_asset"`
	FeeInQuote       string `json:"fee_in_quote"`
	RealizedPnLGross string `json:"realized_pnl_gross"`
	RealizedPnLNet   string `json:"realized_pnl_net"`
}

type DailyPerformanceResponse struct {
	ReportID string                 `json:"report_id"`
	Symbol   string                 `json:"symbol"`
	Timezone string                 `json:"timezone"`
	FeeAsset string                 `json:"fee_asset"`
	Days     []DailyPerformanceInfo `json:"days"`
}

type LotInfo struct {
	OriginTradeID     int64  `json:"origin_trade_id"`
	Price             string `json:"price"`
	OriginalQuantity  string `json:"original_quantity"`
	RemainingQuantity string `json:"remaining_quantity"`
	CostBasis         string `json:"cost_basis"`
	OpenedAt          int64  `json:"opened_at"` // unix timestamp in milliseconds
}

type MatchInfo struct {
	BuyTradeID    int64  `json:"buy_trade_id"`
	SellTradeID   int64  `json:"sell_trade_id"`
	BuyPrice      string `json:"buy_price"`
	SellPrice     string `json:"sell_price"`
	Quantity      string `json:"quantity"`
	RealizedPnL   string `json:"realized_pnl"`
	SellTimestamp int64  `json:"sell_timestamp"`
}

type SellResultInfo struct {
	SellTradeID       int64  `json:"sell_trade_id"`
	Outcome           string `json:"outcome"`
	MatchedQuantity   string `json:"matched_quantity"`
	UnmatchedQuantity string `json:"unmatched_quantity,omitempty"`
}

type LotsResponse struct {
	ReportID string           `json:"report_id"`
	Symbol   string           `json:"symbol"`
	OpenLots []LotInfo        `json:"open_lots"`
	Matches  []MatchInfo      `json:"matches"`
	Sells    []SellResultInfo `json:"sells"`
}

type SyncResponse struct {
	Symbol   string `json:"symbol"`
	Since    int64  `json:"since"`
	Until    int64  `json:"until"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
}

type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Instruments   []string `json:"instruments"`
	StoreEnabled  bool     `json:"store_enabled"`
}

type MetricsResponse struct {
	RequestsReceived        int64   `json:"requests_received"`
	ReportsGenerated        int64   `json:"reports_generated"`
	ReportsFailed           int64   `json:"reports_failed"`
	TradesProcessed         int64   `json:"trades_processed"`
	MatchesEmitted          int64   `json:"matches_emitted"`
	SyncRuns                int64   `json:"sync_runs"`
	LatencyP50Ms            float64 `json:"latency_p50_ms"`
	LatencyP99Ms            float64 `json:"latency_p99_ms"`
	LatencyP999Ms           float64 `json:"latency_p999_ms"`
	ThroughputReportsPerSec float64 `json:"throughput_reports_per_sec"`
}
