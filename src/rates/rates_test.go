package rates

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-performance/src/config"
	"trade-performance/src/engine"
	"trade-performance/src/exchange"
	"trade-performance/src/observability"
)

func tickerServer(t *testing.T, prices map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		price, ok := prices[symbol]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
			return
		}
		_ = json.NewEncoder(w).Encode(tickerPrice{Symbol: symbol, Price: price})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSource(t *testing.T, prices map[string]string) (*TickerSource, *observability.Metrics) {
	srv := tickerServer(t, prices)
	metrics := observability.NewMetrics()
	client := exchange.NewClient(config.ExchangeConfig{BaseURL: srv.URL, Timeout: time.Second, Burst: 10}, zerolog.Nop())
	return NewTickerSource(client, "USDT", zerolog.Nop(), metrics), metrics
}

func TestTickerSourceDirectPair(t *testing.T) {
	src, metrics := newSource(t, map[string]string{"BNBEUR": "600.50000000"})

	r, err := src.CurrentRate(context.Background(), "bnb", "eur")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("600.5")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLookups.WithLabelValues("direct")))
}

// TestTickerSourceCrossRate: BNB/EUR = BNBUSDT / EURUSDT
func TestTickerSourceCrossRate(t *testing.T) {
	src, metrics := newSource(t, map[string]string{
		"BNBUSDT": "650",
		"EURUSDT": "1.3",
	})

	r, err := src.CurrentRate(context.Background(), "BNB", "EUR")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(500)), "got %s", r)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLookups.WithLabelValues("cross")))
}

func TestTickerSourceUnavailable(t *testing.T) {
	testCases := []struct {
		name   string
		prices map[string]string
	}{
		{name: "nothing listed", prices: map[string]string{}},
		{name: "cross leg missing", prices: map[string]string{"BNBUSDT": "650"}},
		{name: "zero price", prices: map[string]string{"BNBEUR": "0"}},
		{name: "garbage price", prices: map[string]string{"BNBEUR": "n/a"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src, _ := newSource(t, tc.prices)

			_, err := src.CurrentRate(context.Background(), "BNB", "EUR")

			var rateErr *engine.RateUnavailableError
			require.ErrorAs(t, err, &rateErr)
			assert.Equal(t, "BNB", rateErr.Asset)
			assert.Equal(t, "EUR", rateErr.Quote)
		})
	}
}

func TestTickerSourceSameAsset(t *testing.T) {
	src, metrics := newSource(t, map[string]string{})

	r, err := src.CurrentRate(context.Background(), "EUR", "eur")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))
	assert.Zero(t, testutil.ToFloat64(metrics.RateLookups.WithLabelValues("direct")))
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource(map[string]decimal.Decimal{"bnb/eur": decimal.NewFromInt(500)})

	r, err := src.CurrentRate(context.Background(), "BNB", "EUR")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(500)))

	inv, err := src.CurrentRate(context.Background(), "EUR", "BNB")
	require.NoError(t, err)
	assert.True(t, inv.Equal(decimal.RequireFromString("0.002")))

	_, err = src.CurrentRate(context.Background(), "ETH", "EUR")
	var rateErr *engine.RateUnavailableError
	assert.ErrorAs(t, err, &rateErr)
}
