package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/tradegate/internal/audit"
	"github.com/quantfall/tradegate/internal/domain/gates"
	"github.com/quantfall/tradegate/internal/domain/regime"
	"github.com/quantfall/tradegate/internal/metrics"
	"github.com/quantfall/tradegate/internal/models"
	"github.com/quantfall/tradegate/internal/reports/weakness"
)

type memStore struct {
	trades map[string]models.Trade
	recent []models.Trade
}

func (s *memStore) GetTrade(_ context.Context, id string) (models.Trade, error) {
	return s.trades[id], nil
}

func (s *memStore) GetOrders(context.Context, string) ([]models.Order, error) {
	return nil, nil
}

func (s *memStore) GetPriceSnapshots(context.Context, string) ([]models.PriceSnapshot, error) {
	return nil, nil
}

func (s *memStore) RecentTrades(context.Context, int) ([]models.Trade, error) {
	return s.recent, nil
}

// stubFreshness reports a healthy feed so decision requests reach the
// later gates.
type stubFreshness struct{}

func (stubFreshness) Freshness(context.Context, string) (gates.Freshness, error) {
	return gates.Freshness{
		Symbol:      "BTCUSDT",
		FeedLatency: 20 * time.Millisecond,
		LastTick:    time.Now().Add(-500 * time.Millisecond),
		HeartbeatOK: true,
	}, nil
}

func decisionPayload() gates.DecisionContext {
	return gates.DecisionContext{
		Symbol: "BTCUSDT",
		Venue:  "binance",
		Predictions: []models.ModelPrediction{
			{ModelID: "lgbm", Probability: 0.85, ExpectedBps: 50, Confidence: 0.90},
			{ModelID: "tcn", Probability: 0.80, ExpectedBps: 40, Confidence: 0.85},
			{ModelID: "logit", Probability: 0.75, ExpectedBps: 30, Confidence: 0.80},
		},
		Regime: regime.MarketRegime{
			Symbol:    "BTCUSDT",
			Type:      regime.RegimeTrending,
			Liquidity: regime.LevelHigh,
		},
		Feature: models.MicrostructuralFeature{
			Symbol:            "BTCUSDT",
			MidPrice:          50000,
			RelativeSpreadBps: 2,
			Momentum:          0.5,
		},
		Balance: 10000,
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *regime.Detector) {
	t.Helper()

	opened := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	closed := opened.Add(time.Hour)
	trade := models.Trade{
		TradeID:    "t1",
		Symbol:     "BTCUSDT",
		Side:       models.SideBuy,
		Quantity:   1,
		EntryPrice: 100,
		ExitPrice:  102,
		OpenedAt:   opened,
		ClosedAt:   &closed,
		Algorithm:  "momentum",
	}
	store := &memStore{
		trades: map[string]models.Trade{"t1": trade},
		recent: []models.Trade{trade},
	}

	auditor := audit.NewAuditor(audit.DefaultConfig(), store, nil, nil)
	detector := regime.NewDetector(regime.DefaultConfig())
	validator := gates.NewValidator(gates.DefaultConfig(), stubFreshness{}, nil, nil)
	s := NewServer(":0", validator, auditor, detector, weakness.NewReporter(), nil)

	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return s, ts, detector
}

func TestHealthEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestRegimeEndpointNotFound(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/regime/BTCUSDT")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegimeEndpointReturnsLatest(t *testing.T) {
	_, ts, detector := newTestServer(t)

	for i := 0; i < 10; i++ {
		detector.Observe(models.MicrostructuralFeature{
			Symbol:   "BTCUSDT",
			MidPrice: 50000 + float64(i)*10,
		})
	}
	detector.DetectRegime("BTCUSDT")

	resp, err := http.Get(ts.URL + "/regime/BTCUSDT")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var r regime.MarketRegime
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	assert.Equal(t, "BTCUSDT", r.Symbol)
	assert.Equal(t, 10, r.SampleCount)
}

func TestAuditReportEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/audit/report")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report audit.AuditReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 1, report.TradesAudited)
	assert.NotEmpty(t, report.ReportID)
}

func TestAuditReportEndpointWithWeaknesses(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/audit/report?weaknesses=true&symbol=BTCUSDT")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report weakness.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.NotEmpty(t, report.SourceAuditID)
}

func TestDecideEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	body, err := json.Marshal(decisionPayload())
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/decide", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result gates.ValidationResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.Approved)
	assert.Equal(t, models.SideBuy, result.Action)
	assert.Greater(t, result.Size, 0.0)
	assert.Len(t, result.Gates, 6)
}

func TestDecideEndpointRejectsMalformedBody(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/decide", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDecideEndpointRecordsMetrics(t *testing.T) {
	m := metrics.NewRegistry(prometheus.NewRegistry())
	validator := gates.NewValidator(gates.DefaultConfig(), stubFreshness{}, nil, nil)
	s := NewServer(":0", validator, nil, nil, nil, m)

	ts := httptest.NewServer(s.srv.Handler)
	defer ts.Close()

	body, err := json.Marshal(decisionPayload())
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/decide", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("BTCUSDT", "approved")))
	assert.Equal(t, 425.0, testutil.ToFloat64(m.ApprovedSize))
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
