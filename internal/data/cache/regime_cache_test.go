package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfall/tradegate/internal/domain/regime"
	"github.com/quantfall/tradegate/internal/models"
)

func sampleRegime() regime.MarketRegime {
	return regime.MarketRegime{
		Symbol:      "BTCUSDT",
		Timestamp:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Type:        regime.RegimeTrending,
		Liquidity:   regime.LevelHigh,
		Volatility:  regime.LevelMedium,
		Confidence:  0.72,
		SampleCount: 40,
	}
}

func TestSetRegime(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRegimeCache(rdb, 30*time.Second)

	r := sampleRegime()
	payload, err := json.Marshal(r)
	require.NoError(t, err)

	mock.ExpectSet("regime:latest:BTCUSDT", payload, 30*time.Second).SetVal("OK")

	require.NoError(t, c.SetRegime(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestRegimeHit(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRegimeCache(rdb, 30*time.Second)

	r := sampleRegime()
	payload, err := json.Marshal(r)
	require.NoError(t, err)

	mock.ExpectGet("regime:latest:BTCUSDT").SetVal(string(payload))

	got, ok, err := c.LatestRegime(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r.Type, got.Type)
	assert.Equal(t, r.Confidence, got.Confidence)
}

func TestLatestRegimeMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRegimeCache(rdb, 30*time.Second)

	mock.ExpectGet("regime:latest:ETHUSDT").RedisNil()

	_, ok, err := c.LatestRegime(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestRegimeTransportError(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRegimeCache(rdb, 30*time.Second)

	mock.ExpectGet("regime:latest:BTCUSDT").SetErr(errors.New("connection reset"))

	_, _, err := c.LatestRegime(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestLatestRegimeCorruptPayload(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRegimeCache(rdb, 30*time.Second)

	mock.ExpectGet("regime:latest:BTCUSDT").SetVal("{not json")

	_, _, err := c.LatestRegime(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestFeaturesRoundTrip(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRegimeCache(rdb, time.Minute)

	features := []models.MicrostructuralFeature{
		{Symbol: "BTCUSDT", MidPrice: 50000, RelativeSpreadBps: 2},
		{Symbol: "BTCUSDT", MidPrice: 50100, RelativeSpreadBps: 2.1},
	}
	payload, err := json.Marshal(features)
	require.NoError(t, err)

	mock.ExpectSet("features:latest:BTCUSDT", payload, time.Minute).SetVal("OK")
	mock.ExpectGet("features:latest:BTCUSDT").SetVal(string(payload))

	require.NoError(t, c.SetFeatures(context.Background(), "BTCUSDT", features))

	got, ok, err := c.LatestFeatures(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, 50100.0, got[1].MidPrice)
}

func TestLatestFeaturesMiss(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	c := NewRegimeCache(rdb, time.Minute)

	mock.ExpectGet("features:latest:SOLUSDT").RedisNil()

	got, ok, err := c.LatestFeatures(context.Background(), "SOLUSDT")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}
