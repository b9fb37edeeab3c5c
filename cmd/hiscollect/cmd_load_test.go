package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HisCollect/internal/domain/models"
	"HisCollect/internal/repository"
)

const sample = `{"market":"twse","category":"hisstock","fact":{"date":"2024-03-01T00:00:00Z","stock_id":"2317","open":1,"high":2,"low":1,"close":2,"volume":10}}
{"market":"otc","category":"hiscredit","fact":{"date":"2024-03-01T00:00:00Z","stock_id":"6488","buy_volume":3}}

{"market":"twse","category":"histrader","fact":{"date":"2024-03-01T00:00:00Z","stock_id":"2317","volume":100,"top_list":[{"broker_id":"B1","buy_volume":5,"sell_volume":1}]}}
{"market":"twse","category":"hisstock","fact":{"stock_id":"2330"}}
`

func TestLoadFactsFailsOnMalformedLine(t *testing.T) {
	store := repository.NewMemoryFactStore()
	_, err := loadFacts(context.Background(), strings.NewReader(sample), store, 2, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrMalformedFact)
	assert.Contains(t, err.Error(), "line 5")
}

func TestLoadFactsSkipsMalformedLines(t *testing.T) {
	store := repository.NewMemoryFactStore()
	res, err := loadFacts(context.Background(), strings.NewReader(sample), store, 1, true)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Loaded)
	assert.Equal(t, 1, res.Skipped)

	w := models.NewWindow(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	set, err := store.Query(context.Background(), models.FactQuery{
		Market: models.MarketTWSE, Category: models.CategoryTrader, Window: w, StockIDs: []string{"2317"},
	})
	require.NoError(t, err)
	require.Len(t, set.Activity, 1)
	assert.Equal(t, 6.0, set.Activity[0].TopList[0].TotalVolume)
}

func TestBuildRequestAppliesLimit(t *testing.T) {
	startDay, endDay, limit, market = "20240301", "20240305", 3, "otc"
	stockIDs = []string{"6488"}
	t.Cleanup(func() { startDay, endDay, limit, market, stockIDs = "", "", 10, "twse", nil })

	req, err := buildRequest()
	require.NoError(t, err)
	assert.Equal(t, models.MarketOTC, req.Market)
	require.Len(t, req.Frame, 4)
	for _, d := range req.Frame {
		assert.Equal(t, 3, d.Limit)
	}
}
