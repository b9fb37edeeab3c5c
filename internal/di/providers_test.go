package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HisCollect/internal/domain/models"
	"HisCollect/pkg/config"
)

var testDay = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func TestInitializeToolsMemoryBackends(t *testing.T) {
	cfg := config.Default()

	tools, cleanup, err := InitializeTools(cfg)
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	defer cleanup()

	require.NoError(t, tools.Store.Upsert(context.Background(), models.MarketTWSE,
		&models.Bar{Date: testDay, StockID: "2317", Volume: 10}))
	col, err := tools.Collector.Collect(context.Background(), models.CollectRequest{
		Market:   models.MarketTWSE,
		Window:   models.NewWindow(testDay, testDay),
		StockIDs: []string{"2317"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, col.Status)
	assert.Equal(t, []string{"2317"}, col.Items[models.CategoryStock].ProducedID)
}

func TestInitializeToolsFailsWithoutLeakingCleanup(t *testing.T) {
	cfg := config.Default()
	cfg.RankMap.Backend = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"

	tools, cleanup, err := InitializeTools(cfg)
	require.Error(t, err)
	assert.Nil(t, tools)
	assert.Nil(t, cleanup, "partial resources are released inside the injector")
}

func TestProvidersReturnCallableCleanups(t *testing.T) {
	cfg := config.Default()
	l, err := ProvideLogger(cfg)
	require.NoError(t, err)

	_, storeCleanup, err := ProvideFactStore(cfg, l)
	require.NoError(t, err)
	c, cacheCleanup, err := ProvideCache(cfg, l)
	require.NoError(t, err)
	producer, producerCleanup, err := ProvideKafkaProducer(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, producer, "reports are off by default")

	require.NoError(t, c.Set(context.Background(), "k", "v", 0))
	assert.NotPanics(t, func() {
		producerCleanup()
		cacheCleanup()
		storeCleanup()
	})
}
