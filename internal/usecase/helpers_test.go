package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"HisCollect/internal/domain/models"
	"HisCollect/internal/repository"
	"HisCollect/pkg/cache"
)

func day(n int) time.Time {
	return time.Date(2024, time.March, n, 0, 0, 0, 0, time.UTC)
}

func window(from, to int) models.Window {
	return models.NewWindow(day(from), day(to))
}

func trade(broker string, buy, sell, avgBuy, avgSell float64) models.BrokerTrade {
	return models.BrokerTrade{BrokerID: broker, BuyVolume: buy, SellVolume: sell, AvgBuyPrice: avgBuy, AvgSellPrice: avgSell}
}

type fixture struct {
	store *repository.MemoryFactStore
	cache *cache.MemoryCache
	ranks *repository.CacheRankStore
	agg   *Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: repository.NewMemoryFactStore(), cache: cache.NewMemoryCache()}
	t.Cleanup(func() { _ = f.cache.Close() })
	f.ranks = repository.NewCacheRankStore(f.cache, "rankmap")
	f.agg = NewAggregator(f.store,
		WithRankStore(f.ranks),
		WithScopeLocking(time.Second, 2, time.Millisecond, 2*time.Millisecond))
	return f
}

func (f *fixture) put(t *testing.T, facts ...models.Fact) {
	t.Helper()
	require.NoError(t, f.store.UpsertBatch(context.Background(), models.MarketTWSE, facts))
}
