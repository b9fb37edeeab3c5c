package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HisCollect/internal/domain/models"
)

func traderQuery(limit int, keys ...models.OrderKey) models.AggregateQuery {
	if len(keys) == 0 {
		keys = []models.OrderKey{models.OrderTotalVolume}
	}
	return models.AggregateQuery{
		Market:    models.MarketTWSE,
		Category:  models.CategoryTrader,
		Window:    window(1, 5),
		Base:      models.BaseStock,
		StockIDs:  []string{"2317"},
		OrderKeys: keys,
		Limit:     limit,
	}
}

func TestAggregateRanksTopBroker(t *testing.T) {
	f := newFixture(t)
	f.put(t, &models.BrokerActivity{
		Date: day(3), StockID: "2317", Volume: 10000,
		TopList: []models.BrokerTrade{
			trade("B1", 1000, 200, 100, 101),
			trade("B2", 300, 300, 99, 98),
		},
	})

	got, err := f.agg.Aggregate(context.Background(), traderQuery(1))
	require.NoError(t, err)
	require.Len(t, got, 1)

	e := got[0]
	assert.Equal(t, "top0", e.Alias)
	assert.Equal(t, "2317", e.GroupID)
	assert.Equal(t, "B1", e.PartnerID)
	assert.Equal(t, 1200.0, e.TotalVolume)
	assert.Equal(t, 1, e.HitCount)
	require.Len(t, e.Points, 1)
	assert.Equal(t, 800.0, e.Points[0].Values[models.FieldVolume])
	assert.Equal(t, 100.0, e.Points[0].Values[models.FieldPrice])
	assert.InDelta(t, 12.0, e.Points[0].Values[models.FieldRatio], 1e-9)
}

func TestAggregateEmptyWindowIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.put(t, &models.Bar{Date: day(20), StockID: "2317", Volume: 5})

	got, err := f.agg.Aggregate(context.Background(), traderQuery(10))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregateRejectsUnknownOrderKeyBeforeFetch(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.Aggregate(context.Background(), traderQuery(10, "volume"))
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidOrderKey)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAggregateRejectsInvertedWindow(t *testing.T) {
	f := newFixture(t)
	q := traderQuery(10)
	q.Window = models.Window{Start: day(5), End: day(1)}
	_, err := f.agg.Aggregate(context.Background(), q)
	assert.ErrorIs(t, err, models.ErrQueryWindowInvalid)
}

func seedThreeDays(t *testing.T, f *fixture) {
	t.Helper()
	f.put(t,
		&models.BrokerActivity{Date: day(1), StockID: "2317", Volume: 1000, TopList: []models.BrokerTrade{
			trade("B1", 100, 0, 10, 0), trade("B2", 50, 0, 10, 0), trade("B3", 0, 300, 0, 10),
		}},
		&models.BrokerActivity{Date: day(2), StockID: "2317", Volume: 1000, TopList: []models.BrokerTrade{
			trade("B1", 100, 0, 10, 0), trade("B2", 500, 0, 10, 0),
		}},
		&models.BrokerActivity{Date: day(3), StockID: "2317", Volume: 1000, TopList: []models.BrokerTrade{
			trade("B1", 100, 0, 10, 0), trade("B4", 50, 0, 10, 0),
		}},
	)
}

func TestAggregateTotalVolumeNonIncreasing(t *testing.T) {
	f := newFixture(t)
	seedThreeDays(t, f)

	got, err := f.agg.Aggregate(context.Background(), traderQuery(10))
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].TotalVolume, got[i].TotalVolume)
		assert.Equal(t, models.AliasFor(i), got[i].Alias)
	}
	assert.Equal(t, []string{"B2", "B1", "B3", "B4"}, partners(got))
}

func TestAggregateHitCountWithTieBreak(t *testing.T) {
	f := newFixture(t)
	seedThreeDays(t, f)

	got, err := f.agg.Aggregate(context.Background(),
		traderQuery(3, models.OrderHitCount, models.OrderTotalVolume))
	require.NoError(t, err)
	assert.Equal(t, []string{"B1", "B2", "B3"}, partners(got))
}

func TestAggregateRatioUsesLatestDay(t *testing.T) {
	f := newFixture(t)
	seedThreeDays(t, f)

	got, err := f.agg.Aggregate(context.Background(), traderQuery(2, models.OrderRatio))
	require.NoError(t, err)
	// latest ratios: B2 50 (day 2), B3 30 (day 1), B1 10, B4 5.
	assert.Equal(t, []string{"B2", "B3"}, partners(got))
}

func TestAggregateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	seedThreeDays(t, f)

	first, err := f.agg.Aggregate(context.Background(), traderQuery(3))
	require.NoError(t, err)
	second, err := f.agg.Aggregate(context.Background(), traderQuery(3))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAggregateBrokerBase(t *testing.T) {
	f := newFixture(t)
	f.put(t,
		&models.BrokerActivity{Date: day(1), StockID: "2317", Volume: 1000, TopList: []models.BrokerTrade{trade("B1", 100, 0, 10, 0)}},
		&models.BrokerActivity{Date: day(1), StockID: "2330", Volume: 1000, TopList: []models.BrokerTrade{trade("B1", 400, 0, 10, 0)}},
		&models.BrokerActivity{Date: day(1), StockID: "1101", Volume: 1000, TopList: []models.BrokerTrade{trade("B2", 400, 0, 10, 0)}},
	)

	got, err := f.agg.Aggregate(context.Background(), models.AggregateQuery{
		Market:    models.MarketTWSE,
		Category:  models.CategoryTrader,
		Window:    window(1, 5),
		Base:      models.BaseTrader,
		BrokerIDs: []string{"B1"},
		OrderKeys: []models.OrderKey{models.OrderTotalVolume},
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B1", got[0].GroupID)
	assert.Equal(t, []string{"2330", "2317"}, partners(got))
}

func TestAggregateBrokerBaseRanksEveryStockOfTheBroker(t *testing.T) {
	f := newFixture(t)
	f.put(t,
		&models.BrokerActivity{Date: day(1), StockID: "2317", Volume: 1000, TopList: []models.BrokerTrade{trade("B1", 100, 0, 10, 0)}},
		&models.BrokerActivity{Date: day(1), StockID: "2330", Volume: 1000, TopList: []models.BrokerTrade{trade("B1", 400, 0, 10, 0)}},
	)

	// carried stock ids widen the fetch, they do not restrict the broker's partners
	got, err := f.agg.Aggregate(context.Background(), models.AggregateQuery{
		Market:    models.MarketTWSE,
		Category:  models.CategoryTrader,
		Window:    window(1, 5),
		Base:      models.BaseTrader,
		StockIDs:  []string{"2317"},
		BrokerIDs: []string{"B1"},
		OrderKeys: []models.OrderKey{models.OrderTotalVolume},
		Limit:     1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B1", got[0].GroupID)
	assert.Equal(t, "2330", got[0].PartnerID)
}

func TestAggregateStockBaseIgnoresBrokerFilterWhenRanking(t *testing.T) {
	f := newFixture(t)
	f.put(t, &models.BrokerActivity{
		Date: day(3), StockID: "2317", Volume: 10000,
		TopList: []models.BrokerTrade{
			trade("B1", 1000, 200, 100, 101),
			trade("B2", 300, 300, 99, 98),
		},
	})

	q := traderQuery(1)
	q.BrokerIDs = []string{"B2"}
	got, err := f.agg.Aggregate(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2317", got[0].GroupID)
	assert.Equal(t, "B1", got[0].PartnerID)
}

func TestAggregatePlainCategoryGroupsByStock(t *testing.T) {
	f := newFixture(t)
	f.put(t,
		&models.Bar{Date: day(1), StockID: "2317", Open: 1, High: 2, Low: 1, Close: 2, Volume: 10},
		&models.Bar{Date: day(2), StockID: "2317", Open: 2, High: 3, Low: 2, Close: 3, Volume: 0},
	)

	got, err := f.agg.Aggregate(context.Background(), models.AggregateQuery{
		Market:    models.MarketTWSE,
		Category:  models.CategoryStock,
		Window:    window(1, 5),
		Base:      models.BaseTrader,
		StockIDs:  []string{"2317", "9999"},
		OrderKeys: []models.OrderKey{models.OrderTotalVolume},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.BaseStock, got[0].Base)
	assert.Equal(t, "", got[0].PartnerID)
	assert.Equal(t, 1, got[0].HitCount)
	assert.Equal(t, 10.0, got[0].TotalVolume)
	require.Len(t, got[0].Points, 2)
	assert.True(t, got[0].Points[0].Date.Before(got[0].Points[1].Date))
}

func TestAggregatePersistsAndClearsStaleAliases(t *testing.T) {
	f := newFixture(t)
	seedThreeDays(t, f)
	ctx := context.Background()
	scope := models.RankScope{Market: models.MarketTWSE, Category: models.CategoryTrader, Base: models.BaseStock, GroupID: "2317"}

	_, err := f.agg.Aggregate(ctx, traderQuery(4))
	require.NoError(t, err)
	stored, err := f.ranks.Get(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, stored, 4)

	_, err = f.agg.Aggregate(ctx, traderQuery(2))
	require.NoError(t, err)
	stored, err = f.ranks.Get(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	ids, err := f.agg.MapAlias(ctx, models.AliasLookup{
		Market: models.MarketTWSE, Category: models.CategoryTrader, Base: models.BaseStock,
		GroupIDs: []string{"2317"}, Aliases: []string{"top0", "top3"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"B2"}, ids)
}

func TestAggregateScopeConflictAfterRetries(t *testing.T) {
	f := newFixture(t)
	seedThreeDays(t, f)
	ctx := context.Background()
	scope := models.RankScope{Market: models.MarketTWSE, Category: models.CategoryTrader, Base: models.BaseStock, GroupID: "2317"}

	unlock, err := f.ranks.Lock(ctx, []models.RankScope{scope}, time.Minute)
	require.NoError(t, err)

	_, err = f.agg.Aggregate(ctx, traderQuery(3))
	assert.ErrorIs(t, err, models.ErrRankingScopeConflict)

	unlock()
	_, err = f.agg.Aggregate(ctx, traderQuery(3))
	assert.NoError(t, err)
}

func TestReduceIsOrderIndependent(t *testing.T) {
	a := models.AggregationResult{Key: models.AggregationKey{GroupID: "s", PartnerID: "b"}, TotalVolume: 1, HitCount: 1,
		Points: []models.Point{{Date: day(2)}}}
	b := models.AggregationResult{Key: models.AggregationKey{GroupID: "s", PartnerID: "b"}, TotalVolume: 2, HitCount: 1,
		Points: []models.Point{{Date: day(1)}}}

	x := Reduce([]models.AggregationResult{a, b})
	y := Reduce([]models.AggregationResult{b, a})
	assert.Equal(t, x, y)
	assert.Equal(t, 3.0, x[a.Key].TotalVolume)
	assert.Equal(t, day(1), x[a.Key].Points[0].Date)
}

func partners(entries []models.RankedMapEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.PartnerID
	}
	return out
}

func TestClearRanking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	scope := models.RankScope{Market: models.MarketTWSE, Category: models.CategoryTrader, Base: models.BaseStock, GroupID: "2317"}
	require.NoError(t, f.ranks.Replace(ctx, scope, []models.RankedMapEntry{{GroupID: "2317", PartnerID: "B1", Alias: "top0"}}))

	err := f.agg.ClearRanking(ctx, models.MarketTWSE, models.Category("hisoption"), models.BaseStock)
	assert.ErrorIs(t, err, models.ErrValidation)

	require.NoError(t, f.agg.ClearRanking(ctx, models.MarketTWSE, models.CategoryTrader, models.BaseStock))
	got, err := f.ranks.Get(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, got)

	err = NewAggregator(f.store).ClearRanking(ctx, models.MarketTWSE, models.CategoryTrader, models.BaseStock)
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestAggregateTruncatesWindowToDays(t *testing.T) {
	f := newFixture(t)
	f.put(t,
		&models.Bar{Date: day(1), StockID: "2317", Close: 10, High: 10, Low: 10, Volume: 100},
		&models.Bar{Date: day(2), StockID: "2317", Close: 11, High: 11, Low: 11, Volume: 100},
	)

	q := traderQuery(10)
	q.Category = models.CategoryStock
	q.Window = models.Window{Start: day(1).Add(15 * time.Hour), End: day(2).Add(3 * time.Hour)}
	got, err := f.agg.Aggregate(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Points, 2)
	assert.Equal(t, 200.0, got[0].TotalVolume)
}
