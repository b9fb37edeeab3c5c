package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HisCollect/internal/domain/models"
	"HisCollect/internal/repository"
)

// scriptedStore wraps the memory store with per-category behavior.
type scriptedStore struct {
	*repository.MemoryFactStore
	fail  map[models.Category]error
	block map[models.Category]bool
	after func(models.Category)
	mu    sync.Mutex
	seen  map[models.Category]models.FactQuery
}

func newScriptedStore(inner *repository.MemoryFactStore) *scriptedStore {
	return &scriptedStore{
		MemoryFactStore: inner,
		fail:            map[models.Category]error{},
		block:           map[models.Category]bool{},
		seen:            map[models.Category]models.FactQuery{},
	}
}

func (s *scriptedStore) Query(ctx context.Context, q models.FactQuery) (*models.FactSet, error) {
	s.mu.Lock()
	s.seen[q.Category] = q
	s.mu.Unlock()
	if err, ok := s.fail[q.Category]; ok {
		return nil, err
	}
	if s.block[q.Category] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	set, err := s.MemoryFactStore.Query(ctx, q)
	if s.after != nil {
		s.after(q.Category)
	}
	return set, err
}

type recordingPublisher struct {
	mu      sync.Mutex
	reports []models.CollectionReport
}

func (p *recordingPublisher) Publish(_ context.Context, r models.CollectionReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func seedMarket(t *testing.T, f *fixture) {
	t.Helper()
	f.put(t,
		&models.Bar{Date: day(1), StockID: "2317", Open: 100, High: 105, Low: 99, Close: 104, Volume: 5000},
		&models.Bar{Date: day(2), StockID: "2317", Open: 104, High: 106, Low: 103, Close: 105, Volume: 4000},
		&models.Credit{Date: day(1), StockID: "2317", BuyVolume: 10, SellVolume: 5, CurRemain: 50, Limit: 100},
		&models.Credit{Date: day(1), StockID: "2330", BuyVolume: 20, SellVolume: 5, CurRemain: 10, Limit: 100},
		&models.Future{Date: day(2), StockID: "2317", Volume: 30, OpenInterest: 300},
		&models.Future{Date: day(2), StockID: "2330", Volume: 40, OpenInterest: 400},
		&models.Future{Date: day(2), StockID: "1101", Volume: 50, OpenInterest: 500},
		&models.BrokerActivity{Date: day(2), StockID: "2317", Volume: 4000, TopList: []models.BrokerTrade{
			trade("B1", 1000, 200, 104, 105), trade("B2", 100, 400, 104, 105),
		}},
	)
}

func directive(priority int) *models.CollectionDirective {
	return &models.CollectionDirective{
		Enabled:   true,
		Window:    window(1, 5),
		Base:      models.BaseStock,
		OrderKeys: []models.OrderKey{models.OrderTotalVolume},
		Limit:     10,
		Priority:  priority,
	}
}

func TestCollectValidation(t *testing.T) {
	f := newFixture(t)
	c := NewCollector(f.agg)
	ctx := context.Background()

	_, err := c.Collect(ctx, models.CollectRequest{Market: "nyse", Window: window(1, 5)})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = c.Collect(ctx, models.CollectRequest{Market: models.MarketTWSE, Window: models.Window{Start: day(5), End: day(1)}})
	assert.ErrorIs(t, err, models.ErrQueryWindowInvalid)

	trader := directive(1)
	trader.Base = models.BaseTrader
	_, err = c.Collect(ctx, models.CollectRequest{
		Market: models.MarketTWSE,
		Frame: map[models.Category]*models.CollectionDirective{
			models.CategoryStock:  directive(0),
			models.CategoryTrader: trader,
		},
	})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "base", ve.Field)

	bad := directive(0)
	bad.OrderKeys = []models.OrderKey{"turnover"}
	_, err = c.Collect(ctx, models.CollectRequest{
		Market: models.MarketTWSE,
		Frame:  map[models.Category]*models.CollectionDirective{models.CategoryStock: bad},
	})
	assert.ErrorIs(t, err, models.ErrInvalidOrderKey)

	_, err = c.Collect(ctx, models.CollectRequest{
		Market: models.MarketTWSE,
		Frame:  map[models.Category]*models.CollectionDirective{"hisoption": directive(0)},
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCollectDefaultFrame(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	pub := &recordingPublisher{}
	c := NewCollector(f.agg, WithReportPublisher(pub))

	col, err := c.Collect(context.Background(), models.CollectRequest{
		Market:   models.MarketTWSE,
		Window:   window(1, 5),
		StockIDs: []string{"2317"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, col.Status)
	assert.NotEmpty(t, col.Request.ID)
	assert.Empty(t, col.Failures)
	for _, cat := range models.Categories() {
		require.Contains(t, col.Items, cat)
		assert.NotEmpty(t, col.Items[cat].Entries, cat)
	}
	assert.Equal(t, []string{"B1", "B2"}, col.BrokerIDs)

	require.Len(t, pub.reports, 1)
	assert.Equal(t, col.Request.ID, pub.reports[0].ID)
	assert.Equal(t, 2, pub.reports[0].Counts[models.CategoryTrader])
}

func TestCollectTierPropagation(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	c := NewCollector(f.agg)

	col, err := c.Collect(context.Background(), models.CollectRequest{
		Market:   models.MarketTWSE,
		Window:   window(1, 5),
		StockIDs: []string{"1101", "2317", "2330"},
		Frame: map[models.Category]*models.CollectionDirective{
			models.CategoryStock:  directive(0),
			models.CategoryCredit: directive(0),
			models.CategoryFuture: directive(1),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2317"}, col.Items[models.CategoryStock].ProducedID)
	assert.Equal(t, []string{"2317", "2330"}, col.Items[models.CategoryCredit].ProducedID)
	assert.Equal(t, []string{"2317", "2330"}, col.Items[models.CategoryFuture].Query.StockIDs)
}

func TestCollectTierCarriesUnionOfParallelAndJoin(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	c := NewCollector(f.agg)

	col, err := c.Collect(context.Background(), models.CollectRequest{
		Market:   models.MarketTWSE,
		Window:   window(1, 5),
		StockIDs: []string{"1101", "2317", "2330"},
		Frame: map[models.Category]*models.CollectionDirective{
			models.CategoryCredit: directive(0),
			models.CategoryTrader: directive(0),
			models.CategoryStock:  directive(1),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2317", "2330"}, col.Items[models.CategoryCredit].ProducedID)
	assert.Equal(t, []string{"2317"}, col.Items[models.CategoryTrader].ProducedID)
	// 2330 came only from the parallel category and is still carried
	assert.Equal(t, []string{"2317", "2330"}, col.Items[models.CategoryStock].Query.StockIDs)
}

func TestCollectTruncatesWindowsToDays(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	c := NewCollector(f.agg)

	afternoon := models.Window{Start: day(1).Add(15 * time.Hour), End: day(2).Add(9 * time.Hour)}
	stock := directive(0)
	stock.Window = afternoon
	col, err := c.Collect(context.Background(), models.CollectRequest{
		Market:   models.MarketTWSE,
		Window:   afternoon,
		StockIDs: []string{"2317"},
		Frame: map[models.Category]*models.CollectionDirective{
			models.CategoryStock: stock,
		},
	})
	require.NoError(t, err)
	item := col.Items[models.CategoryStock]
	require.Len(t, item.Entries, 1)
	assert.Len(t, item.Entries[0].Points, 2)
	assert.Equal(t, window(1, 2), item.Query.Window)
	assert.Equal(t, day(1).Add(15*time.Hour), stock.Window.Start, "caller's directive is not mutated")
}

func TestCollectJoinWithoutOutputKeepsSeed(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	c := NewCollector(f.agg)

	credit := directive(0)
	credit.Window = window(3, 5)
	col, err := c.Collect(context.Background(), models.CollectRequest{
		Market:   models.MarketTWSE,
		Window:   window(1, 5),
		StockIDs: []string{"1101", "2317", "2330"},
		Frame: map[models.Category]*models.CollectionDirective{
			models.CategoryStock:  directive(0),
			models.CategoryCredit: credit,
			models.CategoryFuture: directive(1),
		},
	})
	require.NoError(t, err)
	assert.Empty(t, col.Items[models.CategoryCredit].ProducedID)
	assert.Equal(t, []string{"1101", "2317", "2330"}, col.Items[models.CategoryFuture].Query.StockIDs)
}

func TestCollectReportsCategoryFailures(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	store := newScriptedStore(f.store)
	store.fail[models.CategoryCredit] = errors.Join(models.ErrStoreUnavailable, errors.New("connection refused"))
	store.block[models.CategoryFuture] = true

	agg := NewAggregator(store, WithRankStore(f.ranks))
	c := NewCollector(agg, WithQueryTimeout(20*time.Millisecond))

	col, err := c.Collect(context.Background(), models.CollectRequest{
		Market:   models.MarketTWSE,
		Window:   window(1, 5),
		StockIDs: []string{"2317"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, col.Status)
	require.Len(t, col.Failures, 2)
	assert.Equal(t, models.CategoryCredit, col.Failures[0].Category)
	assert.Equal(t, models.FailureStoreUnavailable, col.Failures[0].Kind)
	assert.Equal(t, models.CategoryFuture, col.Failures[1].Category)
	assert.Equal(t, models.FailureQueryTimeout, col.Failures[1].Kind)
	assert.NotContains(t, col.Items, models.CategoryCredit)
	assert.Contains(t, col.Items, models.CategoryTrader)
}

func TestCollectCancelThenResume(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	store := newScriptedStore(f.store)
	ctx, cancel := context.WithCancel(context.Background())
	store.after = func(c models.Category) {
		if c == models.CategoryStock {
			cancel()
		}
	}
	c := NewCollector(NewAggregator(store), WithQueryTimeout(0))

	col, err := c.Collect(ctx, models.CollectRequest{
		Market:   models.MarketTWSE,
		Window:   window(1, 5),
		StockIDs: []string{"2317"},
	})
	require.ErrorIs(t, err, models.ErrCanceled)
	require.NotNil(t, col)
	assert.Equal(t, models.StatusRunning, col.Status)
	assert.Equal(t, 1, col.NextTier)
	assert.Contains(t, col.Items, models.CategoryStock)
	assert.NotContains(t, col.Items, models.CategoryCredit)

	store.after = nil
	require.NoError(t, c.Resume(context.Background(), col))
	assert.Equal(t, models.StatusFinished, col.Status)
	assert.Contains(t, col.Items, models.CategoryTrader)
}

func TestCollectListMethodSeedsFromDirectory(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	c := NewCollector(f.agg, WithDirectory(f.store))

	frame := map[models.Category]*models.CollectionDirective{models.CategoryFuture: directive(0)}
	col, err := c.Collect(context.Background(), models.CollectRequest{
		Market: models.MarketTWSE,
		Method: models.MethodList,
		Window: window(1, 5),
		Frame:  frame,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1101", "2317", "2330"}, col.Items[models.CategoryFuture].ProducedID)
	assert.Equal(t, 0, frame[models.CategoryFuture].Priority)
}

func TestStockFrame(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	c := NewCollector(f.agg)

	res, err := c.StockFrame(context.Background(), StockFrameParams{
		Market: models.MarketTWSE, StockID: "2317", Window: window(1, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, res.Status)
	require.Equal(t, 2, res.Table.Rows())

	v, ok := res.Table.Value("2317", "close", 0)
	require.True(t, ok)
	assert.Equal(t, 104.0, v)
	v, _ = res.Table.Value("2317", "credit_used", 0)
	assert.Equal(t, 50.0, v)
	v, _ = res.Table.Value("top0", "top0_volume", 1)
	assert.Equal(t, 800.0, v)
	v, _ = res.Table.Value("top1", "top1_price", 1)
	assert.Equal(t, 105.0, v)
}

func TestTraderFrame(t *testing.T) {
	f := newFixture(t)
	seedMarket(t, f)
	c := NewCollector(f.agg)

	res, err := c.TraderFrame(context.Background(), TraderFrameParams{
		Market: models.MarketTWSE, TraderID: "B1", Window: window(1, 5),
	})
	require.NoError(t, err)
	require.Len(t, res.Table.Groups, 1)
	v, ok := res.Table.Value("top0", "top0_volume", 0)
	require.True(t, ok)
	assert.Equal(t, 800.0, v)
}
