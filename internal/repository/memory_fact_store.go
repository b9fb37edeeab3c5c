package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"HisCollect/internal/domain/models"
	domrepo "HisCollect/internal/domain/repository"
)

type factKey struct {
	market   models.Market
	category models.Category
	stockID  string
	day      time.Time
}

// MemoryFactStore keeps facts in process. Upserts replace on
// (market, category, stock_id, date).
type MemoryFactStore struct {
	mu    sync.RWMutex
	facts map[factKey]models.Fact
}

var (
	_ domrepo.FactStore   = (*MemoryFactStore)(nil)
	_ domrepo.IDDirectory = (*MemoryFactStore)(nil)
)

func NewMemoryFactStore() *MemoryFactStore {
	return &MemoryFactStore{facts: make(map[factKey]models.Fact)}
}

func (s *MemoryFactStore) Init(context.Context) error { return nil }

func (s *MemoryFactStore) Health(context.Context) error { return nil }

func (s *MemoryFactStore) Close() error { return nil }

func (s *MemoryFactStore) Upsert(ctx context.Context, market models.Market, f models.Fact) error {
	return s.UpsertBatch(ctx, market, []models.Fact{f})
}

func (s *MemoryFactStore) UpsertBatch(_ context.Context, market models.Market, facts []models.Fact) error {
	if !market.IsValid() {
		return fmt.Errorf("%w: unknown market %q", models.ErrMalformedFact, market)
	}
	for _, f := range facts {
		if f == nil {
			return fmt.Errorf("%w: nil fact", models.ErrMalformedFact)
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		if a, ok := f.(*models.BrokerActivity); ok {
			cp := *a
			cp.TopList = append([]models.BrokerTrade(nil), a.TopList...)
			cp.Normalize()
			f = &cp
		}
		s.facts[factKey{market, f.Category(), f.Stock(), f.Day()}] = f
	}
	return nil
}

func (s *MemoryFactStore) Query(ctx context.Context, q models.FactQuery) (*models.FactSet, error) {
	if err := q.Window.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	set := &models.FactSet{Market: q.Market, Category: q.Category}
	if q.Empty() {
		return set, nil
	}

	stocks := models.NewIDSet(q.StockIDs...)
	brokers := models.NewIDSet(q.BrokerIDs...)

	s.mu.RLock()
	matched := make([]models.Fact, 0)
	for k, f := range s.facts {
		if k.market != q.Market || k.category != q.Category || !q.Window.Contains(k.day) {
			continue
		}
		if stocks.Has(k.stockID) || (q.Category == models.CategoryTrader && touchesBroker(f, brokers)) {
			matched = append(matched, f)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Stock() != matched[j].Stock() {
			return matched[i].Stock() < matched[j].Stock()
		}
		return matched[i].Day().Before(matched[j].Day())
	})
	for _, f := range matched {
		set.Add(f)
	}
	return set, nil
}

func touchesBroker(f models.Fact, brokers models.IDSet) bool {
	a, ok := f.(*models.BrokerActivity)
	if !ok || len(brokers) == 0 {
		return false
	}
	for _, t := range a.TopList {
		if brokers.Has(t.BrokerID) {
			return true
		}
	}
	return false
}

func (s *MemoryFactStore) StockIDs(_ context.Context, market models.Market) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := models.NewIDSet()
	for k := range s.facts {
		if k.market == market {
			set.Add(k.stockID)
		}
	}
	return set.Sorted(), nil
}

func (s *MemoryFactStore) BrokerIDs(_ context.Context, market models.Market) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := models.NewIDSet()
	for k, f := range s.facts {
		if k.market != market {
			continue
		}
		if a, ok := f.(*models.BrokerActivity); ok {
			set.Add(a.BrokerIDs()...)
		}
	}
	return set.Sorted(), nil
}

// Len is the number of stored facts.
func (s *MemoryFactStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}
