package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"HisCollect/internal/domain/models"
	domrepo "HisCollect/internal/domain/repository"
	"HisCollect/pkg/cache"
)

// CacheRankStore keeps one JSON document per ranking scope in a cache
// service (Redis in production, memory otherwise).
type CacheRankStore struct {
	cache  cache.Service
	prefix string
}

var _ domrepo.RankStore = (*CacheRankStore)(nil)

func NewCacheRankStore(c cache.Service, prefix string) *CacheRankStore {
	if prefix == "" {
		prefix = "rankmap"
	}
	return &CacheRankStore{cache: c, prefix: prefix}
}

func (s *CacheRankStore) key(scope models.RankScope) string {
	return cache.GenerateKeyWithParams(s.prefix, scope.Market, scope.Category, scope.Base, scope.GroupID)
}

// Lock acquires scopes in key order so two overlapping callers cannot
// deadlock each other; on any conflict everything taken so far is released.
func (s *CacheRankStore) Lock(ctx context.Context, scopes []models.RankScope, ttl time.Duration) (func(), error) {
	keys := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, sc := range scopes {
		k := s.key(sc)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	held := make([]string, 0, len(keys))
	release := func() {
		rctx := context.WithoutCancel(ctx)
		for _, k := range held {
			_ = s.cache.Unlock(rctx, k)
		}
	}
	for _, k := range keys {
		ok, err := s.cache.TryLock(ctx, k, ttl)
		if err != nil {
			release()
			return nil, fmt.Errorf("%w: lock %s: %v", models.ErrStoreUnavailable, k, err)
		}
		if !ok {
			release()
			return nil, fmt.Errorf("%w: %s", models.ErrRankingScopeConflict, k)
		}
		held = append(held, k)
	}
	return release, nil
}

func (s *CacheRankStore) Replace(ctx context.Context, scope models.RankScope, entries []models.RankedMapEntry) error {
	k := s.key(scope)
	if err := s.cache.Delete(ctx, k); err != nil {
		return fmt.Errorf("%w: clear %s: %v", models.ErrStoreUnavailable, k, err)
	}
	if len(entries) == 0 {
		return nil
	}
	if err := s.cache.Set(ctx, k, entries, 0); err != nil {
		return fmt.Errorf("%w: store %s: %v", models.ErrStoreUnavailable, k, err)
	}
	return nil
}

func (s *CacheRankStore) Get(ctx context.Context, scope models.RankScope) ([]models.RankedMapEntry, error) {
	var entries []models.RankedMapEntry
	if err := s.cache.Get(ctx, s.key(scope), &entries); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return entries, nil
}

func (s *CacheRankStore) Clear(ctx context.Context, market models.Market, category models.Category, base models.Base) error {
	pattern := cache.BuildPattern(cache.GenerateKeyWithParams(s.prefix, market, category, base) + ":")
	if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}

// MapAlias returns the distinct partner ids that hold any of the aliases in
// the persisted groups, sorted.
func (s *CacheRankStore) MapAlias(ctx context.Context, q models.AliasLookup) ([]string, error) {
	groups := models.NormalizeIDs(q.GroupIDs)
	keys := make([]string, len(groups))
	for i, g := range groups {
		keys[i] = s.key(models.RankScope{Market: q.Market, Category: q.Category, Base: q.Base, GroupID: g})
	}
	docs, err := cache.MGetTyped[[]models.RankedMapEntry](ctx, s.cache, keys...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}

	want := models.NewIDSet(q.Aliases...)
	out := models.NewIDSet()
	for _, k := range keys {
		for _, e := range docs[k] {
			if want.Has(e.Alias) && e.PartnerID != "" {
				out.Add(e.PartnerID)
			}
		}
	}
	return out.Sorted(), nil
}
