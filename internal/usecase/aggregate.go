package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"HisCollect/internal/domain/models"
	domrepo "HisCollect/internal/domain/repository"
	"HisCollect/pkg/logger"
	"HisCollect/pkg/metrics"
)

// Aggregator turns raw facts into ranked, aliased summaries and keeps the
// ranked map in sync with the last query of each scope.
type Aggregator struct {
	facts        domrepo.FactStore
	ranks        domrepo.RankStore
	metrics      domrepo.Metrics
	l            *logger.Logger
	lockTTL      time.Duration
	retryTries   uint
	retryInitial time.Duration
	retryMax     time.Duration
}

type AggregatorOption func(*Aggregator)

// WithRankStore enables persistence of ranked entries.
func WithRankStore(rs domrepo.RankStore) AggregatorOption {
	return func(a *Aggregator) { a.ranks = rs }
}

func WithAggregatorMetrics(m domrepo.Metrics) AggregatorOption {
	return func(a *Aggregator) {
		if m != nil {
			a.metrics = m
		}
	}
}

func WithAggregatorLogger(l *logger.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.l = l
		}
	}
}

// WithScopeLocking sets the scope lock TTL and how often a conflicting lock
// is retried before giving up.
func WithScopeLocking(ttl time.Duration, tries uint, initial, max time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.lockTTL = ttl
		a.retryTries = tries
		a.retryInitial = initial
		a.retryMax = max
	}
}

func NewAggregator(facts domrepo.FactStore, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		facts:        facts,
		metrics:      metrics.Nop{},
		l:            logger.Nop(),
		lockTTL:      30 * time.Second,
		retryTries:   5,
		retryInitial: 100 * time.Millisecond,
		retryMax:     2 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate fetches, reduces and ranks one category. Ids with no data in the
// window are absent from the result. Entries come back grouped by ascending
// group id, each group in alias order.
func (a *Aggregator) Aggregate(ctx context.Context, q models.AggregateQuery) ([]models.RankedMapEntry, error) {
	q.Window = q.Window.Days()
	if err := validateAggregate(q); err != nil {
		return nil, err
	}
	q.Base = q.EffectiveBase()
	if q.Limit <= 0 {
		q.Limit = models.DefaultLimit
	}

	fq := models.FactQuery{
		Market:   q.Market,
		Category: q.Category,
		Window:   q.Window,
		StockIDs: models.NormalizeIDs(q.StockIDs),
	}
	if q.Category == models.CategoryTrader && q.Base == models.BaseTrader {
		fq.BrokerIDs = models.NormalizeIDs(q.BrokerIDs)
	}

	start := time.Now()
	set, err := a.facts.Query(ctx, fq)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Category, err)
	}
	a.metrics.RecordLatency("fact_query", time.Since(start).Seconds())

	results := Reduce(MapFacts(set, q.Base))
	groups := requestedGroups(q, results)
	entries := Rank(q, results, groups)

	if a.ranks != nil {
		if err := a.persist(ctx, q, groups, entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func validateAggregate(q models.AggregateQuery) error {
	if err := models.ValidateOrderKeys(q.OrderKeys); err != nil {
		return &models.ValidationError{Field: "order_keys", Message: err.Error(), Err: models.ErrInvalidOrderKey}
	}
	if !q.Market.IsValid() {
		return models.NewValidationError("market", "unknown market %q", q.Market)
	}
	if !q.Category.IsValid() {
		return models.NewValidationError("category", "unknown category %q", q.Category)
	}
	if q.Base != "" && !q.Base.IsValid() {
		return models.NewValidationError("base", "unknown base %q", q.Base)
	}
	if err := q.Window.Validate(); err != nil {
		return &models.ValidationError{Field: "window", Message: err.Error(), Err: models.ErrQueryWindowInvalid}
	}
	return nil
}

// MapFacts fans facts out to one keyed partial result per (group, partner,
// day). Broker top-list rows key by (stock, broker) or (broker, stock)
// depending on base; plain facts key by (stock, "").
func MapFacts(set *models.FactSet, base models.Base) []models.AggregationResult {
	if set == nil {
		return nil
	}
	out := make([]models.AggregationResult, 0, set.Len())
	for _, a := range set.Activity {
		day := a.Day()
		for _, t := range a.TopList {
			total := t.TotalVolume
			if total == 0 {
				total = t.BuyVolume + t.SellVolume
			}
			hit, ratio := 0, 0.0
			if total > 0 {
				hit = 1
				if a.Volume > 0 {
					ratio = total / a.Volume * 100
				}
			}
			key := models.AggregationKey{GroupID: a.StockID, PartnerID: t.BrokerID}
			if base == models.BaseTrader {
				key = models.AggregationKey{GroupID: t.BrokerID, PartnerID: a.StockID}
			}
			out = append(out, models.AggregationResult{
				Key:         key,
				TotalVolume: total,
				HitCount:    hit,
				Points: []models.Point{{Date: day, Values: map[string]float64{
					models.FieldRatio:  ratio,
					models.FieldPrice:  t.Price(),
					models.FieldVolume: t.NetVolume(),
				}}},
			})
		}
	}
	for _, b := range set.Bars {
		out = append(out, plainPartial(b.StockID, b.Day(), b.Volume, b.Values()))
	}
	for _, c := range set.Credits {
		out = append(out, plainPartial(c.StockID, c.Day(), c.BuyVolume+c.SellVolume, c.Values()))
	}
	for _, f := range set.Futures {
		out = append(out, plainPartial(f.StockID, f.Day(), f.Volume, f.Values()))
	}
	return out
}

func plainPartial(stockID string, day time.Time, volume float64, values map[string]float64) models.AggregationResult {
	hit := 0
	if volume > 0 {
		hit = 1
	}
	return models.AggregationResult{
		Key:         models.AggregationKey{GroupID: stockID},
		TotalVolume: volume,
		HitCount:    hit,
		Points:      []models.Point{{Date: day, Values: values}},
	}
}

// Reduce merges partials by key. Order of the input does not matter.
func Reduce(partials []models.AggregationResult) map[models.AggregationKey]*models.AggregationResult {
	out := make(map[models.AggregationKey]*models.AggregationResult)
	for _, p := range partials {
		acc, ok := out[p.Key]
		if !ok {
			acc = &models.AggregationResult{Key: p.Key}
			out[p.Key] = acc
		}
		acc.Merge(p)
	}
	for _, r := range out {
		sort.SliceStable(r.Points, func(i, j int) bool { return r.Points[i].Date.Before(r.Points[j].Date) })
	}
	return out
}

// requestedGroups is the set of group ids the query owns: the requested ids
// for its base, or every group seen when none were requested.
func requestedGroups(q models.AggregateQuery, results map[models.AggregationKey]*models.AggregationResult) []string {
	if ids := q.GroupIDs(); len(ids) > 0 {
		return ids
	}
	seen := models.NewIDSet()
	for k := range results {
		seen.Add(k.GroupID)
	}
	return seen.Sorted()
}

// Rank sorts each group's results by the order keys descending with the
// partner id ascending as final tie-break, keeps the top q.Limit and assigns
// aliases top0..topN.
func Rank(q models.AggregateQuery, results map[models.AggregationKey]*models.AggregationResult, groups []string) []models.RankedMapEntry {
	wanted := models.NewIDSet(groups...)
	byGroup := make(map[string][]*models.AggregationResult)
	for k, r := range results {
		if wanted.Has(k.GroupID) {
			byGroup[k.GroupID] = append(byGroup[k.GroupID], r)
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = models.DefaultLimit
	}

	var out []models.RankedMapEntry
	for _, g := range groups {
		rs := byGroup[g]
		if len(rs) == 0 {
			continue
		}
		sort.Slice(rs, func(i, j int) bool { return less(rs[i], rs[j], q.OrderKeys) })
		if len(rs) > limit {
			rs = rs[:limit]
		}
		for i, r := range rs {
			out = append(out, models.RankedMapEntry{
				Market:      q.Market,
				Category:    q.Category,
				Base:        q.Base,
				GroupID:     r.Key.GroupID,
				PartnerID:   r.Key.PartnerID,
				Alias:       models.AliasFor(i),
				Rank:        i,
				TotalVolume: r.TotalVolume,
				HitCount:    r.HitCount,
				Points:      r.Points,
			})
		}
	}
	return out
}

func less(a, b *models.AggregationResult, keys []models.OrderKey) bool {
	for _, k := range keys {
		ma, mb := a.Metric(k), b.Metric(k)
		if ma != mb {
			return ma > mb
		}
	}
	return a.Key.PartnerID < b.Key.PartnerID
}

// persist replaces every owned scope under the scope locks. Groups that
// produced nothing are cleared so no alias from an earlier query survives.
func (a *Aggregator) persist(ctx context.Context, q models.AggregateQuery, groups []string, entries []models.RankedMapEntry) error {
	if len(groups) == 0 {
		return nil
	}
	scopes := make([]models.RankScope, len(groups))
	for i, g := range groups {
		scopes[i] = models.RankScope{Market: q.Market, Category: q.Category, Base: q.Base, GroupID: g}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.retryInitial
	bo.MaxInterval = a.retryMax

	unlock, err := backoff.Retry(ctx, func() (func(), error) {
		unlock, err := a.ranks.Lock(ctx, scopes, a.lockTTL)
		if err == nil {
			return unlock, nil
		}
		if errors.Is(err, models.ErrRankingScopeConflict) {
			a.metrics.RecordRankingConflict(string(q.Category))
			a.l.Warn("ranking scope busy, retrying",
				logger.String("category", string(q.Category)),
				logger.String("base", string(q.Base)),
				logger.Int("groups", len(groups)))
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(a.retryTries))
	if err != nil {
		return fmt.Errorf("lock ranking scopes: %w", err)
	}
	defer unlock()

	byGroup := make(map[string][]models.RankedMapEntry, len(groups))
	for _, e := range entries {
		byGroup[e.GroupID] = append(byGroup[e.GroupID], e)
	}
	for _, sc := range scopes {
		if err := a.ranks.Replace(ctx, sc, byGroup[sc.GroupID]); err != nil {
			return err
		}
	}
	return nil
}

// MapAlias resolves aliases of the persisted ranked map back to partner ids.
func (a *Aggregator) MapAlias(ctx context.Context, q models.AliasLookup) ([]string, error) {
	if a.ranks == nil {
		return nil, fmt.Errorf("%w: ranked map not configured", models.ErrStoreUnavailable)
	}
	if !q.Market.IsValid() {
		return nil, models.NewValidationError("market", "unknown market %q", q.Market)
	}
	if len(q.Aliases) == 0 {
		q.Aliases = []string{models.AliasFor(0)}
	}
	return a.ranks.MapAlias(ctx, q)
}

// ClearRanking drops every persisted group of (market, category, base).
// The next aggregation for that scope rebuilds it.
func (a *Aggregator) ClearRanking(ctx context.Context, market models.Market, category models.Category, base models.Base) error {
	if a.ranks == nil {
		return fmt.Errorf("%w: ranked map not configured", models.ErrStoreUnavailable)
	}
	switch {
	case !market.IsValid():
		return models.NewValidationError("market", "unknown market %q", market)
	case !category.IsValid():
		return models.NewValidationError("category", "unknown category %q", category)
	case !base.IsValid():
		return models.NewValidationError("base", "unknown base %q", base)
	}
	if err := a.ranks.Clear(ctx, market, category, base); err != nil {
		return err
	}
	a.l.Info("ranked map cleared",
		logger.String("market", string(market)),
		logger.String("category", string(category)),
		logger.String("base", string(base)))
	return nil
}
