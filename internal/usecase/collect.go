package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"HisCollect/internal/domain/models"
	domrepo "HisCollect/internal/domain/repository"
	"HisCollect/pkg/logger"
	"HisCollect/pkg/metrics"
)

// step is how a category takes part in its tier.
type step string

const (
	stepParallel step = "parallel"
	stepJoin     step = "join"
)

type planned struct {
	category models.Category
	step     step
	query    models.AggregateQuery
}

type tier struct {
	priority int
	items    []planned
}

// plan is the scheduler-owned view of a request. Priorities and step tags
// live here only; the engine receives bare AggregateQuery values.
type plan struct {
	tiers     []tier
	stockIDs  []string
	brokerIDs []string
}

// Collector runs cascading collections over the aggregation engine.
type Collector struct {
	agg          *Aggregator
	dir          domrepo.IDDirectory
	reports      domrepo.ReportPublisher
	metrics      domrepo.Metrics
	l            *logger.Logger
	queryTimeout time.Duration
	markets      map[models.Market]bool
	now          func() time.Time
}

type CollectorOption func(*Collector)

func WithDirectory(d domrepo.IDDirectory) CollectorOption {
	return func(c *Collector) { c.dir = d }
}

func WithReportPublisher(p domrepo.ReportPublisher) CollectorOption {
	return func(c *Collector) { c.reports = p }
}

func WithCollectorMetrics(m domrepo.Metrics) CollectorOption {
	return func(c *Collector) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithCollectorLogger(l *logger.Logger) CollectorOption {
	return func(c *Collector) {
		if l != nil {
			c.l = l
		}
	}
}

// WithQueryTimeout bounds each category's work. Zero disables the bound.
func WithQueryTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) { c.queryTimeout = d }
}

// WithMarkets restricts collections to the given markets.
func WithMarkets(ms ...models.Market) CollectorOption {
	return func(c *Collector) {
		c.markets = make(map[models.Market]bool, len(ms))
		for _, m := range ms {
			c.markets[m] = true
		}
	}
}

func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) { c.now = now }
}

func NewCollector(agg *Aggregator, opts ...CollectorOption) *Collector {
	c := &Collector{
		agg:          agg,
		metrics:      metrics.Nop{},
		l:            logger.Nop(),
		queryTimeout: 30 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect validates req and runs every tier. Request-level problems return a
// *models.ValidationError before any I/O. Per-category failures never fail
// the call; they are listed in Collection.Failures. A canceled context stops
// further tiers and returns the partial collection together with the error.
func (c *Collector) Collect(ctx context.Context, req models.CollectRequest) (*models.Collection, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	p, err := c.plan(ctx, &req)
	if err != nil {
		return nil, err
	}
	col := models.NewCollection(req)
	col.StockIDs = p.stockIDs
	col.BrokerIDs = p.brokerIDs
	col.StartedAt = c.now()
	col.UpdatedAt = col.StartedAt
	return col, c.run(ctx, col, p)
}

// Resume continues a collection that stopped before finishing. Finished
// collections are returned unchanged.
func (c *Collector) Resume(ctx context.Context, col *models.Collection) error {
	if col == nil || col.Finished() {
		return nil
	}
	req := col.Request
	p, err := c.plan(ctx, &req)
	if err != nil {
		return err
	}
	return c.run(ctx, col, p)
}

// CollectFrame runs a collection and assembles its results.
func (c *Collector) CollectFrame(ctx context.Context, req models.CollectRequest) (*models.Collection, *models.WideTable, error) {
	col, err := c.Collect(ctx, req)
	if col == nil {
		return nil, nil, err
	}
	return col, AssembleItems(col.Items), err
}

func (c *Collector) plan(ctx context.Context, req *models.CollectRequest) (*plan, error) {
	if !req.Market.IsValid() {
		return nil, models.NewValidationError("market", "unknown market %q", req.Market)
	}
	if len(c.markets) > 0 && !c.markets[req.Market] {
		return nil, models.NewValidationError("market", "market %q is not enabled", req.Market)
	}
	switch req.Method {
	case "", models.MethodExplicit, models.MethodList:
	default:
		return nil, models.NewValidationError("method", "unknown method %q", req.Method)
	}
	req.Window = req.Window.Days()
	if len(req.Frame) == 0 || !req.Window.Start.IsZero() || !req.Window.End.IsZero() {
		if err := req.Window.Validate(); err != nil {
			return nil, &models.ValidationError{Field: "window", Message: err.Error(), Err: models.ErrQueryWindowInvalid}
		}
	}
	if len(req.Frame) == 0 {
		req.Frame = models.DefaultDirectives(req.Window, req.StockIDs, req.BrokerIDs)
	} else {
		frame := make(map[models.Category]*models.CollectionDirective, len(req.Frame))
		for cat, d := range req.Frame {
			if d != nil {
				cp := *d
				d = &cp
			}
			frame[cat] = d
		}
		req.Frame = frame
	}

	var (
		base    models.Base
		enabled []models.Category
	)
	stocks := models.NewIDSet(req.StockIDs...)
	brokers := models.NewIDSet(req.BrokerIDs...)

	for cat, d := range req.Frame {
		if !cat.IsValid() {
			return nil, models.NewValidationError("frame", "unknown category %q", cat)
		}
		if d == nil || !d.Enabled {
			continue
		}
		if d.Window.Start.IsZero() && d.Window.End.IsZero() {
			d.Window = req.Window
		}
		d.Window = d.Window.Days()
		if err := d.Window.Validate(); err != nil {
			return nil, &models.ValidationError{Field: string(cat) + ".window", Message: err.Error(), Err: models.ErrQueryWindowInvalid}
		}
		if len(d.OrderKeys) == 0 {
			d.OrderKeys = []models.OrderKey{models.OrderTotalVolume}
		}
		if err := models.ValidateOrderKeys(d.OrderKeys); err != nil {
			return nil, &models.ValidationError{Field: string(cat) + ".order_keys", Message: err.Error(), Err: models.ErrInvalidOrderKey}
		}
		if d.Base == "" {
			d.Base = models.BaseStock
		}
		if !d.Base.IsValid() {
			return nil, models.NewValidationError(string(cat)+".base", "unknown base %q", d.Base)
		}
		if base != "" && d.Base != base {
			return nil, models.NewValidationError("base", "enabled categories mix bases %q and %q", base, d.Base)
		}
		base = d.Base
		if d.Limit <= 0 {
			d.Limit = models.DefaultLimit
		}
		stocks.Add(d.StockIDs...)
		if cat == models.CategoryTrader {
			brokers.Add(d.BrokerIDs...)
		}
		enabled = append(enabled, cat)
	}

	if req.Method == models.MethodList && c.dir != nil {
		ids, err := c.dir.StockIDs(ctx, req.Market)
		if err != nil {
			return nil, fmt.Errorf("list stock ids: %w", err)
		}
		stocks.Add(ids...)
		if d, ok := req.Frame[models.CategoryTrader]; ok && d != nil && d.Enabled {
			ids, err := c.dir.BrokerIDs(ctx, req.Market)
			if err != nil {
				return nil, fmt.Errorf("list broker ids: %w", err)
			}
			brokers.Add(ids...)
		}
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		pi, pj := req.Frame[enabled[i]].Priority, req.Frame[enabled[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return enabled[i].Ordinal() < enabled[j].Ordinal()
	})

	p := &plan{stockIDs: stocks.Sorted(), brokerIDs: brokers.Sorted()}
	for _, cat := range enabled {
		d := req.Frame[cat]
		if n := len(p.tiers); n == 0 || p.tiers[n-1].priority != d.Priority {
			p.tiers = append(p.tiers, tier{priority: d.Priority})
		}
		t := &p.tiers[len(p.tiers)-1]
		t.items = append(t.items, planned{
			category: cat,
			step:     stepParallel,
			query: models.AggregateQuery{
				Market:    req.Market,
				Category:  cat,
				Window:    d.Window,
				Base:      d.Base,
				OrderKeys: append([]models.OrderKey(nil), d.OrderKeys...),
				Limit:     d.Limit,
			},
		})
	}
	for i := range p.tiers {
		items := p.tiers[i].items
		items[len(items)-1].step = stepJoin
	}
	return p, nil
}

type outcome struct {
	result *models.CategoryResult
	failed *models.CategoryFailure
}

func (c *Collector) run(ctx context.Context, col *models.Collection, p *plan) error {
	for ti := col.NextTier; ti < len(p.tiers); ti++ {
		if err := ctx.Err(); err != nil {
			col.UpdatedAt = c.now()
			c.metrics.RecordCollection(string(col.Request.Market), "canceled")
			return fmt.Errorf("%w: %v", models.ErrCanceled, err)
		}
		t := p.tiers[ti]
		start := time.Now()
		c.l.Info("collect tier start",
			logger.String("collection", col.Request.ID),
			logger.Int("tier", ti),
			logger.Int("priority", t.priority),
			logger.Int("categories", len(t.items)))

		c.runTier(ctx, col, ti, t)

		col.NextTier = ti + 1
		col.UpdatedAt = c.now()
		if col.NextTier >= len(p.tiers) {
			col.Status = models.StatusFinished
		} else {
			col.Status = models.StatusRunning
		}
		c.l.Info("collect tier done",
			logger.String("collection", col.Request.ID),
			logger.Int("tier", ti),
			logger.Int("stocks", len(col.StockIDs)),
			logger.Duration("took", time.Since(start)))
	}
	if len(p.tiers) == 0 {
		col.Status = models.StatusFinished
		col.UpdatedAt = c.now()
	}

	c.metrics.RecordCollection(string(col.Request.Market), string(col.Status))
	if c.reports != nil {
		if err := c.reports.Publish(ctx, col.Report(c.now())); err != nil {
			c.metrics.RecordError("report_publish")
			c.l.Warn("publish collection report failed",
				logger.String("collection", col.Request.ID),
				logger.Error(err))
		}
	}
	return nil
}

// runTier is one fork-join barrier: parallel categories run concurrently
// against the inherited ids, then the join category runs. When the join
// produced ids, the carried set becomes the union of every id the tier
// produced; otherwise it is left unchanged.
func (c *Collector) runTier(ctx context.Context, col *models.Collection, ti int, t tier) {
	stocks := append([]string(nil), col.StockIDs...)
	brokers := append([]string(nil), col.BrokerIDs...)

	parallel := t.items[:len(t.items)-1]
	join := t.items[len(t.items)-1]

	// failures travel in each outcome; siblings are never canceled.
	outs := make([]outcome, len(parallel))
	var g errgroup.Group
	for i, it := range parallel {
		g.Go(func() error {
			outs[i] = c.runCategory(ctx, ti, it, stocks, brokers)
			return nil
		})
	}
	_ = g.Wait()
	joined := c.runCategory(ctx, ti, join, stocks, brokers)
	outs = append(outs, joined)

	pool := models.NewIDSet()
	for _, o := range outs {
		if o.failed != nil {
			col.Failures = append(col.Failures, *o.failed)
			continue
		}
		r := o.result
		col.Items[r.Category] = r
		pool.Add(r.ProducedID...)
		if r.Category == models.CategoryTrader && len(r.Entries) > 0 {
			col.BrokerIDs = brokerIDs(r.Entries)
		}
	}
	if joined.result != nil && len(joined.result.ProducedID) > 0 && len(pool) > 0 {
		col.StockIDs = pool.Sorted()
	}
}

func (c *Collector) runCategory(ctx context.Context, ti int, it planned, stocks, brokers []string) outcome {
	q := it.query
	q.StockIDs = stocks
	if q.Category == models.CategoryTrader {
		q.BrokerIDs = brokers
	}

	qctx := ctx
	if c.queryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, c.queryTimeout)
		defer cancel()
	}

	start := time.Now()
	entries, err := c.agg.Aggregate(qctx, q)
	c.metrics.RecordLatency("category_"+string(q.Category), time.Since(start).Seconds())
	if err != nil {
		err = classify(ctx, qctx, err)
		f := &models.CategoryFailure{
			Category: q.Category,
			Tier:     ti,
			Kind:     models.ClassifyFailure(err),
			Message:  err.Error(),
			Err:      err,
		}
		c.metrics.RecordCategory(string(q.Category), string(f.Kind), 0)
		c.l.Error("collect category failed",
			logger.String("category", string(q.Category)),
			logger.Int("tier", ti),
			logger.String("kind", string(f.Kind)),
			logger.Error(err))
		return outcome{failed: f}
	}

	c.metrics.RecordCategory(string(q.Category), "ok", len(entries))
	c.l.Debug("collect category done",
		logger.String("category", string(q.Category)),
		logger.String("step", string(it.step)),
		logger.Int("entries", len(entries)))
	return outcome{result: &models.CategoryResult{
		Category:   q.Category,
		Tier:       ti,
		Query:      q,
		Entries:    entries,
		ProducedID: stockIDs(entries),
	}}
}

// classify attaches the pipeline's error kinds to context failures.
func classify(parent, qctx context.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrQueryTimeout), errors.Is(err, models.ErrCanceled):
		return err
	case parent.Err() != nil:
		return fmt.Errorf("%w: %v", models.ErrCanceled, err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", models.ErrQueryTimeout, err)
	}
	return err
}

// stockIDs are the securities an entry set speaks about.
func stockIDs(entries []models.RankedMapEntry) []string {
	set := models.NewIDSet()
	for _, e := range entries {
		if e.Category == models.CategoryTrader && e.Base == models.BaseTrader {
			set.Add(e.PartnerID)
			continue
		}
		set.Add(e.GroupID)
	}
	return set.Sorted()
}

func brokerIDs(entries []models.RankedMapEntry) []string {
	set := models.NewIDSet()
	for _, e := range entries {
		if e.Base == models.BaseTrader {
			set.Add(e.GroupID)
			continue
		}
		set.Add(e.PartnerID)
	}
	return set.Sorted()
}
