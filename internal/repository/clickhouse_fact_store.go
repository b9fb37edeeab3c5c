package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"HisCollect/internal/domain/models"
	domrepo "HisCollect/internal/domain/repository"
	pkgch "HisCollect/pkg/clickhouse"
	applogger "HisCollect/pkg/logger"
)

// CHFactStore implements FactStore and IDDirectory on ClickHouse.
type CHFactStore struct {
	ch  *pkgch.Client
	db  string
	l   *applogger.Logger
	now func() time.Time
}

var (
	_ domrepo.FactStore   = (*CHFactStore)(nil)
	_ domrepo.IDDirectory = (*CHFactStore)(nil)
)

func NewCHFactStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHFactStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHFactStore{ch: ch, db: database, l: l, now: time.Now}
}

func (s *CHFactStore) Init(ctx context.Context) error {
	if s.ch == nil {
		return models.ErrNotConnected
	}
	return s.ch.InitSchema(ctx, SchemaStatements(s.db))
}

func (s *CHFactStore) Health(ctx context.Context) error {
	if s.ch == nil {
		return models.ErrNotConnected
	}
	if err := s.ch.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrNotConnected, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (s *CHFactStore) Close() error { return nil }

func (s *CHFactStore) Query(ctx context.Context, q models.FactQuery) (*models.FactSet, error) {
	if err := q.Window.Validate(); err != nil {
		return nil, err
	}
	set := &models.FactSet{Market: q.Market, Category: q.Category}
	if q.Empty() {
		return set, nil
	}
	if s.ch == nil {
		return nil, models.ErrNotConnected
	}

	start := time.Now()
	stmt, args, err := buildSelect(s.db, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.ch.DB().QueryContext(ctx, stmt, args...)
	if err != nil {
		s.l.Error("clickhouse fact query error",
			applogger.String("category", string(q.Category)),
			applogger.String("window", q.Window.String()),
			applogger.Error(err))
		return nil, wrapStoreErr(ctx, err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFact(rows, q.Category)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Category, err)
		}
		set.Add(f)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr(ctx, err)
	}

	s.l.Debug("clickhouse fact query ok",
		applogger.String("category", string(q.Category)),
		applogger.String("window", q.Window.String()),
		applogger.Int("rows", set.Len()),
		applogger.Duration("duration_ms", time.Since(start)))
	return set, nil
}

func scanFact(rows *sql.Rows, c models.Category) (models.Fact, error) {
	var (
		stockID string
		date    time.Time
	)
	switch c {
	case models.CategoryStock:
		b := &models.Bar{}
		err := rows.Scan(&stockID, &date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		b.StockID, b.Date = stockID, models.Day(date)
		return b, err
	case models.CategoryCredit:
		cr := &models.Credit{}
		err := rows.Scan(&stockID, &date, &cr.BuyVolume, &cr.SellVolume, &cr.DayTrade, &cr.PreRemain, &cr.CurRemain, &cr.Limit)
		cr.StockID, cr.Date = stockID, models.Day(date)
		return cr, err
	case models.CategoryFuture:
		f := &models.Future{}
		err := rows.Scan(&stockID, &date, &f.Volume, &f.OpenInterest, &f.OIDelta)
		f.StockID, f.Date = stockID, models.Day(date)
		return f, err
	default:
		a := &models.BrokerActivity{}
		var (
			ids, names                   []string
			buys, sells, avgB, avgS, tot []float64
		)
		if err := rows.Scan(&stockID, &date, &a.Volume, &ids, &names, &buys, &sells, &avgB, &avgS, &tot); err != nil {
			return nil, err
		}
		a.StockID, a.Date = stockID, models.Day(date)
		a.TopList = make([]models.BrokerTrade, len(ids))
		for i := range ids {
			a.TopList[i] = models.BrokerTrade{
				BrokerID:     ids[i],
				BrokerName:   at(names, i),
				BuyVolume:    atf(buys, i),
				SellVolume:   atf(sells, i),
				AvgBuyPrice:  atf(avgB, i),
				AvgSellPrice: atf(avgS, i),
				TotalVolume:  atf(tot, i),
			}
		}
		return a, nil
	}
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

func atf(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func (s *CHFactStore) Upsert(ctx context.Context, market models.Market, f models.Fact) error {
	return s.UpsertBatch(ctx, market, []models.Fact{f})
}

// UpsertBatch validates every fact before writing any; one insert per
// category.
func (s *CHFactStore) UpsertBatch(ctx context.Context, market models.Market, facts []models.Fact) error {
	if !market.IsValid() {
		return fmt.Errorf("%w: unknown market %q", models.ErrMalformedFact, market)
	}
	byCat := make(map[models.Category][]models.Fact)
	for _, f := range facts {
		if f == nil {
			return fmt.Errorf("%w: nil fact", models.ErrMalformedFact)
		}
		if err := f.Validate(); err != nil {
			return err
		}
		byCat[f.Category()] = append(byCat[f.Category()], f)
	}
	if s.ch == nil {
		return models.ErrNotConnected
	}

	version := uint64(s.now().UnixNano())
	for _, c := range models.Categories() {
		batch := byCat[c]
		if len(batch) == 0 {
			continue
		}
		stmt, err := buildInsert(s.db, c)
		if err != nil {
			return err
		}
		err = s.ch.Batch(ctx, stmt, func(st *sql.Stmt) error {
			for _, f := range batch {
				if _, err := st.ExecContext(ctx, insertArgs(market, f, version)...); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.l.Error("clickhouse fact upsert error",
				applogger.String("category", string(c)),
				applogger.Int("rows", len(batch)),
				applogger.Error(err))
			return wrapStoreErr(ctx, err)
		}
	}
	return nil
}

func insertArgs(market models.Market, f models.Fact, version uint64) []any {
	head := []any{string(market), f.Stock(), f.Day()}
	switch v := f.(type) {
	case *models.Bar:
		return append(head, v.Open, v.High, v.Low, v.Close, v.Volume, version)
	case *models.Credit:
		return append(head, v.BuyVolume, v.SellVolume, v.DayTrade, v.PreRemain, v.CurRemain, v.Limit, version)
	case *models.Future:
		return append(head, v.Volume, v.OpenInterest, v.OIDelta, version)
	case *models.BrokerActivity:
		n := len(v.TopList)
		ids, names := make([]string, n), make([]string, n)
		buys, sells := make([]float64, n), make([]float64, n)
		avgB, avgS, tot := make([]float64, n), make([]float64, n), make([]float64, n)
		for i, t := range v.TopList {
			ids[i], names[i] = t.BrokerID, t.BrokerName
			buys[i], sells[i] = t.BuyVolume, t.SellVolume
			avgB[i], avgS[i] = t.AvgBuyPrice, t.AvgSellPrice
			tot[i] = t.TotalVolume
			if tot[i] == 0 {
				tot[i] = t.BuyVolume + t.SellVolume
			}
		}
		return append(head, v.Volume, ids, names, buys, sells, avgB, avgS, tot, version)
	}
	return head
}

func (s *CHFactStore) StockIDs(ctx context.Context, market models.Market) ([]string, error) {
	return s.distinct(ctx, fmt.Sprintf(
		`SELECT DISTINCT stock_id FROM %s.%s WHERE market = ? ORDER BY stock_id`, s.db, tableBars), market)
}

func (s *CHFactStore) BrokerIDs(ctx context.Context, market models.Market) ([]string, error) {
	return s.distinct(ctx, fmt.Sprintf(
		`SELECT DISTINCT arrayJoin(broker_ids) AS broker_id FROM %s.%s WHERE market = ? ORDER BY broker_id`, s.db, tableActivity), market)
}

func (s *CHFactStore) distinct(ctx context.Context, stmt string, market models.Market) ([]string, error) {
	if s.ch == nil {
		return nil, models.ErrNotConnected
	}
	rows, err := s.ch.DB().QueryContext(ctx, stmt, string(market))
	if err != nil {
		return nil, wrapStoreErr(ctx, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// wrapStoreErr maps driver failures onto the domain taxonomy.
func wrapStoreErr(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", models.ErrQueryTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		return fmt.Errorf("%w: %v", models.ErrNotConnected, err)
	default:
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
}
