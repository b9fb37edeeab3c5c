package usecase

import (
	"context"

	"HisCollect/internal/domain/models"
)

type StockFrameParams struct {
	Market    models.Market
	StockID   string
	Window    models.Window
	TraderIDs []string
	Limit     int
}

type TraderFrameParams struct {
	Market   models.Market
	TraderID string
	Window   models.Window
	StockIDs []string
	Limit    int
}

type FrameResult struct {
	ID       string
	Status   models.CollectionStatus
	Table    *models.WideTable
	Failures []models.CategoryFailure
}

// StockFrame collects the default four-category frame for one stock: bars,
// credit, futures and its top brokers as alias columns.
func (c *Collector) StockFrame(ctx context.Context, p StockFrameParams) (*FrameResult, error) {
	if p.StockID == "" {
		return nil, models.NewValidationError("stockid", "required")
	}
	frame := models.DefaultDirectives(p.Window, []string{p.StockID}, p.TraderIDs)
	for _, d := range frame {
		if p.Limit > 0 {
			d.Limit = p.Limit
		}
	}
	return c.frame(ctx, models.CollectRequest{
		Market:    p.Market,
		Method:    models.MethodExplicit,
		Window:    p.Window,
		StockIDs:  []string{p.StockID},
		BrokerIDs: p.TraderIDs,
		Frame:     frame,
	})
}

// TraderFrame ranks the stocks one broker traded, optionally restricted to
// stockIDs, as alias columns.
func (c *Collector) TraderFrame(ctx context.Context, p TraderFrameParams) (*FrameResult, error) {
	if p.TraderID == "" {
		return nil, models.NewValidationError("traderid", "required")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = models.DefaultLimit
	}
	return c.frame(ctx, models.CollectRequest{
		Market:    p.Market,
		Method:    models.MethodExplicit,
		Window:    p.Window,
		StockIDs:  p.StockIDs,
		BrokerIDs: []string{p.TraderID},
		Frame: map[models.Category]*models.CollectionDirective{
			models.CategoryTrader: {
				Enabled:   true,
				Window:    p.Window,
				BrokerIDs: []string{p.TraderID},
				Base:      models.BaseTrader,
				OrderKeys: []models.OrderKey{models.OrderTotalVolume},
				Limit:     limit,
			},
		},
	})
}

func (c *Collector) frame(ctx context.Context, req models.CollectRequest) (*FrameResult, error) {
	col, table, err := c.CollectFrame(ctx, req)
	if col == nil {
		return nil, err
	}
	return &FrameResult{
		ID:       col.Request.ID,
		Status:   col.Status,
		Table:    table,
		Failures: col.Failures,
	}, err
}
