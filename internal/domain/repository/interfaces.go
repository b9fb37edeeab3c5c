package repository

import (
	"context"
	"time"

	"HisCollect/internal/domain/models"
)

// FactStore is typed access to the four fact categories. Implementations do
// not retry; callers decide what a failure means.
type FactStore interface {
	Init(ctx context.Context) error // ensure tables
	Query(ctx context.Context, q models.FactQuery) (*models.FactSet, error)
	Upsert(ctx context.Context, market models.Market, f models.Fact) error
	UpsertBatch(ctx context.Context, market models.Market, facts []models.Fact) error
	Health(ctx context.Context) error
	Close() error
}

// IDDirectory lists the identifier universe of a market.
type IDDirectory interface {
	StockIDs(ctx context.Context, market models.Market) ([]string, error)
	BrokerIDs(ctx context.Context, market models.Market) ([]string, error)
}

// RankStore persists ranked-map documents, one per ranking scope.
type RankStore interface {
	// Lock takes the per-scope locks for all scopes or none. It returns
	// ErrRankingScopeConflict when any scope is held elsewhere.
	Lock(ctx context.Context, scopes []models.RankScope, ttl time.Duration) (unlock func(), err error)
	// Replace clears the scope and stores entries. Empty entries leave the
	// scope cleared.
	Replace(ctx context.Context, scope models.RankScope, entries []models.RankedMapEntry) error
	Get(ctx context.Context, scope models.RankScope) ([]models.RankedMapEntry, error)
	// Clear drops every scope of (market, category, base).
	Clear(ctx context.Context, market models.Market, category models.Category, base models.Base) error
	MapAlias(ctx context.Context, q models.AliasLookup) ([]string, error)
}

// ReportPublisher ships collection reports downstream.
type ReportPublisher interface {
	Publish(ctx context.Context, r models.CollectionReport) error
	Close() error
}

type Metrics interface {
	RecordCollection(market, status string)
	RecordCategory(category, outcome string, entries int)
	RecordFactUpserted(category string)
	RecordRankingConflict(category string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
