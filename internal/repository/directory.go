package repository

import (
	"context"

	"HisCollect/internal/domain/models"
	domrepo "HisCollect/internal/domain/repository"
)

// StaticIDs is a configured identifier list for one market.
type StaticIDs struct {
	Stocks  []string
	Brokers []string
}

// MergedDirectory unions a store-backed directory with configured ids.
type MergedDirectory struct {
	base   domrepo.IDDirectory
	static map[models.Market]StaticIDs
}

var _ domrepo.IDDirectory = (*MergedDirectory)(nil)

func NewMergedDirectory(base domrepo.IDDirectory, static map[models.Market]StaticIDs) *MergedDirectory {
	return &MergedDirectory{base: base, static: static}
}

func (d *MergedDirectory) StockIDs(ctx context.Context, market models.Market) ([]string, error) {
	var ids []string
	if d.base != nil {
		var err error
		if ids, err = d.base.StockIDs(ctx, market); err != nil {
			return nil, err
		}
	}
	return models.NormalizeIDs(append(ids, d.static[market].Stocks...)), nil
}

func (d *MergedDirectory) BrokerIDs(ctx context.Context, market models.Market) ([]string, error) {
	var ids []string
	if d.base != nil {
		var err error
		if ids, err = d.base.BrokerIDs(ctx, market); err != nil {
			return nil, err
		}
	}
	return models.NormalizeIDs(append(ids, d.static[market].Brokers...)), nil
}
