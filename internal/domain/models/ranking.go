package models

import (
	"fmt"
	"time"
)

// AggregationKey identifies one (group, partner) pair. Partner is empty for
// plain categories.
type AggregationKey struct {
	GroupID   string `json:"group_id"`
	PartnerID string `json:"partner_id"`
}

func (k AggregationKey) String() string {
	if k.PartnerID == "" {
		return k.GroupID
	}
	return k.GroupID + "/" + k.PartnerID
}

// Point is one dated sample of an aggregation. Value names follow the
// wide-table column suffixes (ratio, price, volume) for broker data and the
// fact column names for plain categories.
type Point struct {
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// AggregationResult is the reduced value of one key.
type AggregationResult struct {
	Key         AggregationKey `json:"key"`
	TotalVolume float64        `json:"total_volume"`
	HitCount    int            `json:"hit_count"`
	Points      []Point        `json:"points"`
}

// Merge folds other into r. Points are concatenated; ordering is restored
// later by date.
func (r *AggregationResult) Merge(other AggregationResult) {
	r.TotalVolume += other.TotalVolume
	r.HitCount += other.HitCount
	r.Points = append(r.Points, other.Points...)
}

// LatestRatio is the ratio of the most recent point, 0 when none.
func (r *AggregationResult) LatestRatio() float64 {
	var (
		latest time.Time
		ratio  float64
	)
	for _, p := range r.Points {
		if p.Date.After(latest) || latest.IsZero() {
			latest = p.Date
			ratio = p.Values[FieldRatio]
		}
	}
	return ratio
}

// Metric returns the value used to rank by key.
func (r *AggregationResult) Metric(key OrderKey) float64 {
	switch key {
	case OrderHitCount:
		return float64(r.HitCount)
	case OrderRatio:
		return r.LatestRatio()
	default:
		return r.TotalVolume
	}
}

// Broker point value names.
const (
	FieldRatio  = "ratio"
	FieldPrice  = "price"
	FieldVolume = "volume"
)

// RankedMapEntry is one surviving result after ranking its group.
type RankedMapEntry struct {
	Market      Market   `json:"market"`
	Category    Category `json:"category"`
	Base        Base     `json:"base"`
	GroupID     string   `json:"group_id"`
	PartnerID   string   `json:"partner_id"`
	Alias       string   `json:"alias"`
	Rank        int      `json:"rank"`
	TotalVolume float64  `json:"total_volume"`
	HitCount    int      `json:"hit_count"`
	Points      []Point  `json:"points"`
}

// AliasFor returns the ordinal alias for rank i.
func AliasFor(i int) string { return fmt.Sprintf("top%d", i) }

// RankScope names the persisted document of one ranking group.
type RankScope struct {
	Market   Market
	Category Category
	Base     Base
	GroupID  string
}

func (s RankScope) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", s.Market, s.Category, s.Base, s.GroupID)
}

// AggregateQuery is the borrowed-by-value input of one aggregation.
type AggregateQuery struct {
	Market    Market
	Category  Category
	Window    Window
	Base      Base
	StockIDs  []string
	BrokerIDs []string
	OrderKeys []OrderKey
	Limit     int
}

// GroupIDs returns the ids that own ranking groups for this query.
func (q AggregateQuery) GroupIDs() []string {
	if q.Category == CategoryTrader && q.Base == BaseTrader {
		return NormalizeIDs(q.BrokerIDs)
	}
	return NormalizeIDs(q.StockIDs)
}

// EffectiveBase is the grouping direction actually applied; plain categories
// always group by stock.
func (q AggregateQuery) EffectiveBase() Base {
	if q.Category != CategoryTrader {
		return BaseStock
	}
	if q.Base == "" {
		return BaseStock
	}
	return q.Base
}

// ValidateOrderKeys rejects empty or unknown order keys.
func ValidateOrderKeys(keys []OrderKey) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: at least one order key is required", ErrInvalidOrderKey)
	}
	for _, k := range keys {
		if !k.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidOrderKey, k)
		}
	}
	return nil
}

// AliasLookup is the input of a map_alias query.
type AliasLookup struct {
	Market   Market
	Category Category
	Base     Base
	GroupIDs []string
	Aliases  []string
}
