package models

import (
	"time"
)

// CollectionDirective is the per-category fragment of a collection request.
// Scheduling data (priority) stays on the directive only for the caller; the
// pipeline copies it into its own plan and hands the engine an AggregateQuery.
type CollectionDirective struct {
	Enabled   bool       `json:"enabled"`
	Window    Window     `json:"window"`
	StockIDs  []string   `json:"stock_ids,omitempty"`
	BrokerIDs []string   `json:"broker_ids,omitempty"`
	Base      Base       `json:"base"`
	OrderKeys []OrderKey `json:"order_keys"`
	Limit     int        `json:"limit"`
	Priority  int        `json:"priority"`
}

// DefaultLimit is the top-K applied when a directive leaves limit unset.
const DefaultLimit = 10

// DefaultDirectives returns the standard four-category frame, one tier per
// category in canonical order.
func DefaultDirectives(window Window, stockIDs, brokerIDs []string) map[Category]*CollectionDirective {
	out := make(map[Category]*CollectionDirective, 4)
	for i, c := range Categories() {
		d := &CollectionDirective{
			Enabled:   true,
			Window:    window,
			StockIDs:  append([]string(nil), stockIDs...),
			Base:      BaseStock,
			OrderKeys: []OrderKey{OrderTotalVolume},
			Limit:     DefaultLimit,
			Priority:  i,
		}
		if c == CategoryTrader {
			d.BrokerIDs = append([]string(nil), brokerIDs...)
		}
		out[c] = d
	}
	return out
}

// CollectionStatus tracks pipeline progress.
type CollectionStatus string

const (
	StatusStart    CollectionStatus = "start"
	StatusRunning  CollectionStatus = "running"
	StatusFinished CollectionStatus = "finished"
)

// CollectRequest is one inbound collection call.
type CollectRequest struct {
	ID        string                            `json:"id"`
	Market    Market                            `json:"market"`
	Method    Method                            `json:"method"`
	Window    Window                            `json:"window"`
	StockIDs  []string                          `json:"stock_ids,omitempty"`
	BrokerIDs []string                          `json:"broker_ids,omitempty"`
	Frame     map[Category]*CollectionDirective `json:"frame"`
}

// CategoryResult is the output of one category inside a collection.
type CategoryResult struct {
	Category   Category         `json:"category"`
	Tier       int              `json:"tier"`
	Query      AggregateQuery   `json:"-"`
	Entries    []RankedMapEntry `json:"entries"`
	ProducedID []string         `json:"produced_ids"`
}

// Collection is the mutable state of one collection across invocations.
type Collection struct {
	Request   CollectRequest               `json:"request"`
	Status    CollectionStatus             `json:"status"`
	NextTier  int                          `json:"next_tier"`
	StockIDs  []string                     `json:"stock_ids"`
	BrokerIDs []string                     `json:"broker_ids"`
	Items     map[Category]*CategoryResult `json:"items"`
	Failures  []CategoryFailure            `json:"failures,omitempty"`
	StartedAt time.Time                    `json:"started_at"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// NewCollection wraps req in a fresh start-state collection.
func NewCollection(req CollectRequest) *Collection {
	return &Collection{
		Request: req,
		Status:  StatusStart,
		Items:   make(map[Category]*CategoryResult),
	}
}

// Finished reports whether every tier has run.
func (c *Collection) Finished() bool { return c.Status == StatusFinished }

// CollectionReport summarizes a finished collection for downstream consumers.
type CollectionReport struct {
	ID         string            `json:"id"`
	Market     Market            `json:"market"`
	Status     CollectionStatus  `json:"status"`
	Window     Window            `json:"window"`
	Counts     map[Category]int  `json:"counts"`
	Failures   []CategoryFailure `json:"failures,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}

// Report builds the summary of c.
func (c *Collection) Report(now time.Time) CollectionReport {
	counts := make(map[Category]int, len(c.Items))
	for cat, it := range c.Items {
		counts[cat] = len(it.Entries)
	}
	return CollectionReport{
		ID:         c.Request.ID,
		Market:     c.Request.Market,
		Status:     c.Status,
		Window:     c.Request.Window,
		Counts:     counts,
		Failures:   c.Failures,
		FinishedAt: now,
	}
}
