package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Market identifies the exchange a fact set belongs to.
type Market string

const (
	MarketTWSE Market = "twse"
	MarketOTC  Market = "otc"
)

// Markets returns the known markets.
func Markets() []Market { return []Market{MarketTWSE, MarketOTC} }

// IsValid reports whether m is a known market.
func (m Market) IsValid() bool {
	switch m {
	case MarketTWSE, MarketOTC:
		return true
	default:
		return false
	}
}

// Category names one fact family.
type Category string

const (
	CategoryStock  Category = "hisstock"
	CategoryCredit Category = "hiscredit"
	CategoryFuture Category = "hisfuture"
	CategoryTrader Category = "histrader"
)

// Categories returns all categories in canonical order. The order is the
// stable iteration order used inside a priority tier.
func Categories() []Category {
	return []Category{CategoryStock, CategoryCredit, CategoryFuture, CategoryTrader}
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryStock, CategoryCredit, CategoryFuture, CategoryTrader:
		return true
	default:
		return false
	}
}

// Ordinal is the position of c in Categories(), or -1.
func (c Category) Ordinal() int {
	for i, it := range Categories() {
		if it == c {
			return i
		}
	}
	return -1
}

// Base is the grouping direction of an aggregation.
type Base string

const (
	BaseStock  Base = "stock"
	BaseTrader Base = "trader"
)

func (b Base) IsValid() bool { return b == BaseStock || b == BaseTrader }

// OrderKey selects the ranking metric.
type OrderKey string

const (
	OrderTotalVolume OrderKey = "total_volume"
	OrderHitCount    OrderKey = "hit_count"
	OrderRatio       OrderKey = "ratio"
)

func (k OrderKey) IsValid() bool {
	switch k {
	case OrderTotalVolume, OrderHitCount, OrderRatio:
		return true
	default:
		return false
	}
}

// Method controls how the seed identifier sets are built.
type Method string

const (
	MethodList     Method = "list"
	MethodExplicit Method = "explicit"
)

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Window is an inclusive range of calendar days.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a window truncated to UTC days.
func NewWindow(start, end time.Time) Window {
	return Window{Start: Day(start), End: Day(end)}
}

// Days returns w with both ends truncated to UTC calendar days.
func (w Window) Days() Window { return NewWindow(w.Start, w.End) }

// Validate fails with ErrQueryWindowInvalid when start is after end.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrQueryWindowInvalid)
	}
	if w.Start.After(w.End) {
		return fmt.Errorf("%w: start %s after end %s", ErrQueryWindowInvalid,
			w.Start.Format(DayLayout), w.End.Format(DayLayout))
	}
	return nil
}

// Contains reports whether the day of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

func (w Window) String() string {
	return w.Start.Format(DayLayout) + "-" + w.End.Format(DayLayout)
}

// DayLayout is the compact day format used in routes and keys.
const DayLayout = "20060102"

// NormalizeIDs trims, drops empties, dedupes and sorts ids.
func NormalizeIDs(ids []string) []string {
	set := NewIDSet(ids...)
	return set.Sorted()
}

// IDSet is a set of opaque identifiers.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	s.Add(ids...)
	return s
}

func (s IDSet) Add(ids ...string) {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		s[id] = struct{}{}
	}
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
