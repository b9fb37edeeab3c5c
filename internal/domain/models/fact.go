package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Fact is one daily record of a single category.
type Fact interface {
	Category() Category
	Day() time.Time
	Stock() string
	Validate() error
}

// Bar is a daily OHLC bar with traded volume.
type Bar struct {
	Date    time.Time `json:"date" validate:"required"`
	StockID string    `json:"stock_id" validate:"required"`
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume" validate:"gte=0"`
}

func (b *Bar) Category() Category { return CategoryStock }
func (b *Bar) Day() time.Time     { return Day(b.Date) }
func (b *Bar) Stock() string      { return b.StockID }

func (b *Bar) Validate() error {
	if err := validateHead(b.Date, b.StockID); err != nil {
		return err
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: bar %s high %.4f below low %.4f", ErrMalformedFact, b.StockID, b.High, b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: bar %s negative volume", ErrMalformedFact, b.StockID)
	}
	return nil
}

// Values returns the bar's numeric fields keyed by column name.
// price mirrors close.
func (b *Bar) Values() map[string]float64 {
	return map[string]float64{
		"open":   b.Open,
		"high":   b.High,
		"low":    b.Low,
		"close":  b.Close,
		"price":  b.Close,
		"volume": b.Volume,
	}
}

// Credit is one day of margin and short-sale balances.
type Credit struct {
	Date       time.Time `json:"date"`
	StockID    string    `json:"stock_id"`
	BuyVolume  float64   `json:"buy_volume"`
	SellVolume float64   `json:"sell_volume"`
	DayTrade   float64   `json:"day_trade"`
	PreRemain  float64   `json:"pre_remain"`
	CurRemain  float64   `json:"cur_remain"`
	Limit      float64   `json:"limit"`
}

func (c *Credit) Category() Category { return CategoryCredit }
func (c *Credit) Day() time.Time     { return Day(c.Date) }
func (c *Credit) Stock() string      { return c.StockID }

func (c *Credit) Validate() error { return validateHead(c.Date, c.StockID) }

// Used is the share of the limit consumed by the current balance, in percent.
func (c *Credit) Used() float64 {
	if c.Limit == 0 {
		return 0
	}
	return c.CurRemain / c.Limit * 100
}

func (c *Credit) Values() map[string]float64 {
	return map[string]float64{
		"credit_buy_volume":  c.BuyVolume,
		"credit_sell_volume": c.SellVolume,
		"credit_day_trade":   c.DayTrade,
		"credit_pre_remain":  c.PreRemain,
		"credit_cur_remain":  c.CurRemain,
		"credit_limit":       c.Limit,
		"credit_used":        c.Used(),
	}
}

// Future is one day of the single-stock futures contract.
type Future struct {
	Date         time.Time `json:"date"`
	StockID      string    `json:"stock_id"`
	Volume       float64   `json:"volume"`
	OpenInterest float64   `json:"open_interest"`
	OIDelta      float64   `json:"oi_delta"`
}

func (f *Future) Category() Category { return CategoryFuture }
func (f *Future) Day() time.Time     { return Day(f.Date) }
func (f *Future) Stock() string      { return f.StockID }

func (f *Future) Validate() error { return validateHead(f.Date, f.StockID) }

func (f *Future) Values() map[string]float64 {
	return map[string]float64{
		"future_volume":        f.Volume,
		"future_open_interest": f.OpenInterest,
		"future_oi_delta":      f.OIDelta,
	}
}

// BrokerTrade is one broker's row in the daily top list of a stock.
type BrokerTrade struct {
	BrokerID     string  `json:"broker_id"`
	BrokerName   string  `json:"broker_name,omitempty"`
	BuyVolume    float64 `json:"buy_volume"`
	SellVolume   float64 `json:"sell_volume"`
	AvgBuyPrice  float64 `json:"avg_buy_price"`
	AvgSellPrice float64 `json:"avg_sell_price"`
	TotalVolume  float64 `json:"total_volume"`
}

// NetVolume is buy minus sell.
func (t BrokerTrade) NetVolume() float64 { return t.BuyVolume - t.SellVolume }

// Price picks the side the broker was net on.
func (t BrokerTrade) Price() float64 {
	switch v := t.NetVolume(); {
	case v > 0:
		return t.AvgBuyPrice
	case v < 0:
		return t.AvgSellPrice
	default:
		return 0
	}
}

// BrokerActivity is the broker top list of one stock on one day.
type BrokerActivity struct {
	Date    time.Time     `json:"date"`
	StockID string        `json:"stock_id"`
	Volume  float64       `json:"volume"`
	TopList []BrokerTrade `json:"top_list"`
}

func (a *BrokerActivity) Category() Category { return CategoryTrader }
func (a *BrokerActivity) Day() time.Time     { return Day(a.Date) }
func (a *BrokerActivity) Stock() string      { return a.StockID }

func (a *BrokerActivity) Validate() error {
	if err := validateHead(a.Date, a.StockID); err != nil {
		return err
	}
	for i, t := range a.TopList {
		if strings.TrimSpace(t.BrokerID) == "" {
			return fmt.Errorf("%w: %s top_list[%d] missing broker_id", ErrMalformedFact, a.StockID, i)
		}
	}
	return nil
}

// Normalize fills total volume from buy+sell where the source omitted it.
func (a *BrokerActivity) Normalize() {
	for i := range a.TopList {
		if a.TopList[i].TotalVolume == 0 {
			a.TopList[i].TotalVolume = a.TopList[i].BuyVolume + a.TopList[i].SellVolume
		}
	}
}

// BrokerIDs returns the distinct brokers in the top list.
func (a *BrokerActivity) BrokerIDs() []string {
	set := NewIDSet()
	for _, t := range a.TopList {
		set.Add(t.BrokerID)
	}
	return set.Sorted()
}

func validateHead(date time.Time, stockID string) error {
	if date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrMalformedFact)
	}
	if strings.TrimSpace(stockID) == "" {
		return fmt.Errorf("%w: missing stock_id", ErrMalformedFact)
	}
	return nil
}

// FactEnvelope is the ingest wire format.
type FactEnvelope struct {
	Market   Market          `json:"market"`
	Category Category        `json:"category"`
	Fact     json.RawMessage `json:"fact"`
}

// Decode validates the envelope and returns the typed fact.
func (e FactEnvelope) Decode() (Fact, error) {
	if !e.Market.IsValid() {
		return nil, fmt.Errorf("%w: unknown market %q", ErrMalformedFact, e.Market)
	}
	var f Fact
	switch e.Category {
	case CategoryStock:
		f = &Bar{}
	case CategoryCredit:
		f = &Credit{}
	case CategoryFuture:
		f = &Future{}
	case CategoryTrader:
		f = &BrokerActivity{}
	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrMalformedFact, e.Category)
	}
	if len(e.Fact) == 0 {
		return nil, fmt.Errorf("%w: empty fact body", ErrMalformedFact)
	}
	if err := json.Unmarshal(e.Fact, f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFact, err)
	}
	if a, ok := f.(*BrokerActivity); ok {
		a.Normalize()
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// FactSet groups fetched facts of a single category.
type FactSet struct {
	Market   Market            `json:"market"`
	Category Category          `json:"category"`
	Bars     []*Bar            `json:"bars,omitempty"`
	Credits  []*Credit         `json:"credits,omitempty"`
	Futures  []*Future         `json:"futures,omitempty"`
	Activity []*BrokerActivity `json:"activity,omitempty"`
}

// Len is the number of facts held.
func (s *FactSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars) + len(s.Credits) + len(s.Futures) + len(s.Activity)
}

// Facts returns every fact as the generic interface.
func (s *FactSet) Facts() []Fact {
	out := make([]Fact, 0, s.Len())
	for _, f := range s.Bars {
		out = append(out, f)
	}
	for _, f := range s.Credits {
		out = append(out, f)
	}
	for _, f := range s.Futures {
		out = append(out, f)
	}
	for _, f := range s.Activity {
		out = append(out, f)
	}
	return out
}

// Add appends f to the slice of its category. Foreign categories are ignored.
func (s *FactSet) Add(f Fact) {
	switch v := f.(type) {
	case *Bar:
		s.Bars = append(s.Bars, v)
	case *Credit:
		s.Credits = append(s.Credits, v)
	case *Future:
		s.Futures = append(s.Futures, v)
	case *BrokerActivity:
		s.Activity = append(s.Activity, v)
	}
}

// FactQuery selects facts of one category within a window. Stock ids and
// broker ids are OR-ed; for non-broker categories broker ids are ignored.
type FactQuery struct {
	Market    Market
	Category  Category
	Window    Window
	StockIDs  []string
	BrokerIDs []string
}

// Empty reports whether the query can match nothing.
func (q FactQuery) Empty() bool {
	if q.Category == CategoryTrader {
		return len(q.StockIDs) == 0 && len(q.BrokerIDs) == 0
	}
	return len(q.StockIDs) == 0
}
