package models

// Requests for the collection HTTP endpoints. Dates accept YYYYMMDD,
// YYYY-MM-DD or RFC3339.

type DirectiveRequest struct {
	Enabled   *bool    `json:"enabled"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	StockIDs  []string `json:"stock_ids"`
	BrokerIDs []string `json:"broker_ids"`
	Base      string   `json:"base" validate:"omitempty,oneof=stock trader"`
	OrderKeys []string `json:"order_keys"`
	Limit     int      `json:"limit" validate:"gte=0,lte=1000"`
	Priority  *int     `json:"priority" validate:"omitempty,gte=0"`
}

type CollectHTTPRequest struct {
	ID        string                       `json:"id"`
	Market    string                       `json:"market" validate:"required,oneof=twse otc"`
	Method    string                       `json:"method" default:"explicit" validate:"oneof=list explicit"`
	Start     string                       `json:"start" validate:"required"`
	End       string                       `json:"end" validate:"required"`
	StockIDs  []string                     `json:"stock_ids"`
	BrokerIDs []string                     `json:"broker_ids"`
	Frame     map[string]*DirectiveRequest `json:"frame" validate:"omitempty,dive,keys,oneof=hisstock hiscredit hisfuture histrader,endkeys,required"`
}

type HisStockRequest struct {
	Opt       string `param:"opt" validate:"required,oneof=twse otc"`
	StockID   string `param:"stockid" validate:"required"`
	Start     string `query:"start" validate:"required"`
	End       string `query:"end" validate:"required"`
	TraderIDs string `query:"traderids"`
	Limit     int    `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

type HisTraderRequest struct {
	Opt      string `param:"opt" validate:"required,oneof=twse otc"`
	TraderID string `param:"traderid" validate:"required"`
	Start    string `query:"start" validate:"required"`
	End      string `query:"end" validate:"required"`
	StockIDs string `query:"stockids"`
	Limit    int    `query:"limit" default:"10" validate:"gte=1,lte=100"`
}

type RankMapRequest struct {
	Opt      string `param:"opt" validate:"required,oneof=twse otc"`
	Category string `param:"category" validate:"required,oneof=hisstock hiscredit hisfuture histrader"`
	Base     string `param:"base" validate:"required,oneof=stock trader"`
	IDs      string `query:"ids" validate:"required"`
	Aliases  string `query:"aliases" default:"top0"`
}

// RankScopeRequest names one (market, category, base) ranked-map scope.
type RankScopeRequest struct {
	Opt      string `param:"opt" validate:"required,oneof=twse otc"`
	Category string `param:"category" validate:"required,oneof=hisstock hiscredit hisfuture histrader"`
	Base     string `param:"base" validate:"required,oneof=stock trader"`
}

// CollectItemsResponse is the raw per-category result map.
type CollectItemsResponse struct {
	ID       string                       `json:"id"`
	Status   CollectionStatus             `json:"status"`
	Items    map[Category]*CategoryResult `json:"items"`
	Failures []CategoryFailure            `json:"failures"`
}

// CollectFrameResponse carries the assembled table.
type CollectFrameResponse struct {
	ID       string            `json:"id"`
	Status   CollectionStatus  `json:"status"`
	Table    *WideTable        `json:"table"`
	Failures []CategoryFailure `json:"failures"`
}

// RankMapResponse is the result of an alias lookup.
type RankMapResponse struct {
	Market   Market   `json:"market"`
	Category Category `json:"category"`
	Base     Base     `json:"base"`
	Aliases  []string `json:"aliases"`
	IDs      []string `json:"ids"`
}

// FrameResponse carries a single-entity wide table.
type FrameResponse struct {
	ID       string            `json:"id"`
	Status   CollectionStatus  `json:"status"`
	Table    *WideTable        `json:"table"`
	Failures []CategoryFailure `json:"failures"`
}
