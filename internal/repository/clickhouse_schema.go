package repository

import (
	"fmt"

	"HisCollect/internal/domain/models"
)

// Fact tables are ReplacingMergeTree keyed by (market, stock_id, date); the
// highest version wins, which makes re-delivered facts idempotent. Reads use
// FINAL so unmerged duplicates never surface.
const (
	tableBars     = "bars"
	tableCredits  = "credits"
	tableFutures  = "futures"
	tableActivity = "broker_activity"
)

func tableFor(c models.Category) (string, error) {
	switch c {
	case models.CategoryStock:
		return tableBars, nil
	case models.CategoryCredit:
		return tableCredits, nil
	case models.CategoryFuture:
		return tableFutures, nil
	case models.CategoryTrader:
		return tableActivity, nil
	default:
		return "", fmt.Errorf("unknown category %q", c)
	}
}

// SchemaStatements returns the idempotent DDL for database db.
func SchemaStatements(db string) []string {
	const engine = `ENGINE = ReplacingMergeTree(version)
        PARTITION BY toYYYYMM(date)
        ORDER BY (market, stock_id, date)`
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            market LowCardinality(String),
            stock_id String,
            date Date,
            open Float64,
            high Float64,
            low Float64,
            close Float64,
            volume Float64,
            version UInt64
        ) %s`, db, tableBars, engine),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            market LowCardinality(String),
            stock_id String,
            date Date,
            buy_volume Float64,
            sell_volume Float64,
            day_trade Float64,
            pre_remain Float64,
            cur_remain Float64,
            credit_limit Float64,
            version UInt64
        ) %s`, db, tableCredits, engine),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            market LowCardinality(String),
            stock_id String,
            date Date,
            volume Float64,
            open_interest Float64,
            oi_delta Float64,
            version UInt64
        ) %s`, db, tableFutures, engine),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            market LowCardinality(String),
            stock_id String,
            date Date,
            volume Float64,
            broker_ids Array(String),
            broker_names Array(String),
            buy_volumes Array(Float64),
            sell_volumes Array(Float64),
            avg_buy_prices Array(Float64),
            avg_sell_prices Array(Float64),
            total_volumes Array(Float64),
            version UInt64
        ) %s`, db, tableActivity, engine),
	}
}

var columns = map[models.Category]string{
	models.CategoryStock:  "open, high, low, close, volume",
	models.CategoryCredit: "buy_volume, sell_volume, day_trade, pre_remain, cur_remain, credit_limit",
	models.CategoryFuture: "volume, open_interest, oi_delta",
	models.CategoryTrader: "volume, broker_ids, broker_names, buy_volumes, sell_volumes, avg_buy_prices, avg_sell_prices, total_volumes",
}

// buildSelect renders the read query for q. Ids bind as arrays.
func buildSelect(db string, q models.FactQuery) (string, []any, error) {
	table, err := tableFor(q.Category)
	if err != nil {
		return "", nil, err
	}

	args := []any{
		string(q.Market),
		q.Window.Start.Format("2006-01-02"),
		q.Window.End.Format("2006-01-02"),
	}
	filter := "has(?, stock_id)"
	args = append(args, nonNil(q.StockIDs))
	if q.Category == models.CategoryTrader && len(q.BrokerIDs) > 0 {
		filter = "(has(?, stock_id) OR hasAny(broker_ids, ?))"
		args = append(args, nonNil(q.BrokerIDs))
	}

	stmt := fmt.Sprintf(`SELECT stock_id, date, %s
        FROM %s.%s FINAL
        WHERE market = ? AND date >= toDate(?) AND date <= toDate(?) AND %s
        ORDER BY stock_id, date`, columns[q.Category], db, table, filter)
	return stmt, args, nil
}

func buildInsert(db string, c models.Category) (string, error) {
	table, err := tableFor(c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`INSERT INTO %s.%s (market, stock_id, date, %s, version)`, db, table, columns[c]), nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
