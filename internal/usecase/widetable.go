package usecase

import (
	"sort"
	"time"

	"HisCollect/internal/domain/models"
)

// Assemble outer-joins series on date. Rows are the distinct dates of all
// inputs in ascending order; series sharing a key share one column group.
// Cells without a sample are 0. Group order follows first appearance.
func Assemble(series []models.Series) *models.WideTable {
	type acc struct {
		key     string
		columns map[string]struct{}
		cells   map[time.Time]map[string]float64
	}

	var order []string
	groups := make(map[string]*acc)
	dateSet := make(map[time.Time]struct{})

	for _, s := range series {
		g, ok := groups[s.Key]
		if !ok {
			g = &acc{key: s.Key, columns: map[string]struct{}{}, cells: map[time.Time]map[string]float64{}}
			groups[s.Key] = g
			order = append(order, s.Key)
		}
		for _, p := range s.Points {
			day := models.Day(p.Date)
			dateSet[day] = struct{}{}
			row, ok := g.cells[day]
			if !ok {
				row = make(map[string]float64, len(p.Values))
				g.cells[day] = row
			}
			for name, v := range p.Values {
				col := columnName(s.Prefix, name)
				g.columns[col] = struct{}{}
				row[col] = v
			}
		}
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	table := &models.WideTable{Dates: dates, Groups: make([]models.ColumnGroup, 0, len(order))}
	for _, key := range order {
		g := groups[key]
		cols := make([]string, 0, len(g.columns))
		for c := range g.columns {
			cols = append(cols, c)
		}
		sort.Strings(cols)

		cells := make([][]float64, len(dates))
		for i, d := range dates {
			row := make([]float64, len(cols))
			if src, ok := g.cells[d]; ok {
				for j, c := range cols {
					row[j] = src[c]
				}
			}
			cells[i] = row
		}
		table.Groups = append(table.Groups, models.ColumnGroup{Key: key, Columns: cols, Cells: cells})
	}
	return table
}

func columnName(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "_" + field
}

// SeriesFromEntries turns ranked entries into assembler input. Broker
// entries become one group per alias with alias-prefixed columns; when the
// entries span several groups the key is qualified as group.alias. Plain
// entries become one group per stock.
func SeriesFromEntries(entries []models.RankedMapEntry) []models.Series {
	groups := models.NewIDSet()
	for _, e := range entries {
		groups.Add(e.GroupID)
	}
	qualify := len(groups) > 1

	out := make([]models.Series, 0, len(entries))
	for _, e := range entries {
		if e.Category != models.CategoryTrader {
			out = append(out, models.Series{Key: e.GroupID, Points: e.Points})
			continue
		}
		key := e.Alias
		if qualify {
			key = e.GroupID + "." + e.Alias
		}
		out = append(out, models.Series{Key: key, Prefix: e.Alias, Points: e.Points})
	}
	return out
}

// AssembleItems assembles a collection's per-category results in canonical
// category order.
func AssembleItems(items map[models.Category]*models.CategoryResult) *models.WideTable {
	var series []models.Series
	for _, c := range models.Categories() {
		it, ok := items[c]
		if !ok || it == nil {
			continue
		}
		series = append(series, SeriesFromEntries(it.Entries)...)
	}
	return Assemble(series)
}
