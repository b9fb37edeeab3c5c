package models

import "time"

// Series is the dated output of one column group before assembly.
type Series struct {
	Key    string  `json:"key"`
	Prefix string  `json:"prefix,omitempty"`
	Points []Point `json:"points"`
}

// ColumnGroup holds the cells of one entity or alias, indexed
// [row][column] against WideTable.Dates.
type ColumnGroup struct {
	Key     string      `json:"key"`
	Columns []string    `json:"columns"`
	Cells   [][]float64 `json:"cells"`
}

// WideTable is a date-indexed table with one column group per key.
type WideTable struct {
	Dates  []time.Time   `json:"dates"`
	Groups []ColumnGroup `json:"groups"`
}

// Rows is the number of distinct dates.
func (t *WideTable) Rows() int { return len(t.Dates) }

// Group returns the column group named key.
func (t *WideTable) Group(key string) (*ColumnGroup, bool) {
	for i := range t.Groups {
		if t.Groups[i].Key == key {
			return &t.Groups[i], true
		}
	}
	return nil, false
}

// Value looks up a single cell; ok is false when key or column is unknown
// or row is out of range.
func (t *WideTable) Value(key, column string, row int) (float64, bool) {
	g, ok := t.Group(key)
	if !ok || row < 0 || row >= len(g.Cells) {
		return 0, false
	}
	for j, c := range g.Columns {
		if c == column {
			return g.Cells[row][j], true
		}
	}
	return 0, false
}
