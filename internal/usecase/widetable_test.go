package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HisCollect/internal/domain/models"
)

func pt(d int, kv ...any) models.Point {
	vals := map[string]float64{}
	for i := 0; i+1 < len(kv); i += 2 {
		vals[kv[i].(string)] = kv[i+1].(float64)
	}
	return models.Point{Date: day(d), Values: vals}
}

func TestAssembleOuterJoinsDisjointDates(t *testing.T) {
	table := Assemble([]models.Series{
		{Key: "2317", Points: []models.Point{pt(1, "close", 10.0), pt(2, "close", 11.0)}},
		{Key: "2330", Points: []models.Point{pt(4, "close", 50.0)}},
	})

	require.Equal(t, 3, table.Rows())
	assert.Equal(t, []string{"2317", "2330"}, []string{table.Groups[0].Key, table.Groups[1].Key})

	v, ok := table.Value("2317", "close", 2)
	require.True(t, ok)
	assert.Zero(t, v)
	v, _ = table.Value("2330", "close", 0)
	assert.Zero(t, v)
	v, _ = table.Value("2330", "close", 2)
	assert.Equal(t, 50.0, v)
}

func TestAssembleSortsDatesAndColumns(t *testing.T) {
	table := Assemble([]models.Series{
		{Key: "top0", Prefix: "top0", Points: []models.Point{
			pt(3, "volume", 5.0, "ratio", 1.0),
			pt(1, "price", 9.0),
		}},
	})

	require.Equal(t, []int{1, 3}, []int{table.Dates[0].Day(), table.Dates[1].Day()})
	g, ok := table.Group("top0")
	require.True(t, ok)
	assert.Equal(t, []string{"top0_price", "top0_ratio", "top0_volume"}, g.Columns)
	assert.Equal(t, []float64{9, 0, 0}, g.Cells[0])
	assert.Equal(t, []float64{0, 1, 5}, g.Cells[1])
}

func TestAssembleMergesSeriesWithSameKey(t *testing.T) {
	table := Assemble([]models.Series{
		{Key: "2317", Points: []models.Point{pt(1, "close", 10.0)}},
		{Key: "2317", Points: []models.Point{pt(1, "credit_used", 3.0)}},
	})
	require.Len(t, table.Groups, 1)
	assert.Equal(t, []string{"close", "credit_used"}, table.Groups[0].Columns)
	assert.Equal(t, []float64{10, 3}, table.Groups[0].Cells[0])
}

func TestAssembleIsDeterministic(t *testing.T) {
	in := []models.Series{
		{Key: "a", Points: []models.Point{pt(2, "x", 1.0, "y", 2.0)}},
		{Key: "b", Points: []models.Point{pt(1, "x", 3.0)}},
	}
	assert.Equal(t, Assemble(in), Assemble(in))
}

func TestAssembleEmpty(t *testing.T) {
	table := Assemble(nil)
	assert.Zero(t, table.Rows())
	assert.Empty(t, table.Groups)
}

func TestSeriesFromEntriesQualifiesAcrossGroups(t *testing.T) {
	entries := []models.RankedMapEntry{
		{Category: models.CategoryTrader, GroupID: "2317", Alias: "top0"},
		{Category: models.CategoryTrader, GroupID: "2330", Alias: "top0"},
	}
	s := SeriesFromEntries(entries)
	require.Len(t, s, 2)
	assert.Equal(t, "2317.top0", s[0].Key)
	assert.Equal(t, "top0", s[0].Prefix)

	s = SeriesFromEntries(entries[:1])
	assert.Equal(t, "top0", s[0].Key)
}
