// Package aggregate projects board rows into chart series and map markers.
//
// Every function here is pure: the same rows and parameters always give
// the same output, and malformed data degrades to defaults instead of
// errors.
package aggregate

import "github.com/solarboard/solarboard/board"

// ChartType selects the chart rendering. It does not change the grouping
// except that a value column is optional for every type.
type ChartType string

const (
	ChartBar  ChartType = "bar"
	ChartPie  ChartType = "pie"
	ChartLine ChartType = "line"
)

// ParseChartType maps unknown or empty names to ChartBar.
func ParseChartType(s string) ChartType {
	switch ChartType(s) {
	case ChartPie:
		return ChartPie
	case ChartLine:
		return ChartLine
	default:
		return ChartBar
	}
}

type ChartQuery struct {
	Type           ChartType `json:"type"`
	CategoryColumn string    `json:"category"`
	// ValueColumn is optional; without it every row counts for 1.
	ValueColumn string `json:"value,omitempty"`
}

// Point is one entry of a series.
type Point struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Chart groups rows by the category column and sums the value column,
// reading cells through the board schema. Missing categories share the ""
// bucket. A value that is absent or does not parse counts as 1. Points
// keep first-seen category order.
func Chart(s *board.Schema, rows []board.Row, q ChartQuery) []Point {
	series := []Point{}
	if q.CategoryColumn == "" {
		return series
	}
	index := make(map[string]int)
	for _, r := range rows {
		name := s.Text(r, q.CategoryColumn)
		v := rowValue(s, r, q.ValueColumn)
		if i, ok := index[name]; ok {
			series[i].Value += v
			continue
		}
		index[name] = len(series)
		series = append(series, Point{Name: name, Value: v})
	}
	return series
}

func rowValue(s *board.Schema, r board.Row, column string) float64 {
	if column == "" {
		return 1
	}
	v, ok := s.Number(r, column)
	if !ok {
		return 1
	}
	return v
}

// AxisChoices lists the columns usable as a chart value axis.
func AxisChoices(s *board.Schema) []board.Column {
	return s.NumericColumns()
}
