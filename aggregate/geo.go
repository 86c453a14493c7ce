package aggregate

import (
	"math"
	"strings"

	"github.com/solarboard/solarboard/board"
)

// DefaultMarkerColor is used when the responsible person does not resolve.
const DefaultMarkerColor = "#6b7280"

// DefaultPadding is the viewport padding ratio applied around markers.
const DefaultPadding = 0.5

type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Marker struct {
	RowID       string   `json:"rowId"`
	Position    Position `json:"position"`
	Color       string   `json:"color"`
	Label       string   `json:"label"`
	Responsible string   `json:"responsible,omitempty"`
}

// Markers projects rows with valid coordinates into map markers. Rows
// are first filtered by search; rows without parseable coordinates are
// skipped.
func Markers(rows []board.Row, search string, dir *board.Directory) []Marker {
	markers := []Marker{}
	for _, r := range rows {
		if !Matches(r, search) {
			continue
		}
		lat, lng, ok := board.Coordinates(r.Data)
		if !ok {
			continue
		}
		responsible := board.FieldResponsible.Text(r.Data)
		color := DefaultMarkerColor
		if p, found := dir.Lookup(responsible); found && p.Color != "" {
			color = p.Color
		}
		markers = append(markers, Marker{
			RowID:       r.ID,
			Position:    Position{Lat: lat, Lng: lng},
			Color:       color,
			Label:       board.FieldLabel.Text(r.Data),
			Responsible: responsible,
		})
	}
	return markers
}

// Matches reports whether any data value of r contains term, ignoring
// case. An empty term matches every row.
func Matches(r board.Row, term string) bool {
	if term == "" {
		return true
	}
	needle := strings.ToLower(term)
	for _, v := range r.Data {
		if strings.Contains(strings.ToLower(board.FormatValue(v)), needle) {
			return true
		}
	}
	return false
}

// Bounds is a lat/lng bounding box.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// FitBounds returns the box around every marker, grown on each side by
// ratio times its span. ok is false when there are no markers.
func FitBounds(markers []Marker, ratio float64) (Bounds, bool) {
	if len(markers) == 0 {
		return Bounds{}, false
	}
	b := Bounds{
		South: math.Inf(1), West: math.Inf(1),
		North: math.Inf(-1), East: math.Inf(-1),
	}
	for _, m := range markers {
		b.South = math.Min(b.South, m.Position.Lat)
		b.North = math.Max(b.North, m.Position.Lat)
		b.West = math.Min(b.West, m.Position.Lng)
		b.East = math.Max(b.East, m.Position.Lng)
	}
	dLat := (b.North - b.South) * ratio
	dLng := (b.East - b.West) * ratio
	b.South -= dLat
	b.North += dLat
	b.West -= dLng
	b.East += dLng
	return b, true
}
