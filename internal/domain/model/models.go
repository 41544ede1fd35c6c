package model

import "github.com/paulmach/orb"

// AreaOfInterest is a closed ring of [lon, lat] points, usually an isochrone
// produced by a routing provider. It is never mutated.
type AreaOfInterest orb.Ring

// Ring returns the area as an orb.Ring.
func (a AreaOfInterest) Ring() orb.Ring {
	return orb.Ring(a)
}

type Bounds struct {
	MinLat float64 `json:"minlat"`
	MinLon float64 `json:"minlon"`
	MaxLat float64 `json:"maxlat"`
	MaxLon float64 `json:"maxlon"`
}

// IsZero reports whether the bounds were never set.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Center returns the middle of the box, the same point Overpass reports for `out center`.
func (b Bounds) Center() orb.Point {
	return orb.Point{(b.MinLon + b.MaxLon) / 2, (b.MinLat + b.MaxLat) / 2}
}

// TagFilter matches a feature whose tag Key holds one of Values.
type TagFilter struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// AmenityCategoryRule names a category and the tag filters that select it.
// Rules are kept in an ordered slice: the first matching rule wins.
type AmenityCategoryRule struct {
	Name    string      `json:"name"`
	Filters []TagFilter `json:"filters"`
}

type ClassifiedAmenity struct {
	ID       string     `json:"id"`
	Category string     `json:"category"`
	Name     string     `json:"name,omitempty"`
	Coords   [2]float64 `json:"coords"`
	Distance float64    `json:"distance"` // метры до точки отсчёта
	Score    float64    `json:"score"`
}

// CategoryScore is the bounded point value of one category, in [0, CategoryMax].
type CategoryScore struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ChartDatum is a single radar or pie chart entry.
type ChartDatum struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

type WalkabilityResult struct {
	Score      int                            `json:"score"`
	RadarData  []ChartDatum                   `json:"radarData"`
	PieData    []ChartDatum                   `json:"pieData"`
	TotalPOIs  int                            `json:"totalPOIs"`
	Categories map[string][]ClassifiedAmenity `json:"categories"`
}

// EmptyWalkabilityResult is the "no data" result returned whenever scoring fails.
func EmptyWalkabilityResult() WalkabilityResult {
	return WalkabilityResult{
		RadarData:  []ChartDatum{},
		PieData:    []ChartDatum{},
		Categories: map[string][]ClassifiedAmenity{},
	}
}

// IsEmpty reports whether r carries no data at all.
func (r WalkabilityResult) IsEmpty() bool {
	return r.Score == 0 && r.TotalPOIs == 0 && len(r.RadarData) == 0 &&
		len(r.PieData) == 0 && len(r.Categories) == 0
}

type SeifaRecord struct {
	SalName     *string  `db:"sal_name_2021" json:"sal_name_2021"`
	IRSADScore  *float64 `db:"irsad_score" json:"irsad_score"`
	IRSADDecile *int     `db:"irsad_decile" json:"irsad_decile"`
}

type HazardReport struct {
	Longitude float64      `json:"longitude"`
	Latitude  float64      `json:"latitude"`
	FloodRisk string       `json:"flood_risk"`
	Seifa     *SeifaRecord `json:"seifa"`
}
