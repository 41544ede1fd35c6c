package model

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// RawFeature is a point of interest as returned by the discovery source.
// Located is false when the element came back without any position.
type RawFeature struct {
	ID      osm.FeatureID     `json:"id"`
	Lat     float64           `json:"lat"`
	Lon     float64           `json:"lon"`
	Located bool              `json:"located"`
	Tags    map[string]string `json:"tags"`
	Bounds  Bounds            `json:"bounds"`
}

// Point returns the feature position as [lon, lat].
func (f RawFeature) Point() orb.Point {
	return orb.Point{f.Lon, f.Lat}
}

// Name returns the display name, preferring `name` over `name:en`.
func (f RawFeature) Name() string {
	if name := f.Tags["name"]; name != "" {
		return name
	}
	return f.Tags["name:en"]
}
