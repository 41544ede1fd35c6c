package core

import (
	"fmt"
	"math"
	"walkscore_service/internal/domain/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Средний радиус Земли в метрах (тот же, что у turf)
const earthRadiusMeters = 6371008.8

// DistanceMeters returns the great-circle distance between two [lon, lat] points.
func DistanceMeters(a, b orb.Point) float64 {
	lat1 := a.Lat() * math.Pi / 180
	lat2 := b.Lat() * math.Pi / 180
	dLat := (b.Lat() - a.Lat()) * math.Pi / 180
	dLon := (b.Lon() - a.Lon()) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// ValidateRing checks that ring is closed and has at least 4 points.
func ValidateRing(ring orb.Ring) error {
	if len(ring) < 4 {
		return fmt.Errorf("%w: ring has %d points, need at least 4", model.ErrInvalidGeometry, len(ring))
	}
	if !ring.Closed() {
		return fmt.Errorf("%w: ring is not closed", model.ErrInvalidGeometry)
	}
	return nil
}

// PolygonCentroid returns the mean of the ring's vertices, not counting the
// closing point twice. This is the scoring origin.
func PolygonCentroid(ring orb.Ring) (orb.Point, error) {
	if err := ValidateRing(ring); err != nil {
		return orb.Point{}, err
	}
	return vertexMean(ring[:len(ring)-1]), nil
}

// PolygonCenterOfMass returns the area-weighted centroid of the ring. Works
// for non-convex rings; degenerate (zero-area) rings fall back to the vertex mean.
func PolygonCenterOfMass(ring orb.Ring) (orb.Point, error) {
	if err := ValidateRing(ring); err != nil {
		return orb.Point{}, err
	}

	center, area := planar.CentroidArea(orb.Polygon{ring})
	if area == 0 || math.IsNaN(center.X()) || math.IsNaN(center.Y()) {
		return vertexMean(ring[:len(ring)-1]), nil
	}
	return center, nil
}

// BoundingBox returns [minLon, minLat, maxLon, maxLat].
func BoundingBox(ring orb.Ring) ([4]float64, error) {
	if err := ValidateRing(ring); err != nil {
		return [4]float64{}, err
	}
	b := ring.Bound()
	return [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}, nil
}

// PointInPolygon reports whether p lies inside ring. Points on the boundary
// (edges and vertices) count as inside.
func PointInPolygon(p orb.Point, ring orb.Ring) (bool, error) {
	if err := ValidateRing(ring); err != nil {
		return false, err
	}
	return ringContains(ring, p), nil
}

// ringContains assumes ring was already validated.
func ringContains(ring orb.Ring, p orb.Point) bool {
	if !ring.Bound().Contains(p) {
		return false
	}
	for i := 0; i < len(ring)-1; i++ {
		if onSegment(p, ring[i], ring[i+1]) {
			return true
		}
	}
	return planar.RingContains(ring, p)
}

func onSegment(p, a, b orb.Point) bool {
	cross := (b.X()-a.X())*(p.Y()-a.Y()) - (b.Y()-a.Y())*(p.X()-a.X())
	if math.Abs(cross) > 1e-12 {
		return false
	}
	return p.X() >= math.Min(a.X(), b.X()) && p.X() <= math.Max(a.X(), b.X()) &&
		p.Y() >= math.Min(a.Y(), b.Y()) && p.Y() <= math.Max(a.Y(), b.Y())
}

func vertexMean(points []orb.Point) orb.Point {
	var lon, lat float64
	for _, p := range points {
		lon += p.Lon()
		lat += p.Lat()
	}
	n := float64(len(points))
	return orb.Point{lon / n, lat / n}
}
