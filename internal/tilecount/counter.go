package tilecount

import (
	"encoding/json"
	"fmt"
	"strings"
	"walkscore_service/internal/core"
	"walkscore_service/internal/domain/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"
)

// dedupPropsLen is how much of the serialized properties goes into a derived
// feature key.
const dedupPropsLen = 50

// Counter counts the features of a map layer that fall inside a polygon.
// In strict mode unknown filter expressions fail the count instead of
// matching everything.
type Counter struct {
	logger *zap.Logger
	strict bool
}

func NewCounter(logger *zap.Logger, strict bool) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{logger: logger, strict: strict}
}

// CountWithinPolygon returns how many features of layerID lie inside ring.
// A missing layer or source counts as 0 and is only logged. Vector sources
// are deduplicated across tiles; GeoJSON sources are counted as they are.
func (c *Counter) CountWithinPolygon(m *Map, layerID string, ring orb.Ring) (int, error) {
	bbox, err := core.BoundingBox(ring)
	if err != nil {
		return 0, err
	}
	bound := orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[2], bbox[3]}}

	layer, ok := m.Layer(layerID)
	if !ok {
		c.logger.Warn("layer not found", zap.String("layer", layerID),
			zap.NamedError("reason", model.ErrUnknownLayer))
		return 0, nil
	}

	source, ok := m.Source(layer.Source)
	if !ok {
		c.logger.Warn("source not found", zap.String("layer", layerID), zap.String("source", layer.Source),
			zap.NamedError("reason", model.ErrUnknownSource))
		return 0, nil
	}

	var count int
	switch s := source.(type) {
	case *VectorSource:
		count, err = c.countVector(s, layer, bound, ring)
	case *GeoJSONSource:
		count, err = c.countGeoJSON(s, layer, ring)
	default:
		c.logger.Warn("unsupported source type", zap.String("source", layer.Source),
			zap.String("type", string(source.Type())))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	c.logger.Debug("features counted",
		zap.String("layer", layerID),
		zap.String("source", layer.Source),
		zap.Int("count", count),
	)
	return count, nil
}

func (c *Counter) countVector(s *VectorSource, layer Layer, bound orb.Bound, ring orb.Ring) (int, error) {
	features, err := s.QueryFeatures(bound, layer.SourceLayerName(), layer.Filter, c.strict)
	if err != nil {
		return 0, fmt.Errorf("failed to query layer %q: %w", layer.ID, err)
	}

	seen := make(map[interface{}]struct{}, len(features))
	count := 0
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		key := FeatureKey(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if inside(f.Geometry, ring) {
			count++
		}
	}
	return count, nil
}

func (c *Counter) countGeoJSON(s *GeoJSONSource, layer Layer, ring orb.Ring) (int, error) {
	if s.Data == nil {
		c.logger.Warn("no source data available", zap.String("source", layer.Source))
		return 0, nil
	}

	count := 0
	for _, f := range s.Data.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		ok, err := evaluate(layer.Filter, f.Properties, c.strict)
		if err != nil {
			return 0, fmt.Errorf("failed to filter layer %q: %w", layer.ID, err)
		}
		if ok && inside(f.Geometry, ring) {
			count++
		}
	}
	return count, nil
}

// inside tests a feature's representative point: the point itself, or the
// center of the bound for any other geometry.
func inside(g orb.Geometry, ring orb.Ring) bool {
	var p orb.Point
	if pt, ok := g.(orb.Point); ok {
		p = pt
	} else {
		p = g.Bound().Center()
	}
	ok, err := core.PointInPolygon(p, ring)
	return err == nil && ok
}

// FeatureKey identifies a feature across tiles: its id when it has a truthy
// one, otherwise its coordinates plus the start of its serialized properties.
// Distinct features sharing both can collide.
func FeatureKey(f *geojson.Feature) interface{} {
	if id := normalizeNumber(f.ID); truthy(id) {
		return id
	}

	props, _ := json.Marshal(f.Properties)
	if runes := []rune(string(props)); len(runes) > dedupPropsLen {
		props = []byte(string(runes[:dedupPropsLen]))
	}
	return coordinatesKey(f.Geometry) + "-" + string(props)
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case bool:
		return t
	default:
		return true
	}
}

func coordinatesKey(g orb.Geometry) string {
	var parts []string
	appendPoint := func(p orb.Point) {
		parts = append(parts, jsString(p.Lon()), jsString(p.Lat()))
	}

	switch geom := g.(type) {
	case orb.Point:
		appendPoint(geom)
	case orb.MultiPoint:
		for _, p := range geom {
			appendPoint(p)
		}
	case orb.LineString:
		for _, p := range geom {
			appendPoint(p)
		}
	case orb.Ring:
		for _, p := range geom {
			appendPoint(p)
		}
	case orb.Polygon:
		for _, r := range geom {
			for _, p := range r {
				appendPoint(p)
			}
		}
	case orb.MultiLineString:
		for _, ls := range geom {
			for _, p := range ls {
				appendPoint(p)
			}
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			for _, r := range poly {
				for _, p := range r {
					appendPoint(p)
				}
			}
		}
	default:
		b := g.Bound()
		appendPoint(b.Min)
		appendPoint(b.Max)
	}

	return strings.Join(parts, ",")
}
