package tilecount

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"walkscore_service/internal/domain/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/tidwall/rtree"
	"golang.org/x/sync/errgroup"
)

type SourceType string

const (
	SourceVector  SourceType = "vector"
	SourceGeoJSON SourceType = "geojson"
)

// maxCoverTiles bounds how many tiles a single count may load.
const maxCoverTiles = 256

// Source is the loaded data behind one or more map layers.
type Source interface {
	Type() SourceType
}

// Layer is a styled map layer: which source it draws from and its filter.
type Layer struct {
	ID          string  `json:"id"`
	Source      string  `json:"source"`
	SourceLayer string  `json:"source-layer,omitempty"`
	Filter      *Filter `json:"filter,omitempty"`

	// Some callers send the camelCase spelling
	SourceLayerAlt string `json:"sourceLayer,omitempty"`
}

func (l Layer) SourceLayerName() string {
	if l.SourceLayer != "" {
		return l.SourceLayer
	}
	return l.SourceLayerAlt
}

// Map is a read-only snapshot of a rendered map's sources and layers.
type Map struct {
	sources map[string]Source
	layers  map[string]Layer
}

func NewMap() *Map {
	return &Map{
		sources: make(map[string]Source),
		layers:  make(map[string]Layer),
	}
}

func (m *Map) AddSource(id string, source Source) {
	m.sources[id] = source
}

func (m *Map) AddLayer(layer Layer) {
	m.layers[layer.ID] = layer
}

func (m *Map) Source(id string) (Source, bool) {
	s, ok := m.sources[id]
	return s, ok
}

func (m *Map) Layer(id string) (Layer, bool) {
	l, ok := m.layers[id]
	return l, ok
}

// GeoJSONSource holds a full in-memory feature collection.
type GeoJSONSource struct {
	Data *geojson.FeatureCollection
}

func NewGeoJSONSource(fc *geojson.FeatureCollection) *GeoJSONSource {
	return &GeoJSONSource{Data: fc}
}

func (s *GeoJSONSource) Type() SourceType { return SourceGeoJSON }

type tileEntry struct {
	tile   maptile.Tile
	layers map[string]*mvt.Layer
}

// VectorSource holds decoded vector tiles in WGS84, indexed by tile bound.
type VectorSource struct {
	mu    sync.RWMutex
	index rtree.RTreeG[*tileEntry]
	tiles map[maptile.Tile]*tileEntry
}

func NewVectorSource() *VectorSource {
	return &VectorSource{tiles: make(map[maptile.Tile]*tileEntry)}
}

func (s *VectorSource) Type() SourceType { return SourceVector }

// AddTile stores the layers of a tile. layers must already be projected to
// WGS84. Adding the same tile again replaces its layers.
func (s *VectorSource) AddTile(tile maptile.Tile, layers mvt.Layers) {
	byName := make(map[string]*mvt.Layer, len(layers))
	for _, l := range layers {
		byName[l.Name] = l
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.tiles[tile]; ok {
		entry.layers = byName
		return
	}

	entry := &tileEntry{tile: tile, layers: byName}
	s.tiles[tile] = entry
	b := tile.Bound()
	s.index.Insert(
		[2]float64{b.Min.Lon(), b.Min.Lat()},
		[2]float64{b.Max.Lon(), b.Max.Lat()},
		entry,
	)
}

func (s *VectorSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiles)
}

// QueryFeatures returns the features of sourceLayer, from every tile whose
// bound intersects bound, that pass filter. A feature crossing tile edges is
// returned once per tile.
func (s *VectorSource) QueryFeatures(bound orb.Bound, sourceLayer string, filter *Filter, strict bool) ([]*geojson.Feature, error) {
	s.mu.RLock()
	var entries []*tileEntry
	s.index.Search(
		[2]float64{bound.Min.Lon(), bound.Min.Lat()},
		[2]float64{bound.Max.Lon(), bound.Max.Lat()},
		func(_, _ [2]float64, entry *tileEntry) bool {
			entries = append(entries, entry)
			return true
		},
	)
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].tile, entries[j].tile
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})

	var features []*geojson.Feature
	for _, entry := range entries {
		layer, ok := entry.layers[sourceLayer]
		if !ok {
			continue
		}
		for _, f := range layer.Features {
			ok, err := evaluate(filter, f.Properties, strict)
			if err != nil {
				return nil, err
			}
			if ok {
				features = append(features, f)
			}
		}
	}
	return features, nil
}

// TileFetcher loads the decoded, WGS84-projected layers of one tile.
type TileFetcher interface {
	FetchTile(ctx context.Context, tile maptile.Tile) (mvt.Layers, error)
}

// TilesCovering lists the tiles at zoom z that intersect bound.
func TilesCovering(bound orb.Bound, z maptile.Zoom) ([]maptile.Tile, error) {
	topLeft := maptile.At(orb.Point{bound.Min.Lon(), bound.Max.Lat()}, z)
	bottomRight := maptile.At(orb.Point{bound.Max.Lon(), bound.Min.Lat()}, z)

	count := (int(bottomRight.X) - int(topLeft.X) + 1) * (int(bottomRight.Y) - int(topLeft.Y) + 1)
	if count > maxCoverTiles {
		return nil, fmt.Errorf("%w: bound needs %d tiles at zoom %d, limit is %d",
			model.ErrInvalidGeometry, count, z, maxCoverTiles)
	}

	tiles := make([]maptile.Tile, 0, count)
	for x := topLeft.X; x <= bottomRight.X; x++ {
		for y := topLeft.Y; y <= bottomRight.Y; y++ {
			tiles = append(tiles, maptile.New(x, y, z))
		}
	}
	return tiles, nil
}

// LoadVectorSource fetches every tile covering bound at zoom z, a few at a time.
func LoadVectorSource(ctx context.Context, fetcher TileFetcher, bound orb.Bound, z maptile.Zoom) (*VectorSource, error) {
	tiles, err := TilesCovering(bound, z)
	if err != nil {
		return nil, err
	}
	return LoadTiles(ctx, fetcher, tiles)
}

// LoadTiles fetches an explicit tile list, e.g. the tiles a map client
// already has on screen.
func LoadTiles(ctx context.Context, fetcher TileFetcher, tiles []maptile.Tile) (*VectorSource, error) {
	if len(tiles) > maxCoverTiles {
		return nil, fmt.Errorf("%w: %d tiles requested, limit is %d",
			model.ErrInvalidGeometry, len(tiles), maxCoverTiles)
	}

	source := NewVectorSource()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			layers, err := fetcher.FetchTile(ctx, tile)
			if err != nil {
				return fmt.Errorf("failed to fetch tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
			}
			source.AddTile(tile, layers)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return source, nil
}
