package repository

import (
	"context"
	"errors"
	"fmt"
	"github.com/serjvanilla/go-overpass"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"walkscore_service/internal/domain/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"go.uber.org/zap"
)

// Ключи верхнего уровня, по которым ищем всё подряд
var amenityKeys = []string{"amenity", "shop", "leisure", "landuse", "public_transport", "railway", "highway"}

type OverpassRepository struct {
	endpoint    string
	maxParallel int
	timeout     time.Duration
	transport   http.RoundTripper
	logger      *zap.Logger
	// Клиент go-overpass создаётся на каждый запрос, поэтому лимит держим здесь
	slots chan struct{}
}

func NewOverpassRepository(endpoint string, timeout time.Duration, maxParallel int, logger *zap.Logger) *OverpassRepository {
	if maxParallel <= 0 {
		maxParallel = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverpassRepository{
		endpoint:    endpoint,
		maxParallel: maxParallel,
		timeout:     timeout,
		transport:   http.DefaultTransport,
		logger:      logger,
		slots:       make(chan struct{}, maxParallel),
	}
}

// DiscoverAmenities fetches every element inside the area carrying one of the
// amenity keys. Ways and relations are positioned at the center of their bbox.
func (r *OverpassRepository) DiscoverAmenities(ctx context.Context, area model.AreaOfInterest) ([]model.RawFeature, error) {
	ring := area.Ring()
	if len(ring) < 4 || !ring.Closed() {
		return nil, fmt.Errorf("%w: area must be a closed ring of at least 4 points", model.ErrInvalidGeometry)
	}

	query := buildAmenityQuery(area, r.timeout)
	r.logger.Debug("overpass query", zap.String("query", query))

	result, err := r.executeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute amenity query: %w", err)
	}

	features := convertToRawFeatures(result)
	r.logger.Info("overpass amenities discovered", zap.Int("count", len(features)))
	return features, nil
}

func buildAmenityQuery(area model.AreaOfInterest, timeout time.Duration) string {
	coords := make([]string, 0, len(area))
	for _, p := range area {
		coords = append(coords,
			strconv.FormatFloat(p.Lat(), 'f', -1, 64)+" "+strconv.FormatFloat(p.Lon(), 'f', -1, 64))
	}

	seconds := int(timeout / time.Second)
	if seconds <= 0 {
		seconds = 300
	}

	return fmt.Sprintf(`[out:json][timeout:%d];nwr[~"^(%s)$"~".*"](poly:"%s");out bb;`,
		seconds, strings.Join(amenityKeys, "|"), strings.Join(coords, " "))
}

func (r *OverpassRepository) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for a free overpass slot: %w", model.ErrDiscoverySource, ctx.Err())
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	// go-overpass не принимает контекст, поэтому прокидываем его через транспорт
	httpClient := &http.Client{
		Timeout:   r.timeout,
		Transport: &contextTransport{ctx: ctx, base: r.transport},
	}
	client := overpass.NewWithSettings(r.endpoint, r.maxParallel, httpClient)

	result, err := client.Query(query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(err, ctxErr)
		}
		return nil, fmt.Errorf("%w: overpass query failed: %w", model.ErrDiscoverySource, err)
	}

	return &result, nil
}

type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// convertToRawFeatures flattens the result into features sorted by id.
// Elements without tags are skipped: they are the bare nodes and ways that
// go-overpass creates for references, not elements the query matched.
func convertToRawFeatures(result *overpass.Result) []model.RawFeature {
	elements := make([]model.RawFeature, 0, len(result.Nodes)+len(result.Ways)+len(result.Relations))

	for _, node := range result.Nodes {
		if len(node.Tags) == 0 {
			continue
		}
		elements = append(elements, model.RawFeature{
			ID:      osm.NodeID(node.ID).FeatureID(),
			Lat:     node.Lat,
			Lon:     node.Lon,
			Located: true,
			Tags:    node.Tags,
		})
	}

	for _, way := range result.Ways {
		if len(way.Tags) == 0 {
			continue
		}
		f := model.RawFeature{
			ID:   osm.WayID(way.ID).FeatureID(),
			Tags: way.Tags,
		}
		if way.Bounds != nil {
			f.Bounds = toBounds(way.Bounds)
			center := f.Bounds.Center()
			f.Lon, f.Lat, f.Located = center.Lon(), center.Lat(), true
		} else if center, ok := nodesCenter(way.Nodes); ok {
			// Без bbox берём среднее по узлам
			f.Lon, f.Lat, f.Located = center.Lon(), center.Lat(), true
		}
		elements = append(elements, f)
	}

	for _, relation := range result.Relations {
		if len(relation.Tags) == 0 {
			continue
		}
		f := model.RawFeature{
			ID:   osm.RelationID(relation.ID).FeatureID(),
			Tags: relation.Tags,
		}
		if relation.Bounds != nil {
			f.Bounds = toBounds(relation.Bounds)
			center := f.Bounds.Center()
			f.Lon, f.Lat, f.Located = center.Lon(), center.Lat(), true
		}
		elements = append(elements, f)
	}

	sort.Slice(elements, func(i, j int) bool {
		return elements[i].ID < elements[j].ID
	})

	return elements
}

func toBounds(box *overpass.Box) model.Bounds {
	return model.Bounds{
		MinLat: box.Min.Lat,
		MinLon: box.Min.Lon,
		MaxLat: box.Max.Lat,
		MaxLon: box.Max.Lon,
	}
}

// nodesCenter averages the nodes that came back with a position. Nodes only
// referenced by the way have zero coordinates and are ignored.
func nodesCenter(nodes []*overpass.Node) (orb.Point, bool) {
	var lat, lon float64
	count := 0
	for _, node := range nodes {
		if node == nil || (node.Lat == 0 && node.Lon == 0) {
			continue
		}
		lat += node.Lat
		lon += node.Lon
		count++
	}
	if count == 0 {
		return orb.Point{}, false
	}
	return orb.Point{lon / float64(count), lat / float64(count)}, true
}
