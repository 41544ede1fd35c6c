package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"walkscore_service/internal/domain/model"
	"walkscore_service/internal/tilecount"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/twpayne/go-polyline"
	"go.uber.org/zap"
)

const (
	maxBodyBytes = 10 << 20
	// Зум по умолчанию для векторных источников
	defaultTileZoom = 14
	maxTileZoom     = 22
)

type WalkabilityScorer interface {
	GetWalkabilityScore(ctx context.Context, area model.AreaOfInterest) (model.WalkabilityResult, error)
}

type HazardLookup interface {
	HazardReport(ctx context.Context, lon, lat float64) (model.HazardReport, error)
}

type Handler struct {
	scorer  WalkabilityScorer
	hazards HazardLookup
	counter *tilecount.Counter
	tiles   tilecount.TileFetcher
	logger  *zap.Logger
}

// NewHandler wires the HTTP surface. hazards and tiles may be nil, in which
// case their endpoints answer 503.
func NewHandler(
	scorer WalkabilityScorer,
	hazards HazardLookup,
	counter *tilecount.Counter,
	tiles tilecount.TileFetcher,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		scorer:  scorer,
		hazards: hazards,
		counter: counter,
		tiles:   tiles,
		logger:  logger,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/walkability", h.Walkability)
		r.Post("/features/count", h.CountFeatures)
		r.Get("/hazards", h.Hazards)
	})
	return r
}

// WalkabilityRequest carries the isochrone either as GeoJSON polygon
// coordinates or as an encoded polyline.
type WalkabilityRequest struct {
	Coordinates orb.Polygon `json:"coordinates,omitempty"`
	Polyline    string      `json:"polyline,omitempty"`
	Precision   int         `json:"precision,omitempty"`
}

type CountRequest struct {
	Polygon orb.Ring        `json:"polygon"`
	Layer   tilecount.Layer `json:"layer"`
	Source  SourceSpec      `json:"source"`
}

// SourceSpec describes the data behind the layer: an inline GeoJSON feature
// collection, or vector tiles. Tiles lists them explicitly as {z, x, y};
// without it the tiles covering the polygon at Zoom are fetched.
type SourceSpec struct {
	Type  tilecount.SourceType `json:"type"`
	Data  json.RawMessage      `json:"data,omitempty"`
	Tiles []maptile.Tile       `json:"tiles,omitempty"`
	Zoom  int                  `json:"zoom,omitempty"`
}

type CountResponse struct {
	Layer string `json:"layer"`
	Count int    `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Walkability(w http.ResponseWriter, r *http.Request) {
	var req WalkabilityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	area, err := req.area()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.scorer.GetWalkabilityScore(r.Context(), area)
	if err != nil {
		if errors.Is(err, model.ErrInvalidGeometry) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("walkability scoring failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error computing walkability score")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (req WalkabilityRequest) area() (model.AreaOfInterest, error) {
	if req.Polyline != "" {
		return decodePolyline(req.Polyline, req.Precision)
	}
	if len(req.Coordinates) == 0 {
		return nil, fmt.Errorf("%w: coordinates or polyline is required", model.ErrInvalidGeometry)
	}
	return model.AreaOfInterest(req.Coordinates[0]), nil
}

// decodePolyline turns an encoded isochrone outline into a closed ring.
// Encoded outlines usually omit the closing point, so it is added.
func decodePolyline(encoded string, precision int) (model.AreaOfInterest, error) {
	codec := polyline.Codec{Dim: 2, Scale: 1e5}
	switch precision {
	case 0, 5:
	case 6:
		codec.Scale = 1e6
	default:
		return nil, fmt.Errorf("%w: unsupported polyline precision %d", model.ErrInvalidGeometry, precision)
	}

	coords, rest, err := codec.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid polyline: %v", model.ErrInvalidGeometry, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing polyline data", model.ErrInvalidGeometry)
	}

	area := make(model.AreaOfInterest, 0, len(coords)+1)
	for _, c := range coords {
		// polyline хранит [lat, lon]
		area = append(area, orb.Point{c[1], c[0]})
	}
	if len(area) > 0 && !orb.Ring(area).Closed() {
		area = append(area, area[0])
	}
	return area, nil
}

func (h *Handler) CountFeatures(w http.ResponseWriter, r *http.Request) {
	var req CountRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Layer.ID == "" {
		writeError(w, http.StatusBadRequest, "layer.id is required")
		return
	}
	if len(req.Polygon) < 4 || !req.Polygon.Closed() {
		writeError(w, http.StatusBadRequest, model.ErrInvalidGeometry.Error()+": polygon must be a closed ring of at least 4 points")
		return
	}

	sourceID := req.Layer.Source
	if sourceID == "" {
		sourceID = "source"
		req.Layer.Source = sourceID
	}

	m := tilecount.NewMap()
	m.AddLayer(req.Layer)

	switch req.Source.Type {
	case tilecount.SourceGeoJSON:
		fc, err := geojson.UnmarshalFeatureCollection(req.Source.Data)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid GeoJSON source data")
			return
		}
		m.AddSource(sourceID, tilecount.NewGeoJSONSource(fc))
	case tilecount.SourceVector:
		if h.tiles == nil {
			writeError(w, http.StatusServiceUnavailable, "Vector tiles are not configured")
			return
		}
		var (
			source *tilecount.VectorSource
			err    error
		)
		if len(req.Source.Tiles) > 0 {
			for _, t := range req.Source.Tiles {
				if !validTile(t) {
					writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid tile %d/%d/%d", t.Z, t.X, t.Y))
					return
				}
			}
			source, err = tilecount.LoadTiles(r.Context(), h.tiles, req.Source.Tiles)
		} else {
			zoom := req.Source.Zoom
			if zoom == 0 {
				zoom = defaultTileZoom
			}
			if zoom < 0 || zoom > maxTileZoom {
				writeError(w, http.StatusBadRequest, "zoom must be between 0 and 22")
				return
			}
			source, err = tilecount.LoadVectorSource(r.Context(), h.tiles, req.Polygon.Bound(), maptile.Zoom(zoom))
		}
		if err != nil {
			if errors.Is(err, model.ErrInvalidGeometry) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			h.logger.Warn("failed to load vector tiles", zap.Error(err))
			writeError(w, http.StatusBadGateway, "Failed to load vector tiles")
			return
		}
		m.AddSource(sourceID, source)
	default:
		// Неизвестный источник считается отсутствующим: счётчик вернёт 0
		h.logger.Warn("unsupported source type", zap.String("type", string(req.Source.Type)))
	}

	count, err := h.counter.CountWithinPolygon(m, req.Layer.ID, req.Polygon)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidGeometry), errors.Is(err, model.ErrInvalidFilter):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("feature count failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Error counting features")
		}
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{Layer: req.Layer.ID, Count: count})
}

func (h *Handler) Hazards(w http.ResponseWriter, r *http.Request) {
	if h.hazards == nil {
		writeError(w, http.StatusServiceUnavailable, "Hazard lookups are not configured")
		return
	}

	lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lon must be a number")
		return
	}
	lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lat must be a number")
		return
	}

	report, err := h.hazards.HazardReport(r.Context(), lon, lat)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCoordinates) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("hazard lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error looking up hazards")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func validTile(t maptile.Tile) bool {
	if t.Z > maxTileZoom {
		return false
	}
	n := uint32(1) << uint32(t.Z)
	return t.X < n && t.Y < n
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
