package core

import (
	"context"
	"fmt"
	"walkscore_service/internal/domain/model"

	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// AmenitySource fetches the raw points of interest inside an area.
type AmenitySource interface {
	DiscoverAmenities(ctx context.Context, area model.AreaOfInterest) ([]model.RawFeature, error)
}

// ScoreRecorder persists computed results. Optional.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, origin orb.Point, result model.WalkabilityResult) error
}

type WalkabilityService struct {
	source   AmenitySource
	cache    *ResultCache
	recorder ScoreRecorder
	rules    []model.AmenityCategoryRule
	logger   *zap.Logger
	group    singleflight.Group
}

// NewWalkabilityService wires the scoring pipeline. cache, recorder and
// logger may be nil.
func NewWalkabilityService(
	source AmenitySource,
	cache *ResultCache,
	recorder ScoreRecorder,
	logger *zap.Logger,
) *WalkabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalkabilityService{
		source:   source,
		cache:    cache,
		recorder: recorder,
		rules:    DefaultCategoryRules,
		logger:   logger,
	}
}

// Rules returns the ordered category ruleset in use.
func (s *WalkabilityService) Rules() []model.AmenityCategoryRule {
	return s.rules
}

// GetWalkabilityScore scores the area around the centroid of the isochrone.
// Only malformed geometry is reported as an error; discovery or scoring
// failures yield the empty result, which callers show as "no data".
func (s *WalkabilityService) GetWalkabilityScore(ctx context.Context, area model.AreaOfInterest) (model.WalkabilityResult, error) {
	origin, err := PolygonCentroid(area.Ring())
	if err != nil {
		return model.EmptyWalkabilityResult(), err
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(origin); ok {
			s.logger.Debug("walkability cache hit", zap.String("key", s.cache.Key(origin)))
			return cached, nil
		}
	}

	key := fmt.Sprintf("%.6f,%.6f", origin.Lat(), origin.Lon())
	if s.cache != nil {
		key = s.cache.Key(origin)
	}

	// Общий расчёт не зависит от отмены того, кто пришёл первым;
	// сверху его ограничивает таймаут Overpass
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.computeAndStore(shared, area, origin), nil
	})

	select {
	case res := <-ch:
		return res.Val.(model.WalkabilityResult), nil
	case <-ctx.Done():
		s.logger.Debug("walkability request abandoned", zap.Error(ctx.Err()))
		return model.EmptyWalkabilityResult(), nil
	}
}

// computeAndStore runs once per coalesced key, so the result is cached and
// recorded even when every waiting caller has gone away.
func (s *WalkabilityService) computeAndStore(ctx context.Context, area model.AreaOfInterest, origin orb.Point) model.WalkabilityResult {
	result := s.compute(ctx, area, origin)

	// Пустой результат не кэшируем: сбой источника не должен залипать
	if result.IsEmpty() {
		return result
	}

	if s.cache != nil {
		s.cache.Set(origin, result)
	}

	if s.recorder != nil {
		if err := s.recorder.RecordScore(ctx, origin, result); err != nil {
			s.logger.Warn("failed to record walkability score", zap.Error(err))
		}
	}

	return result
}

func (s *WalkabilityService) compute(ctx context.Context, area model.AreaOfInterest, origin orb.Point) (result model.WalkabilityResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("walkability scoring panicked", zap.Any("panic", r))
			result = model.EmptyWalkabilityResult()
		}
	}()

	features, err := s.source.DiscoverAmenities(ctx, area)
	if err != nil {
		s.logger.Warn("error fetching walkability data", zap.Error(err))
		return model.EmptyWalkabilityResult()
	}

	result = BuildResult(features, origin, s.rules)
	s.logger.Info("walkability score computed",
		zap.Int("score", result.Score),
		zap.Int("total_pois", result.TotalPOIs),
		zap.Float64("origin_lon", origin.Lon()),
		zap.Float64("origin_lat", origin.Lat()),
	)
	return result
}
