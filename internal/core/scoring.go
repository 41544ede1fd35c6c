package core

import (
	"math"
	"sort"
	"strings"
	"walkscore_service/internal/domain/model"

	"github.com/paulmach/orb"
)

const (
	// CategoryMax is the most points a single category can contribute.
	CategoryMax = 20.0
	// MaxDist is the walking radius in meters; anything farther scores 0 and is dropped.
	MaxDist = 2000.0
	// MaxAmenities is how many of the closest amenities count towards a category.
	MaxAmenities = 10
)

// AmenityScore maps a distance in meters to a utility in [0, 1] with linear
// decay: 1 at 0 m, 0 at MaxDist and beyond.
func AmenityScore(distance float64) float64 {
	if distance > MaxDist {
		return 0
	}
	if distance <= 0 {
		return 1
	}
	return 1 - distance/MaxDist
}

// ClassifyAmenities classifies every located feature, measures its distance
// from origin and keeps the ones within MaxDist. Each category slice is
// sorted by ascending distance. Every rule gets an entry, possibly empty.
func ClassifyAmenities(features []model.RawFeature, origin orb.Point, rules []model.AmenityCategoryRule) map[string][]model.ClassifiedAmenity {
	found := make(map[string][]model.ClassifiedAmenity, len(rules))
	for _, rule := range rules {
		found[rule.Name] = []model.ClassifiedAmenity{}
	}

	for _, f := range features {
		if !f.Located {
			continue
		}
		category, ok := Classify(f, rules)
		if !ok {
			continue
		}

		distance := DistanceMeters(origin, f.Point())
		if distance > MaxDist {
			continue
		}

		found[category] = append(found[category], model.ClassifiedAmenity{
			ID:       f.ID.String(),
			Category: category,
			Name:     f.Name(),
			Coords:   [2]float64{f.Lon, f.Lat},
			Distance: distance,
			Score:    AmenityScore(distance),
		})
	}

	for category := range found {
		amenities := found[category]
		sort.SliceStable(amenities, func(i, j int) bool {
			return amenities[i].Distance < amenities[j].Distance
		})
	}

	return found
}

// ScoreCategory sums the scores of the MaxAmenities closest amenities and
// scales the sum onto [0, CategoryMax]. A category with few amenities can
// only reach the maximum when they are all very close; density is rewarded.
func ScoreCategory(amenities []model.ClassifiedAmenity) float64 {
	sorted := make([]model.ClassifiedAmenity, len(amenities))
	copy(sorted, amenities)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Distance < sorted[j].Distance
	})
	if len(sorted) > MaxAmenities {
		sorted = sorted[:MaxAmenities]
	}

	var sum float64
	for _, a := range sorted {
		sum += AmenityScore(a.Distance)
	}

	return clamp(sum/MaxAmenities*CategoryMax, 0, CategoryMax)
}

// ScoreCategories scores every rule's category in rule order.
func ScoreCategories(found map[string][]model.ClassifiedAmenity, rules []model.AmenityCategoryRule) []model.CategoryScore {
	scores := make([]model.CategoryScore, 0, len(rules))
	for _, rule := range rules {
		scores = append(scores, model.CategoryScore{
			Name:  rule.Name,
			Value: ScoreCategory(found[rule.Name]),
		})
	}
	return scores
}

// MaxTotalScore is the ceiling of the overall score for the given ruleset.
func MaxTotalScore(rules []model.AmenityCategoryRule) float64 {
	return CategoryMax * float64(len(rules))
}

// BuildResult runs classification and scoring over the discovered features
// and assembles the result. totalPOIs counts every discovered element,
// including the ones that matched no category.
func BuildResult(features []model.RawFeature, origin orb.Point, rules []model.AmenityCategoryRule) model.WalkabilityResult {
	found := ClassifyAmenities(features, origin, rules)
	scores := ScoreCategories(found, rules)

	result := model.WalkabilityResult{
		RadarData:  make([]model.ChartDatum, 0, len(scores)),
		PieData:    make([]model.ChartDatum, 0, len(scores)),
		TotalPOIs:  len(features),
		Categories: found,
	}

	var total float64
	for _, s := range scores {
		label := displayName(s.Name)
		result.RadarData = append(result.RadarData, model.ChartDatum{Name: label, Value: int(math.Round(s.Value))})
		result.PieData = append(result.PieData, model.ChartDatum{Name: label, Value: len(found[s.Name])})
		total += s.Value
	}
	result.Score = int(math.Round(clamp(total, 0, MaxTotalScore(rules))))

	return result
}

func displayName(category string) string {
	if category == "" {
		return category
	}
	return strings.ToUpper(category[:1]) + category[1:]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
