package core

import "walkscore_service/internal/domain/model"

// DefaultCategoryRules is the fixed, ordered amenity ruleset. Order matters:
// a feature is assigned to the first category whose filters match.
var DefaultCategoryRules = []model.AmenityCategoryRule{
	{
		Name: "grocery",
		Filters: []model.TagFilter{
			{Key: "shop", Values: []string{"supermarket", "grocery", "convenience", "bakery", "butcher", "greengrocer", "deli", "farm", "organic", "spices", "wine", "alcohol", "beverages"}},
		},
	},
	{
		Name: "dining",
		Filters: []model.TagFilter{
			{Key: "amenity", Values: []string{"restaurant", "cafe", "fast_food", "bar", "pub"}},
		},
	},
	{
		Name: "parks",
		Filters: []model.TagFilter{
			{Key: "leisure", Values: []string{"park", "garden"}},
			{Key: "landuse", Values: []string{"recreation_ground"}},
		},
	},
	{
		Name: "schools",
		Filters: []model.TagFilter{
			{Key: "amenity", Values: []string{"school", "university", "kindergarten"}},
		},
	},
	{
		Name: "retail",
		Filters: []model.TagFilter{
			{Key: "shop", Values: []string{"clothes", "department_store", "mall", "shoes", "variety_store", "electronics", "furniture", "books", "toys", "sports", "jewelry", "gift", "beauty", "cosmetics", "pharmacy", "optician", "mobile_phone", "computer", "hardware", "doityourself"}},
		},
	},
	{
		Name: "transit",
		Filters: []model.TagFilter{
			{Key: "amenity", Values: []string{"bus_station", "ferry_terminal"}},
			{Key: "public_transport", Values: []string{"station", "stop_position"}},
			{Key: "railway", Values: []string{"station", "halt", "tram_stop"}},
			{Key: "highway", Values: []string{"bus_stop"}},
		},
	},
}

// Classify returns the first category in rules that matches the feature's
// tags. Matching is exact and case-sensitive. A miss is not an error.
func Classify(feature model.RawFeature, rules []model.AmenityCategoryRule) (string, bool) {
	for _, rule := range rules {
		for _, filter := range rule.Filters {
			if tagMatches(feature.Tags, filter) {
				return rule.Name, true
			}
		}
	}
	return "", false
}

func tagMatches(tags map[string]string, filter model.TagFilter) bool {
	value, ok := tags[filter.Key]
	if !ok || value == "" {
		return false
	}
	for _, v := range filter.Values {
		if v == value {
			return true
		}
	}
	return false
}
