package tilecount

import (
	"encoding/json"
	"testing"
	"walkscore_service/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, expr string) *Filter {
	t.Helper()
	f, err := ParseFilter([]byte(expr))
	require.NoError(t, err)
	return f
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		filter   string
		props    map[string]interface{}
		expected bool
	}{
		{"in matches", `["in", "supermarket", ["get", "shop"]]`, map[string]interface{}{"shop": "supermarket"}, true},
		{"in misses", `["in", "supermarket", ["get", "shop"]]`, map[string]interface{}{"shop": "bakery"}, false},
		{"in substring", `["in", "market", ["get", "shop"]]`, map[string]interface{}{"shop": "supermarket"}, true},
		{"in json array string", `["in", "cafe", ["get", "categories"]]`, map[string]interface{}{"categories": `["bar","cafe"]`}, true},
		{"in json array string exact", `["in", "caf", ["get", "categories"]]`, map[string]interface{}{"categories": `["bar","cafe"]`}, false},
		{"in broken json falls back to substring", `["in", "caf", ["get", "categories"]]`, map[string]interface{}{"categories": `[bar, cafe`}, true},
		{"in native array", `["in", "cafe", ["get", "categories"]]`, map[string]interface{}{"categories": []interface{}{"bar", "cafe"}}, true},
		{"in number property", `["in", "12", ["get", "level"]]`, map[string]interface{}{"level": int64(120)}, true},
		{"in missing property", `["in", "x", ["get", "shop"]]`, map[string]interface{}{}, false},
		{"eq legacy", `["==", "class", "school"]`, map[string]interface{}{"class": "school"}, true},
		{"eq legacy miss", `["==", "class", "school"]`, map[string]interface{}{"class": "college"}, false},
		{"eq get form", `["==", ["get", "rank"], 3]`, map[string]interface{}{"rank": uint64(3)}, true},
		{"eq strict types", `["==", "rank", "3"]`, map[string]interface{}{"rank": 3.0}, false},
		{"eq missing key", `["==", "class", null]`, map[string]interface{}{}, false},
		{"eq null value", `["==", "class", null]`, map[string]interface{}{"class": nil}, true},
		{"any", `["any", ["==", "a", 1], ["==", "b", 2]]`, map[string]interface{}{"b": 2}, true},
		{"any empty", `["any"]`, map[string]interface{}{}, false},
		{"all", `["all", ["==", "a", 1], ["==", "b", 2]]`, map[string]interface{}{"a": 1, "b": 3}, false},
		{"all empty", `["all"]`, map[string]interface{}{}, true},
		{"nested", `["all", ["any", ["==", "a", 1], ["==", "a", 2]], ["in", "x", ["get", "s"]]]`, map[string]interface{}{"a": 2, "s": "xyz"}, true},
		{"unknown op is lenient", `[">=", ["get", "rank"], 5]`, map[string]interface{}{"rank": 1}, true},
		{"legacy in is lenient", `["in", "shop", "supermarket", "bakery"]`, map[string]interface{}{"shop": "hardware"}, true},
		{"non array is lenient", `"shop"`, map[string]interface{}{}, true},
		{"null matches all", `null`, map[string]interface{}{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := mustParse(t, tt.filter)
			assert.Equal(t, tt.expected, Evaluate(f, tt.props))
		})
	}
}

func TestEvaluateStrict(t *testing.T) {
	f := mustParse(t, `["all", ["==", "a", 1], [">=", ["get", "rank"], 5]]`)

	ok, err := EvaluateStrict(f, map[string]interface{}{"a": 1.0, "rank": 9.0})
	assert.False(t, ok)
	assert.ErrorIs(t, err, model.ErrInvalidFilter)
	assert.Contains(t, err.Error(), ">=")

	// Короткое замыкание: до неизвестного выражения не доходим
	ok, err = EvaluateStrict(f, map[string]interface{}{"a": 2.0})
	assert.NoError(t, err)
	assert.False(t, ok)

	known := mustParse(t, `["in", "supermarket", ["get", "shop"]]`)
	ok, err = EvaluateStrict(known, map[string]interface{}{"shop": "supermarket"})
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestParseFilter(t *testing.T) {
	f := mustParse(t, `["any", ["in", "park", ["get", "class"]], ["==", ["get", "kind"], "garden"]]`)
	require.NotNil(t, f)
	assert.Equal(t, FilterAny, f.Kind)
	require.Len(t, f.Children, 2)

	assert.Equal(t, FilterIn, f.Children[0].Kind)
	assert.Equal(t, "class", f.Children[0].Property)
	assert.Equal(t, "park", f.Children[0].Value)

	assert.Equal(t, FilterEq, f.Children[1].Kind)
	assert.Equal(t, "kind", f.Children[1].Property)
	assert.Equal(t, "==", f.Children[1].Kind.String())

	empty, err := ParseFilter(nil)
	assert.NoError(t, err)
	assert.Nil(t, empty)

	_, err = ParseFilter([]byte(`["any",`))
	assert.Error(t, err)
}

func TestLayerJSON(t *testing.T) {
	var layer Layer
	err := json.Unmarshal([]byte(`{
		"id": "schools",
		"source": "osm",
		"source-layer": "poi",
		"filter": ["==", "class", "school"]
	}`), &layer)
	require.NoError(t, err)

	assert.Equal(t, "poi", layer.SourceLayerName())
	require.NotNil(t, layer.Filter)
	assert.Equal(t, FilterEq, layer.Filter.Kind)
	assert.True(t, Evaluate(layer.Filter, map[string]interface{}{"class": "school"}))

	out, err := json.Marshal(layer.Filter)
	require.NoError(t, err)
	assert.JSONEq(t, `["==", "class", "school"]`, string(out))

	var camel Layer
	require.NoError(t, json.Unmarshal([]byte(`{"id": "x", "source": "osm", "sourceLayer": "poi"}`), &camel))
	assert.Equal(t, "poi", camel.SourceLayerName())
	assert.Nil(t, camel.Filter)
}
