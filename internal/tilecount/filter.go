package tilecount

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"walkscore_service/internal/domain/model"
)

type FilterKind int

const (
	// FilterUnknown is any expression the evaluator does not understand.
	FilterUnknown FilterKind = iota
	FilterAny
	FilterAll
	FilterIn
	FilterEq
)

func (k FilterKind) String() string {
	switch k {
	case FilterAny:
		return "any"
	case FilterAll:
		return "all"
	case FilterIn:
		return "in"
	case FilterEq:
		return "=="
	default:
		return "unknown"
	}
}

// Filter is a parsed layer filter expression, a subset of the map style
// filter language:
//
//	["any", f...]                  logical OR
//	["all", f...]                  logical AND
//	["in", value, ["get", prop]]   substring or JSON array membership
//	["==", prop, value]            exact equality
//	["==", ["get", prop], value]
//
// A nil *Filter matches everything.
type Filter struct {
	Kind     FilterKind
	Children []*Filter
	Property string
	Value    interface{}

	raw interface{}
}

// ParseFilter parses a JSON filter. null or an empty document yields nil.
func ParseFilter(data []byte) (*Filter, error) {
	var expr interface{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &expr); err != nil {
		return nil, fmt.Errorf("failed to parse filter: %w", err)
	}
	return FilterFromExpression(expr), nil
}

// FilterFromExpression builds a Filter from an already decoded expression.
func FilterFromExpression(expr interface{}) *Filter {
	if expr == nil {
		return nil
	}

	f := &Filter{Kind: FilterUnknown, raw: expr}
	arr, ok := expr.([]interface{})
	if !ok || len(arr) == 0 {
		return f
	}
	op, _ := arr[0].(string)

	switch op {
	case "any", "all":
		f.Kind = FilterAny
		if op == "all" {
			f.Kind = FilterAll
		}
		for _, sub := range arr[1:] {
			f.Children = append(f.Children, FilterFromExpression(sub))
		}
	case "in":
		if len(arr) < 3 {
			return f
		}
		if prop, ok := getProperty(arr[2]); ok {
			f.Kind = FilterIn
			f.Property = prop
			f.Value = arr[1]
		}
	case "==":
		if len(arr) < 3 {
			return f
		}
		if prop, ok := arr[1].(string); ok {
			f.Kind = FilterEq
			f.Property = prop
			f.Value = arr[2]
		} else if prop, ok := getProperty(arr[1]); ok {
			f.Kind = FilterEq
			f.Property = prop
			f.Value = arr[2]
		}
	}

	return f
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var expr interface{}
	if err := json.Unmarshal(data, &expr); err != nil {
		return fmt.Errorf("failed to parse filter: %w", err)
	}
	if parsed := FilterFromExpression(expr); parsed != nil {
		*f = *parsed
	}
	return nil
}

func (f *Filter) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	return json.Marshal(f.raw)
}

// Evaluate reports whether props pass the filter. Unknown expressions
// evaluate to true.
func Evaluate(f *Filter, props map[string]interface{}) bool {
	ok, _ := evaluate(f, props, false)
	return ok
}

// EvaluateStrict is Evaluate failing closed: an unknown expression anywhere
// in the tree yields false and ErrInvalidFilter.
func EvaluateStrict(f *Filter, props map[string]interface{}) (bool, error) {
	return evaluate(f, props, true)
}

func evaluate(f *Filter, props map[string]interface{}, strict bool) (bool, error) {
	if f == nil {
		return true, nil
	}

	switch f.Kind {
	case FilterAny:
		for _, child := range f.Children {
			ok, err := evaluate(child, props, strict)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case FilterAll:
		for _, child := range f.Children {
			ok, err := evaluate(child, props, strict)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case FilterIn:
		return evaluateIn(f.Value, props[f.Property]), nil
	case FilterEq:
		value, ok := props[f.Property]
		if !ok {
			return false, nil
		}
		return scalarEqual(value, f.Value), nil
	default:
		if strict {
			return false, fmt.Errorf("%w: %s", model.ErrInvalidFilter, rawString(f.raw))
		}
		return true, nil
	}
}

// evaluateIn looks for needle in the property: as an element when the
// property holds an array (native or JSON-encoded), as a substring otherwise.
func evaluateIn(needle, prop interface{}) bool {
	switch v := prop.(type) {
	case nil:
		return false
	case []interface{}:
		return containsValue(v, needle)
	case string:
		if strings.Contains(v, "[") {
			var parsed interface{}
			if err := json.Unmarshal([]byte(v), &parsed); err == nil {
				if arr, ok := parsed.([]interface{}); ok {
					return containsValue(arr, needle)
				}
			}
		}
		return strings.Contains(v, jsString(needle))
	default:
		return strings.Contains(jsString(v), jsString(needle))
	}
}

func containsValue(arr []interface{}, needle interface{}) bool {
	for _, item := range arr {
		if scalarEqual(item, needle) {
			return true
		}
	}
	return false
}

func rawString(expr interface{}) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(expr); err != nil {
		return fmt.Sprint(expr)
	}
	return strings.TrimSpace(buf.String())
}

func getProperty(expr interface{}) (string, bool) {
	arr, ok := expr.([]interface{})
	if !ok || len(arr) < 2 {
		return "", false
	}
	if op, _ := arr[0].(string); op != "get" {
		return "", false
	}
	prop, ok := arr[1].(string)
	return prop, ok
}

// scalarEqual compares strictly by type, except that every numeric type is
// compared as float64. Arrays and objects are never equal.
func scalarEqual(a, b interface{}) bool {
	a, b = normalizeNumber(a), normalizeNumber(b)
	switch av := a.(type) {
	case nil:
		return b == nil
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}

func normalizeNumber(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

// jsString renders a scalar the way a browser would when coercing it to a string.
func jsString(v interface{}) string {
	switch s := normalizeNumber(v).(type) {
	case nil:
		return "null"
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(s)
	}
}
