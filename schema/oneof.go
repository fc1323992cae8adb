package schema

import (
	"math"

	"github.com/sciforge/toolbridge/protocol"
)

// ResolveOneOf returns the first variant in declared order that v
// structurally satisfies. First-match in declaration order is deliberate:
// existing descriptors depend on this tie-break, so it must not be changed
// to best-match without a compatibility review.
func ResolveOneOf(variants []*protocol.ParameterSpec, v interface{}) (*protocol.ParameterSpec, bool) {
	for _, variant := range variants {
		if Compatible(variant, v) {
			return variant, true
		}
	}
	return nil, false
}

// Compatible reports whether v structurally satisfies spec.
func Compatible(spec *protocol.ParameterSpec, v interface{}) bool {
	if spec == nil {
		return false
	}
	if len(spec.OneOf) > 0 {
		_, ok := ResolveOneOf(spec.OneOf, v)
		return ok
	}
	if len(spec.Enum) > 0 && !enumAllows(spec.Enum, v) {
		return false
	}

	switch spec.Type {
	case protocol.TypeString:
		_, ok := v.(string)
		return ok
	case protocol.TypeBoolean:
		_, ok := v.(bool)
		return ok
	case protocol.TypeInteger:
		return isIntegral(v)
	case protocol.TypeNumber:
		return isNumeric(v)
	case protocol.TypeArray:
		items, ok := v.([]interface{})
		if !ok {
			return false
		}
		if spec.Items != nil {
			for _, item := range items {
				if !Compatible(spec.Items, item) {
					return false
				}
			}
		}
		return true
	case protocol.TypeObject:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return false
		}
		for name, nested := range spec.Properties {
			val, present := obj[name]
			if !present {
				if nested.Required {
					return false
				}
				continue
			}
			if !Compatible(nested, val) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// isIntegral accepts native integers and JSON numbers with no fractional part.
func isIntegral(v interface{}) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == math.Trunc(n)
	case float32:
		return float64(n) == math.Trunc(float64(n))
	default:
		return false
	}
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func enumAllows(enum []interface{}, v interface{}) bool {
	for _, allowed := range enum {
		if allowed == v {
			return true
		}
	}
	return false
}
