package schema

import (
	"fmt"
	"strings"
)

// AbsentValue is the sentinel bound to an optional parameter that was neither
// supplied nor defaulted. It is distinct from nil and from every falsy value,
// so tool implementations can tell "not supplied" apart from zero or empty.
type AbsentValue struct{}

func (AbsentValue) String() string { return "<absent>" }

// Absent is the shared sentinel instance.
var Absent = AbsentValue{}

// IsAbsent reports whether v is the absent sentinel.
func IsAbsent(v interface{}) bool {
	_, ok := v.(AbsentValue)
	return ok
}

// ValidationError reports every problem with a call's arguments at once, not
// just the first: all missing required names plus all type mismatches.
type ValidationError struct {
	Tool       string
	Missing    []string
	Mismatched []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required parameters: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Mismatched) > 0 {
		parts = append(parts, fmt.Sprintf("mismatched parameters: %s", strings.Join(e.Mismatched, "; ")))
	}
	return fmt.Sprintf("invalid arguments for tool %q: %s", e.Tool, strings.Join(parts, "; "))
}

// Validate returns the complete set of missing required parameter names, in
// contract order. Callers should pre-validate before dispatching a call and
// surface all missing fields in one response.
func (c *Contract) Validate(args map[string]interface{}) []string {
	var missing []string
	for _, p := range c.Params {
		if !p.Required {
			continue
		}
		if v, ok := args[p.Name]; !ok || v == nil {
			missing = append(missing, p.Name)
		}
	}
	return missing
}

// Bind resolves supplied arguments against the contract: required parameters
// are checked for presence and shape, optional parameters receive their
// default or the Absent sentinel, and union parameters are matched against
// their variants in declared order (first match wins). Arguments not named by
// the contract are dropped. The returned map is call-scoped.
func (c *Contract) Bind(args map[string]interface{}) (map[string]interface{}, error) {
	verr := &ValidationError{Tool: c.Tool, Missing: c.Validate(args)}

	bound := make(map[string]interface{}, len(c.Params))
	for i := range c.Params {
		p := &c.Params[i]
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				continue // already reported as missing
			}
			if p.Default != nil {
				bound[p.Name] = p.Default
			} else {
				bound[p.Name] = Absent
			}
			continue
		}

		if len(p.Spec.OneOf) > 0 {
			if _, ok := ResolveOneOf(p.Spec.OneOf, v); !ok {
				verr.Mismatched = append(verr.Mismatched,
					fmt.Sprintf("%s: value matches none of the declared alternatives", p.Name))
				continue
			}
		} else if !Compatible(p.Spec, v) {
			verr.Mismatched = append(verr.Mismatched,
				fmt.Sprintf("%s: expected %s, got %T", p.Name, p.Type, v))
			continue
		}
		bound[p.Name] = v
	}

	if len(verr.Missing) > 0 || len(verr.Mismatched) > 0 {
		return nil, verr
	}
	return bound, nil
}
