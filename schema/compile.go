// Package schema compiles declarative tool parameter specs into validated,
// typed call contracts. The compiler owns all contracts; the execution engine
// borrows them per call and never mutates them.
package schema

import (
	"fmt"
	"sort"

	"github.com/sciforge/toolbridge/protocol"
)

// Param is one compiled parameter slot in a contract.
type Param struct {
	Name     string
	Type     string // concrete type token; empty when the param is a oneOf union
	Required bool
	Default  interface{}
	Spec     *protocol.ParameterSpec // sanitized spec used for structural checks
}

// Contract is the compiled, executable form of a tool descriptor: an ordered
// parameter list plus the validation rules applied at call time. Required
// parameters always precede optional ones.
type Contract struct {
	Tool   string
	Kind   string
	Params []Param

	byName map[string]int
}

// Param looks up a compiled parameter by name.
func (c *Contract) Param(name string) (*Param, bool) {
	i, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return &c.Params[i], true
}

// CompileError reports a descriptor whose parameter spec cannot be compiled.
// Failures are isolated per tool: a bulk registry load logs them and keeps going.
type CompileError struct {
	Tool   string
	Param  string
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compiling tool %q: parameter %q: %s", e.Tool, e.Param, e.Reason)
}

var knownTypes = map[string]bool{
	protocol.TypeString:  true,
	protocol.TypeInteger: true,
	protocol.TypeNumber:  true,
	protocol.TypeBoolean: true,
	protocol.TypeArray:   true,
	protocol.TypeObject:  true,
}

// Compile turns a descriptor's parameter spec into a call contract.
//
// Required parameters are collected before optional ones (record construction
// in typed callers needs required-first ordering); within each group the
// order is stable by name. Optional parameters that omit a default are bound
// to the Absent sentinel at call time. Malformed but harmless spec fields
// (a default on a required parameter, a `required` flag on an array item
// schema) are sanitized by dropping the field rather than failing the
// compile; an unrepresentable type on a required parameter is a CompileError,
// while an unrepresentable optional parameter is dropped from the contract.
func Compile(d protocol.ToolDescriptor) (*Contract, error) {
	c := &Contract{Tool: d.Name, Kind: d.Kind, byName: make(map[string]int)}
	if d.Parameters == nil || len(d.Parameters.Properties) == 0 {
		return c, nil
	}

	names := make([]string, 0, len(d.Parameters.Properties))
	for name := range d.Parameters.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	var required, optional []Param
	for _, name := range names {
		spec := d.Parameters.Properties[name]
		compiled, err := compileSpec(spec)
		if err != nil {
			if spec != nil && spec.Required {
				return nil, &CompileError{Tool: d.Name, Param: name, Reason: err.Error()}
			}
			// Optional parameter with an unrepresentable spec: drop it.
			continue
		}

		p := Param{
			Name:     name,
			Type:     compiled.Type,
			Required: spec.Required,
			Spec:     compiled,
		}
		if spec.Required {
			// Required params must not carry defaults; sanitize by dropping.
			required = append(required, p)
		} else {
			p.Default = spec.Default
			optional = append(optional, p)
		}
	}

	c.Params = append(required, optional...)
	for i, p := range c.Params {
		c.byName[p.Name] = i
	}
	return c, nil
}

// compileSpec returns a sanitized copy of spec with nested specs compiled
// recursively. It errors on unknown type tokens; the caller decides whether
// that aborts the parameter or the whole compile.
func compileSpec(spec *protocol.ParameterSpec) (*protocol.ParameterSpec, error) {
	if spec == nil {
		return nil, fmt.Errorf("missing parameter spec")
	}

	out := &protocol.ParameterSpec{
		Type:        spec.Type,
		Description: spec.Description,
		Default:     spec.Default,
		Enum:        spec.Enum,
	}

	if len(spec.OneOf) > 0 {
		out.Type = "" // the union variants carry the concrete types
		out.OneOf = make([]*protocol.ParameterSpec, 0, len(spec.OneOf))
		for i, variant := range spec.OneOf {
			cv, err := compileSpec(variant)
			if err != nil {
				return nil, fmt.Errorf("oneOf variant %d: %w", i, err)
			}
			cv.Required = false // not meaningful on a variant
			out.OneOf = append(out.OneOf, cv)
		}
		return out, nil
	}

	if !knownTypes[spec.Type] {
		return nil, fmt.Errorf("unknown type token %q", spec.Type)
	}

	if spec.Type == protocol.TypeArray && spec.Items != nil {
		items, err := compileSpec(spec.Items)
		if err != nil {
			return nil, fmt.Errorf("array items: %w", err)
		}
		items.Required = false // `required` at the item level is not meaningful
		out.Items = items
	}

	if spec.Type == protocol.TypeObject && len(spec.Properties) > 0 {
		out.Properties = make(map[string]*protocol.ParameterSpec, len(spec.Properties))
		for name, nested := range spec.Properties {
			cn, err := compileSpec(nested)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			cn.Required = nested.Required // nested requiredness is meaningful for objects
			out.Properties[name] = cn
		}
	}

	return out, nil
}
