// Package protocol defines the structures and constants for the toolbridge
// agent protocol: tool descriptors, the list/call/find operations, and the
// structured error payloads exchanged with clients.
package protocol

// Parameter type tokens accepted by the schema compiler.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// ParameterSpec describes a single tool parameter (JSON Schema subset).
// A spec either declares a concrete Type or a OneOf list of alternatives;
// array specs carry Items, object specs carry Properties.
type ParameterSpec struct {
	Type        string                    `json:"type,omitempty" yaml:"type,omitempty"`
	Description string                    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool                      `json:"required,omitempty" yaml:"required,omitempty"`
	Default     interface{}               `json:"default,omitempty" yaml:"default,omitempty"`
	Enum        []interface{}             `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items       *ParameterSpec            `json:"items,omitempty" yaml:"items,omitempty"`
	Properties  map[string]*ParameterSpec `json:"properties,omitempty" yaml:"properties,omitempty"`
	OneOf       []*ParameterSpec          `json:"oneOf,omitempty" yaml:"oneOf,omitempty"`
}

// ParameterSchema is the declarative parameter block of a descriptor.
// Type is always "object"; Properties maps parameter names to their specs.
type ParameterSchema struct {
	Type       string                    `json:"type" yaml:"type"`
	Properties map[string]*ParameterSpec `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ToolDescriptor is the declarative record describing one invocable tool.
// Name is globally unique within a loaded store; descriptors are immutable
// once published except through an explicit replace.
type ToolDescriptor struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string           `json:"category,omitempty" yaml:"category,omitempty"`
	Kind        string           `json:"kind,omitempty" yaml:"kind,omitempty"` // implementation family, e.g. "database-query"
	Parameters  *ParameterSchema `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	ReturnKind  string           `json:"returnKind,omitempty" yaml:"returnKind,omitempty"`
}

// Annotation carries the resolved behavior hints for one tool.
type Annotation struct {
	ReadOnly    bool `json:"readOnlyHint"`
	Destructive bool `json:"destructiveHint"`
}
