// Package engine runs compiled tool calls on a bounded worker pool, keeping
// slow or hanging tools off the protocol-handling goroutine.
package engine

import (
	"encoding/json"
	"fmt"
)

type outputKind int

const (
	kindStructured outputKind = iota
	kindText
	kindSerialized
)

// Output is the closed set of shapes a tool implementation may return:
// a structured value, plain text, or text the tool claims is already
// serialized. The adapter at the engine boundary produces exactly one of
// these, so downstream code never branches on ad hoc type checks.
type Output struct {
	kind       outputKind
	structured interface{}
	text       string
}

// Structured wraps a value that will be serialized by the engine.
func Structured(v interface{}) Output {
	return Output{kind: kindStructured, structured: v}
}

// Text wraps a plain-text result.
func Text(s string) Output {
	return Output{kind: kindText, text: s}
}

// AlreadySerialized wraps text the tool asserts is serialized structured
// data. The claim is verified at normalization time.
func AlreadySerialized(s string) Output {
	return Output{kind: kindSerialized, text: s}
}

// IsText reports whether the output is the plain-text variant.
func (o Output) IsText() bool { return o.kind == kindText }

// Text returns the textual form of the output: the string itself for text
// and pre-serialized variants, the JSON rendering for structured values.
// Hook conditions (length thresholds) evaluate against this form.
func (o Output) Text() string {
	switch o.kind {
	case kindStructured:
		data, err := json.Marshal(o.structured)
		if err != nil {
			return fmt.Sprintf("%v", o.structured)
		}
		return string(data)
	default:
		return o.text
	}
}

// Normalize renders the output as a single well-formed JSON payload. Raw
// returns that cannot be parsed as already-serialized structured data are
// wrapped under a single "result" field rather than discarded or mis-parsed.
func (o Output) Normalize() (json.RawMessage, error) {
	switch o.kind {
	case kindStructured:
		data, err := json.Marshal(o.structured)
		if err != nil {
			return nil, fmt.Errorf("serializing structured result: %w", err)
		}
		return data, nil
	case kindSerialized:
		if json.Valid([]byte(o.text)) {
			return json.RawMessage(o.text), nil
		}
		return wrapResult(o.text)
	default:
		return wrapResult(o.text)
	}
}

func wrapResult(s string) (json.RawMessage, error) {
	data, err := json.Marshal(map[string]string{"result": s})
	if err != nil {
		return nil, fmt.Errorf("wrapping text result: %w", err)
	}
	return data, nil
}
