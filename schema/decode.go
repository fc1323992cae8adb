package schema

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs decodes a bound argument map into a strongly-typed struct T,
// matching fields by json tag. Absent sentinels are stripped first, so the
// struct's zero values stand in for unsupplied optional parameters.
func DecodeArgs[T any](args map[string]interface{}) (*T, error) {
	clean := make(map[string]interface{}, len(args))
	for k, v := range args {
		if IsAbsent(v) {
			continue
		}
		clean[k] = v
	}

	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating argument decoder: %w", err)
	}
	if err := decoder.Decode(clean); err != nil {
		return nil, fmt.Errorf("decoding arguments: %w", err)
	}
	return &out, nil
}
