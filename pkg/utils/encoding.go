// JSON helpers for the export surface and event payloads.
//
// Derived read models are plain records, so stdlib JSON covers the whole
// serialization surface; wrappers exist only to attach context to errors and
// to keep the raw endpoints terse.
package utils

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes v, wrapping errors with context.
func MarshalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// UnmarshalJSON decodes data into v.
func UnmarshalJSON(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("cannot unmarshal empty data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// PrettyJSON formats JSON with indentation for the debug export endpoints.
func PrettyJSON(data []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format JSON: %w", err)
	}
	return pretty, nil
}
