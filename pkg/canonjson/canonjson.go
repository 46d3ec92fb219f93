// Package canonjson produces deterministic JSON: object keys sorted, no
// incidental whitespace. Cache keys and webhook signatures both depend on a
// byte-stable encoding, so they share this one implementation.
package canonjson

import (
	"encoding/json"
	"fmt"
)

// Marshal encodes a value canonically. Any value is first normalized through
// a generic decode so struct field order and map iteration order cannot leak
// into the output; encoding/json writes map keys sorted.
func Marshal(value any) ([]byte, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}

	var normalized any
	if err := json.Unmarshal(encoded, &normalized); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}

	canonical, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode normalized value: %w", err)
	}

	return canonical, nil
}
