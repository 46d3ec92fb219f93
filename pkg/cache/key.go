package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tirandagan/llmflow/pkg/canonjson"
)

// Key derives the cache identity for a service call: the hex SHA-256 digest
// of "service|operation|<canonical params>". Canonical encoding makes the key
// independent of parameter order; any value change produces a different key.
func Key(service, operation string, params map[string]any) (string, error) {
	canonical, err := canonjson.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize cache params: %w", err)
	}

	digest := sha256.Sum256([]byte(service + "|" + operation + "|" + string(canonical)))

	return hex.EncodeToString(digest[:]), nil
}
