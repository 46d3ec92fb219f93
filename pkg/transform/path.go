package transform

import (
	"fmt"
	"strings"

	"github.com/tirandagan/llmflow/pkg/execctx"
)

// extractPath resolves an extraction path over nested data. It extends the
// shared path syntax with a `*` wildcard over arrays: "items[*].name" applies
// the remaining path to every element and collects the results.
func extractPath(data any, path string) (any, error) {
	if path == "" {
		return data, nil
	}

	head, tail, wildcard := splitWildcard(path)
	if !wildcard {
		return execctx.ResolveIn(data, path)
	}

	scope := data

	if head != "" {
		resolved, err := execctx.ResolveIn(data, head)
		if err != nil {
			return nil, err
		}

		scope = resolved
	}

	list, ok := scope.([]any)
	if !ok {
		return nil, fmt.Errorf("cannot apply wildcard to %T at %q", scope, path)
	}

	if tail == "" {
		return list, nil
	}

	collected := make([]any, 0, len(list))

	for i, element := range list {
		value, err := extractPath(element, tail)
		if err != nil {
			return nil, fmt.Errorf("wildcard element %d: %w", i, err)
		}

		collected = append(collected, value)
	}

	return collected, nil
}

// splitWildcard cuts the path at the first wildcard segment, accepting both
// "items[*].name" and "items.*.name" spellings.
func splitWildcard(path string) (head, tail string, found bool) {
	if idx := strings.Index(path, "[*]"); idx != -1 {
		return strings.TrimSuffix(path[:idx], "."), strings.TrimPrefix(path[idx+3:], "."), true
	}

	if path == "*" {
		return "", "", true
	}

	if after, ok := strings.CutPrefix(path, "*."); ok {
		return "", after, true
	}

	if idx := strings.Index(path, ".*"); idx != -1 {
		return path[:idx], strings.TrimPrefix(path[idx+2:], "."), true
	}

	return "", "", false
}
