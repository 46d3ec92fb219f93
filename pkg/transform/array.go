package transform

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// arrayInput resolves the operation's working array: the value at
// "array_path" when configured, otherwise the input itself.
func arrayInput(input any, config map[string]any) ([]any, error) {
	data := input

	if path := stringOption(config, "array_path"); path != "" {
		resolved, err := extractPath(input, path)
		if err != nil {
			return nil, fmt.Errorf("resolving array_path %q: %w", path, err)
		}

		data = resolved
	}

	list, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array input, got %T", data)
	}

	return list, nil
}

// mapElements transforms each array element through a small expression:
// a field path (optionally prefixed "item."), with ".upper()" and ".lower()"
// suffixes for string casing. Config: "expression" (required), optional
// "array_path". A failed element maps to nil unless the policy is fail.
func mapElements(input any, config map[string]any, opts Options) (any, error) {
	expression := stringOption(config, "expression")
	if expression == "" {
		return nil, fmt.Errorf("missing 'expression' in config")
	}

	list, err := arrayInput(input, config)
	if err != nil {
		return nil, err
	}

	mapped := make([]any, 0, len(list))

	for _, element := range list {
		value, err := evaluateMapExpression(element, expression)
		if err != nil {
			if opts.Policy == PolicyFail {
				return nil, err
			}

			opts.Logger.Warn("map expression failed for element", "expression", expression, "error", err)
			mapped = append(mapped, nil)

			continue
		}

		mapped = append(mapped, value)
	}

	return mapped, nil
}

func evaluateMapExpression(element any, expression string) (any, error) {
	casing := ""

	if trimmed, ok := strings.CutSuffix(expression, ".upper()"); ok {
		expression, casing = trimmed, "upper"
	} else if trimmed, ok := strings.CutSuffix(expression, ".lower()"); ok {
		expression, casing = trimmed, "lower"
	}

	path := strings.TrimPrefix(expression, "item.")

	var value any

	if path == "" || path == "item" {
		// Bare "item" refers to the element itself.
		value = element
	} else {
		extracted, err := extractPath(element, path)
		if err != nil {
			return nil, err
		}

		value = extracted
	}

	switch casing {
	case "upper":
		if value == nil {
			return nil, nil
		}

		return strings.ToUpper(fmt.Sprintf("%v", value)), nil
	case "lower":
		if value == nil {
			return nil, nil
		}

		return strings.ToLower(fmt.Sprintf("%v", value)), nil
	default:
		return value, nil
	}
}

// joinElements concatenates array elements into one string, skipping nils.
// Config: optional "separator" (default ", "), optional "array_path".
func joinElements(input any, config map[string]any, _ Options) (any, error) {
	separator := ", "
	if value, ok := config["separator"].(string); ok {
		separator = value
	}

	list, err := arrayInput(input, config)
	if err != nil {
		return nil, err
	}

	parts := make([]string, 0, len(list))

	for _, element := range list {
		if element == nil {
			continue
		}

		parts = append(parts, fmt.Sprintf("%v", element))
	}

	return strings.Join(parts, separator), nil
}

// sortElements orders an array by an optional key path, ascending unless
// "reverse" is set. Elements (or their keys) must be mutually comparable.
func sortElements(input any, config map[string]any, _ Options) (any, error) {
	keyPath := stringOption(config, "key")
	reverse := boolOption(config, "reverse")

	list, err := arrayInput(input, config)
	if err != nil {
		return nil, err
	}

	type keyed struct {
		element any
		key     any
	}

	entries := make([]keyed, len(list))

	for i, element := range list {
		key := element

		if keyPath != "" {
			key, err = extractPath(element, keyPath)
			if err != nil {
				return nil, fmt.Errorf("resolving sort key %q: %w", keyPath, err)
			}
		}

		entries[i] = keyed{element: element, key: key}
	}

	// Verify comparability before sorting; sort.SliceStable cannot surface
	// errors from its less function.
	for i := 1; i < len(entries); i++ {
		if _, err := compareOrdered(entries[i-1].key, entries[i].key); err != nil {
			return nil, fmt.Errorf("sort: %w", err)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		cmp, _ := compareOrdered(entries[i].key, entries[j].key)
		if reverse {
			return cmp > 0
		}

		return cmp < 0
	})

	sorted := make([]any, len(entries))
	for i, entry := range entries {
		sorted[i] = entry.element
	}

	return sorted, nil
}

// uniqueElements drops duplicate array elements, keeping first occurrences.
// Config: optional "key" path for the identity value, optional "array_path".
// Compound values fall back to canonical serialization for the identity
// check.
func uniqueElements(input any, config map[string]any, _ Options) (any, error) {
	keyPath := stringOption(config, "key")

	list, err := arrayInput(input, config)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(list))
	unique := make([]any, 0, len(list))

	for _, element := range list {
		identity := element

		if keyPath != "" {
			identity, err = extractPath(element, keyPath)
			if err != nil {
				return nil, fmt.Errorf("resolving unique key %q: %w", keyPath, err)
			}
		}

		fingerprint, err := identityFingerprint(identity)
		if err != nil {
			return nil, err
		}

		if _, dup := seen[fingerprint]; dup {
			continue
		}

		seen[fingerprint] = struct{}{}
		unique = append(unique, element)
	}

	return unique, nil
}

// identityFingerprint serializes a value deterministically so compound values
// compare structurally. encoding/json writes map keys in sorted order.
func identityFingerprint(value any) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("fingerprinting value for dedupe: %w", err)
	}

	return string(encoded), nil
}
