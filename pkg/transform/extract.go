package transform

import "fmt"

// extractFields builds a new object by resolving a named set of extraction
// paths. Config: "paths" maps output field names to paths, optional "source"
// scopes resolution to a sub-object. A failed path fails the operation under
// PolicyFail; otherwise the field is recorded as nil and logged.
func extractFields(input any, config map[string]any, opts Options) (any, error) {
	paths, ok := config["paths"].(map[string]any)
	if !ok || len(paths) == 0 {
		return nil, fmt.Errorf("missing 'paths' in config")
	}

	source := input

	if sourceKey := stringOption(config, "source"); sourceKey != "" {
		resolved, err := extractPath(input, sourceKey)
		if err != nil {
			return nil, fmt.Errorf("resolving source %q: %w", sourceKey, err)
		}

		source = resolved
	}

	result := make(map[string]any, len(paths))

	for field, raw := range paths {
		path, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("path for field %q must be a string, got %T", field, raw)
		}

		value, err := extractPath(source, path)
		if err != nil {
			if opts.Policy == PolicyFail {
				return nil, fmt.Errorf("extracting %q: %w", path, err)
			}

			opts.Logger.Warn("field extraction failed", "field", field, "path", path, "error", err)
			result[field] = nil

			continue
		}

		result[field] = value
	}

	return result, nil
}
