package transform

import "fmt"

// mergeSources combines objects resolved from multiple paths into one, later
// sources overriding earlier ones. Config: "sources" (required list of
// paths), optional "strategy" of "shallow" (default) or "deep". Non-object
// sources are skipped with a warning.
func mergeSources(input any, config map[string]any, opts Options) (any, error) {
	rawSources, ok := config["sources"].([]any)
	if !ok || len(rawSources) == 0 {
		return nil, fmt.Errorf("missing 'sources' in config")
	}

	strategy := stringOption(config, "strategy")
	if strategy == "" {
		strategy = "shallow"
	}

	if strategy != "shallow" && strategy != "deep" {
		return nil, fmt.Errorf("unknown merge strategy %q", strategy)
	}

	merged := make(map[string]any)

	for _, raw := range rawSources {
		path, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("merge source must be a path string, got %T", raw)
		}

		source, err := extractPath(input, path)
		if err != nil {
			return nil, fmt.Errorf("resolving merge source %q: %w", path, err)
		}

		asMap, ok := source.(map[string]any)
		if !ok {
			opts.Logger.Warn("skipping non-object merge source", "path", path)

			continue
		}

		if strategy == "deep" {
			deepMerge(merged, asMap)
		} else {
			for key, value := range asMap {
				merged[key] = value
			}
		}
	}

	return merged, nil
}

func deepMerge(target, source map[string]any) {
	for key, value := range source {
		sourceMap, sourceOK := value.(map[string]any)
		targetMap, targetOK := target[key].(map[string]any)

		if sourceOK && targetOK {
			deepMerge(targetMap, sourceMap)

			continue
		}

		target[key] = value
	}
}
