package transform

import (
	"fmt"
	"regexp"
)

// regexExtract pulls substrings out of text. Config: "pattern" (required),
// optional "group" (capture index or name, default 0 for the full match),
// optional "all_matches" (default first match only), optional "source" path
// to the text. Non-string sources are stringified first.
func regexExtract(input any, config map[string]any, _ Options) (any, error) {
	pattern := stringOption(config, "pattern")
	if pattern == "" {
		return nil, fmt.Errorf("missing 'pattern' in config")
	}

	allMatches := boolOption(config, "all_matches")

	source := input

	if path := stringOption(config, "source"); path != "" {
		resolved, err := extractPath(input, path)
		if err != nil {
			return nil, fmt.Errorf("resolving source %q: %w", path, err)
		}

		source = resolved
	}

	text, ok := source.(string)
	if !ok {
		text = fmt.Sprintf("%v", source)
	}

	regex, err := regexp.Compile("(?ms)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern: %w", err)
	}

	group, err := resolveGroup(regex, config["group"])
	if err != nil {
		return nil, err
	}

	if allMatches {
		matches := regex.FindAllStringSubmatch(text, -1)
		extracted := make([]any, 0, len(matches))

		for _, match := range matches {
			extracted = append(extracted, match[group])
		}

		return extracted, nil
	}

	match := regex.FindStringSubmatch(text)
	if match == nil {
		return nil, nil
	}

	return match[group], nil
}

func resolveGroup(regex *regexp.Regexp, raw any) (int, error) {
	switch typed := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		group := int(typed)
		if group < 0 || group > regex.NumSubexp() {
			return 0, fmt.Errorf("capture group %d out of range (pattern has %d groups)", group, regex.NumSubexp())
		}

		return group, nil
	case int:
		if typed < 0 || typed > regex.NumSubexp() {
			return 0, fmt.Errorf("capture group %d out of range (pattern has %d groups)", typed, regex.NumSubexp())
		}

		return typed, nil
	case string:
		index := regex.SubexpIndex(typed)
		if index == -1 {
			return 0, fmt.Errorf("named capture group %q not found in pattern", typed)
		}

		return index, nil
	default:
		return 0, fmt.Errorf("'group' must be an index or name, got %T", raw)
	}
}
