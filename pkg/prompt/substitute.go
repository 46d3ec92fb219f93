package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/tirandagan/llmflow/pkg/execctx"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Substitute replaces ${name} and ${path.to[0].value} placeholders in a
// template with values from the variable map. Placeholders that resolve to
// nothing are left literal so a partially filled template degrades visibly
// instead of silently losing text.
func Substitute(template string, variables map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := match[2 : len(match)-1]

		value, err := execctx.ResolveIn(variables, path)
		if err != nil {
			return match
		}

		return coerceString(value)
	})
}

func coerceString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case map[string]any, []any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}

		return string(encoded)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
