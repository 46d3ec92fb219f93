package transform

import (
	"fmt"
	"strconv"
	"strings"
)

// conditionOperators in match order. "not in" must precede "in" so the longer
// operator wins.
var conditionOperators = []string{"==", "!=", ">=", "<=", ">", "<", " not in ", " in ", " contains "}

// filterElements keeps the array elements satisfying a condition expression
// such as `item.age >= 18` or `item.types contains "restaurant"`. Config:
// "condition" (required), optional "array_path".
func filterElements(input any, config map[string]any, opts Options) (any, error) {
	condition := stringOption(config, "condition")
	if condition == "" {
		return nil, fmt.Errorf("missing 'condition' in config")
	}

	list, err := arrayInput(input, config)
	if err != nil {
		return nil, err
	}

	filtered := make([]any, 0, len(list))

	for _, element := range list {
		keep, err := evaluateCondition(element, condition)
		if err != nil {
			if opts.Policy == PolicyFail {
				return nil, err
			}

			opts.Logger.Warn("filter condition failed for element", "condition", condition, "error", err)

			continue
		}

		if keep {
			filtered = append(filtered, element)
		}
	}

	return filtered, nil
}

func evaluateCondition(element any, condition string) (bool, error) {
	for _, operator := range conditionOperators {
		idx := strings.Index(condition, operator)
		if idx == -1 {
			continue
		}

		left, err := evaluateExpression(element, strings.TrimSpace(condition[:idx]))
		if err != nil {
			return false, err
		}

		right, err := evaluateExpression(element, strings.TrimSpace(condition[idx+len(operator):]))
		if err != nil {
			return false, err
		}

		return applyOperator(strings.TrimSpace(operator), left, right)
	}

	return false, fmt.Errorf("%w: %q", ErrInvalidCondition, condition)
}

func applyOperator(operator string, left, right any) (bool, error) {
	switch operator {
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case ">", ">=", "<", "<=":
		cmp, err := compareOrdered(left, right)
		if err != nil {
			return false, err
		}

		switch operator {
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		case "<":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case "in":
		return contains(right, left)
	case "not in":
		found, err := contains(right, left)

		return !found, err
	case "contains":
		return contains(left, right)
	default:
		return false, fmt.Errorf("%w: unsupported operator %q", ErrInvalidCondition, operator)
	}
}

// evaluateExpression resolves one side of a condition: a quoted string,
// numeric, boolean, or null literal, or a field path relative to the element
// (with an optional "item." prefix).
func evaluateExpression(element any, expr string) (any, error) {
	if len(expr) >= 2 {
		if (expr[0] == '"' && expr[len(expr)-1] == '"') || (expr[0] == '\'' && expr[len(expr)-1] == '\'') {
			return expr[1 : len(expr)-1], nil
		}
	}

	if number, err := strconv.ParseFloat(expr, 64); err == nil {
		return number, nil
	}

	switch strings.ToLower(expr) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null", "none":
		return nil, nil
	}

	path := strings.TrimPrefix(expr, "item.")

	return extractPath(element, path)
}

func valuesEqual(left, right any) bool {
	if leftNum, ok := asFloat(left); ok {
		if rightNum, ok := asFloat(right); ok {
			return leftNum == rightNum
		}
	}

	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right) && fmt.Sprintf("%T", left) == fmt.Sprintf("%T", right)
}

func compareOrdered(left, right any) (int, error) {
	if leftNum, ok := asFloat(left); ok {
		if rightNum, ok := asFloat(right); ok {
			switch {
			case leftNum < rightNum:
				return -1, nil
			case leftNum > rightNum:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	leftStr, leftOK := left.(string)
	rightStr, rightOK := right.(string)

	if leftOK && rightOK {
		return strings.Compare(leftStr, rightStr), nil
	}

	return 0, fmt.Errorf("cannot compare %T with %T", left, right)
}

func contains(container, value any) (bool, error) {
	switch typed := container.(type) {
	case string:
		return strings.Contains(typed, fmt.Sprintf("%v", value)), nil
	case []any:
		for _, element := range typed {
			if valuesEqual(element, value) {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("membership check requires a string or array, got %T", container)
	}
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}
