package execctx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Token is one element of a parsed variable path: either a map key or a
// sequence index.
type Token struct {
	Key   string
	Index int
	IsKey bool
}

var (
	// ErrEmptyPath is returned when a path expression is empty.
	ErrEmptyPath = errors.New("path cannot be empty")
	// ErrUnmatchedBracket is returned for an index expression without a closing bracket.
	ErrUnmatchedBracket = errors.New("unmatched bracket in path")
)

// PathError reports a failed resolution with the path and offending segment.
type PathError struct {
	Path    string
	Segment string
	Reason  string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("cannot resolve path %q at %q: %s", e.Path, e.Segment, e.Reason)
}

// ParsePath tokenizes a dotted path with bracketed integer indices, e.g.
// "fetch.output.results[0][1].name". Workflows are user-authored data, so the
// parse stays at runtime, but all call sites share this single tokenizer.
func ParsePath(path string) ([]Token, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	tokens := make([]Token, 0, 4)

	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}

		rest := part

		for rest != "" {
			bracket := strings.IndexByte(rest, '[')
			if bracket == -1 {
				tokens = append(tokens, Token{Key: rest, IsKey: true})

				break
			}

			if bracket > 0 {
				tokens = append(tokens, Token{Key: rest[:bracket], IsKey: true})
			}

			closing := strings.IndexByte(rest, ']')
			if closing == -1 || closing < bracket {
				return nil, fmt.Errorf("%w: %q", ErrUnmatchedBracket, part)
			}

			index, err := strconv.Atoi(rest[bracket+1 : closing])
			if err != nil {
				return nil, fmt.Errorf("invalid array index %q in path segment %q", rest[bracket+1:closing], part)
			}

			tokens = append(tokens, Token{Index: index})
			rest = rest[closing+1:]
		}
	}

	if len(tokens) == 0 {
		return nil, ErrEmptyPath
	}

	return tokens, nil
}

// ResolveIn resolves a namespace-free path against arbitrary nested data.
// Transformations use it for their extraction paths so every path expression
// in the system goes through the same tokenizer.
func ResolveIn(data any, path string) (any, error) {
	tokens, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	return resolveTokens(path, data, tokens)
}

// resolveTokens walks the token list over nested maps and slices.
func resolveTokens(path string, data any, tokens []Token) (any, error) {
	current := data

	for _, token := range tokens {
		if token.IsKey {
			asMap, ok := current.(map[string]any)
			if !ok {
				return nil, &PathError{Path: path, Segment: token.Key, Reason: fmt.Sprintf("cannot access key on %T", current)}
			}

			value, found := asMap[token.Key]
			if !found {
				return nil, &PathError{Path: path, Segment: token.Key, Reason: "key not found"}
			}

			current = value

			continue
		}

		asSlice, ok := current.([]any)
		if !ok {
			return nil, &PathError{Path: path, Segment: fmt.Sprintf("[%d]", token.Index), Reason: fmt.Sprintf("cannot index %T", current)}
		}

		if token.Index < 0 || token.Index >= len(asSlice) {
			return nil, &PathError{Path: path, Segment: fmt.Sprintf("[%d]", token.Index), Reason: "index out of range"}
		}

		current = asSlice[token.Index]
	}

	return current, nil
}
