// Package prompt loads markdown prompt templates from disk, expanding
// {{include:path.md}} directives recursively. Variable substitution happens
// later against the run context.
package prompt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/tirandagan/llmflow/pkg/log"
)

// DefaultMaxIncludeDepth bounds include recursion.
const DefaultMaxIncludeDepth = 10

const maxCachedPrompts = 128

var includePattern = regexp.MustCompile(`\{\{include:([^}]+)\}\}`)

var (
	// ErrNotFound is returned when the requested template does not exist.
	ErrNotFound = errors.New("prompt template not found")
	// ErrUnsafePath is returned for paths escaping the prompt directory.
	ErrUnsafePath = errors.New("prompt path escapes base directory")
	// ErrMaxDepthExceeded is returned when includes nest too deeply.
	ErrMaxDepthExceeded = errors.New("maximum include depth exceeded")
)

// Loader reads and expands prompt templates under one base directory.
// Expanded templates are cached; safe for concurrent use.
type Loader struct {
	baseDir  string
	maxDepth int
	mu       sync.Mutex
	cache    map[string]string
	logger   *slog.Logger
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(baseDir string) (*Loader, error) {
	resolved, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve prompt directory %q: %w", baseDir, err)
	}

	return &Loader{
		baseDir:  resolved,
		maxDepth: DefaultMaxIncludeDepth,
		cache:    make(map[string]string),
		logger:   log.WithModule("prompt"),
	}, nil
}

// Load returns the template at relativePath with all includes expanded.
// Missing or unsafe includes are skipped with a warning; only the root
// template itself must exist.
func (l *Loader) Load(relativePath string) (string, error) {
	fullPath, err := l.resolve(l.baseDir, relativePath)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	cached, ok := l.cache[relativePath]
	l.mu.Unlock()

	if ok {
		return cached, nil
	}

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q", ErrNotFound, relativePath)
		}

		return "", fmt.Errorf("failed to read prompt %q: %w", relativePath, err)
	}

	content, err := l.expandIncludes(string(raw), filepath.Dir(fullPath), 0, map[string]struct{}{fullPath: {}})
	if err != nil {
		return "", err
	}

	l.store(relativePath, content)

	return content, nil
}

func (l *Loader) expandIncludes(content, currentDir string, depth int, visited map[string]struct{}) (string, error) {
	if depth > l.maxDepth {
		return "", fmt.Errorf("%w (%d levels)", ErrMaxDepthExceeded, l.maxDepth)
	}

	matches := includePattern.FindAllStringSubmatch(content, -1)

	for _, match := range matches {
		directive, includeRef := match[0], strings.TrimSpace(match[1])

		includePath, err := l.resolve(currentDir, includeRef)
		if err != nil {
			l.logger.Warn("skipping unsafe include", "include", includeRef)

			continue
		}

		if _, seen := visited[includePath]; seen {
			l.logger.Warn("skipping circular include", "include", includeRef)

			continue
		}

		raw, err := os.ReadFile(includePath)
		if err != nil {
			l.logger.Warn("skipping unreadable include", "include", includeRef, "error", err)

			continue
		}

		nested := make(map[string]struct{}, len(visited)+1)
		for path := range visited {
			nested[path] = struct{}{}
		}
		nested[includePath] = struct{}{}

		expanded, err := l.expandIncludes(string(raw), filepath.Dir(includePath), depth+1, nested)
		if err != nil {
			return "", err
		}

		content = strings.Replace(content, directive, expanded, 1)
	}

	return content, nil
}

// resolve joins and cleans a path, rejecting anything outside the base
// directory.
func (l *Loader) resolve(dir, relative string) (string, error) {
	fullPath := filepath.Clean(filepath.Join(dir, relative))

	if fullPath != l.baseDir && !strings.HasPrefix(fullPath, l.baseDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, relative)
	}

	return fullPath, nil
}

func (l *Loader) store(relativePath, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.cache) >= maxCachedPrompts {
		for key := range l.cache {
			delete(l.cache, key)

			break
		}
	}

	l.cache[relativePath] = content
}
