// Package workflow loads declarative workflow definitions from JSON files.
//
// Definitions are read from a single base directory, validated against a
// JSON schema and the model-level rules, and cached immutably: a workflow
// never changes between loads within one process.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/tirandagan/llmflow/pkg/log"
	"github.com/tirandagan/llmflow/pkg/models"
)

var (
	// ErrWorkflowNotFound is returned when no definition file exists for the name.
	ErrWorkflowNotFound = errors.New("workflow definition not found")
	// ErrInvalidDefinition is returned when a definition file fails validation.
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	// ErrUnsafeName is returned for workflow names escaping the base directory.
	ErrUnsafeName = errors.New("workflow name escapes base directory")
)

// definitionSchema is the structural contract for definition files. Model
// validation adds the rules a schema cannot express, like unique step ids.
const definitionSchema = `{
	"type": "object",
	"required": ["name", "version", "steps"],
	"properties": {
		"name": {"type": "string", "minLength": 3},
		"version": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"error_mode": {"enum": ["fail", "continue", "retry"]},
		"timeout_seconds": {"type": "integer", "minimum": 1},
		"inputs": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "maxLength": 50},
					"type": {"type": "string"},
					"description": {"type": "string"},
					"required": {"type": "boolean"}
				}
			}
		},
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["id", "type"],
				"properties": {
					"id": {"type": "string", "minLength": 1, "maxLength": 50},
					"type": {"enum": ["llm", "transform", "external_service"]},
					"display_name": {"type": "string"},
					"error_mode": {"enum": ["fail", "continue", "retry"]},
					"output_var": {"type": "string"},
					"config": {"type": "object"}
				}
			}
		}
	}
}`

// Loader reads workflow definitions from one base directory.
// Loaded definitions are cached; safe for concurrent use.
type Loader struct {
	baseDir string
	schema  *gojsonschema.Schema
	mu      sync.RWMutex
	cache   map[string]*models.Workflow
	logger  *slog.Logger
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(baseDir string) (*Loader, error) {
	resolved, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workflow directory %q: %w", baseDir, err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(definitionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow schema: %w", err)
	}

	return &Loader{
		baseDir: resolved,
		schema:  schema,
		cache:   make(map[string]*models.Workflow),
		logger:  log.WithModule("workflow"),
	}, nil
}

// Load returns the validated workflow definition for name, reading
// <name>.json under the base directory on first use.
func (l *Loader) Load(name string) (*models.Workflow, error) {
	l.mu.RLock()
	cached, ok := l.cache[name]
	l.mu.RUnlock()

	if ok {
		return cached, nil
	}

	fullPath, err := l.resolve(name)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrWorkflowNotFound, name)
		}

		return nil, fmt.Errorf("failed to read workflow %q: %w", name, err)
	}

	workflow, err := l.parse(name, raw)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[name] = workflow
	l.mu.Unlock()

	l.logger.Info("Loaded workflow definition",
		"workflow_name", workflow.Name,
		"version", workflow.Version,
		"steps", len(workflow.Steps))

	return workflow, nil
}

// Names lists the workflow names available in the base directory.
func (l *Loader) Names() ([]string, error) {
	entries, err := os.ReadDir(l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow directory: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}

	return names, nil
}

func (l *Loader) parse(name string, raw []byte) (*models.Workflow, error) {
	result, err := l.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidDefinition, name, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return nil, fmt.Errorf("%w: %q: %s", ErrInvalidDefinition, name, strings.Join(details, "; "))
	}

	var workflow models.Workflow

	err = json.Unmarshal(raw, &workflow)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidDefinition, name, err)
	}

	err = workflow.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	return &workflow, nil
}

func (l *Loader) resolve(name string) (string, error) {
	fullPath := filepath.Join(l.baseDir, name+".json")
	if !strings.HasPrefix(fullPath, l.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}

	return fullPath, nil
}
