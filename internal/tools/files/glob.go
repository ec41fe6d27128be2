package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nexusrun/coreagent/internal/tools"
	"github.com/nexusrun/coreagent/pkg/models"
)

const defaultGlobMaxResults = 500

// GlobTool finds files matching a doublestar pattern (supporting ** for
// recursive directory matching), returned lexicographically sorted so
// results are stable across runs.
type GlobTool struct {
	resolver Resolver
}

// NewGlobTool creates a glob tool scoped to the workspace.
func NewGlobTool(cfg Config) *GlobTool {
	return &GlobTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *GlobTool) ID() string          { return "glob" }
func (t *GlobTool) Description() string { return "Find files in the workspace matching a glob pattern." }

func (t *GlobTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Glob pattern, e.g. \"**/*.go\"."},
			"path": {"type": "string", "description": "Directory to search within, relative to the workspace root (default: root)."},
			"max_results": {"type": "integer", "minimum": 1, "description": "Cap on matches returned (default 500)."}
		},
		"required": ["pattern"]
	}`)
}

func (t *GlobTool) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) (*models.ToolCallResult, error) {
	var input struct {
		Pattern    string `json:"pattern"`
		Path       string `json:"path"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return toolError("invalid arguments", err.Error()), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("invalid arguments", "pattern is required"), nil
	}
	if !doublestar.ValidatePattern(input.Pattern) {
		return toolError("invalid pattern", fmt.Sprintf("%q is not a valid glob pattern", input.Pattern)), nil
	}
	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = defaultGlobMaxResults
	}

	searchRoot := t.resolver.rootAbs()
	if strings.TrimSpace(input.Path) != "" {
		resolved, err := t.resolver.Resolve(input.Path)
		if err != nil {
			return toolError("invalid path", err.Error()), nil
		}
		searchRoot = resolved
	}
	if _, err := os.Stat(searchRoot); err != nil {
		return toolError("not found", err.Error()), nil
	}

	matches, err := doublestar.Glob(os.DirFS(searchRoot), input.Pattern)
	if err != nil {
		return toolError("glob failed", err.Error()), nil
	}
	sort.Strings(matches)

	truncated := len(matches) > maxResults
	if truncated {
		matches = matches[:maxResults]
	}

	rel, relErr := filepath.Rel(t.resolver.rootAbs(), searchRoot)
	if relErr != nil {
		rel = searchRoot
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		if rel == "." {
			out[i] = m
		} else {
			out[i] = filepath.Join(rel, m)
		}
	}

	var b strings.Builder
	for _, m := range out {
		fmt.Fprintln(&b, m)
	}

	return &models.ToolCallResult{
		Title:      input.Pattern,
		OutputText: b.String(),
		MetadataJSON: map[string]any{
			"count":     len(out),
			"truncated": truncated,
		},
	}, nil
}
