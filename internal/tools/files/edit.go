package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/nexusrun/coreagent/internal/tools"
	"github.com/nexusrun/coreagent/pkg/models"
)

// EditTool applies a single find/replace edit to a file. Unless
// replace_all is set, old_string must match exactly once: zero matches is
// an error a model should recover from by reading the file again, and
// more than one is ambiguous and refused rather than guessed at.
type EditTool struct {
	resolver Resolver
	cfg      Config
}

// NewEditTool creates an edit tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{resolver: Resolver{Root: cfg.Workspace}, cfg: cfg}
}

func (t *EditTool) ID() string          { return "edit" }
func (t *EditTool) Description() string { return "Replace an exact string occurrence in a file." }

func (t *EditTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Path to edit, relative to the workspace root."},
			"old_string": {"type": "string", "description": "Exact text to replace."},
			"new_string": {"type": "string", "description": "Replacement text."},
			"replace_all": {"type": "boolean", "description": "Replace every occurrence instead of requiring exactly one (default false)."}
		},
		"required": ["file_path", "old_string", "new_string"]
	}`)
}

func (t *EditTool) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) (*models.ToolCallResult, error) {
	var input struct {
		FilePath   string `json:"file_path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return toolError("invalid arguments", err.Error()), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return toolError("invalid arguments", "file_path is required"), nil
	}
	if input.OldString == "" {
		return toolError("invalid arguments", "old_string is required"), nil
	}
	if input.OldString == input.NewString {
		return toolError("invalid arguments", "old_string and new_string must differ"), nil
	}
	if execCtx.IsAborted() {
		return toolError("aborted", "edit was aborted"), nil
	}

	resolved, err := t.resolver.Resolve(input.FilePath)
	if err != nil {
		return toolError("invalid path", err.Error()), nil
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return toolError("not found", notFoundWithSuggestions(t.resolver.rootAbs(), input.FilePath)), nil
		}
		return toolError("stat failed", err.Error()), nil
	}
	if info.Size() > t.cfg.maxFileBytes() {
		return toolError("too large", fmt.Sprintf("file is %d bytes, exceeds the %d byte limit", info.Size(), t.cfg.maxFileBytes())), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError("read failed", err.Error()), nil
	}
	content := string(data)

	count := strings.Count(content, input.OldString)
	switch {
	case count == 0:
		return toolError("not found", fmt.Sprintf("old_string not found in %s", input.FilePath)), nil
	case count > 1 && !input.ReplaceAll:
		return toolError("ambiguous", fmt.Sprintf("old_string matches %d times in %s; pass replace_all or give a more specific old_string", count, input.FilePath)), nil
	}

	var updated string
	var replacements int
	if input.ReplaceAll {
		updated = strings.ReplaceAll(content, input.OldString, input.NewString)
		replacements = count
	} else {
		updated = strings.Replace(content, input.OldString, input.NewString, 1)
		replacements = 1
	}

	dir := filepath.Dir(resolved)
	tmp := filepath.Join(dir, "."+filepath.Base(resolved)+".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, []byte(updated), 0o644); err != nil {
		return toolError("write failed", err.Error()), nil
	}
	if err := os.Rename(tmp, resolved); err != nil {
		_ = os.Remove(tmp)
		return toolError("write failed", err.Error()), nil
	}

	return &models.ToolCallResult{
		Title:      input.FilePath,
		OutputText: fmt.Sprintf("replaced %d occurrence(s) in %s", replacements, input.FilePath),
		MetadataJSON: map[string]any{
			"replacements": replacements,
		},
	}, nil
}
