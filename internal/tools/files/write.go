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

// WriteTool writes file contents within the workspace, creating parent
// directories as needed. Writes are atomic: content lands in a temp file
// next to the target and is renamed into place, so a crash mid-write never
// leaves a truncated file where a model expects a complete one.
type WriteTool struct {
	resolver Resolver
	cfg      Config
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{resolver: Resolver{Root: cfg.Workspace}, cfg: cfg}
}

func (t *WriteTool) ID() string          { return "write" }
func (t *WriteTool) Description() string { return "Write content to a file in the workspace, overwriting it if it exists." }

func (t *WriteTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Path to write, relative to the workspace root."},
			"content": {"type": "string", "description": "File contents to write."}
		},
		"required": ["file_path", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) (*models.ToolCallResult, error) {
	var input struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return toolError("invalid arguments", err.Error()), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return toolError("invalid arguments", "file_path is required"), nil
	}
	if int64(len(input.Content)) > t.cfg.maxFileBytes() {
		return toolError("too large", fmt.Sprintf("content is %d bytes, exceeds the %d byte limit", len(input.Content), t.cfg.maxFileBytes())), nil
	}
	if execCtx.IsAborted() {
		return toolError("aborted", "write was aborted"), nil
	}

	resolved, err := t.resolver.Resolve(input.FilePath)
	if err != nil {
		return toolError("invalid path", err.Error()), nil
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return toolError("create directory failed", err.Error()), nil
	}

	tmp := filepath.Join(dir, "."+filepath.Base(resolved)+".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, []byte(input.Content), 0o644); err != nil {
		return toolError("write failed", err.Error()), nil
	}
	if err := os.Rename(tmp, resolved); err != nil {
		_ = os.Remove(tmp)
		return toolError("write failed", err.Error()), nil
	}

	return &models.ToolCallResult{
		Title:      input.FilePath,
		OutputText: fmt.Sprintf("wrote %d bytes to %s", len(input.Content), input.FilePath),
		MetadataJSON: map[string]any{
			"bytes_written": len(input.Content),
		},
	}, nil
}
