package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/nexusrun/coreagent/internal/tools"
	"github.com/nexusrun/coreagent/pkg/models"
)

const (
	defaultReadLines = 2000
	maxLineBytes     = 2000
)

// ReadTool reads a text file as 1-based numbered lines, the same contract
// every provider-side "read file" affordance in this corpus converges on:
// cheap for a model to reference ("see line 42") and cheap to diff against
// a later edit.
type ReadTool struct {
	resolver Resolver
	cfg      Config
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	return &ReadTool{resolver: Resolver{Root: cfg.Workspace}, cfg: cfg}
}

func (t *ReadTool) ID() string          { return "read" }
func (t *ReadTool) Description() string { return "Read a file from the workspace, returning 1-based numbered lines." }

func (t *ReadTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Path to the file, relative to the workspace root."},
			"offset": {"type": "integer", "minimum": 1, "description": "1-based line number to start from (default 1)."},
			"limit": {"type": "integer", "minimum": 1, "description": "Maximum number of lines to return (default 2000)."}
		},
		"required": ["file_path"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) (*models.ToolCallResult, error) {
	var input struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return toolError("invalid arguments", err.Error()), nil
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return toolError("invalid arguments", "file_path is required"), nil
	}
	offset := input.Offset
	if offset <= 0 {
		offset = 1
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultReadLines
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
	if info.IsDir() {
		return toolError("is a directory", fmt.Sprintf("%s is a directory", input.FilePath)), nil
	}
	if info.Size() > t.cfg.maxFileBytes() {
		return toolError("too large", fmt.Sprintf("file is %d bytes, exceeds the %d byte limit", info.Size(), t.cfg.maxFileBytes())), nil
	}

	f, err := os.Open(resolved)
	if err != nil {
		return toolError("open failed", err.Error()), nil
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	if looksBinary(resolved, head[:n]) {
		return toolError("binary file", fmt.Sprintf("%s looks like a binary or image file and cannot be read as text", input.FilePath)), nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return toolError("seek failed", err.Error()), nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var b strings.Builder
	lineNo := 0
	returned := 0
	for scanner.Scan() {
		lineNo++
		if lineNo < offset {
			continue
		}
		if returned >= limit {
			break
		}
		line := scanner.Text()
		if len(line) > maxLineBytes {
			line = line[:maxLineBytes] + "…"
		}
		fmt.Fprintf(&b, "%6d\t%s\n", lineNo, line)
		returned++
	}
	if err := scanner.Err(); err != nil {
		return toolError("read failed", err.Error()), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if execCtx.IsAborted() {
		return toolError("aborted", "read was aborted"), nil
	}

	// offset >= total_lines is a normal boundary, not an error: the model
	// asked past EOF and gets zero data lines back.
	return &models.ToolCallResult{
		Title:      input.FilePath,
		OutputText: b.String(),
		MetadataJSON: map[string]any{
			"lines_returned": returned,
			"start_line":     offset,
			"total_lines":    lineNo,
		},
	}, nil
}
