package files

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nexusrun/coreagent/internal/tools"
	"github.com/nexusrun/coreagent/pkg/models"
)

type grepOutputMode string

const (
	grepModeContent         grepOutputMode = "content"
	grepModeFilesWithMatches grepOutputMode = "files_with_matches"
	grepModeCount           grepOutputMode = "count"
)

// GrepTool searches file contents by regular expression, grounded on the
// content/files_with_matches/count output modes a model expects from a
// ripgrep-flavored search tool.
type GrepTool struct {
	resolver Resolver
}

// NewGrepTool creates a grep tool scoped to the workspace.
func NewGrepTool(cfg Config) *GrepTool {
	return &GrepTool{resolver: Resolver{Root: cfg.Workspace}}
}

func (t *GrepTool) ID() string          { return "grep" }
func (t *GrepTool) Description() string { return "Search file contents in the workspace by regular expression." }

func (t *GrepTool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Regular expression to search for."},
			"path": {"type": "string", "description": "Directory or file to search, relative to the workspace root (default: root)."},
			"glob": {"type": "string", "description": "Restrict the search to files matching this glob, e.g. \"**/*.go\"."},
			"output_mode": {"type": "string", "enum": ["content", "files_with_matches", "count"], "description": "What to return (default content)."},
			"case_insensitive": {"type": "boolean"},
			"context_before": {"type": "integer", "minimum": 0},
			"context_after": {"type": "integer", "minimum": 0},
			"max_count": {"type": "integer", "minimum": 1, "description": "Stop after this many matching lines per file."}
		},
		"required": ["pattern"]
	}`)
}

type grepInput struct {
	Pattern         string `json:"pattern"`
	Path            string `json:"path"`
	Glob            string `json:"glob"`
	OutputMode      string `json:"output_mode"`
	CaseInsensitive bool   `json:"case_insensitive"`
	ContextBefore   int    `json:"context_before"`
	ContextAfter    int    `json:"context_after"`
	MaxCount        int    `json:"max_count"`
}

func (t *GrepTool) Execute(ctx context.Context, args json.RawMessage, execCtx *tools.ExecutionContext) (*models.ToolCallResult, error) {
	var input grepInput
	if err := json.Unmarshal(args, &input); err != nil {
		return toolError("invalid arguments", err.Error()), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("invalid arguments", "pattern is required"), nil
	}
	mode := grepOutputMode(input.OutputMode)
	if mode == "" {
		mode = grepModeContent
	}
	if mode != grepModeContent && mode != grepModeFilesWithMatches && mode != grepModeCount {
		return toolError("invalid arguments", fmt.Sprintf("unknown output_mode %q", input.OutputMode)), nil
	}

	pattern := input.Pattern
	if input.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return toolError("invalid pattern", err.Error()), nil
	}

	searchRoot := t.resolver.rootAbs()
	if strings.TrimSpace(input.Path) != "" {
		resolved, rerr := t.resolver.Resolve(input.Path)
		if rerr != nil {
			return toolError("invalid path", rerr.Error()), nil
		}
		searchRoot = resolved
	}
	info, err := os.Stat(searchRoot)
	if err != nil {
		return toolError("not found", err.Error()), nil
	}

	var files []string
	if info.IsDir() {
		files, err = t.listFiles(searchRoot, input.Glob)
		if err != nil {
			return toolError("search failed", err.Error()), nil
		}
	} else {
		files = []string{searchRoot}
	}

	var b strings.Builder
	matchedFiles := 0
	totalMatches := 0
	for _, f := range files {
		if execCtx.IsAborted() {
			return toolError("aborted", "grep was aborted"), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		count, err := t.searchFile(f, re, mode, input, &b)
		if err != nil {
			continue // unreadable/binary files are skipped, not fatal
		}
		if count > 0 {
			matchedFiles++
			totalMatches += count
		}
	}

	if totalMatches == 0 && matchedFiles == 0 {
		return &models.ToolCallResult{
			Title:      input.Pattern,
			OutputText: "no matches",
			MetadataJSON: map[string]any{"matches": 0, "files": 0},
		}, nil
	}

	return &models.ToolCallResult{
		Title:      input.Pattern,
		OutputText: b.String(),
		MetadataJSON: map[string]any{
			"matches": totalMatches,
			"files":   matchedFiles,
		},
	}, nil
}

func (t *GrepTool) listFiles(root, globPattern string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if globPattern != "" {
			rel, rerr := filepath.Rel(root, p)
			if rerr != nil {
				return nil
			}
			ok, merr := doublestar.Match(globPattern, filepath.ToSlash(rel))
			if merr != nil || !ok {
				return nil
			}
		}
		out = append(out, p)
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (t *GrepTool) searchFile(path string, re *regexp.Regexp, mode grepOutputMode, input grepInput, b *strings.Builder) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	if looksBinary(path, head[:n]) {
		return 0, fmt.Errorf("binary file")
	}
	if _, err := f.Seek(0, 0); err != nil {
		return 0, err
	}

	rel, relErr := filepath.Rel(t.resolver.rootAbs(), path)
	if relErr != nil {
		rel = path
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}

	count := 0
	for i, line := range lines {
		if !re.MatchString(line) {
			continue
		}
		count++
		if mode == grepModeFilesWithMatches {
			break
		}
		if mode == grepModeContent {
			start := i - input.ContextBefore
			if start < 0 {
				start = 0
			}
			end := i + input.ContextAfter
			if end >= len(lines) {
				end = len(lines) - 1
			}
			for j := start; j <= end; j++ {
				marker := "-"
				if j == i {
					marker = ":"
				}
				fmt.Fprintf(b, "%s%s%d%s%s\n", rel, marker, j+1, marker, lines[j])
			}
		}
		if input.MaxCount > 0 && count >= input.MaxCount {
			break
		}
	}

	if count == 0 {
		return 0, nil
	}
	switch mode {
	case grepModeFilesWithMatches:
		fmt.Fprintln(b, rel)
	case grepModeCount:
		fmt.Fprintf(b, "%s:%d\n", rel, count)
	}
	return count, nil
}
