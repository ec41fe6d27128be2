// Package files hosts C7's five built-in tools — read, write, edit, glob
// and grep — all scoped to a workspace root via Resolver so a model can
// never read or write outside it.
package files

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nexusrun/coreagent/pkg/models"
)

// Config controls filesystem tool defaults. All five tools share it so a
// single workspace root and size cap apply uniformly.
type Config struct {
	Workspace string
	// MaxFileBytes bounds how large a file read/write/edit will touch.
	// Zero means the 100MB default.
	MaxFileBytes int64
}

const defaultMaxFileBytes int64 = 100 * 1024 * 1024

func (c Config) maxFileBytes() int64 {
	if c.MaxFileBytes <= 0 {
		return defaultMaxFileBytes
	}
	return c.MaxFileBytes
}

func toolError(title, message string) *models.ToolCallResult {
	return &models.ToolCallResult{Title: title, OutputText: message, IsError: true}
}

// binaryExtensions are file types rejected outright without sniffing
// content, since they're never meaningfully "read" as text by a model.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".tiff": true, ".svg": false, // svg is text
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".bz2": true,
	".7z": true, ".rar": true, ".exe": true, ".dll": true, ".so": true,
	".dylib": true, ".bin": true, ".class": true, ".o": true, ".a": true,
	".mp3": true, ".mp4": true, ".mov": true, ".avi": true, ".wav": true,
	".flac": true, ".ogg": true, ".woff": true, ".woff2": true, ".ttf": true,
	".otf": true, ".db": true, ".sqlite": true, ".pyc": true,
}

// looksBinary reports whether path should be rejected as non-text, first
// by extension, then by sniffing its leading bytes the way net/http's
// content-type detector does and checking for a NUL byte, a reliable
// binary tell that text files don't produce.
func looksBinary(path string, head []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if reject, known := binaryExtensions[ext]; known && reject {
		return true
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return true
	}
	mime := http.DetectContentType(head)
	if strings.HasPrefix(mime, "image/") || strings.HasPrefix(mime, "audio/") ||
		strings.HasPrefix(mime, "video/") || mime == "application/pdf" ||
		mime == "application/zip" || mime == "application/x-gzip" {
		return true
	}
	return false
}

// suggestSimilar returns up to max entries from root's tree whose base
// name is closest to the missing target, by Levenshtein distance over the
// file name. Used to help a model recover from a typo'd path.
func suggestSimilar(root, target string, max int) []string {
	targetBase := strings.ToLower(filepath.Base(target))
	type scored struct {
		path string
		dist int
	}
	var candidates []scored
	_ = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		base := strings.ToLower(filepath.Base(p))
		d := levenshtein(targetBase, base)
		if d <= 4 {
			rel, relErr := filepath.Rel(root, p)
			if relErr != nil {
				rel = p
			}
			candidates = append(candidates, scored{path: rel, dist: d})
		}
		return nil
	})
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	out := make([]string, 0, max)
	for _, c := range candidates {
		if len(out) >= max {
			break
		}
		out = append(out, c.path)
	}
	return out
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		cur[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			cur[j] = m
		}
		prev, cur = cur, prev
	}
	return prev[lb]
}

func notFoundWithSuggestions(root, path string) string {
	suggestions := suggestSimilar(root, path, 3)
	if len(suggestions) == 0 {
		return fmt.Sprintf("file not found: %s", path)
	}
	return fmt.Sprintf("file not found: %s\ndid you mean one of:\n  %s", path, strings.Join(suggestions, "\n  "))
}
