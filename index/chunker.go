// Package index builds lightweight knowledge about a codebase: regex-driven
// symbol indexing, semantic chunking of source files, a relative-import
// dependency graph, and a debounced watcher that keeps the embedding index
// current as files change.
package index

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/zeebo/xxh3"
)

// ChunkKind classifies a semantic unit of source.
type ChunkKind string

const (
	ChunkImport    ChunkKind = "import"
	ChunkFunction  ChunkKind = "function"
	ChunkClass     ChunkKind = "class"
	ChunkInterface ChunkKind = "interface"
	ChunkOther     ChunkKind = "other"
)

// Chunk is one semantic unit of a source file. Identity is (File, StartLine,
// Hash); the watcher replaces a changed file's chunks wholesale instead of
// patching them. Embedding is filled in later by the embedding index.
type Chunk struct {
	File      string    `json:"file"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Content   string    `json:"content"`
	Kind      ChunkKind `json:"kind"`
	Name      string    `json:"name,omitempty"`
	Hash      string    `json:"hash"`
	Embedding []float64 `json:"embedding,omitempty"`
}

const (
	// maxChunkLines caps a declaration whose closing boundary is never found.
	maxChunkLines = 50
	// smallFileBytes is the cutoff under which unrecognized files become a
	// single "other" chunk instead of being skipped.
	smallFileBytes = 10 * 1024
)

var chunkableExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true,
	".py": true,
}

var importLine = regexp.MustCompile(`^\s*(import\s|from\s+\S+\s+import|const\s+\S+\s*=\s*require\()`)

type declPattern struct {
	kind    ChunkKind
	pattern *regexp.Regexp
}

// Declaration patterns for the curly-brace family and for Python. Order
// matters: the first matching pattern names the chunk kind.
var braceDeclarations = []declPattern{
	{ChunkInterface, regexp.MustCompile(`^\s*(?:export\s+)?interface\s+(\w+)`)},
	{ChunkClass, regexp.MustCompile(`^\s*(?:export\s+)?(?:abstract\s+)?class\s+(\w+)`)},
	{ChunkFunction, regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`)},
	{ChunkFunction, regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:\([^)]*\)|\w+)\s*=>`)},
	{ChunkInterface, regexp.MustCompile(`^\s*(?:export\s+)?type\s+(\w+)\s*=`)},
}

var pythonDeclarations = []declPattern{
	{ChunkClass, regexp.MustCompile(`^\s*class\s+(\w+)`)},
	{ChunkFunction, regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)`)},
}

// ChunkFile splits a single file's content into semantic chunks. A leading
// contiguous import block becomes one chunk; every declaration match opens a
// chunk closed by brace matching or indent dedent, falling back to the line
// cap.
func ChunkFile(path, content string) []*Chunk {
	ext := filepath.Ext(path)
	lines := strings.Split(content, "\n")
	if !chunkableExtensions[ext] {
		if len(content) > 0 && len(content) <= smallFileBytes {
			return []*Chunk{newChunk(path, 1, len(lines), content, ChunkOther, "")}
		}
		return nil
	}

	python := ext == ".py"
	var chunks []*Chunk

	// Leading import block.
	importEnd := 0
	for importEnd < len(lines) {
		trimmed := strings.TrimSpace(lines[importEnd])
		if trimmed == "" && importEnd > 0 {
			break
		}
		if trimmed != "" && !importLine.MatchString(lines[importEnd]) {
			break
		}
		importEnd++
	}
	if importEnd > 0 && hasImport(lines[:importEnd]) {
		block := strings.Join(lines[:importEnd], "\n")
		chunks = append(chunks, newChunk(path, 1, importEnd, block, ChunkImport, ""))
	}

	for i := importEnd; i < len(lines); i++ {
		kind, name := matchDeclaration(lines[i], python)
		if kind == "" {
			continue
		}
		var end int
		if python {
			end = findDedentEnd(lines, i)
		} else {
			end = findBraceEnd(lines, i)
		}
		if end-i+1 > maxChunkLines {
			end = i + maxChunkLines - 1
		}
		if end >= len(lines) {
			end = len(lines) - 1
		}
		content := strings.Join(lines[i:end+1], "\n")
		chunks = append(chunks, newChunk(path, i+1, end+1, content, kind, name))
		i = end
	}
	return chunks
}

// ChunkCodebase walks root and chunks every eligible file, skipping build
// and vendor directories.
func ChunkCodebase(root string) ([]*Chunk, error) {
	var chunks []*Chunk
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if ignoredDir(entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if !textContent(data) {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		chunks = append(chunks, ChunkFile(rel, string(data))...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func newChunk(path string, start, end int, content string, kind ChunkKind, name string) *Chunk {
	return &Chunk{
		File:      path,
		StartLine: start,
		EndLine:   end,
		Content:   content,
		Kind:      kind,
		Name:      name,
		Hash:      fmt.Sprintf("%016x", xxh3.HashString(content)),
	}
}

func hasImport(lines []string) bool {
	for _, line := range lines {
		if importLine.MatchString(line) {
			return true
		}
	}
	return false
}

func matchDeclaration(line string, python bool) (ChunkKind, string) {
	patterns := braceDeclarations
	if python {
		patterns = pythonDeclarations
	}
	for _, decl := range patterns {
		if m := decl.pattern.FindStringSubmatch(line); m != nil {
			return decl.kind, m[1]
		}
	}
	return "", ""
}

// findBraceEnd returns the index of the line closing the block opened at
// start, counting braces while skipping string literals and comments.
func findBraceEnd(lines []string, start int) int {
	depth := 0
	opened := false
	for i := start; i < len(lines) && i < start+maxChunkLines; i++ {
		open, close := countBraces(lines[i])
		depth += open - close
		if open > 0 {
			opened = true
		}
		if opened && depth <= 0 {
			return i
		}
	}
	return start + maxChunkLines - 1
}

// countBraces counts unquoted, uncommented braces on one line.
func countBraces(line string) (open, close int) {
	var inString byte
	escaped := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if inString != 0 {
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			inString = c
		case '/':
			if i+1 < len(line) && line[i+1] == '/' {
				return open, close
			}
		case '{':
			open++
		case '}':
			close++
		}
	}
	return open, close
}

// findDedentEnd returns the last line of an indentation-delimited block.
func findDedentEnd(lines []string, start int) int {
	baseIndent := indentOf(lines[start])
	last := start
	for i := start + 1; i < len(lines) && i < start+maxChunkLines; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if indentOf(lines[i]) <= baseIndent {
			return last
		}
		last = i
	}
	return last
}

func indentOf(line string) int {
	count := 0
	for _, c := range line {
		switch c {
		case ' ':
			count++
		case '\t':
			count += 4
		default:
			return count
		}
	}
	return count
}

var ignoredDirNames = map[string]bool{
	"node_modules": true, "dist": true, "build": true, "vendor": true,
	"coverage": true, "__pycache__": true, ".venv": true,
}

// textContent rules out binaries, which a NUL byte marks well enough.
func textContent(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}

func ignoredDir(name string) bool {
	return ignoredDirNames[name] || strings.HasPrefix(name, ".")
}
