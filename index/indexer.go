package index

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// SymbolKind classifies an indexed declaration.
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolClass     SymbolKind = "class"
	SymbolInterface SymbolKind = "interface"
	SymbolType      SymbolKind = "type"
	SymbolVariable  SymbolKind = "variable"
	SymbolImport    SymbolKind = "import"
)

// Symbol is one declaration found by the regex scan.
type Symbol struct {
	Name string     `json:"name"`
	Kind SymbolKind `json:"kind"`
	File string     `json:"file"`
	Line int        `json:"line"`
}

// Entry is one filesystem entry in the flat index listing.
type Entry struct {
	Path    string   `json:"path"`
	IsDir   bool     `json:"is_dir"`
	Symbols []Symbol `json:"symbols,omitempty"`
}

// Reference is a line that mentions a symbol name.
type Reference struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Index is the full scan result for one root. Rebuilt wholesale; never
// patched incrementally.
type Index struct {
	Root    string              `json:"root"`
	Entries []Entry             `json:"entries"`
	Symbols map[string][]Symbol `json:"symbols"`
	Summary string              `json:"summary"`
	BuiltAt time.Time           `json:"built_at"`
}

const (
	searchSymbolsCap = 50
	findReferencesCap = 30
)

type symbolPattern struct {
	kind    SymbolKind
	pattern *regexp.Regexp
}

var jsSymbolPatterns = []symbolPattern{
	{SymbolFunction, regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*(\w+)`)},
	{SymbolClass, regexp.MustCompile(`^\s*(?:export\s+)?(?:abstract\s+)?class\s+(\w+)`)},
	{SymbolInterface, regexp.MustCompile(`^\s*(?:export\s+)?interface\s+(\w+)`)},
	{SymbolType, regexp.MustCompile(`^\s*(?:export\s+)?type\s+(\w+)\s*=`)},
	{SymbolVariable, regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=`)},
	{SymbolImport, regexp.MustCompile(`^\s*import\s+(?:\{[^}]*\}|\*\s+as\s+(\w+)|(\w+))`)},
}

var pySymbolPatterns = []symbolPattern{
	{SymbolFunction, regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)`)},
	{SymbolClass, regexp.MustCompile(`^\s*class\s+(\w+)`)},
	{SymbolImport, regexp.MustCompile(`^\s*(?:import|from)\s+(\w+)`)},
	{SymbolVariable, regexp.MustCompile(`^([A-Z_][A-Z0-9_]*)\s*=`)},
}

// Build walks root and constructs a fresh index.
func Build(root string) (*Index, error) {
	idx := &Index{
		Root:    root,
		Symbols: make(map[string][]Symbol),
		BuiltAt: time.Now().UTC(),
	}
	counts := map[SymbolKind]int{}
	languages := map[string]int{}
	fileCount, dirCount := 0, 0

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "." {
			return nil
		}
		if entry.IsDir() {
			if ignoredDir(entry.Name()) {
				return filepath.SkipDir
			}
			dirCount++
			idx.Entries = append(idx.Entries, Entry{Path: rel, IsDir: true})
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		fileCount++
		ext := filepath.Ext(path)
		languages[ext]++
		e := Entry{Path: rel}
		if patterns := patternsFor(ext); patterns != nil {
			data, readErr := os.ReadFile(path)
			if readErr == nil {
				e.Symbols = scanSymbols(rel, string(data), patterns)
				for _, sym := range e.Symbols {
					counts[sym.Kind]++
					idx.Symbols[rel] = append(idx.Symbols[rel], sym)
				}
			}
		}
		idx.Entries = append(idx.Entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	idx.Summary = summarize(fileCount, dirCount, counts, languages)
	return idx, nil
}

func patternsFor(ext string) []symbolPattern {
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs":
		return jsSymbolPatterns
	case ".py":
		return pySymbolPatterns
	}
	return nil
}

func scanSymbols(rel, content string, patterns []symbolPattern) []Symbol {
	var symbols []Symbol
	for i, line := range strings.Split(content, "\n") {
		for _, p := range patterns {
			m := p.pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			name := ""
			for _, group := range m[1:] {
				if group != "" {
					name = group
					break
				}
			}
			if name == "" {
				name = strings.TrimSpace(m[0])
			}
			symbols = append(symbols, Symbol{Name: name, Kind: p.kind, File: rel, Line: i + 1})
			break
		}
	}
	return symbols
}

func summarize(files, dirs int, counts map[SymbolKind]int, languages map[string]int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d files, %d directories", files, dirs)
	kinds := []SymbolKind{SymbolFunction, SymbolClass, SymbolInterface, SymbolType, SymbolVariable, SymbolImport}
	for _, kind := range kinds {
		if counts[kind] > 0 {
			fmt.Fprintf(&sb, "; %d %ss", counts[kind], kind)
		}
	}
	exts := make([]string, 0, len(languages))
	for ext := range languages {
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	if len(exts) > 0 {
		fmt.Fprintf(&sb, "; extensions: %s", strings.Join(exts, " "))
	}
	return sb.String()
}

// SearchSymbols matches symbol names case-insensitively by substring,
// capped at 50 results.
func (idx *Index) SearchSymbols(query string) []Symbol {
	query = strings.ToLower(query)
	var results []Symbol
	paths := make([]string, 0, len(idx.Symbols))
	for path := range idx.Symbols {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		for _, sym := range idx.Symbols[path] {
			if strings.Contains(strings.ToLower(sym.Name), query) {
				results = append(results, sym)
				if len(results) >= searchSymbolsCap {
					return results
				}
			}
		}
	}
	return results
}

// FindReferences re-reads every indexed file from disk and reports lines
// containing the literal name, capped at 30 results.
func (idx *Index) FindReferences(name string) []Reference {
	var refs []Reference
	for _, entry := range idx.Entries {
		if entry.IsDir {
			continue
		}
		f, err := os.Open(filepath.Join(idx.Root, entry.Path))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			if strings.Contains(scanner.Text(), name) {
				refs = append(refs, Reference{File: entry.Path, Line: lineNum, Text: strings.TrimSpace(scanner.Text())})
				if len(refs) >= findReferencesCap {
					f.Close()
					return refs
				}
			}
		}
		f.Close()
	}
	return refs
}

// Service caches built indexes per root with a fixed TTL so repeated
// lookups in one session do not rescan the tree.
type Service struct {
	mu    sync.Mutex
	ttl   time.Duration
	cache map[string]*Index
}

// NewService builds a service with the default 60s TTL.
func NewService() *Service {
	return &Service{ttl: 60 * time.Second, cache: make(map[string]*Index)}
}

// Get returns the cached index for root or rebuilds it when stale.
func (s *Service) Get(root string) (*Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	cached, ok := s.cache[abs]
	s.mu.Unlock()
	if ok && time.Since(cached.BuiltAt) < s.ttl {
		return cached, nil
	}
	idx, err := Build(abs)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[abs] = idx
	s.mu.Unlock()
	return idx, nil
}

// Invalidate drops the cached index for root.
func (s *Service) Invalidate(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.cache, abs)
	s.mu.Unlock()
}
