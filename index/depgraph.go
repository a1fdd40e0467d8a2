package index

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// GraphNode records one file's resolved imports and who imports it.
type GraphNode struct {
	File       string   `json:"file"`
	Imports    []string `json:"imports"`
	ImportedBy []string `json:"imported_by"`
	Depth      int      `json:"depth"`
}

// DependencyGraph maps relative file paths to nodes. It is rebuilt in full
// on every Build call; forward edges come from pass one, reverse edges from
// pass two.
type DependencyGraph struct {
	Root  string
	Nodes map[string]*GraphNode
}

const (
	defaultDepsDepth       = 3
	defaultDependentsDepth = 2
)

var importSpecifiers = []*regexp.Regexp{
	regexp.MustCompile(`import\s+(?:[\w{}*,\s]+\s+from\s+)?['"]([^'"]+)['"]`),
	regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
	regexp.MustCompile(`import\(\s*['"]([^'"]+)['"]\s*\)`),
}

var resolveExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}

// BuildGraph scans every source file under root, extracts import
// specifiers, resolves relative ones to files, and inverts the edges.
func BuildGraph(root string) (*DependencyGraph, error) {
	graph := &DependencyGraph{Root: root, Nodes: make(map[string]*GraphNode)}

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
		ext := filepath.Ext(path)
		if !chunkableExtensions[ext] || ext == ".py" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		node := &GraphNode{File: rel}
		for _, spec := range extractSpecifiers(string(data)) {
			if resolved := resolveImport(root, rel, spec); resolved != "" {
				node.Imports = append(node.Imports, resolved)
			}
		}
		graph.Nodes[rel] = node
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Pass two: invert forward edges.
	for file, node := range graph.Nodes {
		for _, imp := range node.Imports {
			if target, ok := graph.Nodes[imp]; ok {
				target.ImportedBy = append(target.ImportedBy, file)
			}
		}
	}
	return graph, nil
}

func extractSpecifiers(content string) []string {
	seen := make(map[string]bool)
	var specs []string
	for _, pattern := range importSpecifiers {
		for _, m := range pattern.FindAllStringSubmatch(content, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				specs = append(specs, m[1])
			}
		}
	}
	return specs
}

// resolveImport maps a specifier to a root-relative file path. Package
// imports (not starting with . or /) are dropped. Candidates are the bare
// path, the path with each known extension, and index files in the path as
// a directory.
func resolveImport(root, fromFile, spec string) string {
	if !strings.HasPrefix(spec, ".") && !strings.HasPrefix(spec, "/") {
		return ""
	}
	var base string
	if strings.HasPrefix(spec, "/") {
		base = filepath.Join(root, spec)
	} else {
		base = filepath.Join(root, filepath.Dir(fromFile), spec)
	}
	candidates := []string{base}
	for _, ext := range resolveExtensions {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range resolveExtensions {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			rel, err := filepath.Rel(root, candidate)
			if err != nil {
				return ""
			}
			return rel
		}
	}
	return ""
}

// Dependencies returns every file reachable through forward edges from
// file, up to maxDepth (default 3 when <= 0). Cycles terminate through the
// visited set and each file appears at most once.
func (g *DependencyGraph) Dependencies(file string, maxDepth int) []string {
	if maxDepth <= 0 {
		maxDepth = defaultDepsDepth
	}
	visited := map[string]bool{file: true}
	var result []string
	g.walk(file, maxDepth, visited, &result, func(n *GraphNode) []string { return n.Imports })
	return result
}

// Dependents returns every file reachable through reverse edges, up to
// maxDepth (default 2 when <= 0).
func (g *DependencyGraph) Dependents(file string, maxDepth int) []string {
	if maxDepth <= 0 {
		maxDepth = defaultDependentsDepth
	}
	visited := map[string]bool{file: true}
	var result []string
	g.walk(file, maxDepth, visited, &result, func(n *GraphNode) []string { return n.ImportedBy })
	return result
}

func (g *DependencyGraph) walk(file string, depth int, visited map[string]bool, result *[]string, edges func(*GraphNode) []string) {
	if depth == 0 {
		return
	}
	node, ok := g.Nodes[file]
	if !ok {
		return
	}
	for _, next := range edges(node) {
		if visited[next] {
			continue
		}
		visited[next] = true
		*result = append(*result, next)
		g.walk(next, depth-1, visited, result, edges)
	}
}
