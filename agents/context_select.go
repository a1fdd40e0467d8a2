package agents

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/index"
	"github.com/lexcodex/sidekick/persistence"
)

// mentionPattern recognizes @path references in user input.
var mentionPattern = regexp.MustCompile(`@([\w./\-]+)`)

// ContextSelector assembles the per-turn context block: mentioned files,
// active files, semantic matches, and dependency neighbors, scored and then
// packed against the token budget.
type ContextSelector struct {
	Root       string
	Embeddings *persistence.EmbeddingIndex
	MaxTokens  int
	Debug      bool
}

// Selection is the packed result plus the number of candidates omitted.
type Selection struct {
	Items    []framework.ContextItem
	Omitted  int
	Tokens   int
	Rendered string
}

// ExtractMentions returns the @-referenced paths in a user message.
func ExtractMentions(input string) []string {
	var paths []string
	for _, m := range mentionPattern.FindAllStringSubmatch(input, -1) {
		paths = append(paths, m[1])
	}
	return paths
}

// Select gathers and packs candidates for one user turn. Active files are
// whatever the session currently has open; semantic candidates come from
// the embedding index when one exists.
func (s *ContextSelector) Select(ctx context.Context, input string, activeFiles []string) Selection {
	var candidates []framework.ContextItem
	seen := make(map[string]bool)

	for _, path := range ExtractMentions(input) {
		if item, ok := s.fileItem(path, framework.ContextMention, framework.PriorityMention); ok && !seen[path] {
			seen[path] = true
			candidates = append(candidates, item)
		}
	}
	for _, path := range activeFiles {
		if seen[path] {
			continue
		}
		if item, ok := s.fileItem(path, framework.ContextActiveFile, framework.PriorityActiveFile); ok {
			seen[path] = true
			candidates = append(candidates, item)
		}
	}

	if s.Embeddings != nil && s.Embeddings.Ready() {
		matches, err := s.Embeddings.Search(ctx, input, 8)
		if err != nil {
			if s.Debug {
				log.Printf("[context] semantic search failed: %v", err)
			}
		} else {
			for _, match := range matches {
				if match.Score <= 0 || seen[match.Chunk.File] {
					continue
				}
				content := fmt.Sprintf("// %s:%d-%d\n%s", match.Chunk.File, match.Chunk.StartLine, match.Chunk.EndLine, match.Chunk.Content)
				item := framework.NewContextItem(framework.ContextSemantic, match.Chunk.File, content, framework.SemanticPriority(match.Score))
				candidates = append(candidates, item)
			}
		}
	}

	// Dependency neighbors of everything selected so far, content capped
	// so one huge file cannot dominate the budget.
	if graph, err := index.BuildGraph(s.Root); err == nil {
		var primaries []string
		for path := range seen {
			primaries = append(primaries, path)
		}
		for _, primary := range primaries {
			for _, dep := range graph.Dependencies(primary, 1) {
				if seen[dep] {
					continue
				}
				if item, ok := s.dependencyItem(dep); ok {
					seen[dep] = true
					candidates = append(candidates, item)
				}
			}
		}
	}

	budget := s.MaxTokens
	if budget <= 0 {
		budget = 6000
	}
	allocation := framework.AllocateBudget(candidates, budget)

	selection := Selection{
		Items:   allocation.Included,
		Omitted: len(allocation.Excluded),
		Tokens:  allocation.TotalTokens,
	}
	selection.Rendered = renderItems(allocation.Included)
	if s.Debug {
		log.Printf("[context] packed %d items (%d tokens), omitted %d", len(selection.Items), selection.Tokens, selection.Omitted)
	}
	return selection
}

func (s *ContextSelector) fileItem(path string, kind framework.ContextItemType, priority int) (framework.ContextItem, bool) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(s.Root, path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return framework.ContextItem{}, false
	}
	content := fmt.Sprintf("// %s\n%s", path, string(data))
	return framework.NewContextItem(kind, path, content, priority), true
}

func (s *ContextSelector) dependencyItem(path string) (framework.ContextItem, bool) {
	abs := filepath.Join(s.Root, path)
	data, err := os.ReadFile(abs)
	if err != nil {
		return framework.ContextItem{}, false
	}
	text := string(data)
	if len(text) > framework.DependencyCharCap {
		text = text[:framework.DependencyCharCap] + "\n// ...truncated"
	}
	content := fmt.Sprintf("// %s (dependency)\n%s", path, text)
	return framework.NewContextItem(framework.ContextDependency, path, content, framework.PriorityDependency), true
}

func renderItems(items []framework.ContextItem) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Project context:\n\n")
	for _, item := range items {
		sb.WriteString(item.Content)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
