package tools

import (
	"context"
	"fmt"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/index"
	"github.com/lexcodex/sidekick/persistence"
)

// SemanticSearchTool ranks indexed code chunks against a natural-language
// query via the embedding index.
type SemanticSearchTool struct {
	Index *persistence.EmbeddingIndex
}

func (t *SemanticSearchTool) Name() string        { return "semantic_search" }
func (t *SemanticSearchTool) Description() string { return "Finds code semantically related to a query." }
func (t *SemanticSearchTool) Mutating() bool      { return false }
func (t *SemanticSearchTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "query", Type: "string", Required: true},
		{Name: "limit", Type: "number", Required: false, Default: 5},
	}
}
func (t *SemanticSearchTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	query := fmt.Sprint(args["query"])
	limit := intArg(args, "limit", 5)
	matches, err := t.Index.Search(ctx, query, limit)
	if err != nil {
		return &framework.ToolResult{Success: false, Error: err.Error()}, nil
	}
	results := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]interface{}{
			"file":       m.Chunk.File,
			"start_line": m.Chunk.StartLine,
			"end_line":   m.Chunk.EndLine,
			"kind":       string(m.Chunk.Kind),
			"name":       m.Chunk.Name,
			"score":      m.Score,
		})
	}
	return &framework.ToolResult{Success: true, Data: map[string]interface{}{"matches": results}}, nil
}

// SymbolSearchTool looks up declarations by name through the codebase index.
type SymbolSearchTool struct {
	Root    string
	Service *index.Service
}

func (t *SymbolSearchTool) Name() string        { return "symbol_search" }
func (t *SymbolSearchTool) Description() string { return "Finds symbol declarations by name substring." }
func (t *SymbolSearchTool) Mutating() bool      { return false }
func (t *SymbolSearchTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{{Name: "query", Type: "string", Required: true}}
}
func (t *SymbolSearchTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	idx, err := t.Service.Get(t.Root)
	if err != nil {
		return nil, err
	}
	symbols := idx.SearchSymbols(fmt.Sprint(args["query"]))
	results := make([]map[string]interface{}, 0, len(symbols))
	for _, sym := range symbols {
		results = append(results, map[string]interface{}{
			"name": sym.Name,
			"kind": string(sym.Kind),
			"file": sym.File,
			"line": sym.Line,
		})
	}
	return &framework.ToolResult{Success: true, Data: map[string]interface{}{"symbols": results}}, nil
}

// ReferencesTool finds literal references to a name across indexed files.
type ReferencesTool struct {
	Root    string
	Service *index.Service
}

func (t *ReferencesTool) Name() string        { return "find_references" }
func (t *ReferencesTool) Description() string { return "Finds lines referencing a symbol name." }
func (t *ReferencesTool) Mutating() bool      { return false }
func (t *ReferencesTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{{Name: "name", Type: "string", Required: true}}
}
func (t *ReferencesTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	idx, err := t.Service.Get(t.Root)
	if err != nil {
		return nil, err
	}
	refs := idx.FindReferences(fmt.Sprint(args["name"]))
	results := make([]map[string]interface{}, 0, len(refs))
	for _, ref := range refs {
		results = append(results, map[string]interface{}{
			"file": ref.File,
			"line": ref.Line,
			"text": ref.Text,
		})
	}
	return &framework.ToolResult{Success: true, Data: map[string]interface{}{"references": results}}, nil
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}
