package agents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/sidekick/framework"
)

func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestExtractMentions(t *testing.T) {
	paths := ExtractMentions("look at @src/main.ts and @lib/util.ts please")
	require.Equal(t, []string{"src/main.ts", "lib/util.ts"}, paths)

	require.Empty(t, ExtractMentions("no references here"))
}

func TestSelectMentionsAndActiveFiles(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.ts", "export const a = 1;")
	writeProjectFile(t, root, "b.ts", "export const b = 2;")

	s := &ContextSelector{Root: root, MaxTokens: 4000}
	sel := s.Select(context.Background(), "explain @a.ts", []string{"b.ts"})

	require.Len(t, sel.Items, 2)
	require.Equal(t, framework.ContextMention, sel.Items[0].Type)
	require.Equal(t, "a.ts", sel.Items[0].File)
	require.Equal(t, framework.ContextActiveFile, sel.Items[1].Type)
	require.Contains(t, sel.Rendered, "const a = 1")
	require.Contains(t, sel.Rendered, "const b = 2")
	require.Zero(t, sel.Omitted)
}

func TestSelectDeduplicatesMentionedActiveFile(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.ts", "export const a = 1;")

	s := &ContextSelector{Root: root, MaxTokens: 4000}
	sel := s.Select(context.Background(), "explain @a.ts", []string{"a.ts"})

	require.Len(t, sel.Items, 1)
	require.Equal(t, framework.ContextMention, sel.Items[0].Type)
}

func TestSelectSkipsUnreadableMention(t *testing.T) {
	root := t.TempDir()
	s := &ContextSelector{Root: root, MaxTokens: 4000}
	sel := s.Select(context.Background(), "explain @missing.ts", nil)
	require.Empty(t, sel.Items)
}

func TestSelectBudgetOmitsLowPriority(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "small.ts", "let x = 1;")
	writeProjectFile(t, root, "big.ts", strings.Repeat("// padding line\n", 200))

	// Budget fits the mentioned file but not the large active one.
	s := &ContextSelector{Root: root, MaxTokens: 100}
	sel := s.Select(context.Background(), "see @small.ts", []string{"big.ts"})

	require.Len(t, sel.Items, 1)
	require.Equal(t, "small.ts", sel.Items[0].File)
	require.Equal(t, 1, sel.Omitted)
}

func TestSelectIncludesDependencyNeighbors(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.ts", "import { b } from \"./b\";\nexport const a = b;")
	writeProjectFile(t, root, "b.ts", "export const b = 2;")

	s := &ContextSelector{Root: root, MaxTokens: 4000}
	sel := s.Select(context.Background(), "refactor @a.ts", nil)

	require.Len(t, sel.Items, 2)
	byFile := map[string]framework.ContextItem{}
	for _, item := range sel.Items {
		byFile[item.File] = item
	}
	require.Equal(t, framework.ContextDependency, byFile["b.ts"].Type)
	require.Equal(t, framework.PriorityDependency, byFile["b.ts"].Priority)
	require.Contains(t, byFile["b.ts"].Content, "(dependency)")
}

func TestSelectTruncatesLargeDependency(t *testing.T) {
	root := t.TempDir()
	writeProjectFile(t, root, "a.ts", "import { b } from \"./b\";")
	writeProjectFile(t, root, "b.ts", strings.Repeat("export const filler = 1;\n", 400))

	s := &ContextSelector{Root: root, MaxTokens: 8000}
	sel := s.Select(context.Background(), "refactor @a.ts", nil)

	for _, item := range sel.Items {
		if item.File == "b.ts" {
			require.Contains(t, item.Content, "...truncated")
			require.LessOrEqual(t, len(item.Content), framework.DependencyCharCap+100)
			return
		}
	}
	t.Fatal("dependency b.ts not selected")
}
