package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSteering(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, ".sidekick", "steering")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadSteeringMissingDir(t *testing.T) {
	files, err := LoadSteering(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestLoadSteeringDefaultsToAlways(t *testing.T) {
	root := t.TempDir()
	writeSteering(t, root, "style.md", "Use tabs, not spaces.")

	files, err := LoadSteering(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "style", files[0].Name)
	require.Equal(t, "always", files[0].Inclusion)
	require.Equal(t, "Use tabs, not spaces.", files[0].Content)
}

func TestLoadSteeringFrontMatter(t *testing.T) {
	root := t.TempDir()
	writeSteering(t, root, "db.md", "---\ninclusion: mention\n---\nAll queries go through the repository layer.")

	files, err := LoadSteering(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "mention", files[0].Inclusion)
	require.Equal(t, "All queries go through the repository layer.", files[0].Content)
}

func TestLoadSteeringMalformedFrontMatterKept(t *testing.T) {
	root := t.TempDir()
	// Unterminated front matter stays part of the body.
	writeSteering(t, root, "odd.md", "--- not really front matter")

	files, err := LoadSteering(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "always", files[0].Inclusion)
	require.Equal(t, "--- not really front matter", files[0].Content)
}

func TestLoadSteeringSkipsNonMarkdown(t *testing.T) {
	root := t.TempDir()
	writeSteering(t, root, "rules.md", "rule one")
	writeSteering(t, root, "notes.txt", "ignored")

	files, err := LoadSteering(root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "rules", files[0].Name)
}

func TestActiveSteering(t *testing.T) {
	files := []SteeringFile{
		{Name: "style", Inclusion: "always", Content: "always rule"},
		{Name: "database", Inclusion: "mention", Content: "db rule"},
	}

	out := ActiveSteering(files, "fix the login bug")
	require.Contains(t, out, "always rule")
	require.NotContains(t, out, "db rule")

	out = ActiveSteering(files, "update the Database schema")
	require.Contains(t, out, "always rule")
	require.Contains(t, out, "db rule")
}
