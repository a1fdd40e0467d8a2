package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newRoot() *cobra.Command {
	cmd := &cobra.Command{Use: "sidekick"}
	InitFlags(cmd)
	return cmd
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newRoot(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, DefaultConfig.Endpoint, cfg.Endpoint)
	require.Equal(t, DefaultConfig.ContextBudget, cfg.ContextBudget)
	require.Equal(t, DefaultConfig.MaxRetries, cfg.MaxRetries)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "model: llama3.1:8b\ncontext_budget: 12000\ndebug: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sidekick.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(newRoot(), dir)
	require.NoError(t, err)
	require.Equal(t, "llama3.1:8b", cfg.Model)
	require.Equal(t, 12000, cfg.ContextBudget)
	require.True(t, cfg.Debug)
	// Unset keys keep their defaults.
	require.Equal(t, DefaultConfig.Endpoint, cfg.Endpoint)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sidekick.yaml"), []byte("model: from-file\n"), 0o644))
	t.Setenv("SIDEKICK_MODEL", "from-env")

	cfg, err := Load(newRoot(), dir)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Model)
}

func TestFlagOverridesEnv(t *testing.T) {
	t.Setenv("SIDEKICK_MODEL", "from-env")
	cmd := newRoot()
	require.NoError(t, cmd.PersistentFlags().Set("model", "from-flag"))

	cfg, err := Load(cmd, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "from-flag", cfg.Model)
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sidekick.yaml"), []byte("model: \"unterminated\n"), 0o644))

	_, err := Load(newRoot(), dir)
	require.Error(t, err)
}
