package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lexcodex/sidekick/agents"
	"github.com/lexcodex/sidekick/config"
	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/index"
	"github.com/lexcodex/sidekick/llm"
	"github.com/lexcodex/sidekick/persistence"
	"github.com/lexcodex/sidekick/snapshot"
	"github.com/lexcodex/sidekick/tools"
)

var flagWorkspace string

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sidekick",
		Short: "A local-model coding assistant for your project",
	}
	root.PersistentFlags().StringVar(&flagWorkspace, "workspace", ".", "Project root the assistant operates on")
	config.InitFlags(root)

	root.AddCommand(newChatCmd(), newIndexCmd(), newWatchCmd(), newStatusCmd(), newAgentCmd(), newSpecCmd())
	return root
}

// runtime is the wired-up application state shared by every command.
type runtime struct {
	cfg        *config.Config
	root       string
	client     *llm.Client
	model      framework.LanguageModel
	registry   *framework.ToolRegistry
	executor   *tools.Executor
	snapshots  *snapshot.Store
	embeddings *persistence.EmbeddingIndex
	service    *index.Service
	processes  *tools.ProcessManager
}

func buildRuntime(cmd *cobra.Command) (*runtime, error) {
	root, err := filepath.Abs(flagWorkspace)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cmd.Root(), root)
	if err != nil {
		return nil, err
	}

	client := llm.NewClient(cfg.Endpoint, cfg.Model, cfg.EmbedModel)
	client.Debug = cfg.Debug
	retrying := llm.NewRetryingModel(client)
	retrying.Config.MaxRetries = cfg.MaxRetries

	embeddings, err := persistence.NewEmbeddingIndex(root, client)
	if err != nil {
		return nil, fmt.Errorf("opening embedding index: %w", err)
	}

	snapshots := snapshot.NewStore()
	transactions := snapshot.NewLog()
	service := index.NewService()
	processes := tools.NewProcessManager()

	registry := framework.NewToolRegistry()
	for _, tool := range tools.FileOperations(root, snapshots) {
		registry.Register(tool)
	}
	registry.Register(&tools.ApplyEditsTool{BasePath: root, Log: transactions})
	registry.Register(&tools.RollbackTool{Log: transactions})
	registry.Register(&tools.ShellTool{WorkDir: root, Processes: processes})
	registry.Register(&tools.ProcessOutputTool{Processes: processes})
	registry.Register(&tools.GitTool{WorkDir: root})
	registry.Register(&tools.SemanticSearchTool{Index: embeddings})
	registry.Register(&tools.SymbolSearchTool{Root: root, Service: service})
	registry.Register(&tools.ReferencesTool{Root: root, Service: service})

	executor := tools.NewExecutor(registry, &tools.SecurityGate{Root: root})

	return &runtime{
		cfg:        cfg,
		root:       root,
		client:     client,
		model:      retrying,
		registry:   registry,
		executor:   executor,
		snapshots:  snapshots,
		embeddings: embeddings,
		service:    service,
		processes:  processes,
	}, nil
}

func (r *runtime) selector() *agents.ContextSelector {
	return &agents.ContextSelector{
		Root:       r.root,
		Embeddings: r.embeddings,
		MaxTokens:  r.cfg.ContextBudget,
		Debug:      r.cfg.Debug,
	}
}

// loop wires an agent loop; withDiagnostics also launches the language
// server, so only commands that actually edit code should ask for it.
func (r *runtime) loop(withDiagnostics bool, progress func(string)) *agents.Loop {
	loop := agents.NewLoop(r.model, r.executor)
	loop.Progress = progress
	loop.Debug = r.cfg.Debug
	if withDiagnostics {
		if provider, err := tools.NewLSPDiagnostics(tools.TypeScriptLSPConfig(r.root)); err == nil {
			loop.Diagnostics = provider
		}
	}
	return loop
}
