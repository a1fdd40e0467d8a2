package tools

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/snapshot"
)

// countingTool records how many times it actually executes.
type countingTool struct {
	name     string
	mutating bool
	calls    int64
	result   *framework.ToolResult
}

func (t *countingTool) Name() string                              { return t.name }
func (t *countingTool) Description() string                       { return "test tool" }
func (t *countingTool) Mutating() bool                            { return t.mutating }
func (t *countingTool) Parameters() []framework.ToolParameter     { return nil }
func (t *countingTool) Execute(context.Context, map[string]interface{}) (*framework.ToolResult, error) {
	atomic.AddInt64(&t.calls, 1)
	if t.result != nil {
		return t.result, nil
	}
	return &framework.ToolResult{Success: true, Data: map[string]interface{}{"ok": true}}, nil
}

func newTestExecutor(t *testing.T, tools ...framework.Tool) (*Executor, string) {
	t.Helper()
	root := t.TempDir()
	registry := framework.NewToolRegistry()
	for _, tool := range tools {
		registry.Register(tool)
	}
	return NewExecutor(registry, &SecurityGate{Root: root}), root
}

func TestExecutorCachesReadOnlyCalls(t *testing.T) {
	reader := &countingTool{name: "file_read"}
	exec, root := newTestExecutor(t, reader)
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	inv := Invocation{Name: "file_read", Args: map[string]interface{}{"path": path}}

	first := exec.Execute(context.Background(), inv)
	second := exec.Execute(context.Background(), inv)
	if first.Err != nil || second.Err != nil {
		t.Fatalf("unexpected errors: %v %v", first.Err, second.Err)
	}
	if atomic.LoadInt64(&reader.calls) != 1 {
		t.Fatalf("expected one real execution, got %d", reader.calls)
	}
	if !second.Cached {
		t.Fatal("second call should be served from cache")
	}
}

func TestMutatingCallClearsWholeCache(t *testing.T) {
	reader := &countingTool{name: "file_read"}
	writer := &countingTool{name: "file_write", mutating: true}
	exec, root := newTestExecutor(t, reader, writer)

	readInv := Invocation{Name: "file_read", Args: map[string]interface{}{"path": filepath.Join(root, "a.txt")}}
	exec.Execute(context.Background(), readInv)
	exec.Execute(context.Background(), Invocation{Name: "file_write", Args: map[string]interface{}{"path": filepath.Join(root, "b.txt"), "content": "x"}})
	exec.Execute(context.Background(), readInv)

	if atomic.LoadInt64(&reader.calls) != 2 {
		t.Fatalf("mutation should flush the cache, reader ran %d times", reader.calls)
	}
}

func TestErrorResultsNeverCached(t *testing.T) {
	failing := &countingTool{
		name:   "file_read",
		result: &framework.ToolResult{Success: false, Error: "nope"},
	}
	exec, root := newTestExecutor(t, failing)
	inv := Invocation{Name: "file_read", Args: map[string]interface{}{"path": filepath.Join(root, "a.txt")}}
	exec.Execute(context.Background(), inv)
	exec.Execute(context.Background(), inv)
	if atomic.LoadInt64(&failing.calls) != 2 {
		t.Fatalf("error results must not be cached, got %d calls", failing.calls)
	}
}

func TestExecutorDeniesEscapingPath(t *testing.T) {
	reader := &countingTool{name: "file_read"}
	exec, _ := newTestExecutor(t, reader)
	outcome := exec.Execute(context.Background(), Invocation{
		Name: "file_read",
		Args: map[string]interface{}{"path": "../../etc/passwd"},
	})
	if outcome.Err != nil {
		t.Fatalf("denial should be a result, not an error: %v", outcome.Err)
	}
	if outcome.Result.Success {
		t.Fatal("escaping path must be denied")
	}
	if atomic.LoadInt64(&reader.calls) != 0 {
		t.Fatal("denied call must never reach the tool")
	}
}

func TestExecuteAllRunsBatch(t *testing.T) {
	a := &countingTool{name: "file_read"}
	b := &countingTool{name: "grep"}
	exec, root := newTestExecutor(t, a, b)
	outcomes := exec.ExecuteAll(context.Background(), []Invocation{
		{ID: "1", Name: "file_read", Args: map[string]interface{}{"path": filepath.Join(root, "x")}},
		{ID: "2", Name: "grep", Args: map[string]interface{}{"pattern": "foo"}},
		{ID: "3", Name: "missing", Args: nil},
	})
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Invocation.ID != "1" || outcomes[2].Invocation.ID != "3" {
		t.Fatal("outcomes must preserve input order")
	}
	if outcomes[2].Err == nil {
		t.Fatal("unknown tool should error")
	}
}

func TestWriteToolSnapshotsBeforeMutation(t *testing.T) {
	root := t.TempDir()
	store := snapshot.NewStore()
	registry := framework.NewToolRegistry()
	registry.Register(&WriteFileTool{BasePath: root, Snapshots: store})
	exec := NewExecutor(registry, &SecurityGate{Root: root})

	path := filepath.Join(root, "file.ts")
	write := func(content string) {
		outcome := exec.Execute(context.Background(), Invocation{
			Name: "file_write",
			Args: map[string]interface{}{"path": path, "content": content},
		})
		if outcome.Err != nil || !outcome.Result.Success {
			t.Fatalf("write failed: %v %+v", outcome.Err, outcome.Result)
		}
	}
	write("x")
	write("y")

	if got := exec.MutatedPaths(); len(got) != 1 || got[0] != path {
		t.Fatalf("mutated paths = %v", got)
	}
	if _, err := store.UndoLast(path); err != nil {
		t.Fatalf("undo: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "x" {
		t.Fatalf("expected snapshot restore to %q, got %q", "x", string(data))
	}
}
