package agents

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/persistence"
	"github.com/lexcodex/sidekick/tools"
)

func newWorkflow(t *testing.T, model framework.LanguageModel) (*SpecWorkflow, string) {
	t.Helper()
	root := t.TempDir()
	registry := framework.NewToolRegistry()
	executor := tools.NewExecutor(registry, &tools.SecurityGate{Root: root})
	return &SpecWorkflow{
		Model: model,
		Loop:  NewLoop(model, executor),
		Store: persistence.NewSpecStore(root),
		Root:  root,
	}, root
}

func TestCreateRecordsFileRefs(t *testing.T) {
	w, _ := newWorkflow(t, &scriptedModel{})
	doc, err := w.Create("feature", "see #[[file:docs/api.md]] and #[[file:notes.md]], also #[[file:docs/api.md]]")
	require.NoError(t, err)
	require.Equal(t, []string{"docs/api.md", "notes.md"}, doc.FileRefs)

	loaded, err := w.Store.Load(doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.FileRefs, loaded.FileRefs)
}

func TestStageGating(t *testing.T) {
	model := &scriptedModel{}
	w, _ := newWorkflow(t, model)
	doc, err := w.Create("feature", "desc")
	require.NoError(t, err)

	err = w.GenerateDesign(context.Background(), doc)
	require.Error(t, err, "design before requirements must be rejected")

	err = w.GenerateTasks(context.Background(), doc)
	require.Error(t, err, "tasks before design must be rejected")
}

func TestStagesAdvanceStatus(t *testing.T) {
	model := &scriptedModel{responses: []*framework.LLMResponse{
		{Text: `{"requirements": [{"id": "R1", "title": "log in", "description": "users can log in"}]}`},
		{Text: `{"design": [{"title": "auth flow", "content": "token based"}]}`},
		{Text: `{"tasks": [{"id": "t1", "title": "add login handler", "description": "implement POST /login"}]}`},
	}}
	w, _ := newWorkflow(t, model)
	doc, err := w.Create("auth", "desc")
	require.NoError(t, err)

	require.NoError(t, w.GenerateRequirements(context.Background(), doc))
	require.Equal(t, persistence.SpecRequirements, doc.Status)

	require.NoError(t, w.GenerateDesign(context.Background(), doc))
	require.Equal(t, persistence.SpecDesign, doc.Status)

	require.NoError(t, w.GenerateTasks(context.Background(), doc))
	require.Equal(t, persistence.SpecTasks, doc.Status)
	require.Equal(t, persistence.TaskPending, doc.Tasks[0].Status)

	// Round-trips through the store.
	loaded, err := w.Store.Load(doc.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Tasks, 1)
}

func TestUnparseableStageIsFatal(t *testing.T) {
	model := &scriptedModel{responses: []*framework.LLMResponse{
		{Text: "here are some requirements in prose"},
	}}
	w, _ := newWorkflow(t, model)
	doc, err := w.Create("x", "y")
	require.NoError(t, err)
	require.Error(t, w.GenerateRequirements(context.Background(), doc))
	require.Empty(t, doc.Requirements)
}

func TestNextImplementsOneTask(t *testing.T) {
	model := &scriptedModel{responses: []*framework.LLMResponse{
		{Text: "implemented the handler"},
	}}
	w, _ := newWorkflow(t, model)
	doc, err := w.Create("auth", "desc")
	require.NoError(t, err)
	doc.Tasks = []persistence.Task{
		{ID: "t1", Title: "handler", Status: persistence.TaskPending},
		{ID: "t2", Title: "route", Status: persistence.TaskPending},
	}

	task, err := w.Next(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, "t1", task.ID)
	require.Equal(t, persistence.TaskDone, doc.Tasks[0].Status)
	require.Equal(t, persistence.TaskPending, doc.Tasks[1].Status)
	require.Equal(t, persistence.SpecImplementing, doc.Status)
}

func TestAutoReconcilesFailedStepsToPending(t *testing.T) {
	model := &scriptedModel{
		responses: []*framework.LLMResponse{{Text: "ok"}},
		errs:      []error{nil, fmt.Errorf("boom"), fmt.Errorf("boom"), fmt.Errorf("boom")},
	}
	w, _ := newWorkflow(t, model)
	doc, err := w.Create("auth", "desc")
	require.NoError(t, err)
	doc.Tasks = []persistence.Task{
		{ID: "t1", Title: "a", Status: persistence.TaskPending},
		{ID: "t2", Title: "b", Status: persistence.TaskPending},
	}
	w.Loop.MaxStepRetries = 0
	w.Loop.MaxGlobalRetries = 0

	plan, err := w.Auto(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, PlanFailed, plan.Status)
	require.Equal(t, persistence.TaskDone, doc.Tasks[0].Status)
	// The failed step reverts to pending for a later auto run.
	require.Equal(t, persistence.TaskPending, doc.Tasks[1].Status)
}

func TestInlineFileRefs(t *testing.T) {
	model := &scriptedModel{}
	w, root := newWorkflow(t, model)
	path := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("remember the invariant"), 0o644))

	out := w.inlineFileRefs("see #[[file:notes.md]] for details")
	require.Contains(t, out, "remember the invariant")

	// Unresolvable references stay as-is.
	out = w.inlineFileRefs("see #[[file:missing.md]]")
	require.Contains(t, out, "#[[file:missing.md]]")
}
