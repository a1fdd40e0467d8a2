package agents

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/sidekick/tools"
)

func TestExtractJSON(t *testing.T) {
	out := ExtractJSON("Sure, here is the plan:\n```json\n{\"goal\": \"x\"}\n```\nDone.")
	require.Equal(t, `{"goal": "x"}`, out)

	require.Equal(t, "{}", ExtractJSON("no json at all"))
}

func TestParsePlanDefaultsStepIDs(t *testing.T) {
	plan, err := ParsePlan("fallback goal", `{"steps": [{"description": "first"}, {"description": "second"}]}`)
	require.NoError(t, err)
	require.Equal(t, "fallback goal", plan.Goal)
	require.Equal(t, "step-1", plan.Steps[0].ID)
	require.Equal(t, "step-2", plan.Steps[1].ID)
	require.Equal(t, StepPending, plan.Steps[0].Status)
}

func TestParsePlanRejectsEmpty(t *testing.T) {
	_, err := ParsePlan("goal", `{"goal": "g", "steps": []}`)
	require.Error(t, err)

	_, err = ParsePlan("goal", "the model rambled instead")
	require.Error(t, err)
}

func TestFilterDiagnostics(t *testing.T) {
	diags := []tools.Diagnostic{
		{File: "src/a.ts", Severity: "error", Message: "Type 'string' is not assignable to type 'number'", Code: "2322"},
		{File: "src/a.ts", Severity: "warning", Message: "unused variable"},
		{File: "node_modules/pkg/x.ts", Severity: "error", Message: "broken dep"},
		{File: "src/b.ts", Severity: "error", Message: "Cannot find module './missing'", Code: "2307"},
		{File: "src/c.tsx", Severity: "error", Message: "option --jsx must be set"},
	}

	kept := FilterDiagnostics(diags)
	require.Len(t, kept, 1)
	require.Equal(t, "2322", kept[0].Code)
}

func TestDiagnosableFiles(t *testing.T) {
	files := diagnosableFiles([]string{"a.ts", "b.go", "c.tsx", "notes.md", "d.jsx"})
	require.Equal(t, []string{"a.ts", "c.tsx", "d.jsx"}, files)
}
