package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/tools"
)

const (
	defaultToolIterations = 10
	defaultFixIterations  = 5
	defaultStepRetries    = 2
	defaultGlobalRetries  = 5
)

// Loop drives an autonomous multi-step run: plan, execute steps with tool
// calls, then a single diagnostics-and-fix pass after the last step. Each
// run opens short-lived model exchanges with fresh history; only the final
// summary surfaces back to the caller.
type Loop struct {
	Model       framework.LanguageModel
	Executor    *tools.Executor
	Diagnostics tools.DiagnosticsProvider
	Progress    func(string)

	MaxToolIterations int
	MaxFixIterations  int
	MaxStepRetries    int
	MaxGlobalRetries  int
	Debug             bool
}

// NewLoop builds a loop with default bounds.
func NewLoop(model framework.LanguageModel, executor *tools.Executor) *Loop {
	return &Loop{
		Model:             model,
		Executor:          executor,
		MaxToolIterations: defaultToolIterations,
		MaxFixIterations:  defaultFixIterations,
		MaxStepRetries:    defaultStepRetries,
		MaxGlobalRetries:  defaultGlobalRetries,
	}
}

func (l *Loop) report(format string, args ...interface{}) {
	if l.Progress != nil {
		l.Progress(fmt.Sprintf(format, args...))
	}
	if l.Debug {
		log.Printf("[agent] "+format, args...)
	}
}

// Run executes a free-text goal to completion or failure. The returned
// plan always carries a usable Summary.
func (l *Loop) Run(ctx context.Context, goal string) (*AgentPlan, error) {
	l.Executor.ResetMutations()

	plan, err := l.buildPlan(ctx, goal)
	if err != nil {
		return nil, err
	}
	l.report("planned %d steps for: %s", len(plan.Steps), plan.Goal)
	l.RunPlan(ctx, plan)
	return plan, nil
}

// buildPlan asks the model for structured steps. A parse failure is fatal
// for this run; there is no partial-plan recovery.
func (l *Loop) buildPlan(ctx context.Context, goal string) (*AgentPlan, error) {
	prompt := fmt.Sprintf(`Break this task into a short ordered list of discrete steps.
Task: %s
Respond with JSON only: {"goal": "...", "steps": [{"id": "step-1", "description": "..."}]}`, goal)
	resp, err := l.Model.Generate(ctx, prompt, &framework.LLMOptions{Temperature: 0.2})
	if err != nil {
		return nil, fmt.Errorf("planning call failed: %w", err)
	}
	plan, err := ParsePlan(goal, resp.Text)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// RunPlan executes an already-built plan. Used directly by the spec
// workflow's auto mode.
func (l *Loop) RunPlan(ctx context.Context, plan *AgentPlan) {
	plan.Status = PlanExecuting
	if plan.StartedAt.IsZero() {
		plan.StartedAt = time.Now().UTC()
	}

	for i := 0; i < len(plan.Steps); i++ {
		step := plan.Steps[i]
		if step.Status == StepDone || step.Status == StepSkipped {
			continue
		}
		step.Status = StepRunning
		l.report("step %s: %s", step.ID, step.Description)

		result, err := l.executeStep(ctx, plan, step)
		if err == nil {
			step.Status = StepDone
			step.Result = result
			step.Error = ""
			continue
		}

		step.Retries++
		plan.Retries++
		step.Error = err.Error()
		if step.Retries <= l.MaxStepRetries && plan.Retries <= l.MaxGlobalRetries {
			l.report("step %s failed (%v), retrying (%d/%d)", step.ID, err, step.Retries, l.MaxStepRetries)
			i--
			continue
		}
		step.Status = StepFailed
		if plan.Retries > l.MaxGlobalRetries {
			l.report("global retry budget exhausted, abandoning plan")
			break
		}
	}

	if l.allStepsSettled(plan) {
		l.diagnosePass(ctx)
		plan.Status = PlanDone
	} else {
		plan.Status = PlanFailed
	}
	plan.CompletedAt = time.Now().UTC()
	l.report("%s", plan.Summary())
}

func (l *Loop) allStepsSettled(plan *AgentPlan) bool {
	for _, step := range plan.Steps {
		if step.Status != StepDone && step.Status != StepSkipped {
			return false
		}
	}
	return true
}

// executeStep runs one step's model-plus-tools exchange with fresh history.
func (l *Loop) executeStep(ctx context.Context, plan *AgentPlan, step *AgentStep) (string, error) {
	messages := []framework.Message{
		{Role: "system", Content: "You are a coding agent working inside a project. Use the available tools to complete the current step, then reply with a short summary of what you did."},
		{Role: "user", Content: fmt.Sprintf("Goal: %s\n%sCurrent step: %s", plan.Goal, l.completedSummary(plan), step.Description)},
	}
	return l.toolLoop(ctx, messages, l.MaxToolIterations)
}

// toolLoop feeds requested tool calls back to the model until it stops
// asking or the iteration bound is hit.
func (l *Loop) toolLoop(ctx context.Context, messages []framework.Message, maxIterations int) (string, error) {
	toolSchemas := l.Executor.Registry.All()
	var lastText string
	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := l.Model.ChatWithTools(ctx, messages, toolSchemas, &framework.LLMOptions{Temperature: 0.2})
		if err != nil {
			return "", err
		}
		lastText = resp.Text
		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		messages = append(messages, framework.Message{Role: "assistant", Content: resp.Text, ToolCalls: resp.ToolCalls})
		invocations := make([]tools.Invocation, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			invocations = append(invocations, tools.Invocation{ID: call.ID, Name: call.Name, Args: call.Args})
		}
		outcomes := l.Executor.ExecuteAll(ctx, invocations)
		for _, outcome := range outcomes {
			messages = append(messages, framework.Message{
				Role:       "tool",
				Name:       outcome.Invocation.Name,
				ToolCallID: outcome.Invocation.ID,
				Content:    renderOutcome(outcome),
			})
			for _, warning := range outcome.Warnings {
				l.report("warning: %s", warning)
			}
		}
	}
	return lastText, fmt.Errorf("step did not converge within %d tool iterations", maxIterations)
}

func (l *Loop) completedSummary(plan *AgentPlan) string {
	var sb strings.Builder
	for _, step := range plan.Steps {
		if step.Status == StepDone && step.Result != "" {
			fmt.Fprintf(&sb, "Completed %s: %s\n", step.ID, clipText(step.Result, 300))
		}
	}
	if sb.Len() == 0 {
		return ""
	}
	return "Previously completed steps:\n" + sb.String() + "\n"
}

// diagnosePass runs only after every step settled. Intermediate passes
// would flag false positives from dependencies that later steps install.
func (l *Loop) diagnosePass(ctx context.Context) {
	if l.Diagnostics == nil {
		return
	}
	files := diagnosableFiles(l.Executor.MutatedPaths())
	if len(files) == 0 {
		return
	}
	diags, err := l.Diagnostics.Collect(ctx, files)
	if err != nil {
		l.report("diagnostics unavailable: %v", err)
		return
	}
	actionable := FilterDiagnostics(diags)
	if len(actionable) == 0 {
		return
	}
	l.report("fixing %d diagnostics", len(actionable))
	messages := []framework.Message{
		{Role: "system", Content: "You are a coding agent. Fix the reported compiler diagnostics using the available tools, then summarize the fixes."},
		{Role: "user", Content: "Diagnostics after your changes:\n" + RenderDiagnostics(actionable)},
	}
	if _, err := l.toolLoop(ctx, messages, l.MaxFixIterations); err != nil {
		l.report("fix pass incomplete: %v", err)
	}
}

func renderOutcome(outcome tools.Outcome) string {
	if outcome.Err != nil {
		return fmt.Sprintf(`{"success": false, "error": %q}`, outcome.Err.Error())
	}
	payload, err := json.Marshal(outcome.Result)
	if err != nil {
		return fmt.Sprintf(`{"success": false, "error": %q}`, err.Error())
	}
	return string(payload)
}

func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
