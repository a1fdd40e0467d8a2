package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/persistence"
)

// fileRefPattern matches #[[file:path]] references embedded in spec text.
var fileRefPattern = regexp.MustCompile(`#\[\[file:([^\]]+)\]\]`)

// SpecWorkflow drives the staged document lifecycle. Each stage is one
// model call that must return parseable JSON; a stage cannot be generated
// before its prerequisite stage has content.
type SpecWorkflow struct {
	Model    framework.LanguageModel
	Loop     *Loop
	Store    *persistence.SpecStore
	Root     string
	Progress func(string)
}

func (w *SpecWorkflow) report(format string, args ...interface{}) {
	if w.Progress != nil {
		w.Progress(fmt.Sprintf(format, args...))
	}
}

// Create starts a new draft spec. File references embedded in the
// description are recorded on the doc so later stages can find them.
func (w *SpecWorkflow) Create(title, description string) (*persistence.SpecDoc, error) {
	doc, err := w.Store.Create(title, description)
	if err != nil {
		return nil, err
	}
	if refs := extractFileRefs(description); len(refs) > 0 {
		doc.FileRefs = refs
		if err := w.Store.Save(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// extractFileRefs collects the paths named by #[[file:path]] markers,
// deduplicated in order of first appearance.
func extractFileRefs(text string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, m := range fileRefPattern.FindAllStringSubmatch(text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		refs = append(refs, m[1])
	}
	return refs
}

// GenerateRequirements fills the requirements stage from the draft
// description.
func (w *SpecWorkflow) GenerateRequirements(ctx context.Context, doc *persistence.SpecDoc) error {
	prompt := fmt.Sprintf(`Write the requirements for this feature.
Feature: %s
%s
Respond with JSON only: {"requirements": [{"id": "R1", "title": "...", "description": "...", "rationale": "..."}]}`,
		doc.Title, w.inlineFileRefs(doc.Description))
	var payload struct {
		Requirements []persistence.Requirement `json:"requirements"`
	}
	if err := w.generate(ctx, prompt, &payload); err != nil {
		return err
	}
	if len(payload.Requirements) == 0 {
		return fmt.Errorf("requirements response contained no requirements")
	}
	doc.Requirements = payload.Requirements
	doc.RecomputeStatus()
	return w.Store.Save(doc)
}

// GenerateDesign fills the design stage; requires requirements.
func (w *SpecWorkflow) GenerateDesign(ctx context.Context, doc *persistence.SpecDoc) error {
	if len(doc.Requirements) == 0 {
		return fmt.Errorf("design requires requirements to be generated first")
	}
	reqs, _ := json.Marshal(doc.Requirements)
	prompt := fmt.Sprintf(`Design the implementation for this feature.
Feature: %s
Requirements: %s
%s
Respond with JSON only: {"design": [{"title": "...", "content": "..."}]}`,
		doc.Title, string(reqs), w.inlineFileRefs(doc.Description))
	var payload struct {
		Design []persistence.DesignSection `json:"design"`
	}
	if err := w.generate(ctx, prompt, &payload); err != nil {
		return err
	}
	if len(payload.Design) == 0 {
		return fmt.Errorf("design response contained no sections")
	}
	doc.Design = payload.Design
	doc.RecomputeStatus()
	return w.Store.Save(doc)
}

// GenerateTasks fills the task list; requires design.
func (w *SpecWorkflow) GenerateTasks(ctx context.Context, doc *persistence.SpecDoc) error {
	if len(doc.Design) == 0 {
		return fmt.Errorf("tasks require a design to be generated first")
	}
	design, _ := json.Marshal(doc.Design)
	prompt := fmt.Sprintf(`Break this design into small ordered implementation tasks.
Feature: %s
Design: %s
Respond with JSON only: {"tasks": [{"id": "t1", "title": "...", "description": "...", "file_hint": "...", "depends_on": [], "size": "small"}]}`,
		doc.Title, string(design))
	var payload struct {
		Tasks []persistence.Task `json:"tasks"`
	}
	if err := w.generate(ctx, prompt, &payload); err != nil {
		return err
	}
	if len(payload.Tasks) == 0 {
		return fmt.Errorf("tasks response contained no tasks")
	}
	for i := range payload.Tasks {
		if payload.Tasks[i].Status == "" {
			payload.Tasks[i].Status = persistence.TaskPending
		}
	}
	doc.Tasks = payload.Tasks
	doc.RecomputeStatus()
	return w.Store.Save(doc)
}

// Next implements exactly one pending task through the same model-plus-tool
// loop the agent uses, then marks it done.
func (w *SpecWorkflow) Next(ctx context.Context, doc *persistence.SpecDoc) (*persistence.Task, error) {
	task := doc.NextPendingTask()
	if task == nil {
		return nil, fmt.Errorf("no pending task with satisfied dependencies")
	}
	task.Status = persistence.TaskInProgress
	doc.RecomputeStatus()
	if err := w.Store.Save(doc); err != nil {
		return nil, err
	}
	w.report("implementing task %s: %s", task.ID, task.Title)

	messages := []framework.Message{
		{Role: "system", Content: "You are a coding agent implementing one task of a planned feature. Use the available tools, then summarize what you did."},
		{Role: "user", Content: w.taskPrompt(doc, task)},
	}
	if _, err := w.Loop.toolLoop(ctx, messages, w.Loop.MaxToolIterations); err != nil {
		task.Status = persistence.TaskPending
		doc.RecomputeStatus()
		w.Store.Save(doc)
		return nil, fmt.Errorf("task %s failed: %w", task.ID, err)
	}
	task.Status = persistence.TaskDone
	doc.RecomputeStatus()
	return task, w.Store.Save(doc)
}

// Auto converts all runnable pending tasks into an agent plan and executes
// it, then reconciles the step outcomes back onto the spec. Failed steps
// revert to pending so a later auto run can retry them.
func (w *SpecWorkflow) Auto(ctx context.Context, doc *persistence.SpecDoc) (*AgentPlan, error) {
	plan := &AgentPlan{Goal: fmt.Sprintf("Implement spec: %s", doc.Title), Status: PlanPlanning}
	for i := range doc.Tasks {
		task := &doc.Tasks[i]
		if task.Status != persistence.TaskPending {
			continue
		}
		plan.Steps = append(plan.Steps, &AgentStep{
			ID:          task.ID,
			Description: w.taskPrompt(doc, task),
			Status:      StepPending,
		})
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("no pending tasks to run")
	}

	w.Loop.RunPlan(ctx, plan)

	for _, step := range plan.Steps {
		task := doc.Task(step.ID)
		if task == nil {
			continue
		}
		switch step.Status {
		case StepDone:
			task.Status = persistence.TaskDone
		case StepSkipped:
			task.Status = persistence.TaskSkipped
		default:
			task.Status = persistence.TaskPending
		}
	}
	doc.RecomputeStatus()
	if err := w.Store.Save(doc); err != nil {
		return plan, err
	}
	return plan, nil
}

func (w *SpecWorkflow) taskPrompt(doc *persistence.SpecDoc, task *persistence.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Feature: %s\n", doc.Title)
	fmt.Fprintf(&sb, "Task %s: %s\n%s\n", task.ID, task.Title, w.inlineFileRefs(task.Description))
	if task.FileHint != "" {
		fmt.Fprintf(&sb, "Likely file: %s\n", task.FileHint)
	}
	return sb.String()
}

func (w *SpecWorkflow) generate(ctx context.Context, prompt string, out interface{}) error {
	resp, err := w.Model.Generate(ctx, prompt, &framework.LLMOptions{Temperature: 0.2})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(ExtractJSON(resp.Text)), out); err != nil {
		return fmt.Errorf("stage response is not valid JSON: %w", err)
	}
	return nil
}

// inlineFileRefs resolves #[[file:path]] markers to the referenced file
// contents so generation prompts see the real code.
func (w *SpecWorkflow) inlineFileRefs(text string) string {
	return fileRefPattern.ReplaceAllStringFunc(text, func(match string) string {
		path := fileRefPattern.FindStringSubmatch(match)[1]
		abs := path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(w.Root, path)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return match
		}
		return fmt.Sprintf("\n--- %s ---\n%s\n---\n", path, string(data))
	})
}
