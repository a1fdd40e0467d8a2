// Package agents holds the autonomous layers above the tool executor: the
// plan/execute/diagnose state machine, the staged spec workflow, the
// per-turn context selector, and the interactive session driver.
package agents

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StepStatus tracks one plan step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// PlanStatus tracks the whole plan.
type PlanStatus string

const (
	PlanPlanning  PlanStatus = "planning"
	PlanExecuting PlanStatus = "executing"
	PlanDone      PlanStatus = "done"
	PlanFailed    PlanStatus = "failed"
)

// AgentStep is one discrete unit of a plan. Steps mutate in place as the
// loop progresses.
type AgentStep struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	Retries     int        `json:"retries"`
}

// AgentPlan is one autonomous run, created fresh per invocation.
type AgentPlan struct {
	Goal        string       `json:"goal"`
	Steps       []*AgentStep `json:"steps"`
	Status      PlanStatus   `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at,omitempty"`
	Retries     int          `json:"retries"`
}

// Summary renders the run outcome: step counts, retries, and duration.
// Produced regardless of whether the plan succeeded.
func (p *AgentPlan) Summary() string {
	done, failed, skipped := 0, 0, 0
	for _, step := range p.Steps {
		switch step.Status {
		case StepDone:
			done++
		case StepFailed:
			failed++
		case StepSkipped:
			skipped++
		}
	}
	end := p.CompletedAt
	if end.IsZero() {
		end = time.Now()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Plan %s: %d/%d steps done", p.Status, done, len(p.Steps))
	if failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", failed)
	}
	if skipped > 0 {
		fmt.Fprintf(&sb, ", %d skipped", skipped)
	}
	fmt.Fprintf(&sb, ", %d retries, %s elapsed", p.Retries, end.Sub(p.StartedAt).Round(time.Second))
	return sb.String()
}

// ExtractJSON returns the outermost JSON object inside a model response.
// When no braces are present it returns an empty object so unmarshalling
// still runs and surfaces a proper error downstream.
func ExtractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end >= start {
		return raw[start : end+1]
	}
	return "{}"
}

type planPayload struct {
	Goal  string `json:"goal"`
	Steps []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	} `json:"steps"`
}

// ParsePlan decodes the model's planning response. A response without at
// least one step is a parse failure: the run cannot proceed on a partial
// plan.
func ParsePlan(goal, raw string) (*AgentPlan, error) {
	var payload planPayload
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &payload); err != nil {
		return nil, fmt.Errorf("plan response is not valid JSON: %w", err)
	}
	if len(payload.Steps) == 0 {
		return nil, fmt.Errorf("plan response contains no steps")
	}
	plan := &AgentPlan{
		Goal:      goal,
		Status:    PlanPlanning,
		StartedAt: time.Now().UTC(),
	}
	if payload.Goal != "" {
		plan.Goal = payload.Goal
	}
	for i, raw := range payload.Steps {
		id := raw.ID
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		plan.Steps = append(plan.Steps, &AgentStep{
			ID:          id,
			Description: raw.Description,
			Status:      StepPending,
		})
	}
	return plan, nil
}
