package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/tools"
)

// Session is the top-level read-eval loop state for one interactive run.
// History grows append-only between turns; the agent loop and spec
// workflow open their own short-lived exchanges and only fold summaries
// back in.
type Session struct {
	Model    framework.LanguageModel
	Executor *tools.Executor
	Selector *ContextSelector
	Steering []SteeringFile

	HistoryBudget int
	ActiveFiles   []string
	history       []framework.Message
}

// NewSession builds a session with an 8000-token history budget.
func NewSession(model framework.LanguageModel, executor *tools.Executor, selector *ContextSelector) *Session {
	return &Session{
		Model:         model,
		Executor:      executor,
		Selector:      selector,
		HistoryBudget: 8000,
	}
}

// OpenFile marks a file as active so it joins context selection.
func (s *Session) OpenFile(path string) {
	for _, existing := range s.ActiveFiles {
		if existing == path {
			return
		}
	}
	s.ActiveFiles = append(s.ActiveFiles, path)
}

// History returns the accumulated transcript.
func (s *Session) History() []framework.Message {
	return s.history
}

// AddNote folds an externally produced summary (agent run, spec stage)
// into the transcript without a model call.
func (s *Session) AddNote(text string) {
	s.history = append(s.history, framework.Message{Role: "assistant", Content: text})
}

// Turn handles one user input: select context, trim history, call the
// model, run any requested tools, and return the final text.
func (s *Session) Turn(ctx context.Context, input string) (string, error) {
	selection := s.Selector.Select(ctx, input, s.ActiveFiles)

	system := s.systemPrompt(input, selection)
	s.history = append(s.history, framework.Message{Role: "user", Content: input})
	trimmed := framework.OptimizeHistory(s.history, s.HistoryBudget)

	messages := append([]framework.Message{{Role: "system", Content: system}}, trimmed...)
	toolSchemas := s.Executor.Registry.All()

	var finalText string
	for iteration := 0; iteration < 10; iteration++ {
		resp, err := s.Model.ChatWithTools(ctx, messages, toolSchemas, &framework.LLMOptions{Temperature: 0.3})
		if err != nil {
			// Drop the failed turn so the transcript stays consistent.
			s.history = s.history[:len(s.history)-1]
			return "", err
		}
		finalText = resp.Text
		if len(resp.ToolCalls) == 0 {
			break
		}
		messages = append(messages, framework.Message{Role: "assistant", Content: resp.Text, ToolCalls: resp.ToolCalls})
		invocations := make([]tools.Invocation, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			invocations = append(invocations, tools.Invocation{ID: call.ID, Name: call.Name, Args: call.Args})
		}
		for _, outcome := range s.Executor.ExecuteAll(ctx, invocations) {
			messages = append(messages, framework.Message{
				Role:       "tool",
				Name:       outcome.Invocation.Name,
				ToolCallID: outcome.Invocation.ID,
				Content:    renderOutcome(outcome),
			})
		}
	}

	s.history = append(s.history, framework.Message{Role: "assistant", Content: finalText})
	if selection.Omitted > 0 {
		finalText += fmt.Sprintf("\n\n(%d context sources omitted to fit the budget)", selection.Omitted)
	}
	return finalText, nil
}

func (s *Session) systemPrompt(input string, selection Selection) string {
	var sb strings.Builder
	sb.WriteString("You are sidekick, a coding assistant working inside the user's project. Prefer using tools over guessing about the codebase.\n")
	if steering := ActiveSteering(s.Steering, input); steering != "" {
		sb.WriteString("\nProject rules:\n")
		sb.WriteString(steering)
		sb.WriteString("\n")
	}
	if selection.Rendered != "" {
		sb.WriteString("\n")
		sb.WriteString(selection.Rendered)
	}
	return sb.String()
}
