package llm

import (
	"context"
	"log"
	"time"

	"github.com/lexcodex/sidekick/framework"
)

// RetryingModel decorates a LanguageModel with the backoff wrapper so every
// call site gets rate-limit handling for free. Transient failures surface
// to the user only as progress messages through the observer; permanent
// errors propagate immediately.
type RetryingModel struct {
	Inner  framework.LanguageModel
	Config framework.RetryConfig
	// Progress receives a human-readable waiting message per retry.
	Progress func(msg string)
}

// NewRetryingModel wraps inner with the default retry policy.
func NewRetryingModel(inner framework.LanguageModel) *RetryingModel {
	m := &RetryingModel{Inner: inner, Config: framework.DefaultRetryConfig()}
	m.Config.OnRetry = m.observe
	return m
}

func (m *RetryingModel) observe(attempt int, delay time.Duration, err error) {
	log.Printf("[llm] retry %d in %s: %v", attempt, delay.Round(time.Millisecond), err)
	if m.Progress != nil {
		m.Progress("waiting " + delay.Round(time.Second).String() + " for the model service")
	}
}

func (m *RetryingModel) Generate(ctx context.Context, prompt string, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	return framework.WithRetry(ctx, m.Config, func(ctx context.Context) (*framework.LLMResponse, error) {
		return m.Inner.Generate(ctx, prompt, options)
	})
}

func (m *RetryingModel) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	return framework.WithRetry(ctx, m.Config, func(ctx context.Context) (*framework.LLMResponse, error) {
		return m.Inner.Chat(ctx, messages, options)
	})
}

func (m *RetryingModel) ChatWithTools(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	return framework.WithRetry(ctx, m.Config, func(ctx context.Context) (*framework.LLMResponse, error) {
		return m.Inner.ChatWithTools(ctx, messages, tools, options)
	})
}
