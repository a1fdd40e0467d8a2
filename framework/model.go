package framework

import "context"

// Message is one turn in a conversation with the model service.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"arguments"`
}

// LLMResponse carries generated text, any requested tool calls, and usage
// metadata reported by the service.
type LLMResponse struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        map[string]int
}

// LLMOptions tune a single model call.
type LLMOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// LanguageModel is the opaque generation capability this system wraps.
// Implementations talk to a hosted service; everything else in the repo
// treats the model as "text and tool calls in, text and tool calls out".
type LanguageModel interface {
	Generate(ctx context.Context, prompt string, options *LLMOptions) (*LLMResponse, error)
	Chat(ctx context.Context, messages []Message, options *LLMOptions) (*LLMResponse, error)
	ChatWithTools(ctx context.Context, messages []Message, tools []Tool, options *LLMOptions) (*LLMResponse, error)
}

// Embedder turns text into fixed-dimensionality vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
