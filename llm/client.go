package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/lexcodex/sidekick/framework"
)

// Client implements framework.LanguageModel and framework.Embedder against
// an Ollama-compatible HTTP endpoint.
type Client struct {
	Endpoint   string
	Model      string
	EmbedModel string
	Debug      bool
	client     *http.Client
}

// NewClient builds a client with interactive-use timeouts.
func NewClient(endpoint, model, embedModel string) *Client {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	return &Client{
		Endpoint:   endpoint,
		Model:      model,
		EmbedModel: embedModel,
		client:     &http.Client{Timeout: 3 * time.Minute},
	}
}

type wireToolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []wireToolCall `json:"tool_calls"`
}

type wireResponse struct {
	Response        string       `json:"response"`
	Message         *wireMessage `json:"message"`
	DoneReason      string       `json:"done_reason"`
	EvalCount       int          `json:"eval_count"`
	PromptEvalCount int          `json:"prompt_eval_count"`
}

// Generate implements single-prompt completion.
func (c *Client) Generate(ctx context.Context, prompt string, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	payload := map[string]interface{}{
		"model":  c.model(options),
		"prompt": prompt,
		"stream": false,
	}
	applyOptions(payload, options)
	return c.doRequest(ctx, "/api/generate", payload)
}

// Chat implements chat-style conversation.
func (c *Client) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	payload := map[string]interface{}{
		"model":    c.model(options),
		"messages": convertMessages(messages),
		"stream":   false,
	}
	applyOptions(payload, options)
	return c.doRequest(ctx, "/api/chat", payload)
}

// ChatWithTools attaches the tool schema so the model can request calls.
func (c *Client) ChatWithTools(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	payload := map[string]interface{}{
		"model":    c.model(options),
		"messages": convertMessages(messages),
		"tools":    convertTools(tools),
		"stream":   false,
	}
	applyOptions(payload, options)
	return c.doRequest(ctx, "/api/chat", payload)
}

// Embed requests one embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  c.EmbedModel,
		"prompt": text,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, "/api/embeddings", body)
	if err != nil {
		return nil, err
	}
	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding service returned empty vector")
	}
	return out.Embedding, nil
}

func (c *Client) model(options *framework.LLMOptions) string {
	if options != nil && options.Model != "" {
		return options.Model
	}
	if c.Model != "" {
		return c.Model
	}
	return "qwen2.5-coder"
}

func applyOptions(payload map[string]interface{}, options *framework.LLMOptions) {
	if options == nil {
		return
	}
	if options.Temperature != 0 {
		payload["temperature"] = options.Temperature
	}
	if options.MaxTokens != 0 {
		payload["max_tokens"] = options.MaxTokens
	}
	if options.Stop != nil {
		payload["stop"] = options.Stop
	}
}

func (c *Client) doRequest(ctx context.Context, path string, payload interface{}) (*framework.LLMResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	c.logf("request %s: %s", path, clip(string(body), 2048))
	respBody, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	c.logf("response %s: %s", path, clip(string(respBody), 2048))
	return decodeResponse(respBody)
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		detail := strings.TrimSpace(string(msg))
		if detail != "" {
			return nil, fmt.Errorf("model service error: %s: %s", resp.Status, detail)
		}
		return nil, fmt.Errorf("model service error: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func decodeResponse(body []byte) (*framework.LLMResponse, error) {
	var raw wireResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	resp := &framework.LLMResponse{
		Text:         raw.Response,
		FinishReason: raw.DoneReason,
	}
	if resp.Text == "" && raw.Message != nil {
		resp.Text = raw.Message.Content
	}
	if raw.Message != nil {
		resp.ToolCalls = parseToolCalls(raw.Message.ToolCalls)
	}
	usage := make(map[string]int)
	if raw.EvalCount > 0 {
		usage["completion_tokens"] = raw.EvalCount
	}
	if raw.PromptEvalCount > 0 {
		usage["prompt_tokens"] = raw.PromptEvalCount
	}
	if len(usage) > 0 {
		resp.Usage = usage
	}
	return resp, nil
}

func parseToolCalls(calls []wireToolCall) []framework.ToolCall {
	out := make([]framework.ToolCall, 0, len(calls))
	for _, call := range calls {
		args := map[string]interface{}{}
		if len(call.Function.Arguments) > 0 {
			if err := json.Unmarshal(call.Function.Arguments, &args); err != nil {
				// Some models double-encode arguments as a JSON string.
				var str string
				if json.Unmarshal(call.Function.Arguments, &str) == nil {
					_ = json.Unmarshal([]byte(str), &args)
				}
			}
		}
		out = append(out, framework.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: args,
		})
	}
	return out
}

func convertMessages(messages []framework.Message) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		m := map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		}
		if msg.Name != "" {
			m["name"] = msg.Name
		}
		if msg.ToolCallID != "" {
			m["tool_call_id"] = msg.ToolCallID
		}
		if len(msg.ToolCalls) > 0 {
			calls := make([]map[string]interface{}, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				entry := map[string]interface{}{
					"type": "function",
					"function": map[string]interface{}{
						"name":      call.Name,
						"arguments": call.Args,
					},
				}
				if call.ID != "" {
					entry["id"] = call.ID
				}
				calls = append(calls, entry)
			}
			m["tool_calls"] = calls
		}
		out = append(out, m)
	}
	return out
}

func convertTools(tools []framework.Tool) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(tools))
	for _, tool := range tools {
		props := make(map[string]interface{})
		var required []string
		for _, param := range tool.Parameters() {
			prop := map[string]interface{}{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Default != nil {
				prop["default"] = param.Default
			}
			props[param.Name] = prop
			if param.Required {
				required = append(required, param.Name)
			}
		}
		parameters := map[string]interface{}{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			parameters["required"] = required
		}
		out = append(out, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        tool.Name(),
				"description": tool.Description(),
				"parameters":  parameters,
			},
		})
	}
	return out
}

func (c *Client) logf(format string, args ...interface{}) {
	if !c.Debug {
		return
	}
	log.Printf("[llm] "+format, args...)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
