package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexcodex/sidekick/framework"
)

func TestChatDecodesToolCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]interface{}{
				"role":    "assistant",
				"content": "",
				"tool_calls": []map[string]interface{}{
					{"function": map[string]interface{}{
						"name":      "file_read",
						"arguments": map[string]interface{}{"path": "main.go"},
					}},
				},
			},
			"done_reason":       "stop",
			"eval_count":        7,
			"prompt_eval_count": 21,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model", "")
	resp, err := client.Chat(context.Background(), []framework.Message{{Role: "user", Content: "read main.go"}}, nil)
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "file_read", resp.ToolCalls[0].Name)
	require.Equal(t, "main.go", resp.ToolCalls[0].Args["path"])
	require.Equal(t, 7, resp.Usage["completion_tokens"])
}

func TestEmbedReturnsVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float64{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "embed-model")
	vec, err := client.Embed(context.Background(), "auth middleware")
	require.NoError(t, err)
	require.Len(t, vec, 3)
}

func TestServerErrorIncludesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-model", "")
	_, err := client.Generate(context.Background(), "hello", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model not loaded")
}

type scriptedModel struct {
	errs  []error
	calls int
}

func (m *scriptedModel) next() error {
	if m.calls < len(m.errs) {
		err := m.errs[m.calls]
		m.calls++
		return err
	}
	m.calls++
	return nil
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	if err := m.next(); err != nil {
		return nil, err
	}
	return &framework.LLMResponse{Text: "done"}, nil
}

func (m *scriptedModel) Chat(ctx context.Context, messages []framework.Message, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	return m.Generate(ctx, "", options)
}

func (m *scriptedModel) ChatWithTools(ctx context.Context, messages []framework.Message, tools []framework.Tool, options *framework.LLMOptions) (*framework.LLMResponse, error) {
	return m.Generate(ctx, "", options)
}

func TestRetryingModelRetriesTransient(t *testing.T) {
	inner := &scriptedModel{errs: []error{
		errors.New("429 too many requests, retry after 0s"),
		errors.New("503 service unavailable"),
	}}
	model := NewRetryingModel(inner)
	model.Config.BaseDelay = 1
	model.Config.MaxDelay = 1
	model.Config.Buffer = 0

	resp, err := model.Generate(context.Background(), "hi", nil)
	require.NoError(t, err)
	require.Equal(t, "done", resp.Text)
	require.Equal(t, 3, inner.calls)
}

func TestRetryingModelPermanentErrorImmediate(t *testing.T) {
	inner := &scriptedModel{errs: []error{errors.New("model not found")}}
	model := NewRetryingModel(inner)
	_, err := model.Generate(context.Background(), "hi", nil)
	require.Error(t, err)
	require.Equal(t, 1, inner.calls)
}
