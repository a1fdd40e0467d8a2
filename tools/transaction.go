package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/snapshot"
)

// ApplyEditsTool applies several file edits as one all-or-nothing change
// through the transaction log, so a partial failure leaves nothing behind.
type ApplyEditsTool struct {
	BasePath string
	Log      *snapshot.Log
}

func (t *ApplyEditsTool) Name() string { return "apply_edits" }
func (t *ApplyEditsTool) Description() string {
	return "Applies a batch of file edits atomically; if any edit fails, all are rolled back."
}
func (t *ApplyEditsTool) Mutating() bool { return true }
func (t *ApplyEditsTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "edits", Type: "array", Description: "Edits with path, kind (create|modify|delete|replace), and content or old_text/new_text", Required: true},
	}
}

func (t *ApplyEditsTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	raw, ok := args["edits"]
	if !ok {
		return &framework.ToolResult{Success: false, Error: "edits is required"}, nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return &framework.ToolResult{Success: false, Error: "edits is not a valid list"}, nil
	}
	var edits []snapshot.FileEdit
	if err := json.Unmarshal(encoded, &edits); err != nil {
		return &framework.ToolResult{Success: false, Error: fmt.Sprintf("malformed edits: %v", err)}, nil
	}
	if len(edits) == 0 {
		return &framework.ToolResult{Success: false, Error: "edits is empty"}, nil
	}
	paths := make([]string, 0, len(edits))
	for i := range edits {
		edits[i].Path = preparePath(t.BasePath, edits[i].Path)
		paths = append(paths, edits[i].Path)
	}

	tx, err := t.Log.Apply(edits)
	if err != nil {
		return &framework.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return &framework.ToolResult{
		Success: true,
		Data: map[string]interface{}{
			"transaction_id": tx.ID,
			"edits":          len(tx.Edits),
		},
		Metadata: map[string]interface{}{"mutated_paths": paths},
	}, nil
}

// RollbackTool restores the files touched by a committed transaction.
type RollbackTool struct {
	Log *snapshot.Log
}

func (t *RollbackTool) Name() string { return "rollback_edits" }
func (t *RollbackTool) Description() string {
	return "Reverts a previously applied apply_edits transaction by id."
}
func (t *RollbackTool) Mutating() bool { return true }
func (t *RollbackTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "transaction_id", Type: "string", Description: "Id returned by apply_edits", Required: true},
	}
}

func (t *RollbackTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	id := stringArg(args, "transaction_id", "")
	if id == "" {
		return &framework.ToolResult{Success: false, Error: "transaction_id is required"}, nil
	}
	if err := t.Log.Rollback(id); err != nil {
		return &framework.ToolResult{Success: false, Error: err.Error()}, nil
	}
	tx, _ := t.Log.Get(id)
	paths := make([]string, 0, len(tx.Backups))
	for path := range tx.Backups {
		paths = append(paths, path)
	}
	return &framework.ToolResult{
		Success:  true,
		Data:     map[string]interface{}{"transaction_id": id, "files": len(paths)},
		Metadata: map[string]interface{}{"mutated_paths": paths},
	}, nil
}
