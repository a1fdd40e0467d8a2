package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lexcodex/sidekick/framework"
	"github.com/lexcodex/sidekick/snapshot"
)

var errBinaryFile = errors.New("binary file detected")

// ReadFileTool reads files from disk.
type ReadFileTool struct {
	BasePath string
}

func (t *ReadFileTool) Name() string        { return "file_read" }
func (t *ReadFileTool) Description() string { return "Reads a UTF-8 file from disk." }
func (t *ReadFileTool) Mutating() bool      { return false }
func (t *ReadFileTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{{Name: "path", Type: "string", Required: true}}
}
func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	path := preparePath(t.BasePath, fmt.Sprint(args["path"]))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !isText(data) {
		return nil, errBinaryFile
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &framework.ToolResult{
		Success: true,
		Data: map[string]interface{}{
			"content": string(data),
			"size":    info.Size(),
		},
	}, nil
}

// WriteFileTool writes full file content, snapshotting first.
type WriteFileTool struct {
	BasePath  string
	Snapshots *snapshot.Store
}

func (t *WriteFileTool) Name() string        { return "file_write" }
func (t *WriteFileTool) Description() string { return "Writes content to a file, creating parent directories." }
func (t *WriteFileTool) Mutating() bool      { return true }
func (t *WriteFileTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "path", Type: "string", Required: true},
		{Name: "content", Type: "string", Required: true},
	}
}
func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	path := preparePath(t.BasePath, fmt.Sprint(args["path"]))
	if t.Snapshots != nil {
		if _, err := t.Snapshots.Take(path, snapshot.OpWrite, "file_write"); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	content := fmt.Sprint(args["content"])
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return &framework.ToolResult{
		Success:  true,
		Data:     map[string]interface{}{"path": path, "bytes": len(content)},
		Metadata: map[string]interface{}{"mutated_path": path},
	}, nil
}

// EditFileTool replaces one occurrence of old text with new text.
type EditFileTool struct {
	BasePath  string
	Snapshots *snapshot.Store
}

func (t *EditFileTool) Name() string        { return "file_edit" }
func (t *EditFileTool) Description() string { return "Replaces the first occurrence of old_text with new_text in a file." }
func (t *EditFileTool) Mutating() bool      { return true }
func (t *EditFileTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "path", Type: "string", Required: true},
		{Name: "old_text", Type: "string", Required: true},
		{Name: "new_text", Type: "string", Required: true},
	}
}
func (t *EditFileTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	path := preparePath(t.BasePath, fmt.Sprint(args["path"]))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	oldText := fmt.Sprint(args["old_text"])
	newText := fmt.Sprint(args["new_text"])
	text := string(data)
	if !strings.Contains(text, oldText) {
		return &framework.ToolResult{Success: false, Error: fmt.Sprintf("old_text not found in %s", path)}, nil
	}
	if t.Snapshots != nil {
		if _, err := t.Snapshots.Take(path, snapshot.OpEdit, "file_edit"); err != nil {
			return nil, err
		}
	}
	text = strings.Replace(text, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return nil, err
	}
	return &framework.ToolResult{
		Success:  true,
		Data:     map[string]interface{}{"path": path},
		Metadata: map[string]interface{}{"mutated_path": path},
	}, nil
}

// DeleteFileTool removes a file, snapshotting first so undo can bring it
// back.
type DeleteFileTool struct {
	BasePath  string
	Snapshots *snapshot.Store
}

func (t *DeleteFileTool) Name() string        { return "file_delete" }
func (t *DeleteFileTool) Description() string { return "Deletes a file." }
func (t *DeleteFileTool) Mutating() bool      { return true }
func (t *DeleteFileTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{{Name: "path", Type: "string", Required: true}}
}
func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	path := preparePath(t.BasePath, fmt.Sprint(args["path"]))
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	if t.Snapshots != nil {
		if _, err := t.Snapshots.Take(path, snapshot.OpDelete, "file_delete"); err != nil {
			return nil, err
		}
	}
	if err := os.Remove(path); err != nil {
		return nil, err
	}
	return &framework.ToolResult{
		Success:  true,
		Data:     map[string]interface{}{"path": path},
		Metadata: map[string]interface{}{"mutated_path": path},
	}, nil
}

// ListFilesTool lists files recursively with glob filtering.
type ListFilesTool struct {
	BasePath string
}

func (t *ListFilesTool) Name() string        { return "file_list" }
func (t *ListFilesTool) Description() string { return "Lists files recursively using glob filtering." }
func (t *ListFilesTool) Mutating() bool      { return false }
func (t *ListFilesTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "directory", Type: "string", Required: false, Default: "."},
		{Name: "pattern", Type: "string", Required: false, Default: "*"},
	}
}
func (t *ListFilesTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	dir := preparePath(t.BasePath, stringArg(args, "directory", "."))
	pattern := stringArg(args, "pattern", "*")
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules" {
				if path != dir {
					return fs.SkipDir
				}
			}
			return nil
		}
		if match, _ := filepath.Match(pattern, filepath.Base(path)); match {
			rel, _ := filepath.Rel(dir, path)
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &framework.ToolResult{Success: true, Data: map[string]interface{}{"files": files, "count": len(files)}}, nil
}

// GrepTool searches for a literal pattern inside files.
type GrepTool struct {
	BasePath string
}

func (t *GrepTool) Name() string        { return "grep" }
func (t *GrepTool) Description() string { return "Searches text inside files under a directory." }
func (t *GrepTool) Mutating() bool      { return false }
func (t *GrepTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "directory", Type: "string", Required: false, Default: "."},
		{Name: "pattern", Type: "string", Required: true},
	}
}
func (t *GrepTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	dir := preparePath(t.BasePath, stringArg(args, "directory", "."))
	pattern := fmt.Sprint(args["pattern"])
	type match struct {
		File    string `json:"file"`
		Line    int    `json:"line"`
		Content string `json:"content"`
	}
	var matches []match
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules" {
				if path != dir {
					return fs.SkipDir
				}
			}
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()
		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 1
		for scanner.Scan() {
			if strings.Contains(scanner.Text(), pattern) {
				rel, _ := filepath.Rel(dir, path)
				matches = append(matches, match{File: rel, Line: line, Content: scanner.Text()})
				if len(matches) >= 100 {
					return fs.SkipAll
				}
			}
			line++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &framework.ToolResult{Success: true, Data: map[string]interface{}{"matches": matches, "count": len(matches)}}, nil
}

func preparePath(base, path string) string {
	if base == "" {
		return filepath.Clean(path)
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func stringArg(args map[string]interface{}, key, fallback string) string {
	if raw, ok := args[key].(string); ok && raw != "" {
		return raw
	}
	return fallback
}

func isText(data []byte) bool {
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}

// FileOperations builds the default file tool set rooted at basePath.
func FileOperations(basePath string, snapshots *snapshot.Store) []framework.Tool {
	return []framework.Tool{
		&ReadFileTool{BasePath: basePath},
		&WriteFileTool{BasePath: basePath, Snapshots: snapshots},
		&EditFileTool{BasePath: basePath, Snapshots: snapshots},
		&DeleteFileTool{BasePath: basePath, Snapshots: snapshots},
		&ListFilesTool{BasePath: basePath},
		&GrepTool{BasePath: basePath},
	}
}
