package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestEditToolReportsMissingOldText(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.ts")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := &EditFileTool{BasePath: root}
	result, err := tool.Execute(context.Background(), map[string]interface{}{
		"path": "a.ts", "old_text": "absent", "new_text": "x",
	})
	if err != nil {
		t.Fatalf("missing old text is a tool failure, not an error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
	data, _ := os.ReadFile(path)
	if string(data) != "hello world" {
		t.Fatalf("file must be untouched, got %q", string(data))
	}
}

func TestReadToolRejectsBinary(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "blob.bin")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tool := &ReadFileTool{BasePath: root}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"path": "blob.bin"}); err == nil {
		t.Fatal("binary file should be rejected")
	}
}

func TestListToolFiltersByPattern(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.ts", "b.ts", "c.go"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	tool := &ListFilesTool{BasePath: root}
	result, err := tool.Execute(context.Background(), map[string]interface{}{"pattern": "*.ts"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	files := result.Data["files"].([]string)
	if len(files) != 2 {
		t.Fatalf("expected 2 matches, got %v", files)
	}
}

func TestRingBufferBounded(t *testing.T) {
	buf := newRingBuffer(3)
	for _, line := range []string{"1", "2", "3", "4", "5"} {
		buf.Append(line)
	}
	got := buf.Snapshot()
	if len(got) != 3 || got[0] != "3" || got[2] != "5" {
		t.Fatalf("expected last three lines, got %v", got)
	}
}
