package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"go.lsp.dev/protocol"
)

// Diagnostic is one issue reported by a language server, flattened for the
// agent loop's filter-and-render pass.
type Diagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Source   string `json:"source,omitempty"`
	Code     string `json:"code,omitempty"`
}

// DiagnosticsProvider collects structured issues for a set of files. The
// agent loop only filters and renders these; it performs no analysis of
// its own.
type DiagnosticsProvider interface {
	Collect(ctx context.Context, files []string) ([]Diagnostic, error)
	Close() error
}

// LSPConfig describes how to spawn a language server over stdio.
type LSPConfig struct {
	Command    string
	Args       []string
	RootDir    string
	LanguageID string
}

// TypeScriptLSPConfig targets the standard typescript-language-server.
func TypeScriptLSPConfig(root string) LSPConfig {
	return LSPConfig{
		Command:    "typescript-language-server",
		Args:       []string{"--stdio"},
		RootDir:    root,
		LanguageID: "typescript",
	}
}

// lspDiagnostics speaks LSP to a child language server and gathers
// textDocument/publishDiagnostics notifications.
type lspDiagnostics struct {
	cfg    LSPConfig
	cmd    *exec.Cmd
	conn   *jsonrpc2.Conn
	cancel context.CancelFunc

	mu        sync.Mutex
	opened    map[protocol.DocumentURI]bool
	published map[protocol.DocumentURI][]protocol.Diagnostic
}

// NewLSPDiagnostics launches the configured server and performs the
// initialize handshake.
func NewLSPDiagnostics(cfg LSPConfig) (DiagnosticsProvider, error) {
	if cfg.Command == "" {
		return nil, errors.New("language server command required")
	}
	root, err := filepath.Abs(cfg.RootDir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = root
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	client := &lspDiagnostics{
		cfg:       cfg,
		cmd:       cmd,
		cancel:    cancel,
		opened:    make(map[protocol.DocumentURI]bool),
		published: make(map[protocol.DocumentURI][]protocol.Diagnostic),
	}

	handler := jsonrpc2.HandlerWithError(func(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (interface{}, error) {
		if !req.Notif {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not handled"}
		}
		if req.Method == "textDocument/publishDiagnostics" {
			var params protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(*req.Params, &params); err != nil {
				return nil, err
			}
			client.mu.Lock()
			client.published[params.URI] = params.Diagnostics
			client.mu.Unlock()
		}
		return nil, nil
	})

	stream := jsonrpc2.NewBufferedStream(&stdioPipe{reader: stdout, writer: stdin}, jsonrpc2.VSCodeObjectCodec{})
	client.conn = jsonrpc2.NewConn(ctx, stream, handler)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}
	if err := client.initialize(ctx, root); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *lspDiagnostics) initialize(ctx context.Context, root string) error {
	params := &protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		RootURI:   protocol.DocumentURI(pathToURI(root)),
		ClientInfo: &protocol.ClientInfo{Name: "sidekick", Version: "0.1"},
		Capabilities: protocol.ClientCapabilities{
			TextDocument: &protocol.TextDocumentClientCapabilities{
				PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{},
			},
		},
	}
	var result protocol.InitializeResult
	if err := c.conn.Call(ctx, "initialize", params, &result); err != nil {
		return err
	}
	return c.conn.Notify(ctx, "initialized", &protocol.InitializedParams{})
}

// Collect opens each file and waits briefly for the server to publish
// diagnostics for it. Files the server stays silent on contribute nothing.
func (c *lspDiagnostics) Collect(ctx context.Context, files []string) ([]Diagnostic, error) {
	var all []Diagnostic
	for _, file := range files {
		abs := file
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(c.cfg.RootDir, file)
		}
		uri := protocol.DocumentURI(pathToURI(abs))
		if err := c.open(ctx, abs, uri); err != nil {
			continue
		}
		diags, err := c.await(ctx, uri, 3*time.Second)
		if err != nil {
			continue
		}
		for _, d := range diags {
			all = append(all, Diagnostic{
				File:     file,
				Line:     int(d.Range.Start.Line) + 1,
				Column:   int(d.Range.Start.Character) + 1,
				Severity: severityName(d.Severity),
				Message:  d.Message,
				Source:   d.Source,
				Code:     fmt.Sprint(d.Code),
			})
		}
	}
	return all, nil
}

func (c *lspDiagnostics) open(ctx context.Context, path string, uri protocol.DocumentURI) error {
	c.mu.Lock()
	if c.opened[uri] {
		c.mu.Unlock()
		return nil
	}
	c.opened[uri] = true
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.conn.Notify(ctx, "textDocument/didOpen", protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        uri,
			LanguageID: protocol.LanguageIdentifier(c.cfg.LanguageID),
			Version:    1,
			Text:       string(data),
		},
	})
}

func (c *lspDiagnostics) await(ctx context.Context, uri protocol.DocumentURI, timeout time.Duration) ([]protocol.Diagnostic, error) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		if diags, ok := c.published[uri]; ok {
			c.mu.Unlock()
			return diags, nil
		}
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, errors.New("diagnostics timeout")
		case <-ticker.C:
		}
	}
}

// Close terminates the server process and the JSON-RPC connection.
func (c *lspDiagnostics) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.cmd.Process.Kill()
		c.cmd.Process.Wait()
	}
	return nil
}

func severityName(s protocol.DiagnosticSeverity) string {
	switch s {
	case protocol.DiagnosticSeverityError:
		return "error"
	case protocol.DiagnosticSeverityWarning:
		return "warning"
	case protocol.DiagnosticSeverityInformation:
		return "info"
	case protocol.DiagnosticSeverityHint:
		return "hint"
	}
	return "unknown"
}

type stdioPipe struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioPipe) Read(p []byte) (int, error)  { return s.reader.Read(p) }
func (s *stdioPipe) Write(p []byte) (int, error) { return s.writer.Write(p) }
func (s *stdioPipe) Close() error {
	s.reader.Close()
	return s.writer.Close()
}

func pathToURI(path string) string {
	path = filepath.ToSlash(filepath.Clean(path))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "file://" + path
}
