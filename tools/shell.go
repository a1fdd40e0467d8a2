package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexcodex/sidekick/framework"
)

const (
	commandTimeout     = 30 * time.Second
	processBufferLines = 500
)

// ShellTool runs a command through the shell with a fixed timeout and
// captured output. Commands that should outlive the call go through the
// ProcessManager instead.
type ShellTool struct {
	WorkDir   string
	Processes *ProcessManager
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Description() string {
	return "Runs a shell command with captured stdout/stderr. Set background=true for long-running processes."
}
func (t *ShellTool) Mutating() bool { return true }
func (t *ShellTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "command", Type: "string", Required: true},
		{Name: "background", Type: "boolean", Required: false, Default: false},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	command := fmt.Sprint(args["command"])
	if background, _ := args["background"].(bool); background {
		if t.Processes == nil {
			return nil, fmt.Errorf("background processes not enabled")
		}
		id, err := t.Processes.Start(command, t.WorkDir)
		if err != nil {
			return nil, err
		}
		return &framework.ToolResult{Success: true, Data: map[string]interface{}{"process_id": id, "background": true}}, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
		err = nil
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return &framework.ToolResult{
			Success: false,
			Error:   fmt.Sprintf("command timed out after %s", commandTimeout),
			Data:    map[string]interface{}{"stdout": stdout.String(), "stderr": stderr.String()},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &framework.ToolResult{
		Success: exitCode == 0,
		Data: map[string]interface{}{
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
			"exit_code": exitCode,
		},
	}, nil
}

// ringBuffer keeps the last N lines written to it.
type ringBuffer struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{cap: capacity}
}

func (r *ringBuffer) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.cap {
		r.lines = r.lines[len(r.lines)-r.cap:]
	}
}

func (r *ringBuffer) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Process is one managed background child.
type Process struct {
	ID      string
	Command string
	Started time.Time
	cmd     *exec.Cmd
	output  *ringBuffer

	mu       sync.Mutex
	exited   bool
	exitCode int
}

// Running reports whether the child is still alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

// Output returns the buffered last lines of combined stdout/stderr.
func (p *Process) Output() []string {
	return p.output.Snapshot()
}

// ProcessManager tracks detached background processes (dev servers,
// watchers) outside the request/response path. Output is polled on demand,
// never streamed into the conversation.
type ProcessManager struct {
	mu        sync.Mutex
	processes map[string]*Process
}

// NewProcessManager builds an empty manager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{processes: make(map[string]*Process)}
}

// Start spawns a detached child and begins capturing its output into a
// bounded ring buffer. Failures after spawn land in the buffer, not the
// session.
func (m *ProcessManager) Start(command, workDir string) (string, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = workDir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return "", err
	}

	proc := &Process{
		ID:      uuid.NewString()[:8],
		Command: command,
		Started: time.Now(),
		cmd:     cmd,
		output:  newRingBuffer(processBufferLines),
	}
	m.mu.Lock()
	m.processes[proc.ID] = proc
	m.mu.Unlock()

	go m.capture(proc, stdout)
	return proc.ID, nil
}

func (m *ProcessManager) capture(proc *Process, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		proc.output.Append(scanner.Text())
	}
	err := proc.cmd.Wait()
	proc.mu.Lock()
	proc.exited = true
	if exitErr, ok := err.(*exec.ExitError); ok {
		proc.exitCode = exitErr.ExitCode()
		proc.output.Append(fmt.Sprintf("[process exited with code %d]", proc.exitCode))
	} else if err != nil {
		proc.output.Append(fmt.Sprintf("[process error: %v]", err))
	} else {
		proc.output.Append("[process exited]")
	}
	proc.mu.Unlock()
}

// Get returns a process by id.
func (m *ProcessManager) Get(id string) (*Process, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	proc, ok := m.processes[id]
	return proc, ok
}

// List returns all tracked processes.
func (m *ProcessManager) List() []*Process {
	m.mu.Lock()
	defer m.mu.Unlock()
	procs := make([]*Process, 0, len(m.processes))
	for _, proc := range m.processes {
		procs = append(procs, proc)
	}
	return procs
}

// Stop kills a background process.
func (m *ProcessManager) Stop(id string) error {
	proc, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("process %s not found", id)
	}
	if proc.cmd.Process != nil {
		return proc.cmd.Process.Kill()
	}
	return nil
}

// StopAll kills every tracked process, for session shutdown.
func (m *ProcessManager) StopAll() {
	for _, proc := range m.List() {
		if proc.Running() && proc.cmd.Process != nil {
			proc.cmd.Process.Kill()
		}
	}
}

// ProcessOutputTool polls a background process's buffered output.
type ProcessOutputTool struct {
	Processes *ProcessManager
}

func (t *ProcessOutputTool) Name() string        { return "process_output" }
func (t *ProcessOutputTool) Description() string { return "Returns the buffered output of a background process." }
func (t *ProcessOutputTool) Mutating() bool      { return false }
func (t *ProcessOutputTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{{Name: "process_id", Type: "string", Required: true}}
}
func (t *ProcessOutputTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	id := fmt.Sprint(args["process_id"])
	proc, ok := t.Processes.Get(id)
	if !ok {
		return &framework.ToolResult{Success: false, Error: fmt.Sprintf("process %s not found", id)}, nil
	}
	return &framework.ToolResult{
		Success: true,
		Data: map[string]interface{}{
			"command": proc.Command,
			"running": proc.Running(),
			"output":  proc.Output(),
		},
	}, nil
}
