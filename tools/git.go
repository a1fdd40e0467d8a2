package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/lexcodex/sidekick/framework"
)

// GitTool runs a restricted set of git subcommands as plain shell calls.
type GitTool struct {
	WorkDir string
}

var allowedGitSubcommands = map[string]bool{
	"status": true, "diff": true, "log": true, "add": true,
	"commit": true, "branch": true, "show": true, "stash": true,
}

func (t *GitTool) Name() string { return "git" }
func (t *GitTool) Description() string {
	return "Runs a git subcommand (status, diff, log, add, commit, branch, show, stash)."
}
func (t *GitTool) Mutating() bool {
	// add/commit/stash mutate repo state; treat the tool conservatively.
	return true
}
func (t *GitTool) Parameters() []framework.ToolParameter {
	return []framework.ToolParameter{
		{Name: "subcommand", Type: "string", Required: true},
		{Name: "args", Type: "string", Required: false},
	}
}

func (t *GitTool) Execute(ctx context.Context, args map[string]interface{}) (*framework.ToolResult, error) {
	sub := fmt.Sprint(args["subcommand"])
	if !allowedGitSubcommands[sub] {
		return &framework.ToolResult{Success: false, Error: fmt.Sprintf("git subcommand %q not allowed", sub)}, nil
	}
	extra := strings.Fields(stringArg(args, "args", ""))
	gitArgs := append([]string{sub}, extra...)

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(runCtx, "git", gitArgs...)
	cmd.Dir = t.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
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
