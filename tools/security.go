// Package tools implements the model-callable tool surface: file
// operations, shell and git execution, code search, and language-server
// diagnostics, all dispatched through an executor that layers a security
// gate, a short-TTL result cache, and snapshot-before-write on top.
package tools

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Verdict is the gate's decision for one requested operation. Denied
// operations never run; warnings attach to the result but do not block.
type Verdict struct {
	Allowed  bool
	Reason   string
	Warnings []string
}

// SecurityGate screens tool invocations before execution. Denials are
// hard: a dangerous command pattern or a path escaping the project root is
// rejected with the specific reason, never downgraded to a warning.
type SecurityGate struct {
	Root string
}

var dangerousCommands = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\b`),
	regexp.MustCompile(`\brm\s+-[rf]+\s+/(\s|$)`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bdd\s+.*of=/dev/`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`\bchmod\s+(-R\s+)?777\s+/(\s|$)`),
	regexp.MustCompile(`>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`\bshutdown\b|\breboot\b|\bhalt\b`),
	regexp.MustCompile(`curl[^|]*\|\s*(ba)?sh`),
	regexp.MustCompile(`wget[^|]*\|\s*(ba)?sh`),
}

var riskyCommands = []*regexp.Regexp{
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bgit\s+push\s+.*--force`),
	regexp.MustCompile(`\bgit\s+reset\s+--hard`),
	regexp.MustCompile(`\bnpm\s+publish\b`),
	regexp.MustCompile(`\brm\s+-r\b`),
}

// criticalFiles flag writes that deserve user attention but are allowed.
var criticalFiles = []string{
	".env", "package.json", "go.mod", "Cargo.toml", "pyproject.toml",
	"tsconfig.json", ".gitignore",
}

// CheckCommand screens a shell command line.
func (g *SecurityGate) CheckCommand(command string) Verdict {
	for _, pattern := range dangerousCommands {
		if pattern.MatchString(command) {
			return Verdict{Allowed: false, Reason: fmt.Sprintf("command matches dangerous pattern %q", pattern.String())}
		}
	}
	verdict := Verdict{Allowed: true}
	for _, pattern := range riskyCommands {
		if pattern.MatchString(command) {
			verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("risky command pattern %q", pattern.String()))
		}
	}
	return verdict
}

// CheckPath denies paths that resolve outside the project root and warns
// on writes to critical configuration files.
func (g *SecurityGate) CheckPath(path string, write bool) Verdict {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(g.Root, resolved)
	}
	resolved = filepath.Clean(resolved)
	root := filepath.Clean(g.Root)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return Verdict{Allowed: false, Reason: fmt.Sprintf("path %s escapes project root %s", path, root)}
	}
	verdict := Verdict{Allowed: true}
	if write {
		base := filepath.Base(resolved)
		for _, critical := range criticalFiles {
			if base == critical {
				verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("writing critical file %s", base))
				break
			}
		}
	}
	return verdict
}

// Check screens a tool invocation by inspecting well-known argument names.
func (g *SecurityGate) Check(toolName string, args map[string]interface{}, mutating bool) Verdict {
	if cmd, ok := args["command"].(string); ok {
		return g.CheckCommand(cmd)
	}
	verdict := Verdict{Allowed: true}
	for _, key := range []string{"path", "file", "directory"} {
		raw, ok := args[key].(string)
		if !ok || raw == "" {
			continue
		}
		v := g.CheckPath(raw, mutating)
		if !v.Allowed {
			return v
		}
		verdict.Warnings = append(verdict.Warnings, v.Warnings...)
	}
	if edits, ok := args["edits"].([]interface{}); ok {
		for _, raw := range edits {
			edit, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			path, ok := edit["path"].(string)
			if !ok || path == "" {
				continue
			}
			v := g.CheckPath(path, mutating)
			if !v.Allowed {
				return v
			}
			verdict.Warnings = append(verdict.Warnings, v.Warnings...)
		}
	}
	return verdict
}
