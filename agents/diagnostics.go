package agents

import (
	"fmt"
	"strings"

	"github.com/lexcodex/sidekick/tools"
)

// Diagnostic codes and message fragments that are noise after a code
// change: missing modules show up before installs run, and JSX config
// errors reflect project setup rather than the edit under review.
var ignoredDiagnosticCodes = map[string]bool{
	"2307": true, // cannot find module
	"2304": true, // cannot find name
	"7016": true, // missing declaration file
	"17004": true, // JSX not enabled
	"6142": true, // module resolved to non-module for JSX
}

var ignoredMessageFragments = []string{
	"Cannot find module",
	"Could not find a declaration file",
	"--jsx",
}

// FilterDiagnostics drops non-actionable issues: anything originating in a
// dependency directory, known missing-module and JSX-configuration codes,
// and non-error severities.
func FilterDiagnostics(diags []tools.Diagnostic) []tools.Diagnostic {
	var actionable []tools.Diagnostic
	for _, d := range diags {
		if d.Severity != "error" {
			continue
		}
		if strings.Contains(d.File, "node_modules") || strings.Contains(d.File, "vendor/") {
			continue
		}
		if ignoredDiagnosticCodes[d.Code] {
			continue
		}
		skip := false
		for _, fragment := range ignoredMessageFragments {
			if strings.Contains(d.Message, fragment) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		actionable = append(actionable, d)
	}
	return actionable
}

// RenderDiagnostics formats issues for the model's fix pass.
func RenderDiagnostics(diags []tools.Diagnostic) string {
	var sb strings.Builder
	for _, d := range diags {
		fmt.Fprintf(&sb, "%s:%d:%d %s", d.File, d.Line, d.Column, d.Message)
		if d.Code != "" {
			fmt.Fprintf(&sb, " [%s]", d.Code)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// diagnosableFiles keeps only paths diagnostics can act on.
func diagnosableFiles(paths []string) []string {
	var kept []string
	for _, path := range paths {
		for _, ext := range []string{".ts", ".tsx", ".js", ".jsx"} {
			if strings.HasSuffix(path, ext) {
				kept = append(kept, path)
				break
			}
		}
	}
	return kept
}
