package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lexcodex/sidekick/framework"
)

const (
	cacheTTL          = 30 * time.Second
	maxCacheableBytes = 64 * 1024
)

// cacheableTools is the read-only whitelist. Anything else never hits the
// cache even if it claims to be non-mutating.
var cacheableTools = map[string]bool{
	"file_read": true, "file_list": true, "grep": true,
	"symbol_search": true, "find_references": true, "semantic_search": true,
}

type cacheEntry struct {
	result  *framework.ToolResult
	expires time.Time
}

// Invocation is one requested tool call.
type Invocation struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// Outcome pairs an invocation with its result or error.
type Outcome struct {
	Invocation Invocation
	Result     *framework.ToolResult
	Err        error
	Warnings   []string
	Cached     bool
}

// Executor dispatches tool invocations through the security gate and the
// result cache. Mutating calls clear the entire cache rather than hunting
// for affected entries, and their touched paths are tracked for the
// diagnostics pass.
type Executor struct {
	Registry *framework.ToolRegistry
	Gate     *SecurityGate
	Debug    bool

	mu      sync.Mutex
	cache   map[string]cacheEntry
	mutated map[string]bool
}

// NewExecutor builds an executor over a registry.
func NewExecutor(registry *framework.ToolRegistry, gate *SecurityGate) *Executor {
	return &Executor{
		Registry: registry,
		Gate:     gate,
		cache:    make(map[string]cacheEntry),
		mutated:  make(map[string]bool),
	}
}

// Execute runs one invocation: gate, cache lookup, dispatch, cache fill.
func (e *Executor) Execute(ctx context.Context, inv Invocation) Outcome {
	tool, ok := e.Registry.Get(inv.Name)
	if !ok {
		return Outcome{Invocation: inv, Err: fmt.Errorf("unknown tool %q", inv.Name)}
	}

	verdict := e.Gate.Check(inv.Name, inv.Args, tool.Mutating())
	if !verdict.Allowed {
		return Outcome{
			Invocation: inv,
			Result:     &framework.ToolResult{Success: false, Error: "denied: " + verdict.Reason},
		}
	}

	key := cacheKey(inv.Name, inv.Args)
	if cacheableTools[inv.Name] {
		if cached, ok := e.lookup(key); ok {
			if e.Debug {
				log.Printf("[executor] cache hit for %s", inv.Name)
			}
			return Outcome{Invocation: inv, Result: cached, Warnings: verdict.Warnings, Cached: true}
		}
	}

	result, err := tool.Execute(ctx, inv.Args)
	if err != nil {
		return Outcome{Invocation: inv, Err: err, Warnings: verdict.Warnings}
	}

	if tool.Mutating() {
		e.invalidate()
		e.recordMutation(result)
	} else if cacheableTools[inv.Name] && result.Success && resultSize(result) <= maxCacheableBytes {
		e.store(key, result)
	}
	return Outcome{Invocation: inv, Result: result, Warnings: verdict.Warnings}
}

// ExecuteAll dispatches a batch concurrently and returns outcomes in input
// order. No ordering guarantee exists between the calls' side effects.
func (e *Executor) ExecuteAll(ctx context.Context, invocations []Invocation) []Outcome {
	if len(invocations) == 1 {
		return []Outcome{e.Execute(ctx, invocations[0])}
	}
	outcomes := make([]Outcome, len(invocations))
	var wg sync.WaitGroup
	for i, inv := range invocations {
		wg.Add(1)
		go func(i int, inv Invocation) {
			defer wg.Done()
			outcomes[i] = e.Execute(ctx, inv)
		}(i, inv)
	}
	wg.Wait()
	return outcomes
}

// MutatedPaths returns every path touched by mutating tools since the last
// Reset, sorted for stable output.
func (e *Executor) MutatedPaths() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	paths := make([]string, 0, len(e.mutated))
	for path := range e.mutated {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// ResetMutations clears the mutated-path set, typically at the start of an
// agent run.
func (e *Executor) ResetMutations() {
	e.mu.Lock()
	e.mutated = make(map[string]bool)
	e.mu.Unlock()
}

func (e *Executor) recordMutation(result *framework.ToolResult) {
	if result == nil || result.Metadata == nil {
		return
	}
	var paths []string
	if path, ok := result.Metadata["mutated_path"].(string); ok && path != "" {
		paths = append(paths, path)
	}
	if many, ok := result.Metadata["mutated_paths"].([]string); ok {
		paths = append(paths, many...)
	}
	if len(paths) == 0 {
		return
	}
	e.mu.Lock()
	for _, path := range paths {
		e.mutated[path] = true
	}
	e.mu.Unlock()
}

func (e *Executor) lookup(key string) (*framework.ToolResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.cache[key]
	if !ok || time.Now().After(entry.expires) {
		delete(e.cache, key)
		return nil, false
	}
	return entry.result, true
}

func (e *Executor) store(key string, result *framework.ToolResult) {
	e.mu.Lock()
	e.cache[key] = cacheEntry{result: result, expires: time.Now().Add(cacheTTL)}
	e.mu.Unlock()
}

func (e *Executor) invalidate() {
	e.mu.Lock()
	e.cache = make(map[string]cacheEntry)
	e.mu.Unlock()
}

// cacheKey canonicalizes arguments so equivalent calls share an entry
// regardless of map iteration order.
func cacheKey(name string, args map[string]interface{}) string {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(name)
	for _, key := range keys {
		raw, _ := json.Marshal(args[key])
		sb.WriteString("|")
		sb.WriteString(key)
		sb.WriteString("=")
		sb.Write(raw)
	}
	return sb.String()
}

func resultSize(result *framework.ToolResult) int {
	raw, err := json.Marshal(result.Data)
	if err != nil {
		return maxCacheableBytes + 1
	}
	return len(raw)
}
