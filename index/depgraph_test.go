package index

import (
	"testing"
)

func TestGraphResolvesRelativeImports(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/app.ts":        "import { helper } from './util';\nimport express from 'express';\n",
		"src/util.ts":       "import { deep } from './nested/deep';\n",
		"src/nested/deep.ts": "export const deep = 1;\n",
	})
	graph, err := BuildGraph(root)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	deps := graph.Dependencies("src/app.ts", 0)
	if len(deps) != 2 {
		t.Fatalf("expected transitive deps [util, deep], got %v", deps)
	}
	if deps[0] != "src/util.ts" || deps[1] != "src/nested/deep.ts" {
		t.Fatalf("unexpected dep order: %v", deps)
	}

	dependents := graph.Dependents("src/nested/deep.ts", 0)
	if len(dependents) != 2 {
		t.Fatalf("expected dependents [util, app], got %v", dependents)
	}
}

func TestGraphDropsPackageImports(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.ts": "import react from 'react';\nconst fs = require('fs');\n",
	})
	graph, err := BuildGraph(root)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	if deps := graph.Dependencies("a.ts", 0); len(deps) != 0 {
		t.Fatalf("package imports should be dropped, got %v", deps)
	}
}

func TestGraphResolvesIndexFiles(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app.ts":          "import { api } from './lib';\n",
		"lib/index.ts":    "export const api = {};\n",
	})
	graph, err := BuildGraph(root)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	deps := graph.Dependencies("app.ts", 0)
	if len(deps) != 1 || deps[0] != "lib/index.ts" {
		t.Fatalf("expected lib/index.ts, got %v", deps)
	}
}

func TestGraphCycleSafe(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.ts": "import { b } from './b';\n",
		"b.ts": "import { a } from './a';\n",
	})
	graph, err := BuildGraph(root)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	deps := graph.Dependencies("a.ts", 10)
	if len(deps) != 1 || deps[0] != "b.ts" {
		t.Fatalf("cycle should yield each file once, got %v", deps)
	}
	dependents := graph.Dependents("a.ts", 10)
	if len(dependents) != 1 || dependents[0] != "b.ts" {
		t.Fatalf("reverse cycle should yield each file once, got %v", dependents)
	}
}

func TestGraphDepthBounded(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"l0.ts": "import './l1';\n",
		"l1.ts": "import './l2';\n",
		"l2.ts": "import './l3';\n",
		"l3.ts": "import './l4';\n",
		"l4.ts": "export const leaf = 1;\n",
	})
	graph, err := BuildGraph(root)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	deps := graph.Dependencies("l0.ts", 0)
	if len(deps) != defaultDepsDepth {
		t.Fatalf("default depth should stop at %d hops, got %v", defaultDepsDepth, deps)
	}
}
