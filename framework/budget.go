package framework

import "sort"

// Allocation is the outcome of fitting candidate items under a token
// ceiling. Excluded items are retained so callers can report how many
// sources were omitted.
type Allocation struct {
	Included    []ContextItem
	Excluded    []ContextItem
	TotalTokens int
}

// AllocateBudget admits candidates highest priority first while the running
// total stays at or under the ceiling. An item that would overflow is
// excluded and allocation keeps evaluating lower-priority items, so a small
// late item can still be admitted after a large one was dropped. This is a
// best-effort greedy fill, not an optimal packing.
func AllocateBudget(items []ContextItem, ceiling int) Allocation {
	sorted := make([]ContextItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	alloc := Allocation{}
	for _, item := range sorted {
		if alloc.TotalTokens+item.Tokens > ceiling {
			alloc.Excluded = append(alloc.Excluded, item)
			continue
		}
		alloc.Included = append(alloc.Included, item)
		alloc.TotalTokens += item.Tokens
	}
	return alloc
}
