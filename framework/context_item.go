package framework

// ContextItemType categorizes candidate context sources.
type ContextItemType string

const (
	ContextMention    ContextItemType = "mention"
	ContextActiveFile ContextItemType = "active_file"
	ContextSemantic   ContextItemType = "semantic"
	ContextDependency ContextItemType = "dependency"
)

// Fixed priority bands for candidate scoring. Explicit mentions always win,
// semantic hits land inside [SemanticFloor, SemanticCeil] scaled by their
// similarity score, dependency files trail everything.
const (
	PriorityMention    = 100
	PriorityActiveFile = 80
	SemanticCeil       = 70
	SemanticFloor      = 40
	PriorityDependency = 30
)

// DependencyCharCap bounds how much of a dependency file is considered at
// all. Truncation happens before token estimation, so the reported cost of
// a truncated file reflects only the truncated length.
const DependencyCharCap = 4000

// ContextItem is one candidate block of prompt context. Items are built
// fresh per user turn and consumed once by the budget allocator.
type ContextItem struct {
	Type     ContextItemType
	Content  string
	File     string
	Priority int
	Tokens   int
}

// NewContextItem estimates the token cost at construction time.
func NewContextItem(kind ContextItemType, file, content string, priority int) ContextItem {
	return ContextItem{
		Type:     kind,
		Content:  content,
		File:     file,
		Priority: priority,
		Tokens:   EstimateTokens(content),
	}
}

// SemanticPriority maps a similarity score in [0,1] into the semantic band.
func SemanticPriority(score float64) int {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return SemanticFloor + int(score*float64(SemanticCeil-SemanticFloor))
}
