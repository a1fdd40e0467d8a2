package framework

// TurnCharCap bounds a single turn's text when the optimizer has to force
// retention of over-budget turns.
const TurnCharCap = 2000

const truncationMarker = "\n...[truncated]"

// OptimizeHistory trims a conversation to fit a token ceiling, preferring
// the most recent turns. It keeps the maximal suffix that fits; when even
// two turns do not fit it force-includes the last two (truncated) so the
// model always has the most recent exchange. A non-empty history never
// optimizes down to nothing.
func OptimizeHistory(history []Message, ceiling int) []Message {
	if len(history) == 0 {
		return history
	}
	total := 0
	for _, msg := range history {
		total += EstimateMessageTokens(msg)
	}
	if total <= ceiling {
		return history
	}

	kept := 0
	running := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateMessageTokens(history[i])
		if running+cost > ceiling {
			break
		}
		running += cost
		kept++
	}
	if kept >= 2 {
		return history[len(history)-kept:]
	}

	// Grossly over budget: keep exactly the last two turns, truncated.
	start := len(history) - 2
	if start < 0 {
		start = 0
	}
	forced := make([]Message, 0, 2)
	for _, msg := range history[start:] {
		forced = append(forced, truncateTurn(msg))
	}
	return forced
}

func truncateTurn(msg Message) Message {
	if len(msg.Content) <= TurnCharCap {
		return msg
	}
	msg.Content = msg.Content[:TurnCharCap] + truncationMarker
	return msg
}
