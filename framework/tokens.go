package framework

// EstimateTokens performs a cheap heuristic conversion from characters to
// tokens: roughly four characters per token, rounded up. The estimate is
// used for relative budgeting only; real usage counts come back from the
// model service in its response metadata.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateMessageTokens sums the estimated cost of a message including its
// role tag, which the wire format also carries.
func EstimateMessageTokens(msg Message) int {
	return EstimateTokens(msg.Role) + EstimateTokens(msg.Content)
}
