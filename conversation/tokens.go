package conversation

import "github.com/pulsr-ai/lingua/core"

// Token estimation is deliberately cheap: four characters per token is close
// enough for budget enforcement across the supported backends, and keeping it
// tokenizer-free means the estimate never disagrees with itself between runs.

// messageOverheadTokens accounts for the per-message framing (role markers,
// separators) every chat backend charges on top of the content.
const messageOverheadTokens = 4

// EstimateTokens approximates the token count of a string.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + 3) / 4
}

// EstimateMessageTokens approximates the budget cost of one message,
// including tool-call payloads carried by assistant messages.
func EstimateMessageTokens(m core.Message) int {
	n := messageOverheadTokens + EstimateTokens(m.Content)
	for _, tc := range m.ToolCalls {
		n += EstimateTokens(tc.Name) + EstimateTokens(string(tc.Arguments))
	}
	return n
}

// EstimateConversationTokens approximates the budget cost of a transcript.
func EstimateConversationTokens(c core.Conversation) int {
	total := 0
	for _, m := range c {
		total += EstimateMessageTokens(m)
	}
	return total
}
