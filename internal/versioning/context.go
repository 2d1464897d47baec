package versioning

import "github.com/forkchat/forkchat/internal/models"

// SelectContext picks the subset of a version's messages to present to the
// model under a token budget.
//
// The first message is always kept: it grounds the conversation and is
// exempt from the budget, so even a zero budget yields one message. The
// remaining messages are walked newest to oldest, each costing its token
// count plus the fixed per-message framing overhead of the prompt formatter.
// The walk stops at the first message that would overflow the budget;
// everything older is dropped. The result is returned in chronological
// order: the first message plus the most recent affordable tail.
func SelectContext(messages []models.Message, tokenBudget, messageOverhead int) []models.Message {
	if len(messages) == 0 {
		return nil
	}
	if len(messages) == 1 {
		return []models.Message{messages[0]}
	}

	total := 0
	cut := len(messages) // first index of the kept tail
	for i := len(messages) - 1; i >= 1; i-- {
		cost := messages[i].TokenCount + messageOverhead
		if total+cost > tokenBudget {
			break
		}
		total += cost
		cut = i
	}

	selected := make([]models.Message, 0, 1+len(messages)-cut)
	selected = append(selected, messages[0])
	selected = append(selected, messages[cut:]...)
	return selected
}
