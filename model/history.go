package model

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a prior conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationHistory is an ordered list of prior turns. The engine
// consumes it but never mutates it; all accessors return copies.
type ConversationHistory struct {
	turns []Turn
}

// NewConversationHistory copies the given turns into a history buffer.
func NewConversationHistory(turns []Turn) *ConversationHistory {
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return &ConversationHistory{turns: cp}
}

// Len returns the number of turns.
func (h *ConversationHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.turns)
}

// Turns returns a copy of all turns in order.
func (h *ConversationHistory) Turns() []Turn {
	if h == nil {
		return nil
	}
	cp := make([]Turn, len(h.turns))
	copy(cp, h.turns)
	return cp
}

// UserTurns returns the content of user-authored turns only, truncated to
// the last max turns. max <= 0 means no limit.
func (h *ConversationHistory) UserTurns(max int) []string {
	if h == nil {
		return nil
	}
	var out []string
	for _, t := range h.turns {
		if t.Role == RoleUser && t.Content != "" {
			out = append(out, t.Content)
		}
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
