package conversation

import (
	"github.com/harunnryd/shiori/internal/model/contract"
)

// History is the ordered message log of one conversation. The system prompt,
// when set, is always the first message and survives Reset.
type History struct {
	system   string
	messages []contract.Message
}

func NewHistory(systemPrompt string) *History {
	h := &History{system: systemPrompt}
	h.Reset()
	return h
}

func (h *History) Append(msgs ...contract.Message) {
	h.messages = append(h.messages, msgs...)
}

// Messages returns a copy safe to hand to a model request.
func (h *History) Messages() []contract.Message {
	out := make([]contract.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

func (h *History) Len() int {
	return len(h.messages)
}

// Truncate drops every message at index n and beyond.
func (h *History) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n >= len(h.messages) {
		return
	}
	clear(h.messages[n:])
	h.messages = h.messages[:n]
}

func (h *History) Reset() {
	h.messages = h.messages[:0]
	if h.system != "" {
		h.messages = append(h.messages, contract.Message{Role: contract.RoleSystem, Content: h.system})
	}
}

// ToolCallIDs returns the set of tool call ids already recorded.
func (h *History) ToolCallIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, m := range h.messages {
		for _, tc := range m.ToolCalls {
			ids[tc.ID] = true
		}
	}
	return ids
}

// UnpairedToolCalls lists assistant tool call ids that have no tool message yet.
func (h *History) UnpairedToolCalls() []string {
	answered := make(map[string]bool)
	for _, m := range h.messages {
		if m.Role == contract.RoleTool {
			answered[m.ToolCallID] = true
		}
	}

	var missing []string
	for _, m := range h.messages {
		for _, tc := range m.ToolCalls {
			if !answered[tc.ID] {
				missing = append(missing, tc.ID)
			}
		}
	}
	return missing
}
