package conversation

import (
	"testing"

	"github.com/harunnryd/shiori/internal/model/contract"

	"github.com/stretchr/testify/assert"
)

func TestHistory_SystemPromptSurvivesReset(t *testing.T) {
	h := NewHistory("sys")
	h.Append(contract.Message{Role: contract.RoleUser, Content: "hi"})
	assert.Equal(t, 2, h.Len())

	h.Reset()
	assert.Equal(t, []contract.Message{{Role: contract.RoleSystem, Content: "sys"}}, h.Messages())
}

func TestHistory_WithoutSystemPrompt(t *testing.T) {
	h := NewHistory("")
	assert.Equal(t, 0, h.Len())
}

func TestHistory_Truncate(t *testing.T) {
	h := NewHistory("sys")
	h.Append(
		contract.Message{Role: contract.RoleUser, Content: "1"},
		contract.Message{Role: contract.RoleAssistant, Content: "2"},
	)

	h.Truncate(10)
	assert.Equal(t, 3, h.Len())

	h.Truncate(2)
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, "1", h.Messages()[1].Content)

	h.Truncate(-1)
	assert.Equal(t, 0, h.Len())
}

func TestHistory_MessagesIsACopy(t *testing.T) {
	h := NewHistory("sys")
	msgs := h.Messages()
	msgs[0].Content = "changed"
	assert.Equal(t, "sys", h.Messages()[0].Content)
}

func TestHistory_UnpairedToolCalls(t *testing.T) {
	h := NewHistory("")
	h.Append(contract.Message{Role: contract.RoleAssistant, ToolCalls: []*contract.ToolCall{{ID: "a"}, {ID: "b"}}})
	h.Append(contract.Message{Role: contract.RoleTool, ToolCallID: "a"})

	assert.Equal(t, []string{"b"}, h.UnpairedToolCalls())
}
