package agent

import (
	"errors"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model's request to run a tool. ID correlates the call with
// its result turn and is meaningful only within one run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON text
}

// Turn is one message in the flat form sent to the model.
type Turn struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // assistant turns only
	ToolCallID string     // tool turns only
	ToolName   string     // tool turns only
}

// Round is one assistant turn that requested tools, together with the result
// of every call in call order.
type Round struct {
	Assistant string
	Calls     []ToolCall
	Results   []string
}

var (
	ErrEmptyRound     = errors.New("round has no tool calls")
	ErrResultMismatch = errors.New("tool results do not match tool calls")
)

// History is the conversation of a single run. Rounds can only be added
// whole, so a tool result without its call, or a call without its result,
// cannot be represented.
type History struct {
	system string
	user   string
	rounds []Round
}

func NewHistory(system, user string) *History {
	return &History{system: system, user: user}
}

// Append adds a completed round. results[i] must be the output of calls[i].
func (h *History) Append(assistant string, calls []ToolCall, results []string) error {
	if len(calls) == 0 {
		return ErrEmptyRound
	}
	if len(results) != len(calls) {
		return fmt.Errorf("%w: %d calls, %d results", ErrResultMismatch, len(calls), len(results))
	}
	h.rounds = append(h.rounds, Round{
		Assistant: assistant,
		Calls:     append([]ToolCall(nil), calls...),
		Results:   append([]string(nil), results...),
	})
	return nil
}

func (h *History) Rounds() int { return len(h.rounds) }

// Turns flattens the history: system, user, then per round the assistant
// turn carrying all calls followed by one tool turn per call.
func (h *History) Turns() []Turn {
	turns := []Turn{
		{Role: RoleSystem, Content: h.system},
		{Role: RoleUser, Content: h.user},
	}
	for _, r := range h.rounds {
		turns = append(turns, Turn{
			Role:      RoleAssistant,
			Content:   r.Assistant,
			ToolCalls: append([]ToolCall(nil), r.Calls...),
		})
		for i, c := range r.Calls {
			turns = append(turns, Turn{
				Role:       RoleTool,
				Content:    r.Results[i],
				ToolCallID: c.ID,
				ToolName:   c.Name,
			})
		}
	}
	return turns
}
