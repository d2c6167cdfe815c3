package agent

import (
	"errors"
	"testing"
)

func TestHistoryAppendRejectsMalformedRounds(t *testing.T) {
	h := NewHistory("sys", "hi")
	if err := h.Append("", nil, nil); !errors.Is(err, ErrEmptyRound) {
		t.Errorf("empty round err = %v", err)
	}
	calls := []ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}
	if err := h.Append("", calls, []string{"only one"}); !errors.Is(err, ErrResultMismatch) {
		t.Errorf("mismatch err = %v", err)
	}
	if h.Rounds() != 0 {
		t.Errorf("rejected rounds were stored: %d", h.Rounds())
	}
}

func TestHistoryTurnsOrderAndCorrelation(t *testing.T) {
	h := NewHistory("sys", "hi")
	r1 := []ToolCall{{ID: "c1", Name: "list_dir"}, {ID: "c2", Name: "read_file"}, {ID: "c3", Name: "memory_get"}}
	if err := h.Append("working", r1, []string{"r1", "r2", "r3"}); err != nil {
		t.Fatal(err)
	}
	r2 := []ToolCall{{ID: "c4", Name: "write_file"}}
	if err := h.Append("", r2, []string{"r4"}); err != nil {
		t.Fatal(err)
	}

	turns := h.Turns()
	wantRoles := []Role{RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleTool, RoleTool, RoleAssistant, RoleTool}
	if len(turns) != len(wantRoles) {
		t.Fatalf("got %d turns, want %d", len(turns), len(wantRoles))
	}
	for i, r := range wantRoles {
		if turns[i].Role != r {
			t.Errorf("turn %d role = %s, want %s", i, turns[i].Role, r)
		}
	}

	// Every tool turn follows its assistant turn in call order and carries the
	// call's id and name.
	var pending []ToolCall
	for i, turn := range turns {
		switch turn.Role {
		case RoleAssistant:
			if len(pending) != 0 {
				t.Fatalf("turn %d: %d calls left unanswered", i, len(pending))
			}
			pending = append([]ToolCall(nil), turn.ToolCalls...)
		case RoleTool:
			if len(pending) == 0 {
				t.Fatalf("turn %d: tool result without a call", i)
			}
			if turn.ToolCallID != pending[0].ID || turn.ToolName != pending[0].Name {
				t.Errorf("turn %d correlates to %s/%s, want %s/%s", i, turn.ToolCallID, turn.ToolName, pending[0].ID, pending[0].Name)
			}
			pending = pending[1:]
		}
	}
	if turns[5].Content != "r3" || turns[7].Content != "r4" {
		t.Errorf("results misplaced: %q %q", turns[5].Content, turns[7].Content)
	}
}
