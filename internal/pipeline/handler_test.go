package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/kalambet/rys/internal/agent"
	"github.com/kalambet/rys/internal/delivery"
	"github.com/kalambet/rys/internal/llm"
	"github.com/kalambet/rys/internal/storage"
)

type mockRunner struct {
	result agent.Result
	err    error

	mu    sync.Mutex
	calls []string
}

func (m *mockRunner) Run(_ context.Context, userID, chatID, message string) (agent.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, userID+"|"+chatID+"|"+message)
	m.mu.Unlock()
	return m.result, m.err
}

type sent struct {
	chatID, text string
}

type mockSender struct {
	err error

	mu   sync.Mutex
	sent []sent
}

func (m *mockSender) Send(_ context.Context, chatID, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, sent{chatID, text})
	return fmt.Sprintf("msg-%d", len(m.sent)), nil
}

type mockRunLog struct {
	mu   sync.Mutex
	runs []storage.Run
}

func (m *mockRunLog) SaveRun(_ context.Context, r storage.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, r)
	return nil
}

func TestHandle_DeliversReply(t *testing.T) {
	runner := &mockRunner{result: agent.Result{Text: "Done.", Rounds: 2, Outcome: agent.OutcomeAnswered}}
	sender := &mockSender{}
	runs := &mockRunLog{}
	h := NewHandler(runner, sender, runs, nil)

	reply, err := h.Handle(context.Background(), Event{UserID: "u1", ChatID: "c1", Message: "  remind me  "})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply.Text != "Done." || reply.Outcome != "answered" || reply.Rounds != 2 {
		t.Errorf("reply = %+v", reply)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "u1|c1|remind me" {
		t.Errorf("runner calls = %v", runner.calls)
	}
	if len(sender.sent) != 1 || sender.sent[0] != (sent{"c1", "Done."}) {
		t.Errorf("sent = %v", sender.sent)
	}
	if len(runs.runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs.runs))
	}
	r := runs.runs[0]
	if r.ID == "" || r.UserID != "u1" || r.Message != "remind me" || r.Outcome != "answered" || r.Error != "" {
		t.Errorf("run = %+v", r)
	}
}

func TestHandle_SkipsBlank(t *testing.T) {
	runner := &mockRunner{}
	sender := &mockSender{}
	h := NewHandler(runner, sender, nil, nil)

	for _, ev := range []Event{
		{UserID: "u1", ChatID: "c1", Message: "   "},
		{UserID: "u1", ChatID: "", Message: "hello"},
	} {
		reply, err := h.Handle(context.Background(), ev)
		if err != nil {
			t.Fatalf("Handle: %v", err)
		}
		if !reply.Skipped {
			t.Errorf("event %+v not skipped", ev)
		}
	}
	if len(runner.calls) != 0 || len(sender.sent) != 0 {
		t.Errorf("runner calls = %d, sent = %d, want 0", len(runner.calls), len(sender.sent))
	}
}

func TestHandle_TruncatesReply(t *testing.T) {
	runner := &mockRunner{result: agent.Result{Text: strings.Repeat("ж", 5000), Rounds: 1, Outcome: agent.OutcomeAnswered}}
	sender := &mockSender{}
	h := NewHandler(runner, sender, nil, nil)

	if _, err := h.Handle(context.Background(), Event{UserID: "u", ChatID: "c", Message: "hi"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if n := utf8.RuneCountInString(sender.sent[0].text); n != delivery.MaxReplyRunes {
		t.Errorf("sent %d runes, want %d", n, delivery.MaxReplyRunes)
	}
}

func TestHandle_TranslatesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"credentials", fmt.Errorf("model round 1: %w", fmt.Errorf("%w: 401", llm.ErrInvalidCredentials)), credentialsHint},
		{"account", fmt.Errorf("model round 3: %w", llm.ErrAccountRestricted), accountHint},
		{"other", errors.New("connection reset"), "Something went wrong: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{err: tt.err, result: agent.Result{Rounds: 1}}
			sender := &mockSender{}
			runs := &mockRunLog{}
			h := NewHandler(runner, sender, runs, nil)

			reply, err := h.Handle(context.Background(), Event{UserID: "u", ChatID: "c", Message: "hi"})
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if reply.Outcome != OutcomeFailed {
				t.Errorf("outcome = %q, want failed", reply.Outcome)
			}
			if len(sender.sent) != 1 || sender.sent[0].text != tt.want {
				t.Errorf("sent = %v, want %q", sender.sent, tt.want)
			}
			if runs.runs[0].Error == "" || runs.runs[0].Outcome != OutcomeFailed {
				t.Errorf("run = %+v", runs.runs[0])
			}
		})
	}
}

func TestHandle_DeliveryError(t *testing.T) {
	runner := &mockRunner{result: agent.Result{Text: "ok", Rounds: 1, Outcome: agent.OutcomeAnswered}}
	h := NewHandler(runner, &mockSender{err: errors.New("chat not found")}, nil, nil)

	if _, err := h.Handle(context.Background(), Event{UserID: "u", ChatID: "c", Message: "hi"}); err == nil {
		t.Fatal("expected delivery error")
	}
}

func TestDispatchWait(t *testing.T) {
	runner := &mockRunner{result: agent.Result{Text: "pong", Rounds: 1, Outcome: agent.OutcomeAnswered}}
	sender := &mockSender{}
	h := NewHandler(runner, sender, nil, nil)

	for i := range 5 {
		h.Dispatch(Event{UserID: "u", ChatID: fmt.Sprintf("c%d", i), Message: "ping"})
	}
	h.Wait()

	if len(sender.sent) != 5 {
		t.Errorf("sent = %d, want 5", len(sender.sent))
	}
}
