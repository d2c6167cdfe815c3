package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/rys/internal/agent"
	"github.com/kalambet/rys/internal/delivery"
	"github.com/kalambet/rys/internal/llm"
	"github.com/kalambet/rys/internal/storage"
)

const (
	credentialsHint = "The model API key was rejected. Set a valid key with RYS_LLM_API_KEY " +
		"(or DASHSCOPE_API_KEY, it starts with sk-) and restart the assistant."
	accountHint = "The model account cannot serve requests right now (overdue balance, " +
		"exhausted quota or suspended account). Check the provider console."

	// OutcomeFailed marks a run that ended with a model error.
	OutcomeFailed = "failed"

	// handleTimeout bounds one event end to end, model rounds and delivery included.
	handleTimeout = 5 * time.Minute
)

// Event is one inbound chat message.
type Event struct {
	UserID  string `json:"userId"`
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// Reply describes what Handle did with an event.
type Reply struct {
	Text    string `json:"reply"`
	Outcome string `json:"outcome"`
	Rounds  int    `json:"rounds"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Runner answers one message.
type Runner interface {
	Run(ctx context.Context, userID, chatID, message string) (agent.Result, error)
}

// RunLog persists handled runs.
type RunLog interface {
	SaveRun(ctx context.Context, r storage.Run) error
}

// Handler turns inbound events into replies on the delivery channel.
type Handler struct {
	runner Runner
	sender delivery.Sender
	runs   RunLog
	logger *slog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// NewHandler wires a Handler. runs may be nil.
func NewHandler(runner Runner, sender delivery.Sender, runs RunLog, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runner: runner,
		sender: sender,
		runs:   runs,
		logger: logger,
		now:    time.Now,
	}
}

// Handle runs the orchestrator for ev and delivers the reply, or a readable
// error message when the model call fails. The returned error is only set
// when delivery itself failed.
func (h *Handler) Handle(ctx context.Context, ev Event) (Reply, error) {
	msg := strings.TrimSpace(ev.Message)
	if msg == "" || ev.ChatID == "" {
		h.logger.Warn("skipping empty event", "user_id", ev.UserID, "chat_id", ev.ChatID)
		return Reply{Skipped: true}, nil
	}

	h.logger.Info("handling message", "user_id", ev.UserID, "chat_id", ev.ChatID, "message", preview(msg, 50))

	res, err := h.runner.Run(ctx, ev.UserID, ev.ChatID, msg)
	reply := Reply{Text: res.Text, Outcome: string(res.Outcome), Rounds: res.Rounds}
	if err != nil {
		h.logger.Error("agent run failed", "user_id", ev.UserID, "chat_id", ev.ChatID, "error", err)
		reply.Text = UserMessage(err)
		reply.Outcome = OutcomeFailed
	}
	reply.Text = delivery.Truncate(reply.Text, delivery.MaxReplyRunes)

	h.record(ctx, ev, msg, reply, err)

	if _, sendErr := h.sender.Send(ctx, ev.ChatID, reply.Text); sendErr != nil {
		return reply, fmt.Errorf("delivering reply: %w", sendErr)
	}
	h.logger.Info("replied", "user_id", ev.UserID, "chat_id", ev.ChatID, "outcome", reply.Outcome, "rounds", reply.Rounds)
	return reply, nil
}

// Dispatch handles ev in the background. Webhooks acknowledge first and
// call this afterwards.
func (h *Handler) Dispatch(ev Event) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		if _, err := h.Handle(ctx, ev); err != nil {
			h.logger.Error("event handling failed", "user_id", ev.UserID, "chat_id", ev.ChatID, "error", err)
		}
	}()
}

// Wait blocks until every dispatched event has finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) record(ctx context.Context, ev Event, msg string, reply Reply, runErr error) {
	if h.runs == nil {
		return
	}
	r := storage.Run{
		ID:        uuid.New().String(),
		CreatedAt: h.now(),
		UserID:    ev.UserID,
		ChatID:    ev.ChatID,
		Message:   msg,
		Reply:     reply.Text,
		Outcome:   reply.Outcome,
		Rounds:    reply.Rounds,
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if err := h.runs.SaveRun(ctx, r); err != nil {
		h.logger.Warn("saving run failed", "user_id", ev.UserID, "error", err)
	}
}

// UserMessage renders an orchestrator error for the chat user.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, llm.ErrInvalidCredentials):
		return credentialsHint
	case errors.Is(err, llm.ErrAccountRestricted):
		return accountHint
	default:
		return "Something went wrong: " + err.Error()
	}
}

func preview(s string, n int) string {
	return delivery.Truncate(s, n)
}
