package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/rys/internal/pipeline"
	"github.com/kalambet/rys/internal/reminder"
	"github.com/kalambet/rys/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// EventHandler answers inbound chat events.
type EventHandler interface {
	Handle(ctx context.Context, ev pipeline.Event) (pipeline.Reply, error)
	Dispatch(ev pipeline.Event)
}

// ReminderStore is the reminder surface exposed over HTTP.
type ReminderStore interface {
	Add(ctx context.Context, d reminder.Draft) (reminder.Job, error)
	ListByUser(ctx context.Context, userID string) ([]reminder.Job, error)
	ListAll(ctx context.Context) ([]reminder.Job, error)
	RemoveByID(ctx context.Context, id, userID string) (bool, error)
}

// RunLister lists handled runs, newest first.
type RunLister interface {
	ListRuns(ctx context.Context, userID string, limit int) ([]storage.Run, error)
}

type Deps struct {
	Events    EventHandler
	Reminders ReminderStore
	Runs      RunLister // optional
	Token     string
	Logger    *slog.Logger
}

// NewRouter mounts the webhooks, the management API under /v1, health and
// metrics.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/lark/webhook", handleLarkWebhook(deps))
	r.Post("/telegram/webhook", handleTelegramWebhook(deps))

	r.Route("/v1", func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/events", handleEvent(deps))
		r.Get("/reminders", handleListReminders(deps))
		r.Post("/reminders", handleAddReminder(deps))
		r.Delete("/reminders/{id}", handleDeleteReminder(deps))
		r.Get("/runs", handleListRuns(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
