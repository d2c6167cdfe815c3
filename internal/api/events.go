package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/rys/internal/metrics"
	"github.com/kalambet/rys/internal/pipeline"
	"github.com/kalambet/rys/internal/reminder"
)

func handleEvent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var ev pipeline.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			metrics.WebhookEvents.WithLabelValues("api", "invalid").Inc()
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if ev.ChatID == "" || strings.TrimSpace(ev.Message) == "" {
			metrics.WebhookEvents.WithLabelValues("api", "invalid").Inc()
			httpError(w, http.StatusBadRequest, "invalid_request_error", "chatId and message are required")
			return
		}
		metrics.WebhookEvents.WithLabelValues("api", "accepted").Inc()

		if r.URL.Query().Get("wait") != "true" {
			deps.Events.Dispatch(ev)
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
			return
		}

		reply, err := deps.Events.Handle(r.Context(), ev)
		if err != nil {
			// The reply was produced; only delivery failed.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"reply":   reply.Text,
				"outcome": reply.Outcome,
				"rounds":  reply.Rounds,
				"error":   err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

type reminderView struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	ChatID    string     `json:"chatId"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"createdAt"`
	Cron      string     `json:"cron,omitempty"`
	At        *time.Time `json:"at,omitempty"`
	Kind      string     `json:"kind"`
}

func viewOf(j reminder.Job) reminderView {
	return reminderView{
		ID:        j.ID,
		UserID:    j.UserID,
		ChatID:    j.ChatID,
		Message:   j.Message,
		CreatedAt: j.CreatedAt,
		Cron:      j.Cron,
		At:        j.At,
		Kind:      j.Kind(),
	}
}

func handleListReminders(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			jobs []reminder.Job
			err  error
		)
		if userID := r.URL.Query().Get("user_id"); userID != "" {
			jobs, err = deps.Reminders.ListByUser(r.Context(), userID)
		} else {
			jobs, err = deps.Reminders.ListAll(r.Context())
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing reminders: %v", err)
			return
		}
		out := make([]reminderView, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, viewOf(j))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type addReminderRequest struct {
	UserID  string `json:"userId"`
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
	Cron    string `json:"cron"`
	At      string `json:"at"`
}

func handleAddReminder(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req addReminderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ChatID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "chatId is required")
			return
		}

		job, err := deps.Reminders.Add(r.Context(), reminder.Draft{
			UserID:  req.UserID,
			ChatID:  req.ChatID,
			Message: req.Message,
			Cron:    req.Cron,
			At:      req.At,
		})
		if err != nil {
			var verr *reminder.ValidationError
			if errors.As(err, &verr) {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", verr)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "adding reminder: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(job))
	}
}

func handleDeleteReminder(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		removed, err := deps.Reminders.RemoveByID(r.Context(), id, r.URL.Query().Get("user_id"))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "removing reminder: %v", err)
			return
		}
		if !removed {
			httpError(w, http.StatusNotFound, "not_found", "reminder %s not found", id)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Runs == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "run log not available")
			return
		}
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = min(n, 200)
		}

		runs, err := deps.Runs.ListRuns(r.Context(), r.URL.Query().Get("user_id"), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing runs: %v", err)
			return
		}

		type runView struct {
			ID        string    `json:"id"`
			CreatedAt time.Time `json:"createdAt"`
			UserID    string    `json:"userId"`
			ChatID    string    `json:"chatId"`
			Message   string    `json:"message"`
			Reply     string    `json:"reply"`
			Outcome   string    `json:"outcome"`
			Rounds    int       `json:"rounds"`
			Error     string    `json:"error,omitempty"`
		}
		out := make([]runView, 0, len(runs))
		for _, run := range runs {
			out = append(out, runView(run))
		}
		writeJSON(w, http.StatusOK, out)
	}
}
