package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kalambet/rys/internal/metrics"
	"github.com/kalambet/rys/internal/pipeline"
)

func parseTelegramUpdate(u tgbotapi.Update) (pipeline.Event, bool) {
	m := u.Message
	if m == nil {
		m = u.EditedMessage
	}
	if m == nil || m.Chat == nil {
		return pipeline.Event{}, false
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		text = strings.TrimSpace(m.Caption)
	}
	if text == "" {
		return pipeline.Event{}, false
	}
	ev := pipeline.Event{
		ChatID:  strconv.FormatInt(m.Chat.ID, 10),
		Message: text,
	}
	if m.From != nil {
		ev.UserID = strconv.FormatInt(m.From.ID, 10)
	}
	return ev, true
}

func handleTelegramWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var u tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			deps.Logger.Warn("telegram webhook: unparseable update", "error", err)
			metrics.WebhookEvents.WithLabelValues("telegram", "ignored").Inc()
			ack(w)
			return
		}

		ev, ok := parseTelegramUpdate(u)
		if !ok {
			metrics.WebhookEvents.WithLabelValues("telegram", "ignored").Inc()
			ack(w)
			return
		}

		metrics.WebhookEvents.WithLabelValues("telegram", "accepted").Inc()
		ack(w)
		deps.Events.Dispatch(ev)
	}
}
