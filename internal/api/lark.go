package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/kalambet/rys/internal/delivery"
	"github.com/kalambet/rys/internal/metrics"
	"github.com/kalambet/rys/internal/pipeline"
)

type larkUserID struct {
	UserID string `json:"user_id"`
	OpenID string `json:"open_id"`
}

type larkMessage struct {
	MessageID   string      `json:"message_id"`
	ChatID      string      `json:"chat_id"`
	Content     string      `json:"content"`
	MessageType string      `json:"message_type"`
	SenderID    *larkUserID `json:"sender_id"`
}

type larkEvent struct {
	Type    string       `json:"type"`
	Message *larkMessage `json:"message"`
	Sender  *struct {
		SenderID   *larkUserID `json:"sender_id"`
		SenderType string      `json:"sender_type"`
	} `json:"sender"`
}

// larkBody covers URL verification, legacy event_callback and schema 2.0
// envelopes.
type larkBody struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Encrypt   string `json:"encrypt"`
	Schema    string `json:"schema"`
	Header    *struct {
		EventType string `json:"event_type"`
	} `json:"header"`
	Event *larkEvent `json:"event"`
}

// parseLarkEvent extracts a message event. ok is false for anything that is
// not a usable text message.
func parseLarkEvent(b larkBody) (ev pipeline.Event, ok bool) {
	if b.Event == nil || b.Event.Message == nil {
		return ev, false
	}
	var eventType string
	switch {
	case b.Schema == "2.0" && b.Header != nil:
		eventType = b.Header.EventType
	case b.Type == "event_callback":
		eventType = b.Event.Type
	default:
		return ev, false
	}
	if !strings.Contains(eventType, "im.message.receive") {
		return ev, false
	}

	m := b.Event.Message
	ev.ChatID = m.ChatID
	if m.Content != "" {
		ev.Message = delivery.MessageText(m.Content)
	}
	switch {
	case b.Event.Sender != nil && b.Event.Sender.SenderID != nil && b.Event.Sender.SenderID.UserID != "":
		ev.UserID = b.Event.Sender.SenderID.UserID
	case m.SenderID != nil:
		ev.UserID = m.SenderID.UserID
	}

	if ev.ChatID == "" || ev.Message == "" {
		return ev, false
	}
	return ev, true
}

func handleLarkWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading body: %v", err)
			return
		}

		var body larkBody
		if err := json.Unmarshal(raw, &body); err != nil {
			deps.Logger.Warn("lark webhook: unparseable body", "body", delivery.Truncate(string(raw), 200))
			metrics.WebhookEvents.WithLabelValues("lark", "ignored").Inc()
			ack(w)
			return
		}

		if body.Type == "url_verification" {
			deps.Logger.Info("lark webhook: url verification")
			metrics.WebhookEvents.WithLabelValues("lark", "challenge").Inc()
			writeJSON(w, http.StatusOK, map[string]string{"challenge": body.Challenge})
			return
		}

		if body.Encrypt != "" {
			deps.Logger.Warn("lark webhook: encrypted events are not supported, disable the encrypt key in the app console")
			metrics.WebhookEvents.WithLabelValues("lark", "ignored").Inc()
			ack(w)
			return
		}

		ev, ok := parseLarkEvent(body)
		if !ok {
			deps.Logger.Debug("lark webhook: not a text message event", "body", delivery.Truncate(string(raw), 200))
			metrics.WebhookEvents.WithLabelValues("lark", "ignored").Inc()
			ack(w)
			return
		}

		metrics.WebhookEvents.WithLabelValues("lark", "accepted").Inc()
		ack(w)
		deps.Events.Dispatch(ev)
	}
}

// ack answers 200 "ok" so the platform does not redeliver.
func ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
