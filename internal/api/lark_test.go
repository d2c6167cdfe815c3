package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/kalambet/rys/internal/pipeline"
)

func TestLarkWebhook_Challenge(t *testing.T) {
	env := setupRouter(t, testToken)
	rec := do(env.handler, http.MethodPost, "/lark/webhook", `{"type":"url_verification","challenge":"abc123","token":"x"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"challenge":"abc123"}` {
		t.Errorf("body = %s", got)
	}
	if len(env.events.Dispatched()) != 0 {
		t.Error("challenge must not dispatch")
	}
}

func TestLarkWebhook_Schema2Message(t *testing.T) {
	env := setupRouter(t, testToken)
	body := `{
		"schema": "2.0",
		"header": {"event_type": "im.message.receive_v1"},
		"event": {
			"sender": {"sender_id": {"user_id": "ou_user", "open_id": "ou_open"}},
			"message": {"message_id": "om_1", "chat_id": "oc_chat", "message_type": "text", "content": "{\"text\":\"remind me at 9\"}"}
		}
	}`
	rec := do(env.handler, http.MethodPost, "/lark/webhook", body, "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	got := env.events.Dispatched()
	want := pipeline.Event{UserID: "ou_user", ChatID: "oc_chat", Message: "remind me at 9"}
	if len(got) != 1 || got[0] != want {
		t.Errorf("dispatched = %+v, want %+v", got, want)
	}
}

func TestLarkWebhook_LegacyCallback(t *testing.T) {
	env := setupRouter(t, testToken)
	body := `{
		"type": "event_callback",
		"event": {
			"type": "im.message.receive_v1",
			"message": {"chat_id": "oc_chat", "content": "{\"text\":\"hello\"}", "sender_id": {"user_id": "u_legacy"}}
		}
	}`
	do(env.handler, http.MethodPost, "/lark/webhook", body, "")
	got := env.events.Dispatched()
	if len(got) != 1 || got[0].UserID != "u_legacy" || got[0].Message != "hello" {
		t.Errorf("dispatched = %+v", got)
	}
}

func TestLarkWebhook_Ignored(t *testing.T) {
	tests := map[string]string{
		"encrypted":     `{"encrypt":"FIAfJPGRmFZWkaxPQ1XrJZVbv2JwdjfLk4jx0k/U1deAqYK3AXOZ5zcHt/cC4ZNTqYwWUW/EoL+b2hW/C4zoAQQ5CeMtbxX2zHjm+E4nX/Aww+FHUL6iuIMaeL2KLxqdtbHRC50vgC2YI7xLxsdOmOKT9fu9Hl3+Ma2fZz4FEYQ="}`,
		"not json":      `<xml/>`,
		"other event":   `{"schema":"2.0","header":{"event_type":"im.chat.member.bot.added_v1"},"event":{"message":{"chat_id":"oc","content":"{\"text\":\"x\"}"}}}`,
		"empty content": `{"schema":"2.0","header":{"event_type":"im.message.receive_v1"},"event":{"message":{"chat_id":"oc","content":"{\"text\":\"  \"}"}}}`,
		"no chat":       `{"schema":"2.0","header":{"event_type":"im.message.receive_v1"},"event":{"message":{"content":"{\"text\":\"hi\"}"}}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			env := setupRouter(t, testToken)
			rec := do(env.handler, http.MethodPost, "/lark/webhook", body, "")
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			if n := len(env.events.Dispatched()); n != 0 {
				t.Errorf("dispatched %d events, want 0", n)
			}
		})
	}
}

func TestLarkWebhook_NoAuthRequired(t *testing.T) {
	env := setupRouter(t, testToken)
	rec := do(env.handler, http.MethodPost, "/lark/webhook", `{"type":"url_verification","challenge":"c"}`, "")
	if rec.Code == http.StatusUnauthorized {
		t.Error("webhook must not require the API token")
	}
}
