package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLark struct {
	tokenCalls atomic.Int32
	sends      atomic.Int32
	lastAuth   atomic.Value
	lastBody   atomic.Value
	sendCode   int
	messageID  string
	expire     int
}

func (f *fakeLark) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding token request: %v", err)
		}
		if req["app_id"] != "app" || req["app_secret"] != "secret" {
			t.Errorf("token request = %v", req)
		}
		fmt.Fprintf(w, `{"code":0,"msg":"ok","tenant_access_token":"t-%d","expire":%d}`, f.tokenCalls.Load(), f.expire)
	})
	mux.HandleFunc("POST /open-apis/im/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		f.sends.Add(1)
		if got := r.URL.Query().Get("receive_id_type"); got != "chat_id" {
			t.Errorf("receive_id_type = %q", got)
		}
		f.lastAuth.Store(r.Header.Get("Authorization"))
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding send request: %v", err)
		}
		f.lastBody.Store(req)
		if f.sendCode != 0 {
			fmt.Fprintf(w, `{"code":%d,"msg":"bad chat"}`, f.sendCode)
			return
		}
		fmt.Fprintf(w, `{"code":0,"data":{"message_id":%q}}`, f.messageID)
	})
	return mux
}

func TestLarkSend(t *testing.T) {
	f := &fakeLark{messageID: "om_1", expire: 7200}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := NewLarkClient("app", "secret", srv.URL, srv.Client())
	id, err := c.Send(context.Background(), "oc_chat", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "om_1" {
		t.Errorf("id = %q, want om_1", id)
	}
	if got := f.lastAuth.Load(); got != "Bearer t-1" {
		t.Errorf("Authorization = %v", got)
	}
	body := f.lastBody.Load().(map[string]string)
	if body["receive_id"] != "oc_chat" || body["msg_type"] != "text" {
		t.Errorf("body = %v", body)
	}
	if body["content"] != `{"text":"hello"}` {
		t.Errorf("content = %q", body["content"])
	}
}

func TestLarkTokenCached(t *testing.T) {
	f := &fakeLark{messageID: "om_1", expire: 7200}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	c := NewLarkClient("app", "secret", srv.URL, srv.Client())
	c.now = func() time.Time { return now }

	for range 3 {
		if _, err := c.Send(context.Background(), "oc_chat", "hi"); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if got := f.tokenCalls.Load(); got != 1 {
		t.Errorf("token calls = %d, want 1", got)
	}

	// Inside the refresh margin a new token is fetched.
	now = now.Add(7200*time.Second - 30*time.Second)
	if _, err := c.Send(context.Background(), "oc_chat", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := f.tokenCalls.Load(); got != 2 {
		t.Errorf("token calls = %d, want 2", got)
	}
	if got := f.lastAuth.Load(); got != "Bearer t-2" {
		t.Errorf("Authorization = %v", got)
	}
}

func TestLarkSendErrorCode(t *testing.T) {
	f := &fakeLark{sendCode: 230002, expire: 7200}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := NewLarkClient("app", "secret", srv.URL, srv.Client())
	if _, err := c.Send(context.Background(), "oc_chat", "hi"); err == nil {
		t.Fatal("expected error for non-zero code")
	}
}

func TestLarkSendMissingMessageID(t *testing.T) {
	f := &fakeLark{expire: 7200}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := NewLarkClient("app", "secret", srv.URL, srv.Client())
	_, err := c.Send(context.Background(), "oc_chat", "hi")
	if !errors.Is(err, ErrNotDelivered) {
		t.Errorf("err = %v, want ErrNotDelivered", err)
	}
}

func TestLarkTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":10003,"msg":"invalid app_secret"}`)
	}))
	defer srv.Close()

	c := NewLarkClient("app", "wrong", srv.URL, srv.Client())
	if _, err := c.Send(context.Background(), "oc_chat", "hi"); err == nil {
		t.Fatal("expected token error")
	}
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"text":" hi there "}`, "hi there"},
		{`{"text":""}`, ""},
		{`plain words`, "plain words"},
		{`{"image_key":"x"}`, `{"image_key":"x"}`},
	}
	for _, tt := range tests {
		if got := MessageText(tt.in); got != tt.want {
			t.Errorf("MessageText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
