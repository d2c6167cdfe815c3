package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/rys/internal/metrics"
)

const (
	DefaultLarkBaseURL = "https://open.feishu.cn"
	larkTimeout        = 15 * time.Second
	// tokens are refreshed this long before Lark says they expire
	tokenSkew = 60 * time.Second
)

// LarkClient sends text messages through the Lark (Feishu) open API using a
// cached tenant access token.
type LarkClient struct {
	appID      string
	appSecret  string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewLarkClient(appID, appSecret, baseURL string, httpClient *http.Client) *LarkClient {
	if baseURL == "" {
		baseURL = DefaultLarkBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: larkTimeout}
	}
	return &LarkClient{
		appID:      appID,
		appSecret:  appSecret,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

type sendResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		MessageID string `json:"message_id"`
	} `json:"data"`
}

// Send posts text to chatID and returns the new message id.
func (c *LarkClient) Send(ctx context.Context, chatID, text string) (string, error) {
	id, err := c.send(ctx, chatID, text)
	metrics.Deliveries.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		c.logger.Warn("lark send failed", "chat_id", chatID, "error", err)
	}
	return id, err
}

func (c *LarkClient) send(ctx context.Context, chatID, text string) (string, error) {
	token, err := c.tenantToken(ctx)
	if err != nil {
		return "", err
	}

	content, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(map[string]string{
		"receive_id": chatID,
		"msg_type":   "text",
		"content":    string(content),
	})
	if err != nil {
		return "", err
	}

	var out sendResponse
	if err := c.post(ctx, "/open-apis/im/v1/messages?receive_id_type=chat_id", token, body, &out); err != nil {
		return "", fmt.Errorf("sending lark message: %w", err)
	}
	if out.Code != 0 {
		return "", fmt.Errorf("sending lark message: code %d: %s", out.Code, out.Msg)
	}
	if out.Data.MessageID == "" {
		return "", ErrNotDelivered
	}
	return out.Data.MessageID, nil
}

func (c *LarkClient) tenantToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})
	if err != nil {
		return "", err
	}
	var out tokenResponse
	if err := c.post(ctx, "/open-apis/auth/v3/tenant_access_token/internal", "", body, &out); err != nil {
		return "", fmt.Errorf("fetching tenant token: %w", err)
	}
	if out.Code != 0 || out.TenantAccessToken == "" {
		return "", fmt.Errorf("fetching tenant token: code %d: %s", out.Code, out.Msg)
	}

	c.token = out.TenantAccessToken
	c.expires = c.now().Add(time.Duration(out.Expire)*time.Second - tokenSkew)
	return c.token, nil
}

func (c *LarkClient) post(ctx context.Context, path, token string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// MessageText extracts the text of a Lark message content field, which is a
// JSON string like {"text":"hi"}. Non-JSON content is returned as is.
func MessageText(content string) string {
	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err == nil && payload.Text != nil {
		return strings.TrimSpace(*payload.Text)
	}
	return strings.TrimSpace(content)
}
