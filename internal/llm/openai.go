package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/kalambet/rys/internal/agent"
	"github.com/kalambet/rys/internal/metrics"
	"github.com/kalambet/rys/internal/tools"
)

// DefaultBaseURL is DashScope's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

var (
	// ErrInvalidCredentials means the provider rejected the API key.
	ErrInvalidCredentials = errors.New("invalid model API credentials")
	// ErrAccountRestricted means the key is valid but the account cannot be
	// billed: overdue, out of quota or suspended.
	ErrAccountRestricted = errors.New("model account restricted")
)

// Client implements agent.Model over any OpenAI-compatible chat completions
// endpoint.
type Client struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

func New(opts Options) *Client {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	reqOpts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &Client{
		client: openai.NewClient(reqOpts...),
		model:  opts.Model,
		logger: slog.Default(),
	}
}

// Complete sends one chat completion request. Errors from the provider are
// classified into ErrInvalidCredentials and ErrAccountRestricted where
// possible; the provider error stays in the chain.
func (c *Client) Complete(ctx context.Context, req agent.Request) (agent.Response, error) {
	params := openai.ChatCompletionNewParams{
		Messages: convertTurns(req.Turns),
		Model:    openai.ChatModel(c.model),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	metrics.LLMRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return agent.Response{}, classify(err)
	}

	if len(resp.Choices) == 0 {
		c.logger.Warn("chat completion returned no choices", "model", c.model)
		return agent.Response{}, nil
	}
	msg := resp.Choices[0].Message
	out := agent.Response{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, agent.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func convertTurns(turns []agent.Turn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case agent.RoleSystem:
			out = append(out, openai.SystemMessage(t.Content))
		case agent.RoleUser:
			out = append(out, openai.UserMessage(t.Content))
		case agent.RoleAssistant:
			if len(t.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(t.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if t.Content != "" {
				asst.Content.OfString = openai.String(t.Content)
			}
			for _, tc := range t.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case agent.RoleTool:
			out = append(out, openai.ToolMessage(t.Content, t.ToolCallID))
		}
	}
	return out
}

func convertTools(schemas []tools.Schema) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        s.Name,
			Description: openai.String(s.Description),
			Parameters:  openai.FunctionParameters(s.Parameters),
		}))
	}
	return out
}

// classify maps provider errors onto the package sentinels.
func classify(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("chat completion: %w", err)
	}
	code := strings.ToLower(apiErr.Code)
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized || code == "invalid_api_key":
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	case apiErr.StatusCode == http.StatusPaymentRequired,
		code == "arrearage", code == "insufficient_quota", code == "account_deactivated":
		return fmt.Errorf("%w: %w", ErrAccountRestricted, err)
	case apiErr.StatusCode == http.StatusForbidden && strings.Contains(code, "access"):
		return fmt.Errorf("%w: %w", ErrAccountRestricted, err)
	}
	return fmt.Errorf("chat completion: %w", err)
}
