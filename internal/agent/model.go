package agent

import (
	"context"

	"github.com/kalambet/rys/internal/tools"
)

// Request is one chat completion call.
type Request struct {
	Turns     []Turn
	Tools     []tools.Schema
	MaxTokens int
}

// Response is the model's reply. A non-empty ToolCalls asks the caller to run
// the tools and ask again.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Model is a chat completion backend with tool calling.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
