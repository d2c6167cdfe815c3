package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/rys/internal/tools"
)

// ToolInvoker runs a registered tool and reports the result as text.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, raw map[string]any, c tools.Caller) string
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Registry  *tools.Registry
	Invoker   ToolInvoker
	Caller    tools.Caller // identity every MCP tool call runs as
	Reminders ReminderStore
	Runs      RunLister // optional
}

// NewMCPServer exposes every registered tool, plus read-only reminder and
// run resources, over MCP.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"rys",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("rys: personal assistant tools for reminders, memory, files, shell, web and email."),
		server.WithRecovery(),
	)

	for _, t := range deps.Registry.Tools() {
		s.AddTool(mcpToolFor(t), mcpInvoke(deps, t.Name))
	}

	s.AddResource(
		mcp.NewResource(
			"rys://reminders",
			"Reminders",
			mcp.WithResourceDescription("All scheduled reminder jobs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceReminders(deps),
	)

	if deps.Runs != nil {
		s.AddResource(
			mcp.NewResource(
				"rys://runs",
				"Recent Runs",
				mcp.WithResourceDescription("Last 10 handled messages"),
				mcp.WithMIMEType("application/json"),
			),
			mcpResourceRuns(deps),
		)
	}

	return s
}

func mcpToolFor(t tools.Tool) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(t.Description)}
	for _, p := range t.Params {
		popts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			popts = append(popts, mcp.Required())
		}
		switch p.Type {
		case tools.Integer:
			opts = append(opts, mcp.WithNumber(p.Name, popts...))
		case tools.Boolean:
			opts = append(opts, mcp.WithBoolean(p.Name, popts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, popts...))
		}
	}
	return mcp.NewTool(t.Name, opts...)
}

func mcpInvoke(deps MCPDeps, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out := deps.Invoker.Invoke(ctx, name, req.GetArguments(), deps.Caller)
		if strings.HasPrefix(out, "tool error: ") || strings.HasPrefix(out, "unknown tool: ") {
			return mcpError(out), nil
		}
		return mcpText(out), nil
	}
}

func mcpResourceReminders(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jobs, err := deps.Reminders.ListAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list reminders: %w", err)
		}
		views := make([]reminderView, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, viewOf(j))
		}
		b, err := json.Marshal(views)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal reminders: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Runs.ListRuns(ctx, "", 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		type runSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			UserID    string `json:"user_id"`
			Message   string `json:"message"`
			Outcome   string `json:"outcome"`
		}

		summaries := make([]runSummary, len(runs))
		for i, r := range runs {
			msg := r.Message
			if utf8.RuneCountInString(msg) > 200 {
				runes := []rune(msg)
				msg = string(runes[:200]) + "..."
			}
			summaries[i] = runSummary{
				ID:        r.ID,
				CreatedAt: r.CreatedAt.Format(time.RFC3339),
				UserID:    r.UserID,
				Message:   msg,
				Outcome:   r.Outcome,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
