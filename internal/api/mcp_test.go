package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/rys/internal/reminder"
	"github.com/kalambet/rys/internal/tools"
)

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	err := r.Register(tools.Tool{
		Name:        "echo",
		Description: "Echo text back",
		Params: []tools.Param{
			{Name: "text", Type: tools.String, Description: "text to echo", Required: true},
			{Name: "times", Type: tools.Integer, Description: "repeat count"},
			{Name: "loud", Type: tools.Boolean, Description: "upper-case"},
		},
		Handler: func(_ context.Context, c tools.Caller, args tools.Args) (string, error) {
			if args.String("text") == "fail" {
				return "", errors.New("boom")
			}
			return c.UserID + ":" + args.String("text"), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestMCPToolFor_MapsParams(t *testing.T) {
	r := newTestRegistry(t)
	tool, _ := r.Lookup("echo")
	mt := mcpToolFor(tool)

	if mt.Name != "echo" || mt.Description != "Echo text back" {
		t.Errorf("tool = %s / %s", mt.Name, mt.Description)
	}
	want := map[string]string{"text": "string", "times": "number", "loud": "boolean"}
	for name, typ := range want {
		prop, ok := mt.InputSchema.Properties[name].(map[string]any)
		if !ok {
			t.Fatalf("property %s missing", name)
		}
		if prop["type"] != typ {
			t.Errorf("%s type = %v, want %s", name, prop["type"], typ)
		}
	}
	if len(mt.InputSchema.Required) != 1 || mt.InputSchema.Required[0] != "text" {
		t.Errorf("required = %v", mt.InputSchema.Required)
	}
}

func TestMCPInvoke(t *testing.T) {
	r := newTestRegistry(t)
	deps := MCPDeps{
		Registry: r,
		Invoker:  tools.NewDispatcher(r),
		Caller:   tools.Caller{UserID: "mcp", ChatID: "local"},
	}

	res, err := mcpInvoke(deps, "echo")(context.Background(), makeCallToolRequest("echo", map[string]any{"text": "hi"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError || toolText(t, res) != "mcp:hi" {
		t.Errorf("result = %+v", res)
	}

	res, _ = mcpInvoke(deps, "echo")(context.Background(), makeCallToolRequest("echo", map[string]any{"text": "fail"}))
	if !res.IsError || toolText(t, res) != "tool error: boom" {
		t.Errorf("failing tool result = %+v", res)
	}

	res, _ = mcpInvoke(deps, "echo")(context.Background(), makeCallToolRequest("echo", map[string]any{}))
	if !res.IsError {
		t.Error("missing required argument should be an error result")
	}
}

func TestMCPResourceReminders(t *testing.T) {
	env := setupRouter(t, testToken)
	ctx := context.Background()
	if _, err := env.reminders.Add(ctx, reminder.Draft{UserID: "u1", ChatID: "c1", Message: "water plants", Cron: "0 18 * * *"}); err != nil {
		t.Fatal(err)
	}

	deps := MCPDeps{Reminders: env.reminders, Runs: env.store}
	contents, err := mcpResourceReminders(deps)(ctx, mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "rys://reminders"}})
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	var views []reminderView
	if err := json.Unmarshal([]byte(text), &views); err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if len(views) != 1 || views[0].Message != "water plants" {
		t.Errorf("views = %+v", views)
	}
}

func TestNewMCPServer_RegistersTools(t *testing.T) {
	env := setupRouter(t, testToken)
	r := newTestRegistry(t)
	s := NewMCPServer(MCPDeps{
		Registry:  r,
		Invoker:   tools.NewDispatcher(r),
		Reminders: env.reminders,
		Runs:      env.store,
	})
	if s == nil {
		t.Fatal("nil server")
	}
}
