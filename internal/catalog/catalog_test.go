package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/ggoodman/mcp-sse-server-go/content"
	"github.com/ggoodman/mcp-sse-server-go/mcp"
	"github.com/ggoodman/mcp-sse-server-go/mcpservice"
)

type session struct{}

func (session) SessionID() string       { return "s" }
func (session) ProtocolVersion() string { return mcp.LatestProtocolVersion }

func callTool(t *testing.T, tools *mcpservice.ToolsContainer, name, args string) (*mcp.CallToolResult, error) {
	t.Helper()
	return tools.CallTool(context.Background(), session{}, &mcp.CallToolRequestReceived{Name: name, Arguments: json.RawMessage(args)})
}

func TestEcho(t *testing.T) {
	res, err := callTool(t, Tools(content.Default()), "echo", `{"message":"hi"}`)
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if res.Content[0].Text != "Echo: hi" {
		t.Fatalf("text = %q", res.Content[0].Text)
	}
	if res.StructuredContent["message"] != "hi" {
		t.Fatalf("structured = %v", res.StructuredContent)
	}
}

func TestEchoRequiresMessage(t *testing.T) {
	_, err := callTool(t, Tools(content.Default()), "echo", `{}`)
	if !errors.Is(err, mcpservice.ErrInvalidArguments) {
		t.Fatalf("expected invalid arguments, got %v", err)
	}
}

func TestRender(t *testing.T) {
	t.Run("embeds widget", func(t *testing.T) {
		res, err := callTool(t, Tools(content.Default()), "render", `{"message":"hello","title":"Greeting"}`)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if len(res.Content) != 2 {
			t.Fatalf("content = %+v", res.Content)
		}
		if !strings.Contains(res.Content[0].Text, "Greeting") {
			t.Fatalf("summary = %q", res.Content[0].Text)
		}
		emb := res.Content[1]
		if emb.Type != mcp.ContentTypeResource || emb.Resource == nil || emb.Resource.URI != "ui://widget/render.html" {
			t.Fatalf("embedded = %+v", emb)
		}
		if res.StructuredContent["title"] != "Greeting" || res.StructuredContent["template"] != "ui://widget/render.html" {
			t.Fatalf("structured = %v", res.StructuredContent)
		}
	})

	t.Run("placeholder content", func(t *testing.T) {
		p := content.WithPlaceholder(content.NewFS(fstest.MapFS{}))
		res, err := callTool(t, Tools(p), "render", `{"message":"x"}`)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		if res.Meta["placeholder"] != true {
			t.Fatalf("expected placeholder meta, got %v", res.Meta)
		}
	})

	t.Run("missing content without placeholder", func(t *testing.T) {
		_, err := callTool(t, Tools(content.NewFS(fstest.MapFS{})), "render", `{"message":"x"}`)
		if !errors.Is(err, content.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDescriptors(t *testing.T) {
	tools := Tools(content.Default()).Snapshot()
	if len(tools) != 2 || tools[0].Name != "echo" || tools[1].Name != "render" {
		t.Fatalf("tools = %+v", tools)
	}
	render := tools[1].InputSchema
	if len(render.Required) != 1 || render.Required[0] != "message" {
		t.Fatalf("render required = %v", render.Required)
	}
	if _, ok := render.Properties["title"]; !ok {
		t.Fatalf("render schema lacks title")
	}
}
