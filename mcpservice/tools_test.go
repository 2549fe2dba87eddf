package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ggoodman/mcp-sse-server-go/mcp"
)

type testSession struct{}

func (testSession) SessionID() string       { return "test" }
func (testSession) ProtocolVersion() string { return mcp.LatestProtocolVersion }

type greetArgs struct {
	Name  string `json:"name" jsonschema:"minLength=1"`
	Mood  string `json:"mood,omitempty" jsonschema:"enum=happy,enum=sad"`
	Times int    `json:"times,omitempty"`
}

type greetOut struct {
	Greeting string `json:"greeting"`
}

func newGreetContainer(calls *int) *ToolsContainer {
	return NewToolsContainer(
		NewToolWithOutput[greetArgs, greetOut]("greet", func(ctx context.Context, s Session, w ToolResponseWriterTyped[greetOut], r *ToolRequest[greetArgs]) error {
			*calls++
			g := "hello " + r.Args().Name
			w.SetStructured(greetOut{Greeting: g})
			return w.AppendText(g)
		}, WithToolDescription("greets")),
		NewTool[struct{}]("fail", func(ctx context.Context, s Session, w ToolResponseWriter, r *ToolRequest[struct{}]) error {
			return errors.New("boom")
		}),
	)
}

func call(t *testing.T, c *ToolsContainer, name, args string) (*mcp.CallToolResult, error) {
	t.Helper()
	var raw json.RawMessage
	if args != "" {
		raw = json.RawMessage(args)
	}
	return c.CallTool(context.Background(), testSession{}, &mcp.CallToolRequestReceived{Name: name, Arguments: raw})
}

func TestReflectedSchema(t *testing.T) {
	var calls int
	tools := newGreetContainer(&calls).Snapshot()
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	in := tools[0].InputSchema
	if in.Type != "object" {
		t.Fatalf("input type = %q", in.Type)
	}
	if len(in.Required) != 1 || in.Required[0] != "name" {
		t.Fatalf("required = %v", in.Required)
	}
	if p := in.Properties["name"]; p.Type != "string" || p.MinLength == nil || *p.MinLength != 1 {
		t.Fatalf("name property = %+v", p)
	}
	if p := in.Properties["mood"]; len(p.Enum) != 2 {
		t.Fatalf("mood enum = %v", p.Enum)
	}
	if tools[0].OutputSchema == nil || tools[0].OutputSchema.Properties["greeting"].Type != "string" {
		t.Fatalf("output schema = %+v", tools[0].OutputSchema)
	}
}

func TestCallTool(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		var calls int
		res, err := call(t, newGreetContainer(&calls), "greet", `{"name":"ada"}`)
		if err != nil {
			t.Fatalf("call: %v", err)
		}
		if res.Content[0].Text != "hello ada" || res.StructuredContent["greeting"] != "hello ada" {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		var calls int
		_, err := call(t, newGreetContainer(&calls), "nope", `{}`)
		if !errors.Is(err, ErrToolNotFound) {
			t.Fatalf("expected ErrToolNotFound, got %v", err)
		}
	})

	invalid := map[string]string{
		"missing required":  `{}`,
		"null required":     `{"name":null}`,
		"wrong type":        `{"name":5}`,
		"too short":         `{"name":""}`,
		"not in enum":       `{"name":"x","mood":"meh"}`,
		"non integer":       `{"name":"x","times":1.5}`,
		"unexpected field":  `{"name":"x","extra":true}`,
		"arguments not obj": `["x"]`,
		"absent arguments":  ``,
	}
	for name, args := range invalid {
		t.Run(name, func(t *testing.T) {
			var calls int
			_, err := call(t, newGreetContainer(&calls), "greet", args)
			if !errors.Is(err, ErrInvalidArguments) {
				t.Fatalf("expected ErrInvalidArguments, got %v", err)
			}
			var ae *ArgumentError
			if !errors.As(err, &ae) || ae.Violation == "" {
				t.Fatalf("expected violation detail, got %v", err)
			}
			if calls != 0 {
				t.Fatalf("handler ran on invalid input")
			}
		})
	}

	t.Run("handler error propagates", func(t *testing.T) {
		var calls int
		_, err := call(t, newGreetContainer(&calls), "fail", ``)
		if err == nil || errors.Is(err, ErrInvalidArguments) {
			t.Fatalf("expected handler error, got %v", err)
		}
	})
}

func TestListToolsPagination(t *testing.T) {
	var calls int
	c := newGreetContainer(&calls)
	c.SetPageSize(1)

	first, err := c.ListTools(context.Background(), testSession{}, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Items) != 1 || first.NextCursor == nil {
		t.Fatalf("first page = %+v", first)
	}
	second, err := c.ListTools(context.Background(), testSession{}, first.NextCursor)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(second.Items) != 1 || second.NextCursor != nil || second.Items[0].Name != "fail" {
		t.Fatalf("second page = %+v", second)
	}
}

func TestWriterFinalized(t *testing.T) {
	w := newToolResponseWriter(context.Background())
	_ = w.AppendText("a")
	res := w.Result()
	if len(res.Content) != 1 {
		t.Fatalf("content = %v", res.Content)
	}
	if err := w.AppendText("b"); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
}
