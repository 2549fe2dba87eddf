package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ggoodman/mcp-sse-server-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-sse-server-go/mcp"
	"github.com/ggoodman/mcp-sse-server-go/mcpservice"
)

type echoArgs struct {
	Message string `json:"message"`
}

type blockArgs struct{}

type recorder struct {
	ch chan jsonrpc.Response
}

func newRecorder() *recorder { return &recorder{ch: make(chan jsonrpc.Response, 16)} }

func (r *recorder) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	var res jsonrpc.Response
	if err := json.Unmarshal(msg, &res); err != nil {
		return err
	}
	r.ch <- res
	return nil
}

func (r *recorder) next(t *testing.T) jsonrpc.Response {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for response")
		return jsonrpc.Response{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case res := <-r.ch:
		t.Fatalf("unexpected response: %+v", res)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestEngine(t *testing.T) (*Engine, *recorder, chan struct{}) {
	t.Helper()
	started := make(chan struct{}, 1)
	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool[echoArgs]("echo", func(ctx context.Context, s mcpservice.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[echoArgs]) error {
			return w.AppendText("Echo: " + r.Args().Message)
		}),
		mcpservice.NewTool[blockArgs]("block", func(ctx context.Context, s mcpservice.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[blockArgs]) error {
			started <- struct{}{}
			<-ctx.Done()
			return context.Cause(ctx)
		}),
		mcpservice.NewTool[blockArgs]("explode", func(ctx context.Context, s mcpservice.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[blockArgs]) error {
			panic("kaboom")
		}),
		mcpservice.NewTool[blockArgs]("broken", func(ctx context.Context, s mcpservice.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[blockArgs]) error {
			return errors.New("disk on fire")
		}),
	)
	srv := mcpservice.NewServer(
		mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "test", Version: "1"}),
		mcpservice.WithToolsCapability(tools),
	)
	rec := newRecorder()
	e := New("sess-1", srv, rec, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(func() { e.Close(nil) })
	return e, rec, started
}

func errCode(t *testing.T, res jsonrpc.Response) jsonrpc.ErrorCode {
	t.Helper()
	if res.Error == nil {
		t.Fatalf("expected error response, got result %s", res.Result)
	}
	return res.Error.Code
}

func TestMalformedPayloads(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		code   jsonrpc.ErrorCode
		wantID string
	}{
		{name: "not json", in: `{"jsonrpc":"2.0",`, code: jsonrpc.ErrorCodeParseError},
		{name: "batch", in: `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, code: jsonrpc.ErrorCodeInvalidRequest},
		{name: "bad version keeps id", in: `{"jsonrpc":"1.0","id":9,"method":"ping"}`, code: jsonrpc.ErrorCodeInvalidRequest, wantID: "9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, rec, _ := newTestEngine(t)
			e.Handle(context.Background(), []byte(tc.in))
			res := rec.next(t)
			if got := errCode(t, res); got != tc.code {
				t.Fatalf("code = %d, want %d", got, tc.code)
			}
			if res.ID.String() != tc.wantID {
				t.Fatalf("id = %q, want %q", res.ID.String(), tc.wantID)
			}
		})
	}
}

func TestInitializeNegotiation(t *testing.T) {
	for requested, want := range map[string]string{
		"2024-11-05": "2024-11-05",
		"2025-03-26": "2025-03-26",
		"1999-01-01": mcp.LatestProtocolVersion,
	} {
		t.Run(requested, func(t *testing.T) {
			e, rec, _ := newTestEngine(t)
			e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"`+requested+`","capabilities":{},"clientInfo":{"name":"c","version":"1"}}}`))
			res := rec.next(t)
			var init mcp.InitializeResult
			if err := json.Unmarshal(res.Result, &init); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if init.ProtocolVersion != want {
				t.Fatalf("negotiated %q, want %q", init.ProtocolVersion, want)
			}
			if init.Capabilities.Tools == nil || init.Capabilities.Resources != nil {
				t.Fatalf("capabilities = %+v", init.Capabilities)
			}
			if e.ProtocolVersion() != want {
				t.Fatalf("engine version = %q", e.ProtocolVersion())
			}
		})
	}
}

func TestNotificationsProduceNoResponse(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":5,"result":{}}`))
	rec.none(t)
	if !e.Initialized() {
		t.Fatalf("expected initialized")
	}
}

func TestDispatch(t *testing.T) {
	cases := []struct {
		name string
		in   string
		code jsonrpc.ErrorCode
		text string
	}{
		{name: "ping", in: `{"jsonrpc":"2.0","id":1,"method":"ping"}`},
		{name: "echo", in: `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`, text: "Echo: hi"},
		{name: "unknown method", in: `{"jsonrpc":"2.0","id":3,"method":"nope"}`, code: jsonrpc.ErrorCodeMethodNotFound},
		{name: "unknown tool", in: `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope","arguments":{}}}`, code: jsonrpc.ErrorCodeMethodNotFound},
		{name: "missing argument", in: `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{}}}`, code: jsonrpc.ErrorCodeInvalidParams},
		{name: "wrong argument type", in: `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"echo","arguments":{"message":1}}}`, code: jsonrpc.ErrorCodeInvalidParams},
		{name: "missing tool name", in: `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{}}`, code: jsonrpc.ErrorCodeInvalidParams},
		{name: "handler error", in: `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"broken"}}`, code: jsonrpc.ErrorCodeInternalError},
		{name: "handler panic", in: `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"explode"}}`, code: jsonrpc.ErrorCodeInternalError},
		{name: "resources unsupported", in: `{"jsonrpc":"2.0","id":10,"method":"resources/list"}`, code: jsonrpc.ErrorCodeMethodNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, rec, _ := newTestEngine(t)
			e.Handle(context.Background(), []byte(tc.in))
			res := rec.next(t)
			if tc.code != 0 {
				if got := errCode(t, res); got != tc.code {
					t.Fatalf("code = %d, want %d (%s)", got, tc.code, res.Error.Message)
				}
				return
			}
			if res.Error != nil {
				t.Fatalf("unexpected error: %+v", res.Error)
			}
			if tc.text != "" {
				var out mcp.CallToolResult
				if err := json.Unmarshal(res.Result, &out); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if len(out.Content) != 1 || out.Content[0].Text != tc.text {
					t.Fatalf("content = %+v", out.Content)
				}
			}
		})
	}
}

func TestInvalidArgumentsCarryViolation(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{}}}`))
	res := rec.next(t)
	data, ok := res.Error.Data.(map[string]any)
	if !ok || data["violation"] == "" || data["path"] != "message" {
		t.Fatalf("error data = %#v", res.Error.Data)
	}
}

func TestPanicDoesNotKillSession(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"explode"}}`))
	_ = rec.next(t)
	e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"ping"}`))
	if res := rec.next(t); res.Error != nil {
		t.Fatalf("ping after panic failed: %+v", res.Error)
	}
}

func TestSubmitIsAsynchronous(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	if err := e.Submit(context.Background(), []byte(`{"jsonrpc":"2.0","id":"a","method":"ping"}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res := rec.next(t); res.ID.String() != "a" {
		t.Fatalf("id = %q", res.ID.String())
	}
}

func TestCancelledNotification(t *testing.T) {
	e, rec, started := newTestEngine(t)
	if err := e.Submit(context.Background(), []byte(`{"jsonrpc":"2.0","id":42,"method":"tools/call","params":{"name":"block"}}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("tool never started")
	}
	e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":42,"reason":"user"}}`))

	res := rec.next(t)
	if res.ID.String() != "42" || errCode(t, res) != jsonrpc.ErrorCodeInternalError || res.Error.Message != "cancelled" {
		t.Fatalf("unexpected response: %+v %+v", res, res.Error)
	}
}

func TestClosedEngine(t *testing.T) {
	e, rec, started := newTestEngine(t)

	if err := e.Submit(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"block"}}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started

	e.Close(errors.New("stream gone"))
	e.Close(nil)

	if !e.Closed() {
		t.Fatalf("expected closed")
	}
	if err := e.Submit(context.Background(), []byte(`{"jsonrpc":"2.0","id":2,"method":"ping"}`)); !errors.Is(err, ErrClosed) {
		t.Fatalf("submit after close: %v", err)
	}
	if _, err := e.Dispatch(context.Background(), &jsonrpc.Request{JSONRPCVersion: "2.0", Method: "ping", ID: jsonrpc.NewRequestID(3)}); !errors.Is(err, ErrClosed) {
		t.Fatalf("dispatch after close: %v", err)
	}
	// The blocked call observes cancellation but its result is dropped.
	rec.none(t)
}

func TestStringAndNumericIDsDoNotCollide(t *testing.T) {
	e, rec, started := newTestEngine(t)
	for _, payload := range []string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"block"}}`,
		`{"jsonrpc":"2.0","id":"1","method":"tools/call","params":{"name":"block"}}`,
	} {
		if err := e.Submit(context.Background(), []byte(payload)); err != nil {
			t.Fatalf("submit: %v", err)
		}
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("tool never started")
		}
	}
	rec.none(t)

	e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":1}}`))
	e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":"1"}}`))

	for i := 0; i < 2; i++ {
		res := rec.next(t)
		if errCode(t, res) != jsonrpc.ErrorCodeInternalError || res.Error.Message != "cancelled" {
			t.Fatalf("unexpected response: %+v %+v", res, res.Error)
		}
	}
}

func TestLargeIntegerIDEchoedExactly(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	e.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":9007199254740993,"method":"ping"}`))
	res := rec.next(t)
	if res.ID.String() != "9007199254740993" {
		t.Fatalf("id = %q", res.ID.String())
	}
}
