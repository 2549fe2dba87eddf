package engine

import (
	"context"

	"github.com/ggoodman/mcp-sse-server-go/internal/jsonrpc"
)

// MessageWriter is where an engine sends the messages it produces. For SSE
// sessions this is the session's event stream.
type MessageWriter interface {
	WriteMessage(ctx context.Context, msg jsonrpc.Message) error
}

// MessageWriterFunc adapts a function to MessageWriter.
type MessageWriterFunc func(ctx context.Context, msg jsonrpc.Message) error

func (f MessageWriterFunc) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	return f(ctx, msg)
}
