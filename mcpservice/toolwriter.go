package mcpservice

import (
	"context"
	"errors"
	"sync"

	"github.com/ggoodman/mcp-sse-server-go/mcp"
)

// ToolResponseWriter lets a tool handler compose its CallToolResult.
// Writes after Result return ErrFinalized. Mutating methods fail with the
// context error once the call has been cancelled.
type ToolResponseWriter interface {
	AppendText(text string) error
	AppendBlocks(blocks ...mcp.ContentBlock) error
	// EmbedResource appends an embedded resource content block.
	EmbedResource(res mcp.ResourceContents) error
	SetError(isError bool)
	SetMeta(key string, v any)
	// Result finalizes and returns the accumulated result. It is idempotent.
	Result() *mcp.CallToolResult
}

// ToolResponseWriterTyped adds structured output of type O.
type ToolResponseWriterTyped[O any] interface {
	ToolResponseWriter
	SetStructured(v O)
}

// ErrFinalized is returned when writing after Result was called.
var ErrFinalized = errors.New("result already finalized")

type toolResponseWriter struct {
	ctx       context.Context
	mu        sync.Mutex
	finalized bool

	blocks  []mcp.ContentBlock
	isError bool
	meta    map[string]any
}

var _ ToolResponseWriter = (*toolResponseWriter)(nil)

func newToolResponseWriter(ctx context.Context) *toolResponseWriter {
	return &toolResponseWriter{ctx: ctx}
}

func (w *toolResponseWriter) AppendText(text string) error {
	if text == "" {
		return nil
	}
	return w.AppendBlocks(mcp.ContentBlock{Type: mcp.ContentTypeText, Text: text})
}

func (w *toolResponseWriter) EmbedResource(res mcp.ResourceContents) error {
	return w.AppendBlocks(mcp.ContentBlock{Type: mcp.ContentTypeResource, Resource: &res})
}

func (w *toolResponseWriter) AppendBlocks(blocks ...mcp.ContentBlock) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return ErrFinalized
	}
	w.blocks = append(w.blocks, blocks...)
	return nil
}

func (w *toolResponseWriter) SetError(isError bool) {
	w.mu.Lock()
	w.isError = isError
	w.mu.Unlock()
}

func (w *toolResponseWriter) SetMeta(key string, v any) {
	if key == "" {
		return
	}
	w.mu.Lock()
	if w.meta == nil {
		w.meta = make(map[string]any)
	}
	w.meta[key] = v
	w.mu.Unlock()
}

func (w *toolResponseWriter) Result() *mcp.CallToolResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalized = true

	content := append([]mcp.ContentBlock(nil), w.blocks...)
	if content == nil {
		content = []mcp.ContentBlock{}
	}
	var meta map[string]any
	if len(w.meta) > 0 {
		meta = make(map[string]any, len(w.meta))
		for k, v := range w.meta {
			meta[k] = v
		}
	}
	return &mcp.CallToolResult{Content: content, IsError: w.isError, BaseMetadata: mcp.BaseMetadata{Meta: meta}}
}

type toolResponseWriterTyped[O any] struct {
	*toolResponseWriter
	structured any
}

func (tw *toolResponseWriterTyped[O]) SetStructured(v O) {
	tw.mu.Lock()
	tw.structured = v
	tw.mu.Unlock()
}
