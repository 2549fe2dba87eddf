package mcpservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/ggoodman/mcp-sse-server-go/mcp"
)

// ToolsContainer is a fixed-at-construction, concurrency-safe tool set.
// Names resolve by exact match; every call is validated against the tool's
// input schema before its handler runs.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]StaticTool

	pageSize int
}

var _ ToolsCapability = (*ToolsContainer)(nil)

// NewToolsContainer registers defs. On duplicate names the last one wins.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	c := &ToolsContainer{pageSize: 50, handlers: make(map[string]StaticTool, len(defs))}
	for _, d := range defs {
		name := d.Descriptor.Name
		if _, dup := c.handlers[name]; dup {
			for i := range c.tools {
				if c.tools[i].Name == name {
					c.tools[i] = d.Descriptor
				}
			}
		} else {
			c.tools = append(c.tools, d.Descriptor)
		}
		c.handlers[name] = d
	}
	return c
}

// SetPageSize sets the tools/list page size. Non-positive values are ignored.
func (c *ToolsContainer) SetPageSize(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.pageSize = n
	c.mu.Unlock()
}

// Snapshot returns a copy of the tool descriptors in registration order.
func (c *ToolsContainer) Snapshot() []mcp.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]mcp.Tool(nil), c.tools...)
}

// Names returns the registered tool names in registration order.
func (c *ToolsContainer) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.tools))
	for i, t := range c.tools {
		out[i] = t.Name
	}
	return out
}

func (c *ToolsContainer) ListTools(ctx context.Context, session Session, cursor *string) (Page[mcp.Tool], error) {
	c.mu.RLock()
	all := append([]mcp.Tool(nil), c.tools...)
	size := c.pageSize
	c.mu.RUnlock()
	return paginate(all, cursor, size), nil
}

func (c *ToolsContainer) CallTool(ctx context.Context, session Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, &ArgumentError{Violation: "missing tool name"}
	}

	c.mu.RLock()
	t, ok := c.handlers[req.Name]
	c.mu.RUnlock()
	if !ok || t.Handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}

	if err := ValidateArguments(req.Name, t.Descriptor.InputSchema, req.Arguments); err != nil {
		return nil, err
	}
	return t.Handler(ctx, session, req)
}
