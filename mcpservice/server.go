package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-sse-server-go/mcp"
)

// ServerOption configures the ServerCapabilities returned by NewServer.
type ServerOption func(*server)

type server struct {
	info         mcp.ImplementationInfo
	instructions *string
	tools        ToolsCapability
	resources    ResourcesCapability
}

// NewServer builds a static ServerCapabilities: the same info, tools and
// resources are offered to every session.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{info: mcp.ImplementationInfo{Name: "mcp-sse-server", Version: "dev"}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return func(s *server) { s.info = info }
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *server) { s.instructions = &instr }
}

func WithToolsCapability(cap ToolsCapability) ServerOption {
	return func(s *server) { s.tools = cap }
}

func WithResourcesCapability(cap ResourcesCapability) ServerOption {
	return func(s *server) { s.resources = cap }
}

func (s *server) GetServerInfo(ctx context.Context, session Session) (mcp.ImplementationInfo, error) {
	return s.info, nil
}

func (s *server) GetInstructions(ctx context.Context, session Session) (string, bool, error) {
	if s.instructions == nil {
		return "", false, nil
	}
	return *s.instructions, true, nil
}

func (s *server) GetToolsCapability(ctx context.Context, session Session) (ToolsCapability, bool, error) {
	return s.tools, s.tools != nil, nil
}

func (s *server) GetResourcesCapability(ctx context.Context, session Session) (ResourcesCapability, bool, error) {
	return s.resources, s.resources != nil, nil
}
