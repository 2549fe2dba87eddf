package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-sse-server-go/mcp"
)

// Session is the read-only view of a session handed to capability code.
type Session interface {
	SessionID() string
	// ProtocolVersion is empty until initialize has completed.
	ProtocolVersion() string
}

// ServerCapabilities is what the engine consults while answering initialize
// and routing capability methods. Capability getters return (cap, ok, err);
// ok=false means the capability is not offered.
type ServerCapabilities interface {
	GetServerInfo(ctx context.Context, session Session) (mcp.ImplementationInfo, error)
	GetInstructions(ctx context.Context, session Session) (instructions string, ok bool, err error)
	GetToolsCapability(ctx context.Context, session Session) (cap ToolsCapability, ok bool, err error)
	GetResourcesCapability(ctx context.Context, session Session) (cap ResourcesCapability, ok bool, err error)
}

// ToolsCapability lists and invokes tools. CallTool must return
// ErrToolNotFound for unknown names and an error matching
// ErrInvalidArguments when the arguments violate the tool's schema.
type ToolsCapability interface {
	ListTools(ctx context.Context, session Session, cursor *string) (Page[mcp.Tool], error)
	CallTool(ctx context.Context, session Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)
}

// ResourcesCapability lists and reads resources. ReadResource returns
// ErrResourceNotFound for unknown URIs.
type ResourcesCapability interface {
	ListResources(ctx context.Context, session Session, cursor *string) (Page[mcp.Resource], error)
	ReadResource(ctx context.Context, session Session, uri string) ([]mcp.ResourceContents, error)
}
