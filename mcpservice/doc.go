// Package mcpservice provides the capability surface the protocol engine
// dispatches into: server info, tools and resources.
//
// Tools are declared from typed argument structs. The input schema is
// reflected from the struct with invopop/jsonschema and every call is
// validated against that schema before the handler runs, so handlers only
// ever see arguments that satisfy it.
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"minLength=1"`
//	}
//
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.NewTool[EchoArgs]("echo", func(ctx context.Context, s mcpservice.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[EchoArgs]) error {
//	        return w.AppendText("Echo: " + r.Args().Message)
//	    }),
//	)
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//
// Lookup failures surface as ErrToolNotFound and schema violations as
// *ArgumentError (matching ErrInvalidArguments); the engine maps them onto
// JSON-RPC error codes.
package mcpservice
