// Package mcp holds the Model Context Protocol wire types used by the SSE
// server: method names, the initialize handshake, tools and resources.
//
// The package has no transport logic. The engine decodes params into these
// structs and marshals results from them; the ssehttp package only ever sees
// raw JSON-RPC bytes.
package mcp
