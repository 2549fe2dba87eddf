// Package ssehttp implements the HTTP+SSE transport of the Model Context
// Protocol.
//
// A client opens a session with GET on the stream path. The first event on
// the stream names the endpoint for that session:
//
//	event: endpoint
//	data: /messages?sessionId=3b2f...
//
// The client then POSTs JSON-RPC messages to that endpoint. Each POST is
// acknowledged with 202 Accepted as soon as the session's engine has taken
// the payload; the JSON-RPC response arrives later on the stream:
//
//	id: 1
//	event: message
//	data: {"jsonrpc":"2.0","id":1,"result":{...}}
//
// A session lives exactly as long as its stream. When the client disconnects,
// a write fails, or the Handler is closed, the session is removed from the
// registry and its engine is closed; later POSTs for it get 404.
//
// Every response carries permissive CORS headers, and the handler also
// answers liveness probes on "/" and "/health".
package ssehttp
