// Package sessions defines the session abstractions shared by the SSE
// transport and its registry implementations.
//
// A session is born when a client opens the event stream and dies when that
// stream closes. While it lives it is reachable by id through a Registry,
// which is how a message POSTed on an unrelated HTTP request finds the stream
// its results must be written to.
//
//	GET  /sse                 -> Stream created, Registry.Insert
//	POST /messages?sessionId  -> Registry.Lookup, Stream.Deliver
//	stream closes             -> Registry.Delete, engine closed
//
// Implementations
//
//	memoryregistry : process-local map guarded by a RWMutex
//
// Any Registry implementation should pass registrytest.RunRegistryTests.
package sessions
