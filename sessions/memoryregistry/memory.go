package memoryregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/ggoodman/mcp-sse-server-go/sessions"
)

var _ sessions.Registry = (*Registry)(nil)

// Registry is an in-memory implementation of sessions.Registry.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]sessions.Stream
}

func New() *Registry {
	return &Registry{streams: make(map[string]sessions.Stream)}
}

func (r *Registry) Insert(ctx context.Context, s sessions.Stream) error {
	id := s.SessionID()
	if id == "" {
		return fmt.Errorf("insert: empty session id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[id]; ok {
		return fmt.Errorf("insert %q: %w", id, sessions.ErrSessionExists)
	}
	r.streams[id] = s
	return nil
}

func (r *Registry) Lookup(ctx context.Context, id string) (sessions.Stream, error) {
	r.mu.RLock()
	s, ok := r.streams[id]
	r.mu.RUnlock()

	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.streams[id]; !ok {
		return false, nil
	}
	delete(r.streams, id)
	return true, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
