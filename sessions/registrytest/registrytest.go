// Package registrytest is a conformance suite for sessions.Registry
// implementations.
package registrytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ggoodman/mcp-sse-server-go/sessions"
)

// RegistryFactory creates a fresh, empty Registry for one test.
type RegistryFactory func(t *testing.T) sessions.Registry

// RunRegistryTests runs the full suite against registries built by factory.
func RunRegistryTests(t *testing.T, factory RegistryFactory) {
	t.Run("InsertThenLookup", func(t *testing.T) { testInsertThenLookup(t, factory) })
	t.Run("LookupUnknown", func(t *testing.T) { testLookupUnknown(t, factory) })
	t.Run("DuplicateInsertRejected", func(t *testing.T) { testDuplicateInsert(t, factory) })
	t.Run("DeleteRemovesEntry", func(t *testing.T) { testDelete(t, factory) })
	t.Run("DeleteIsIdempotent", func(t *testing.T) { testDeleteIdempotent(t, factory) })
	t.Run("IdsAreIsolated", func(t *testing.T) { testIsolation(t, factory) })
	t.Run("ConcurrentAccess", func(t *testing.T) { testConcurrent(t, factory) })
}

// Stream is a minimal sessions.Stream for exercising registries.
type Stream struct {
	ID string

	mu        sync.Mutex
	delivered [][]byte
	done      chan struct{}
	once      sync.Once
}

// NewStream returns a Stream with the given id.
func NewStream(id string) *Stream {
	return &Stream{ID: id, done: make(chan struct{})}
}

func (s *Stream) SessionID() string { return s.ID }

func (s *Stream) Deliver(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, append([]byte(nil), payload...))
	return nil
}

func (s *Stream) Close(error) { s.once.Do(func() { close(s.done) }) }

func (s *Stream) Done() <-chan struct{} { return s.done }

// Delivered returns copies of every payload handed to Deliver.
func (s *Stream) Delivered() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.delivered...)
}

func testInsertThenLookup(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	s := NewStream("sess-1")
	if err := r.Insert(ctx, s); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.Lookup(ctx, "sess-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.SessionID() != "sess-1" {
		t.Fatalf("lookup returned %q", got.SessionID())
	}
	if r.Len() != 1 {
		t.Fatalf("expected len 1, got %d", r.Len())
	}
}

func testLookupUnknown(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	if _, err := r.Lookup(context.Background(), "missing"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func testDuplicateInsert(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	first := NewStream("dup")
	if err := r.Insert(ctx, first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.Insert(ctx, NewStream("dup")); !errors.Is(err, sessions.ErrSessionExists) {
		t.Fatalf("expected ErrSessionExists, got %v", err)
	}
	got, err := r.Lookup(ctx, "dup")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != first {
		t.Fatalf("duplicate insert replaced the original stream")
	}
}

func testDelete(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	if err := r.Insert(ctx, NewStream("gone")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	removed, err := r.Delete(ctx, "gone")
	if err != nil || !removed {
		t.Fatalf("delete: removed=%v err=%v", removed, err)
	}
	if _, err := r.Lookup(ctx, "gone"); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected len 0, got %d", r.Len())
	}
}

func testDeleteIdempotent(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	if err := r.Insert(ctx, NewStream("x")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := r.Delete(ctx, "x"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	removed, err := r.Delete(ctx, "x")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if removed {
		t.Fatalf("second delete reported removal")
	}
	if removed, err := r.Delete(ctx, "never"); err != nil || removed {
		t.Fatalf("delete of unknown id: removed=%v err=%v", removed, err)
	}
}

func testIsolation(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	a, b := NewStream("a"), NewStream("b")
	for _, s := range []*Stream{a, b} {
		if err := r.Insert(ctx, s); err != nil {
			t.Fatalf("insert %s: %v", s.ID, err)
		}
	}
	if _, err := r.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := r.Lookup(ctx, "b")
	if err != nil {
		t.Fatalf("lookup b after deleting a: %v", err)
	}
	if got != b {
		t.Fatalf("lookup b returned a different stream")
	}
}

func testConcurrent(t *testing.T, factory RegistryFactory) {
	r := factory(t)
	ctx := context.Background()

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s-%d", i)
			if err := r.Insert(ctx, NewStream(id)); err != nil {
				t.Errorf("insert %s: %v", id, err)
				return
			}
			if _, err := r.Lookup(ctx, id); err != nil {
				t.Errorf("lookup %s: %v", id, err)
			}
			if i%2 == 0 {
				if _, err := r.Delete(ctx, id); err != nil {
					t.Errorf("delete %s: %v", id, err)
				}
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != n/2 {
		t.Fatalf("expected %d live sessions, got %d", n/2, r.Len())
	}
}
