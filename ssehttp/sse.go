package ssehttp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// sseWriter serializes SSE frames onto one response. Each frame is written
// and flushed under a single lock acquisition, so frames from concurrent
// writers never interleave. Once shut down it refuses all writes, which
// keeps writes from racing the return of the owning handler.
type sseWriter struct {
	w   io.Writer
	f   http.Flusher
	ctx context.Context

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func newSSEWriter(ctx context.Context, w io.Writer, f http.Flusher) *sseWriter {
	return &sseWriter{w: w, f: f, ctx: ctx}
}

// writeEvent writes one event. Multi-line data is split across data fields.
func (s *sseWriter) writeEvent(event, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}

	s.buf.Reset()
	if id != "" {
		fmt.Fprintf(&s.buf, "id: %s\n", id)
	}
	if event != "" {
		fmt.Fprintf(&s.buf, "event: %s\n", event)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		s.buf.WriteString("data: ")
		s.buf.Write(line)
		s.buf.WriteByte('\n')
	}
	s.buf.WriteByte('\n')

	return s.flushLocked()
}

// writeComment writes a comment frame, which clients ignore.
func (s *sseWriter) writeComment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	s.buf.Reset()
	fmt.Fprintf(&s.buf, ": %s\n\n", text)
	return s.flushLocked()
}

// shutdown blocks until any in-progress frame is done and rejects later ones.
func (s *sseWriter) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *sseWriter) writableLocked() error {
	if s.closed {
		return ErrStreamClosed
	}
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStreamClosed, err)
	}
	return nil
}

func (s *sseWriter) flushLocked() error {
	if _, err := s.w.Write(s.buf.Bytes()); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	s.f.Flush()
	return nil
}
