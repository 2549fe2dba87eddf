package ssehttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-sse-server-go/internal/engine"
	"github.com/ggoodman/mcp-sse-server-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-sse-server-go/internal/logctx"
	"github.com/ggoodman/mcp-sse-server-go/sessions"
	"github.com/google/uuid"
)

var (
	errPeerDisconnected = errors.New("peer disconnected")
	errServerShutdown   = errors.New("server shutting down")
)

// stream is the live half of a session: the SSE response it writes to and
// the engine that produces what it writes.
type stream struct {
	id  string
	out *sseWriter
	eng *engine.Engine
	seq atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
	cause     error
}

var (
	_ sessions.Stream      = (*stream)(nil)
	_ engine.MessageWriter = (*stream)(nil)
)

func (s *stream) SessionID() string { return s.id }

func (s *stream) Deliver(ctx context.Context, payload []byte) error {
	return s.eng.Submit(ctx, payload)
}

// WriteMessage sends an engine message as a "message" event. A failed write
// closes the stream.
func (s *stream) WriteMessage(ctx context.Context, msg jsonrpc.Message) error {
	id := strconv.FormatUint(s.seq.Add(1), 10)
	if err := s.out.writeEvent("message", id, msg); err != nil {
		if !errors.Is(err, ErrStreamClosed) {
			s.Close(err)
		}
		return err
	}
	return nil
}

func (s *stream) Close(cause error) {
	s.closeOnce.Do(func() {
		s.cause = cause
		close(s.done)
	})
}

func (s *stream) Done() <-chan struct{} { return s.done }

// openStream runs a session for the lifetime of the GET request.
func (h *Handler) openStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "client must accept text/event-stream")
		h.log.WarnContext(ctx, "sse.accept.unsupported")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	if !h.acquire() {
		writeJSONError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}
	defer h.release()

	s := &stream{
		id:   uuid.NewString(),
		out:  newSSEWriter(ctx, w, f),
		done: make(chan struct{}),
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: s.id})
	s.eng = engine.New(s.id, h.srv, s,
		engine.WithLogger(h.log),
		engine.WithMetrics(h.metrics),
	)

	if err := h.registry.Insert(ctx, s); err != nil {
		s.eng.Close(err)
		writeJSONError(w, http.StatusInternalServerError, "failed to register session")
		h.log.ErrorContext(ctx, "sse.session.register.fail", slog.String("err", err.Error()))
		return
	}
	h.metrics.SessionOpened()
	h.log.InfoContext(ctx, "sse.stream.start")

	defer h.teardown(ctx, s, start)

	hdr := w.Header()
	hdr.Set("Content-Type", eventStreamMediaType.String())
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	if h.explicitHeaderFlush {
		w.WriteHeader(http.StatusOK)
		f.Flush()
	}

	if err := s.out.writeEvent("endpoint", "", []byte(h.endpointFor(s.id))); err != nil {
		s.Close(err)
		h.log.WarnContext(ctx, "sse.endpoint.write.fail", slog.String("err", err.Error()))
		return
	}

	var tick <-chan time.Time
	if h.keepAlive > 0 {
		t := time.NewTicker(h.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			s.Close(errPeerDisconnected)
			return
		case <-h.ctx.Done():
			s.Close(errServerShutdown)
			return
		case <-s.Done():
			return
		case <-tick:
			if err := s.out.writeComment("keepalive"); err != nil {
				s.Close(err)
				return
			}
		}
	}
}

// teardown runs exactly once per stream, after the stream loop exits.
func (h *Handler) teardown(ctx context.Context, s *stream, start time.Time) {
	s.Close(errPeerDisconnected)
	s.out.shutdown()

	if _, err := h.registry.Delete(context.WithoutCancel(ctx), s.id); err != nil {
		h.log.ErrorContext(ctx, "sse.session.unregister.fail", slog.String("err", err.Error()))
	}
	s.eng.Close(s.cause)
	h.metrics.SessionClosed()

	h.log.InfoContext(ctx, "sse.stream.end",
		slog.String("cause", s.cause.Error()),
		slog.Duration("dur", time.Since(start)),
	)
}

// endpointFor builds the message endpoint advertised to a new session.
func (h *Handler) endpointFor(sessionID string) string {
	q := url.Values{sessionIDParam: {sessionID}}.Encode()
	if h.baseURL == nil {
		return h.messagePath + "?" + q
	}
	u := h.baseURL.JoinPath(h.messagePath)
	u.RawQuery = q
	return u.String()
}

func (h *Handler) acquire() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.streams.Add(1)
	return true
}

func (h *Handler) release() { h.streams.Done() }
