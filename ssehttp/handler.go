package ssehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-sse-server-go/internal/logctx"
	"github.com/ggoodman/mcp-sse-server-go/internal/metrics"
	"github.com/ggoodman/mcp-sse-server-go/mcpservice"
	"github.com/ggoodman/mcp-sse-server-go/sessions"
	"github.com/ggoodman/mcp-sse-server-go/sessions/memoryregistry"
	"github.com/google/uuid"
)

var _ http.Handler = (*Handler)(nil)

var (
	ErrMissingSessionID = errors.New("missing sessionId query parameter")
	ErrUnknownSession   = errors.New("unknown session")
	ErrStreamClosed     = errors.New("stream closed")
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	sessionIDParam = "sessionId"

	DefaultSSEPath         = "/sse"
	DefaultMessagePath     = "/messages"
	DefaultMaxMessageBytes = 4 << 20

	healthBody = "ok"
)

// ProbePolicy controls how POST on the stream path is answered.
type ProbePolicy string

const (
	// ProbeReject answers 405 and points the client at GET.
	ProbeReject ProbePolicy = "reject"
	// ProbePermit answers 200 with an empty body.
	ProbePermit ProbePolicy = "permit"
)

// writeJSONError emits a transport-level error body. This is not JSON-RPC
// framing. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. If not provided, logs are discarded.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithRegistry sets the session registry. Defaults to an in-memory registry.
func WithRegistry(r sessions.Registry) Option {
	return func(h *Handler) { h.registry = r }
}

// WithMetrics enables Prometheus collection and, when path is non-empty,
// serves the registry on GET path.
func WithMetrics(m *metrics.Metrics, path string) Option {
	return func(h *Handler) {
		h.metrics = m
		h.metricsPath = path
	}
}

// WithBaseURL makes the endpoint event carry an absolute URL rooted at base.
func WithBaseURL(base string) Option {
	return func(h *Handler) { h.rawBaseURL = base }
}

// WithPaths overrides the stream and message paths.
func WithPaths(ssePath, messagePath string) Option {
	return func(h *Handler) {
		h.ssePath = ssePath
		h.messagePath = messagePath
	}
}

// WithKeepAlive sets the interval between keep-alive comments. Zero disables them.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) { h.keepAlive = d }
}

// WithExplicitHeaderFlush commits the 200 response and flushes it before the
// endpoint event is written. Otherwise headers go out with the first frame.
func WithExplicitHeaderFlush(explicit bool) Option {
	return func(h *Handler) { h.explicitHeaderFlush = explicit }
}

// WithProbePolicy selects how POST on the stream path is answered.
func WithProbePolicy(p ProbePolicy) Option {
	return func(h *Handler) { h.probe = p }
}

// WithMaxMessageBytes bounds the size of a POSTed message body.
func WithMaxMessageBytes(n int64) Option {
	return func(h *Handler) { h.maxMessageBytes = n }
}

// Handler serves the SSE transport, the health probe and, optionally, metrics.
type Handler struct {
	log      *slog.Logger
	srv      mcpservice.ServerCapabilities
	registry sessions.Registry
	metrics  *metrics.Metrics

	ssePath     string
	messagePath string
	metricsPath string
	rawBaseURL  string
	baseURL     *url.URL

	keepAlive           time.Duration
	explicitHeaderFlush bool
	probe               ProbePolicy
	maxMessageBytes     int64

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	streams sync.WaitGroup
}

// New builds a Handler serving srv.
func New(srv mcpservice.ServerCapabilities, opts ...Option) (*Handler, error) {
	if srv == nil {
		return nil, errors.New("ssehttp: server capabilities required")
	}
	h := &Handler{
		log:             slog.New(slog.DiscardHandler),
		srv:             srv,
		ssePath:         DefaultSSEPath,
		messagePath:     DefaultMessagePath,
		probe:           ProbeReject,
		maxMessageBytes: DefaultMaxMessageBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.registry == nil {
		h.registry = memoryregistry.New()
	}

	if err := h.validate(); err != nil {
		return nil, err
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	return h, nil
}

func (h *Handler) validate() error {
	reserved := map[string]string{"/": "health", "/health": "health"}
	for _, p := range []struct{ name, path string }{
		{"stream", h.ssePath},
		{"message", h.messagePath},
		{"metrics", h.metricsPath},
	} {
		if p.path == "" && p.name == "metrics" {
			continue
		}
		if !strings.HasPrefix(p.path, "/") {
			return fmt.Errorf("ssehttp: %s path %q must start with /", p.name, p.path)
		}
		if other, ok := reserved[p.path]; ok {
			return fmt.Errorf("ssehttp: %s path %q collides with %s path", p.name, p.path, other)
		}
		reserved[p.path] = p.name
	}

	switch h.probe {
	case ProbeReject, ProbePermit:
	default:
		return fmt.Errorf("ssehttp: unknown probe policy %q", h.probe)
	}
	if h.keepAlive < 0 {
		return fmt.Errorf("ssehttp: negative keep-alive interval")
	}
	if h.maxMessageBytes <= 0 {
		return fmt.Errorf("ssehttp: max message bytes must be positive")
	}

	if h.rawBaseURL != "" {
		u, err := url.Parse(h.rawBaseURL)
		if err != nil {
			return fmt.Errorf("ssehttp: base url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ssehttp: base url %q must be absolute", h.rawBaseURL)
		}
		h.baseURL = u
	}
	return nil
}

// Close ends every open stream and waits for their teardown. Later stream
// opens are refused with 503.
func (h *Handler) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.cancel()
	h.streams.Wait()
	return nil
}

type route int

const (
	routeNotFound route = iota
	routePreflight
	routeHealth
	routeOpenStream
	routeMessage
	routeProbe
	routeMetrics
)

func (r route) String() string {
	switch r {
	case routePreflight:
		return "preflight"
	case routeHealth:
		return "health"
	case routeOpenStream:
		return "open_stream"
	case routeMessage:
		return "message"
	case routeProbe:
		return "probe"
	case routeMetrics:
		return "metrics"
	default:
		return "not_found"
	}
}

// classify picks exactly one route for a request. Earlier rules win.
func (h *Handler) classify(method, path string) route {
	switch {
	case method == http.MethodOptions:
		return routePreflight
	case path == "/" || path == "/health":
		return routeHealth
	case method == http.MethodGet && path == h.ssePath:
		return routeOpenStream
	case method == http.MethodPost && path == h.messagePath:
		return routeMessage
	case method == http.MethodPost && path == h.ssePath:
		return routeProbe
	case method == http.MethodGet && h.metricsPath != "" && h.metrics != nil && path == h.metricsPath:
		return routeMetrics
	}
	return routeNotFound
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w.Header())

	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	r = r.WithContext(ctx)

	rt := h.classify(r.Method, r.URL.Path)
	w, tw := trackHeader(w)
	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			h.log.ErrorContext(ctx, "http.panic",
				slog.String("route", rt.String()),
				slog.Any("panic", v),
				slog.String("stack", string(debug.Stack())),
			)
			// A committed response, such as an open event stream, can't
			// take an error body.
			if !tw.wroteHeader.Load() {
				writeJSONError(w, http.StatusInternalServerError, "internal error")
			}
		}
	}()

	switch rt {
	case routePreflight:
		w.WriteHeader(http.StatusNoContent)
	case routeHealth:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, healthBody)
	case routeOpenStream:
		h.openStream(w, r)
	case routeMessage:
		h.handleMessage(w, r)
	case routeProbe:
		h.handleProbe(w, r)
	case routeMetrics:
		h.metrics.Handler().ServeHTTP(w, r)
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) handleProbe(w http.ResponseWriter, r *http.Request) {
	if h.probe == ProbePermit {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.log.InfoContext(r.Context(), "sse.probe.rejected")
	w.Header().Set("Allow", http.MethodGet)
	writeJSONError(w, http.StatusMethodNotAllowed, "open the event stream with GET "+h.ssePath+"; send messages to POST "+h.messagePath)
}

func setCORSHeaders(hdr http.Header) {
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Last-Event-ID")
	hdr.Set("Access-Control-Max-Age", "600")
}

// ParseProbePolicy maps a configuration string onto a ProbePolicy. The empty
// string selects ProbeReject.
func ParseProbePolicy(s string) (ProbePolicy, error) {
	switch ProbePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProbeReject:
		return ProbeReject, nil
	case ProbePermit:
		return ProbePermit, nil
	}
	return "", fmt.Errorf("unknown probe policy %q", s)
}

// headerTracker records whether the response has been committed.
type headerTracker struct {
	http.ResponseWriter
	wroteHeader atomic.Bool
}

func (t *headerTracker) WriteHeader(status int) {
	t.wroteHeader.Store(true)
	t.ResponseWriter.WriteHeader(status)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.wroteHeader.Store(true)
	return t.ResponseWriter.Write(b)
}

func (t *headerTracker) Unwrap() http.ResponseWriter { return t.ResponseWriter }

type flushingHeaderTracker struct {
	*headerTracker
	f http.Flusher
}

func (t flushingHeaderTracker) Flush() {
	t.wroteHeader.Store(true)
	t.f.Flush()
}

// trackHeader wraps w, exposing http.Flusher only when w implements it.
func trackHeader(w http.ResponseWriter) (http.ResponseWriter, *headerTracker) {
	tw := &headerTracker{ResponseWriter: w}
	if f, ok := w.(http.Flusher); ok {
		return flushingHeaderTracker{headerTracker: tw, f: f}, tw
	}
	return tw, tw
}
