package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ggoodman/mcp-sse-server-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-sse-server-go/internal/logctx"
	"github.com/ggoodman/mcp-sse-server-go/internal/metrics"
	"github.com/ggoodman/mcp-sse-server-go/mcp"
	"github.com/ggoodman/mcp-sse-server-go/mcpservice"
)

var (
	// ErrClosed is returned by Submit and Dispatch once the engine is closed.
	ErrClosed = errors.New("engine closed")
	// ErrCancelled is the cancellation cause for requests the client abandoned.
	ErrCancelled = errors.New("request cancelled by client")
)

// errorCodeResourceNotFound is the MCP convention for unknown resource URIs.
const errorCodeResourceNotFound jsonrpc.ErrorCode = -32002

// Engine is the per-session protocol state machine. It is open from New
// until Close; the transition is one-way. Payloads submitted while open are
// processed concurrently and each request yields exactly one response on the
// engine's MessageWriter.
type Engine struct {
	sessionID string
	srv       mcpservice.ServerCapabilities
	out       MessageWriter
	log       *slog.Logger
	metrics   *metrics.Metrics

	ctx       context.Context
	cancel    context.CancelCauseFunc
	closeOnce sync.Once

	mu              sync.RWMutex
	protocolVersion string
	clientInfo      mcp.ImplementationInfo
	initialized     bool

	inflightMu sync.Mutex
	inflight   map[string]context.CancelCauseFunc
}

var _ mcpservice.Session = (*Engine)(nil)

type EngineOption func(*Engine)

func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// New creates an open engine for sessionID writing its output to out.
func New(sessionID string, srv mcpservice.ServerCapabilities, out MessageWriter, opts ...EngineOption) *Engine {
	e := &Engine{
		sessionID: sessionID,
		srv:       srv,
		out:       out,
		log:       slog.Default(),
		inflight:  make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	ctx := logctx.WithSessionData(context.Background(), &logctx.SessionData{SessionID: sessionID})
	e.ctx, e.cancel = context.WithCancelCause(ctx)
	return e
}

func (e *Engine) SessionID() string { return e.sessionID }

func (e *Engine) ProtocolVersion() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.protocolVersion
}

// Initialized reports whether the client sent notifications/initialized.
func (e *Engine) Initialized() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initialized
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.ctx.Err() != nil
}

// Close cancels every in-flight request and rejects further work. Calls
// after the first are no-ops.
func (e *Engine) Close(cause error) {
	e.closeOnce.Do(func() {
		if cause == nil {
			cause = ErrClosed
		}
		e.cancel(cause)
		e.log.InfoContext(e.ctx, "engine.closed", slog.String("cause", cause.Error()))
	})
}

// Submit accepts a raw payload for asynchronous processing. It returns
// ErrClosed if the engine is closed and nil otherwise; parse and protocol
// errors are reported on the stream, not here.
func (e *Engine) Submit(ctx context.Context, payload []byte) error {
	if e.Closed() {
		return ErrClosed
	}
	go e.Handle(e.ctx, payload)
	return nil
}

// Handle processes one payload synchronously: it decodes it, dispatches
// requests and notifications, and writes any response to the stream.
func (e *Engine) Handle(ctx context.Context, payload []byte) {
	msg, err := jsonrpc.Decode(payload)
	if err != nil {
		e.log.InfoContext(ctx, "engine.decode.fail", slog.String("err", err.Error()), slog.Int("bytes", len(payload)))
		e.emit(ctx, jsonrpc.NewErrorResponse(recoverID(payload), jsonrpc.Code(err), codeMessage(jsonrpc.Code(err)), nil))
		return
	}

	switch msg.Kind() {
	case jsonrpc.KindResponse:
		e.log.DebugContext(ctx, "engine.client_response.ignored", slog.String("id", msg.ID.String()))
	case jsonrpc.KindNotification:
		e.handleNotification(ctx, msg.AsRequest())
	case jsonrpc.KindRequest:
		res, err := e.Dispatch(ctx, msg.AsRequest())
		if err != nil {
			e.log.InfoContext(ctx, "engine.dispatch.dropped", slog.String("method", msg.Method), slog.String("err", err.Error()))
			return
		}
		e.emit(ctx, res)
	}
}

// Dispatch resolves and executes a single request. Handler failures, panics
// included, become JSON-RPC error responses; the only error returned is
// ErrClosed.
func (e *Engine) Dispatch(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if e.Closed() {
		return nil, ErrClosed
	}

	start := time.Now()
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: string(jsonrpc.KindRequest)})

	reqCtx, done, err := e.track(ctx, req.ID)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "duplicate request id", nil), nil
	}
	defer done()

	handler, known := e.route(req.Method)
	res := e.safeCall(reqCtx, req, handler)

	outcome := "ok"
	if res.Error != nil {
		outcome = outcomeFor(res.Error.Code)
	}
	dur := time.Since(start)
	e.metrics.Dispatch(req.Method, known, outcome, dur)
	e.log.DebugContext(ctx, "engine.dispatch.done", slog.String("outcome", outcome), slog.Duration("dur", dur))

	if e.Closed() {
		return nil, ErrClosed
	}
	return res, nil
}

type handlerFunc func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error)

func (e *Engine) route(method string) (handlerFunc, bool) {
	switch mcp.Method(method) {
	case mcp.InitializeMethod:
		return e.handleInitialize, true
	case mcp.PingMethod:
		return e.handlePing, true
	case mcp.ToolsListMethod:
		return e.handleToolsList, true
	case mcp.ToolsCallMethod:
		return e.handleToolCall, true
	case mcp.ResourcesListMethod:
		return e.handleResourcesList, true
	case mcp.ResourcesReadMethod:
		return e.handleResourcesRead, true
	}
	return e.handleUnknown, false
}

func (e *Engine) safeCall(ctx context.Context, req *jsonrpc.Request, h handlerFunc) (res *jsonrpc.Response) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, "engine.handle_request.panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		}
	}()

	res, err := h(ctx, req)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return res
}

// track registers a cancellable context for an in-flight request so that
// notifications/cancelled can reach it.
func (e *Engine) track(ctx context.Context, id *jsonrpc.RequestID) (context.Context, func(), error) {
	key := id.Key()
	reqCtx, cancel := context.WithCancelCause(ctx)

	e.inflightMu.Lock()
	defer e.inflightMu.Unlock()
	if _, exists := e.inflight[key]; exists {
		cancel(context.Canceled)
		return nil, nil, fmt.Errorf("request id %s already in flight", id.String())
	}
	e.inflight[key] = cancel

	return reqCtx, func() {
		e.inflightMu.Lock()
		delete(e.inflight, key)
		e.inflightMu.Unlock()
		cancel(context.Canceled)
	}, nil
}

func (e *Engine) cancelInFlight(key, reason string) bool {
	e.inflightMu.Lock()
	cancel, ok := e.inflight[key]
	e.inflightMu.Unlock()
	if !ok {
		return false
	}
	cause := ErrCancelled
	if reason != "" {
		cause = fmt.Errorf("%w: %s", ErrCancelled, reason)
	}
	cancel(cause)
	return true
}

func (e *Engine) emit(ctx context.Context, res *jsonrpc.Response) {
	if e.Closed() {
		e.log.InfoContext(ctx, "engine.emit.dropped", slog.String("err", ErrClosed.Error()))
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.emit.fail", slog.String("err", err.Error()))
		return
	}
	if err := e.out.WriteMessage(ctx, b); err != nil {
		e.log.InfoContext(ctx, "engine.emit.dropped", slog.String("err", err.Error()))
	}
}

func (e *Engine) handleNotification(ctx context.Context, note *jsonrpc.Request) {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: note.Method, Type: string(jsonrpc.KindNotification)})

	switch mcp.Method(note.Method) {
	case mcp.InitializedNotificationMethod:
		e.mu.Lock()
		e.initialized = true
		e.mu.Unlock()
		e.log.InfoContext(ctx, "engine.session.initialized")
	case mcp.CancelledNotificationMethod:
		var params mcp.CancelledNotification
		if err := json.Unmarshal(note.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return
		}
		var id jsonrpc.RequestID
		if err := json.Unmarshal(params.RequestID, &id); err != nil {
			e.log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return
		}
		found := e.cancelInFlight(id.Key(), params.Reason)
		e.log.InfoContext(ctx, "engine.request.cancel", slog.String("request_id", id.String()), slog.Bool("found", found))
	default:
		e.log.DebugContext(ctx, "engine.handle_notification.ignored")
	}
}

// recoverID pulls the id out of a payload that failed validation so the
// error response can still be correlated. It gives up on anything that is
// not a JSON object.
func recoverID(payload []byte) *jsonrpc.RequestID {
	var probe struct {
		ID *jsonrpc.RequestID `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil
	}
	return probe.ID
}

func codeMessage(code jsonrpc.ErrorCode) string {
	switch code {
	case jsonrpc.ErrorCodeParseError:
		return "parse error"
	case jsonrpc.ErrorCodeInvalidRequest:
		return "invalid request"
	case jsonrpc.ErrorCodeMethodNotFound:
		return "method not found"
	case jsonrpc.ErrorCodeInvalidParams:
		return "invalid params"
	default:
		return "internal error"
	}
}

func outcomeFor(code jsonrpc.ErrorCode) string {
	switch code {
	case jsonrpc.ErrorCodeMethodNotFound:
		return "not_found"
	case jsonrpc.ErrorCodeInvalidParams:
		return "invalid_params"
	case jsonrpc.ErrorCodeInvalidRequest, jsonrpc.ErrorCodeParseError:
		return "invalid_request"
	case errorCodeResourceNotFound:
		return "not_found"
	default:
		return "error"
	}
}
