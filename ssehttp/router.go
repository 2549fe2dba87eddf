package ssehttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-sse-server-go/internal/engine"
	"github.com/ggoodman/mcp-sse-server-go/internal/logctx"
	"github.com/ggoodman/mcp-sse-server-go/internal/metrics"
	"github.com/ggoodman/mcp-sse-server-go/sessions"
)

// RouteMessage hands payload to the engine of session sessionID. It never
// creates sessions and does not look inside the payload.
func (h *Handler) RouteMessage(ctx context.Context, sessionID string, payload []byte) error {
	if sessionID == "" {
		return ErrMissingSessionID
	}

	s, err := h.registry.Lookup(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
		}
		return fmt.Errorf("lookup session: %w", err)
	}

	if err := s.Deliver(ctx, payload); err != nil {
		if errors.Is(err, engine.ErrClosed) {
			return fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
		}
		return fmt.Errorf("deliver: %w", err)
	}
	return nil
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	sessionID := r.URL.Query().Get(sessionIDParam)
	if sessionID == "" {
		h.metrics.Message(metrics.OutcomeMissingSession)
		writeJSONError(w, http.StatusBadRequest, ErrMissingSessionID.Error())
		h.log.InfoContext(ctx, "router.session_id.missing")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessionID})

	if r.Header.Get("Content-Type") != "" {
		ctype, err := contenttype.GetMediaType(r)
		if err != nil || !ctype.Matches(jsonMediaType) {
			h.metrics.Message(metrics.OutcomeRejected)
			writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			h.log.WarnContext(ctx, "router.content_type.unsupported")
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxMessageBytes))
	if err != nil {
		h.metrics.Message(metrics.OutcomeRejected)
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "message too large")
			h.log.WarnContext(ctx, "router.body.too_large", slog.Int64("limit", tooBig.Limit))
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		h.log.WarnContext(ctx, "router.body.read.fail", slog.String("err", err.Error()))
		return
	}

	if err := h.RouteMessage(ctx, sessionID, body); err != nil {
		switch {
		case errors.Is(err, ErrUnknownSession):
			h.metrics.Message(metrics.OutcomeUnknownSession)
			writeJSONError(w, http.StatusNotFound, "unknown or expired session")
			h.log.InfoContext(ctx, "router.session.miss")
		default:
			h.metrics.Message(metrics.OutcomeFailed)
			writeJSONError(w, http.StatusInternalServerError, "failed to route message")
			h.log.ErrorContext(ctx, "router.route.fail", slog.String("err", err.Error()))
		}
		return
	}

	h.metrics.Message(metrics.OutcomeAccepted)
	w.WriteHeader(http.StatusAccepted)
	h.log.InfoContext(ctx, "router.message.accepted",
		slog.Int("bytes", len(body)),
		slog.Duration("dur", time.Since(start)),
	)
}
