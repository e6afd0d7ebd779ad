package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luissimon96/migration-validation-voe/internal/domain/voe"
	"github.com/luissimon96/migration-validation-voe/internal/http/response"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/ctxutil"
	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
	"github.com/luissimon96/migration-validation-voe/internal/progress"
	"github.com/luissimon96/migration-validation-voe/internal/realtime"
	"github.com/luissimon96/migration-validation-voe/internal/repos"
)

// RealtimeHandler streams C9 progress events for one session over SSE. The
// hub has no ServeHTTP of its own in this tree, so the write loop lives here.
type RealtimeHandler struct {
	log      *logger.Logger
	hub      *realtime.SSEHub
	broker   *progress.Broker
	sessions repos.SessionRepo
}

func NewRealtimeHandler(baseLog *logger.Logger, hub *realtime.SSEHub, broker *progress.Broker, sessions repos.SessionRepo) *RealtimeHandler {
	return &RealtimeHandler{
		log:      baseLog.With("handler", "RealtimeHandler"),
		hub:      hub,
		broker:   broker,
		sessions: sessions,
	}
}

// Stream implements `GET /api/validate/{request_id}/events`: a session-
// scoped SSE feed, replaying history for late subscribers via the Progress
// Broker and falling back to a heartbeat comment so proxies don't time out
// an idle connection.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	requestID := c.Param("request_id")
	session, err := h.sessions.GetByRequestID(c.Request.Context(), nil, requestID)
	if err != nil {
		response.RespondError(c, http.StatusNotFound, "session_not_found", err)
		return
	}

	var userID uuid.UUID
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		userID = rd.UserID
	}
	client := h.hub.NewSSEClient(userID)
	isTerminal := voe.SessionStatus(session.Status).Terminal()
	h.broker.Subscribe(c.Request.Context(), client, requestID, session.ID, isTerminal)
	defer func() {
		h.broker.Unsubscribe(client, requestID)
		h.hub.CloseClient(client)
	}()

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", fmt.Errorf("response writer does not support flushing"))
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-client.Outbound:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\n", msg.Event)
			fmt.Fprintf(w, "data: %s\n\n", marshalSSEData(msg))
			flusher.Flush()
			if isTerminalEvent(msg.Event) {
				return
			}
		}
	}
}

func marshalSSEData(msg realtime.SSEMessage) string {
	b, err := json.Marshal(msg.Data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func isTerminalEvent(event string) bool {
	switch event {
	case realtime.SSEEventSessionCompleted, realtime.SSEEventSessionFailed, realtime.SSEEventSessionCancelled, realtime.SSEEventSessionTimedOut:
		return true
	default:
		return false
	}
}
