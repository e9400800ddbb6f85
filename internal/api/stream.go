package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github-webhook-pulse/internal/model"
	"github-webhook-pulse/internal/notify"
)

// streamEvents serves the Server-Sent Events feed backing the dashboard's
// live view. The client resumes with ?lastEventId=N; 0 (or absent) replays
// the retained log from the beginning.
// GET /api/stream?lastEventId=N
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Streaming is not supported")
		return
	}

	var lastSeenID int64
	if raw := r.URL.Query().Get("lastEventId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid 'lastEventId' parameter. Must be a non-negative integer.")
			return
		}
		lastSeenID = parsed
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}
	session := notify.NewSession(h.db, lastSeenID, h.streamCfg, nil, h.logger)

	err := session.Run(r.Context(), sink)
	if err != nil {
		// Broken transport or storage failure: the connection is already
		// unusable, so just log and let it drop.
		h.logger.Warn("Stream session ended with error",
			"last_seen_id", session.LastSeenID(), "error", err)
		return
	}
	_ = sink.close()
}

// sseSink writes notify session output as SSE frames.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) NewEvent(ev model.Event) error {
	return s.frame("new_event", map[string]any{
		"event":     ev,
		"timestamp": time.Now().Unix(),
	})
}

func (s *sseSink) Heartbeat(ts time.Time) error {
	return s.frame("heartbeat", map[string]any{"timestamp": ts.Unix()})
}

func (s *sseSink) close() error {
	return s.frame("close", map[string]string{"message": "Connection closed"})
}

func (s *sseSink) frame(event string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, body); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
