package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aet-hub/aet-hub/internal/domain/notification"
)

// events streams real-time notifications as server-sent events.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	client := notification.NewClient(streamID(r), callerID(r), notification.DefaultClientBuffer)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok || msg == nil {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// streamID scopes the client-chosen ID to the caller so one user cannot take over
// another user's stream.
func streamID(r *http.Request) string {
	id := r.URL.Query().Get("clientId")
	if id == "" {
		id = uuid.NewString()
	}
	if userID := callerID(r); userID != nil {
		return userID.String() + ":" + id
	}
	return id
}

func callerID(r *http.Request) *uuid.UUID {
	auth := authUserFromContext(r.Context())
	if auth == nil {
		return nil
	}
	id := auth.UserID
	return &id
}

func writeEvent(w http.ResponseWriter, msg *notification.Message) error {
	frame := make([]byte, 0, len(msg.Payload)+64)
	frame = append(frame, "id: "...)
	frame = append(frame, msg.ID...)
	frame = append(frame, "\nevent: "...)
	frame = append(frame, string(msg.Type)...)
	frame = append(frame, "\ndata: "...)
	frame = append(frame, msg.Payload...)
	frame = append(frame, "\n\n"...)
	_, err := w.Write(frame)
	return err
}
