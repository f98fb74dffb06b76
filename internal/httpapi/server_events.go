package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// handleEventStream is the live connection endpoint. After credential
// verification the caller's connection key is registered with the presence
// registry for the duration of the connection; the channel is push-only.
func (s server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
		return
	}

	userID, _, err := s.userByAPIKey(r.Context(), token)
	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "auth lookup failed"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	key := userID.String()

	conn := s.registry.Connect(key)
	defer s.registry.Disconnect(key, conn)

	bw := bufio.NewWriterSize(w, 16*1024)
	defer func() {
		if err := bw.Flush(); err != nil {
			logError(ctx, "sse flush failed", err)
		}
	}()

	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		logError(ctx, "sse write failed", err)
		return
	}
	if err := bw.Flush(); err != nil {
		logError(ctx, "sse flush failed", err)
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Done():
			// Replaced by a newer connection for the same key.
			return
		case ev := <-conn.Events():
			if err := writeSSE(bw, "event", ev); err != nil {
				logError(ctx, "sse write failed", err)
				return
			}
			if err := bw.Flush(); err != nil {
				logError(ctx, "sse flush failed", err)
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := bw.WriteString(": keepalive\n\n"); err != nil {
				logError(ctx, "sse keepalive write failed", err)
				return
			}
			if err := bw.Flush(); err != nil {
				logError(ctx, "sse flush failed", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w *bufio.Writer, eventName string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("event: " + eventName + "\n"); err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return nil
}
