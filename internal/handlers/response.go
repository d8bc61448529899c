// File: internal/handlers/response.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// decodeJSONBody parses a JSON request body into target.
func decodeJSONBody(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError is a helper for sending JSON error responses.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

// sseWriter emits server-sent events in the `data: {json}\n\n` framing the
// frontend expects, flushing after every event.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported by this connection")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	return &sseWriter{w: w, flusher: flusher}, nil
}

// Send serializes payload as one SSE event. Encoding failures are returned
// so the caller can stop the stream.
func (s *sseWriter) Send(payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", encoded); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// SendError emits a terminal error event.
func (s *sseWriter) SendError(message string) {
	_ = s.Send(map[string]any{"error": message, "done": true})
}
