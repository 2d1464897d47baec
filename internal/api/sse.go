package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/forkchat/forkchat/internal/models"
)

// eventStream frames responses as server-sent events. The status line goes
// out with the first chunk, so errors discovered mid-stream are reported as
// an error event rather than an HTTP status.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &eventStream{w: w, flusher: flusher}, true
}

func (s *eventStream) send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func (s *eventStream) chunk(text string) {
	s.send(map[string]string{"content": text})
}

func (s *eventStream) done(payload any) {
	s.send(payload)
}

func (s *eventStream) fail(err error) {
	msg := "Internal server error"
	if errors.Is(err, models.ErrNotFound) {
		msg = "Not found"
	}
	s.send(map[string]string{"error": msg})
}
