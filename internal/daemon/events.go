package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"facelane/internal/logging"
)

// handleEvents streams the job view as server-sent events. A frame is sent
// whenever the record changes; the stream ends after the terminal frame.
func (s *httpServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	updates, err := s.daemon.service.Subscribe(ctx, ownerFrom(r), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Debug("event stream flush unsupported", logging.Error(err))
	}

	var keepalive <-chan time.Time
	if s.keepalive > 0 {
		ticker := time.NewTicker(s.keepalive)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Err != nil {
				data, _ := json.Marshal(errorResponse{Error: update.Err.Error()})
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
				_ = rc.Flush()
				return
			}
			data, err := json.Marshal(update.Job)
			if err != nil {
				s.logger.Error("encode event frame", logging.Error(err))
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
		}
		_ = rc.Flush()
	}
}
