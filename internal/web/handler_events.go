package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vbonduro/screensolve/internal/relay"
)

const keepAliveInterval = 15 * time.Second

// handleEvents streams overlay updates as SSE. Output events carry the
// rendered HTML fragment; status events carry plain text.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// SSE connections outlive the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear write deadline failed", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("flush events failed", "error", err)
		return
	}

	sub := s.deps.Hub.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case ev := <-sub.Events():
			if err := s.writeEvent(w, ev); err != nil {
				s.logger.Debug("write event failed", "error", err)
				return
			}
		case <-sub.Lagged():
			for _, ev := range sub.Resync() {
				if err := s.writeEvent(w, ev); err != nil {
					s.logger.Debug("write event failed", "error", err)
					return
				}
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, ev relay.Event) error {
	var payload any
	switch ev.Kind {
	case relay.KindOutput:
		payload = map[string]string{"html": string(s.renderer.Fragment(ev.Text))}
	default:
		payload = map[string]string{"text": ev.Text}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
