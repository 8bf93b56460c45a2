package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ayusman/posewatch/internal/hub"
	"github.com/ayusman/posewatch/internal/overlay"
)

// StreamHandler serves annotated frames from the hub as MJPEG.
type StreamHandler struct {
	hub *hub.Hub
	ids *idSource
}

// NewStreamHandler creates a new StreamHandler reading from h.
func NewStreamHandler(h *hub.Hub, ids *idSource) *StreamHandler {
	return &StreamHandler{hub: h, ids: ids}
}

// ServeHTTP streams MJPEG frames to the client until it disconnects or the
// hub closes. A slow client only ever sees the newest frame.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := "stream-" + h.ids.New()
	next := h.hub.Subscribe(id)
	defer h.hub.Unsubscribe(id)

	// Unblock next() when the client goes away.
	stop := context.AfterFunc(r.Context(), func() { h.hub.Unsubscribe(id) })
	defer stop()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var lastSeq uint64
	if f := h.hub.Latest(); f != nil {
		if err := writePart(w, f); err != nil {
			return
		}
		lastSeq = f.Seq
	}

	for {
		f := next()
		if f == nil {
			return
		}
		if f.Seq != 0 && f.Seq <= lastSeq {
			continue
		}
		if err := writePart(w, f); err != nil {
			return
		}
		lastSeq = f.Seq
	}
}

func writePart(w http.ResponseWriter, f *overlay.Frame) error {
	if len(f.JPEG) == 0 {
		return nil
	}

	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(f.JPEG)); err != nil {
		return err
	}
	if _, err := w.Write(f.JPEG); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}

	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
	return nil
}
