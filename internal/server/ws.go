package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/posewatch/internal/hub"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// OverlayHandler pushes one JSON message per published frame over a
// WebSocket: boxes, labels, keypoints and crop regions.
type OverlayHandler struct {
	hub    *hub.Hub
	ids    *idSource
	logger logrus.FieldLogger
}

// NewOverlayHandler creates a new OverlayHandler reading from h.
func NewOverlayHandler(h *hub.Hub, ids *idSource, logger logrus.FieldLogger) *OverlayHandler {
	return &OverlayHandler{hub: h, ids: ids, logger: logger}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *OverlayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	id := "ws-" + h.ids.New()
	next := h.hub.Subscribe(id)
	defer h.hub.Unsubscribe(id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(ctx, func() { h.hub.Unsubscribe(id) })
	defer stop()

	// Reads only serve control frames. Any read error means the client left.
	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Only this goroutine writes to conn.
	frames := make(chan []byte, 1)
	go func() {
		defer close(frames)
		if f := h.hub.Latest(); f != nil {
			if msg, err := f.Message(); err == nil {
				frames <- msg
			}
		}
		for {
			f := next()
			if f == nil {
				return
			}
			msg, err := f.Message()
			if err != nil {
				h.logger.WithError(err).Error("encode overlay message")
				continue
			}
			select {
			case frames <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-frames:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
