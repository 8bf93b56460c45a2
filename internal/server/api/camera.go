package api

import (
	"errors"
	"net/http"

	"github.com/ayusman/posewatch/internal/app"
)

// CameraHandler turns capture on and off.
type CameraHandler struct {
	ctrl Controller
}

// NewCameraHandler creates a new CameraHandler.
func NewCameraHandler(ctrl Controller) *CameraHandler {
	return &CameraHandler{ctrl: ctrl}
}

type cameraRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type cameraResponse struct {
	Enabled   bool   `json:"enabled"`
	Readiness string `json:"readiness"`
}

// ServeHTTP handles GET and POST /api/camera.
func (h *CameraHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w)
	case http.MethodPost:
		h.set(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CameraHandler) get(w http.ResponseWriter) {
	st := h.ctrl.Status()
	writeJSON(w, http.StatusOK, cameraResponse{Enabled: st.CameraEnabled, Readiness: st.Readiness})
}

func (h *CameraHandler) set(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ctrl.SetCamera(r.Context(), *req.Enabled); err != nil {
		if errors.Is(err, app.ErrNotReady) {
			writeError(w, http.StatusConflict, "Models are still loading")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to switch camera")
		return
	}

	h.get(w)
}
