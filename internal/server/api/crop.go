package api

import (
	"net/http"

	"github.com/ayusman/posewatch/internal/geometry"
)

// CropHandler computes square crop regions on demand.
type CropHandler struct {
	bounds func() geometry.Bounds
}

// NewCropHandler creates a CropHandler. bounds supplies the session frame
// size used when a request leaves bounds out.
func NewCropHandler(bounds func() geometry.Bounds) *CropHandler {
	return &CropHandler{bounds: bounds}
}

type cropRequest struct {
	Box    *geometry.Box    `json:"box" validate:"required"`
	Bounds *geometry.Bounds `json:"bounds"`
}

type cropResponse struct {
	geometry.Region
	Empty  bool            `json:"empty"`
	Bounds geometry.Bounds `json:"bounds"`
}

// ServeHTTP handles POST /api/crop.
func (h *CropHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cropRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bounds := h.bounds()
	if req.Bounds != nil {
		bounds = *req.Bounds
	}

	region := geometry.SquareCrop(*req.Box, bounds)
	writeJSON(w, http.StatusOK, cropResponse{
		Region: region,
		Empty:  region.Empty(),
		Bounds: bounds,
	})
}
