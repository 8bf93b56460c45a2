package server

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/ayusman/posewatch/internal/hub"
	"github.com/ayusman/posewatch/internal/overlay"
)

// ErrNoFrame is returned when nothing has been published yet.
var ErrNoFrame = errors.New("no frame available yet")

// SnapshotHandler serves the latest published frame as a still image,
// either whole and annotated or as the crop one person's pose was run on.
type SnapshotHandler struct {
	hub  *hub.Hub
	size int
}

// NewSnapshotHandler creates a SnapshotHandler. size is the side person
// crops are resized to.
func NewSnapshotHandler(h *hub.Hub, size int) *SnapshotHandler {
	return &SnapshotHandler{hub: h, size: size}
}

// ServeHTTP handles GET /api/snapshot?format=jpeg|png|webp[&person=N][&crops=1].
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	format := strings.ToLower(q.Get("format"))
	switch format {
	case "":
		format = "jpeg"
	case "jpg":
		format = "jpeg"
	case "jpeg", "png", "webp":
	default:
		http.Error(w, "Unsupported format", http.StatusBadRequest)
		return
	}

	f := h.hub.Latest()
	if f == nil {
		http.Error(w, ErrNoFrame.Error(), http.StatusNotFound)
		return
	}

	showCrops := q.Get("crops") == "1" || q.Get("crops") == "true"

	// The stream JPEG already has the annotations drawn in.
	if q.Get("person") == "" && format == "jpeg" && !showCrops && len(f.JPEG) > 0 {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(f.JPEG)
		return
	}

	raw, err := decodeRaw(f)
	if err != nil {
		http.Error(w, "Failed to decode frame", http.StatusInternalServerError)
		return
	}

	var img image.Image
	if p := q.Get("person"); p != "" {
		idx, err := strconv.Atoi(p)
		if err != nil || idx < 0 {
			http.Error(w, "person must be a non-negative integer", http.StatusBadRequest)
			return
		}
		if idx >= len(f.People) {
			http.Error(w, fmt.Sprintf("person %d not in frame", idx), http.StatusNotFound)
			return
		}
		region := f.People[idx].Region
		if region.Empty() {
			http.Error(w, fmt.Sprintf("person %d has no crop", idx), http.StatusNotFound)
			return
		}
		img = imaging.Resize(imaging.Crop(raw, region.Rect()), h.size, h.size, imaging.Linear)
	} else {
		img = overlay.DrawImage(raw, f, showCrops)
	}

	var buf bytes.Buffer
	if err := encodeImage(&buf, img, format); err != nil {
		http.Error(w, "Failed to encode snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/"+format)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// decodeRaw decodes the clean frame, falling back to the annotated one.
func decodeRaw(f *overlay.Frame) (image.Image, error) {
	data := f.Raw
	if len(data) == 0 {
		data = f.JPEG
	}
	if len(data) == 0 {
		return nil, ErrNoFrame
	}
	return imaging.Decode(bytes.NewReader(data))
}

func encodeImage(buf *bytes.Buffer, img image.Image, format string) error {
	switch format {
	case "webp":
		return webp.Encode(buf, img, &webp.Options{Quality: 80})
	case "png":
		return imaging.Encode(buf, img, imaging.PNG)
	default:
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(85))
	}
}
