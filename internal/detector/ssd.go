package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/posewatch/internal/geometry"
)

// ssdRowSize is the width of one SSD output row:
// [image, class, score, x1, y1, x2, y2] with corners normalised to 0..1.
const ssdRowSize = 7

// SSDDetector implements Detector with a COCO SSD network run through the
// OpenCV DNN module.
type SSDDetector struct {
	config Config
	net    gocv.Net
	loaded bool
	mu     sync.Mutex
}

// NewSSDDetector creates a new SSD detector. The model file must exist; the
// network itself is read lazily by Load.
func NewSSDDetector(config Config) (*SSDDetector, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("detector model path is empty")
	}
	if _, err := os.Stat(config.Model); err != nil {
		return nil, fmt.Errorf("detector model: %w", err)
	}
	if config.ModelConfig != "" {
		if _, err := os.Stat(config.ModelConfig); err != nil {
			return nil, fmt.Errorf("detector model config: %w", err)
		}
	}
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}

	return &SSDDetector{config: config}, nil
}

// Load reads the network from disk. Calling it again is a no-op.
func (d *SSDDetector) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	net := gocv.ReadNet(d.config.Model, d.config.ModelConfig)
	if net.Empty() {
		return fmt.Errorf("read detector network %s", d.config.Model)
	}

	d.net = net
	d.loaded = true
	return nil
}

// Detect runs the network over a frame and returns detections in frame pixels.
func (d *SSDDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return nil, ErrNotLoaded
	}
	if frame == nil || frame.Empty() {
		return nil, fmt.Errorf("detect: empty frame")
	}

	size := image.Pt(d.config.InputSize, d.config.InputSize)
	blob := gocv.BlobFromImage(*frame, 1.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	rows := prob.Total() / ssdRowSize
	if rows == 0 {
		return []Detection{}, nil
	}

	results := prob.Reshape(1, rows)
	defer results.Close()

	width, height := float64(frame.Cols()), float64(frame.Rows())
	dets := make([]Detection, 0, rows)
	for r := 0; r < rows; r++ {
		score := float64(results.GetFloatAt(r, 2))
		if score < d.config.MinScore {
			continue
		}

		x1 := float64(results.GetFloatAt(r, 3)) * width
		y1 := float64(results.GetFloatAt(r, 4)) * height
		x2 := float64(results.GetFloatAt(r, 5)) * width
		y2 := float64(results.GetFloatAt(r, 6)) * height

		dets = append(dets, Detection{
			Class: ClassName(int(results.GetFloatAt(r, 1))),
			Score: score,
			Box:   geometry.Box{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1},
		})
	}

	return dets, nil
}

// Close releases the network.
func (d *SSDDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.loaded {
		return nil
	}
	d.loaded = false
	return d.net.Close()
}
