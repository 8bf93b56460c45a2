package pose

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// DNNEstimator runs a single-pose model through the OpenCV DNN module. The
// network must produce 17 rows of [y, x, score].
type DNNEstimator struct {
	model     string
	inputSize int
	net       gocv.Net
	loaded    bool
	mu        sync.Mutex
}

// NewDNNEstimator creates an estimator for the model file at path. The
// network is read lazily by Load.
func NewDNNEstimator(path string, inputSize int) (*DNNEstimator, error) {
	if path == "" {
		return nil, fmt.Errorf("pose model path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("pose model: %w", err)
	}
	if inputSize <= 0 {
		inputSize = DefaultInputSize
	}
	return &DNNEstimator{model: path, inputSize: inputSize}, nil
}

// Load reads the network from disk. Calling it again is a no-op.
func (e *DNNEstimator) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	net := gocv.ReadNet(e.model, "")
	if net.Empty() {
		return fmt.Errorf("read pose network %s", e.model)
	}

	e.net = net
	e.loaded = true
	return nil
}

// Estimate runs the network on a prepared crop.
func (e *DNNEstimator) Estimate(crop *gocv.Mat) ([]Keypoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return nil, ErrNotLoaded
	}
	if crop == nil || crop.Empty() {
		return nil, fmt.Errorf("estimate: empty crop")
	}

	size := image.Pt(e.inputSize, e.inputSize)
	blob := gocv.BlobFromImage(*crop, 1.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	if out.Total() < NumKeypoints*3 {
		return nil, fmt.Errorf("%w: %d values", ErrBadOutput, out.Total())
	}

	values, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read pose output: %w", err)
	}

	return FromFlat(values)
}

// Close releases the network.
func (e *DNNEstimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return nil
	}
	e.loaded = false
	return e.net.Close()
}
