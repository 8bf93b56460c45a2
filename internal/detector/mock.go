package detector

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/posewatch/internal/geometry"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	detections []Detection
	err        error
	loadErr    error
	loaded     bool
	calls      int
	mu         sync.Mutex
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the detections that will be returned by Detect.
func (m *MockDetector) SetDetections(dets []Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detections = dets
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetLoadError sets the error that will be returned by Load.
func (m *MockDetector) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// Load marks the mock as loaded unless a load error is configured or the
// context is already done.
func (m *MockDetector) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.loadErr != nil {
		return m.loadErr
	}
	m.loaded = true
	return nil
}

// Detect returns the pre-configured detections or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Detection, len(m.detections))
	copy(out, m.detections)
	return out, nil
}

// Calls reports how many times Detect was invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Loaded reports whether Load succeeded.
func (m *MockDetector) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// StandingPerson returns a preset detection of a person filling the middle of
// a 640x480 frame, taller than wide.
func StandingPerson() Detection {
	return Detection{
		Class: PersonClass,
		Score: 0.84,
		Box:   geometry.Box{X: 220, Y: 40, Width: 200, Height: 420},
	}
}

// WideObject returns a preset non-person detection wider than tall.
func WideObject() Detection {
	return Detection{
		Class: "couch",
		Score: 0.91,
		Box:   geometry.Box{X: 0, Y: 300, Width: 400, Height: 150},
	}
}
