package pose

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// MockEstimator is a test implementation of the Estimator interface.
type MockEstimator struct {
	keypoints []Keypoint
	err       error
	loadErr   error
	loaded    bool
	calls     int
	sizes     [][2]int
	mu        sync.Mutex
}

// NewMockEstimator creates a MockEstimator returning StandingPose.
func NewMockEstimator() *MockEstimator {
	return &MockEstimator{keypoints: StandingPose()}
}

// SetKeypoints sets the keypoints returned by Estimate.
func (m *MockEstimator) SetKeypoints(kps []Keypoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keypoints = kps
}

// SetError sets the error returned by Estimate.
func (m *MockEstimator) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetLoadError sets the error returned by Load.
func (m *MockEstimator) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *MockEstimator) Load(ctx context.Context) error {
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

// Estimate records the crop size and returns the configured keypoints.
func (m *MockEstimator) Estimate(crop *gocv.Mat) ([]Keypoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if crop != nil {
		m.sizes = append(m.sizes, [2]int{crop.Cols(), crop.Rows()})
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Keypoint, len(m.keypoints))
	copy(out, m.keypoints)
	return out, nil
}

// Calls reports how many times Estimate was invoked.
func (m *MockEstimator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Sizes reports the width and height of every crop passed to Estimate.
func (m *MockEstimator) Sizes() [][2]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][2]int, len(m.sizes))
	copy(out, m.sizes)
	return out
}

// Loaded reports whether Load succeeded.
func (m *MockEstimator) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

func (m *MockEstimator) Close() error {
	return nil
}

// StandingPose returns a frontal upright pose normalised to its crop. The
// ears and ankles score below the usual display threshold.
func StandingPose() []Keypoint {
	rows := [NumKeypoints][3]float64{
		{0.10, 0.50, 0.95}, // nose
		{0.08, 0.48, 0.90},
		{0.08, 0.52, 0.90},
		{0.09, 0.45, 0.40},
		{0.09, 0.55, 0.40},
		{0.22, 0.40, 0.88}, // shoulders
		{0.22, 0.60, 0.88},
		{0.38, 0.36, 0.80},
		{0.38, 0.64, 0.80},
		{0.52, 0.35, 0.75}, // wrists
		{0.52, 0.65, 0.75},
		{0.55, 0.44, 0.85}, // hips
		{0.55, 0.56, 0.85},
		{0.74, 0.44, 0.70},
		{0.74, 0.56, 0.70},
		{0.93, 0.44, 0.30}, // ankles
		{0.93, 0.56, 0.30},
	}

	kps := make([]Keypoint, NumKeypoints)
	for i, r := range rows {
		kps[i] = Keypoint{Name: Names[i], Y: r[0], X: r[1], Score: r[2]}
	}
	return kps
}
