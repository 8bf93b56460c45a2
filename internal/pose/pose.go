// Package pose estimates body keypoints on square person crops.
package pose

import (
	"context"
	"errors"

	"gocv.io/x/gocv"
)

// NumKeypoints is the number of body keypoints the models emit.
const NumKeypoints = 17

// DefaultInputSize is the side of the square image the pose model expects.
const DefaultInputSize = 192

// Keypoint indices in model output order.
const (
	Nose = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
)

// Names lists keypoint names indexed by the constants above.
var Names = [NumKeypoints]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"left_shoulder", "right_shoulder", "left_elbow", "right_elbow",
	"left_wrist", "right_wrist", "left_hip", "right_hip",
	"left_knee", "right_knee", "left_ankle", "right_ankle",
}

var (
	// ErrNotLoaded is returned by Estimate before Load has completed.
	ErrNotLoaded = errors.New("pose model not loaded")
	// ErrBadOutput is returned when a model or service yields the wrong
	// number of values.
	ErrBadOutput = errors.New("unexpected pose output shape")
)

// Keypoint is one body landmark. Y and X are normalised to the crop (0..1).
type Keypoint struct {
	Name  string  `json:"name"`
	Y     float64 `json:"y"`
	X     float64 `json:"x"`
	Score float64 `json:"score"`
}

// Estimator defines the interface for pose estimation implementations.
type Estimator interface {
	// Load prepares the model. It may be slow and is called once before the
	// camera can be enabled.
	Load(ctx context.Context) error

	// Estimate returns NumKeypoints keypoints for a square crop already
	// resized to the model input size.
	Estimate(crop *gocv.Mat) ([]Keypoint, error)

	// Close releases any resources held by the estimator.
	Close() error
}

// FromTriples converts rows of [y, x, score] into named keypoints.
func FromTriples(rows [][]float64) ([]Keypoint, error) {
	if len(rows) != NumKeypoints {
		return nil, ErrBadOutput
	}
	kps := make([]Keypoint, NumKeypoints)
	for i, r := range rows {
		if len(r) < 3 {
			return nil, ErrBadOutput
		}
		kps[i] = Keypoint{Name: Names[i], Y: r[0], X: r[1], Score: r[2]}
	}
	return kps, nil
}

// FromFlat converts a flat slice of y, x, score values into keypoints.
func FromFlat(values []float32) ([]Keypoint, error) {
	if len(values) < NumKeypoints*3 {
		return nil, ErrBadOutput
	}
	kps := make([]Keypoint, NumKeypoints)
	for i := range kps {
		kps[i] = Keypoint{
			Name:  Names[i],
			Y:     float64(values[i*3]),
			X:     float64(values[i*3+1]),
			Score: float64(values[i*3+2]),
		}
	}
	return kps, nil
}

// Confident returns keypoints scoring strictly above minScore.
func Confident(kps []Keypoint, minScore float64) []Keypoint {
	out := make([]Keypoint, 0, len(kps))
	for _, k := range kps {
		if k.Score > minScore {
			out = append(out, k)
		}
	}
	return out
}
