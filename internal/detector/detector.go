// Package detector finds objects, and people in particular, in camera frames.
package detector

import (
	"context"
	"errors"

	"gocv.io/x/gocv"

	"github.com/ayusman/posewatch/internal/geometry"
)

// PersonClass is the COCO label the pipeline runs pose estimation on.
const PersonClass = "person"

// ErrNotLoaded is returned by Detect before Load has completed.
var ErrNotLoaded = errors.New("detector model not loaded")

// Detection is a single object found in a frame. Box is in frame pixels,
// top-left origin, and may extend past the frame edges.
type Detection struct {
	Class string       `json:"class"`
	Score float64      `json:"score"`
	Box   geometry.Box `json:"box"`
}

// Detector defines the interface for object detection implementations.
type Detector interface {
	// Load prepares the model. It may be slow and is called once before the
	// camera can be enabled.
	Load(ctx context.Context) error

	// Detect analyzes a video frame and returns every detection the model
	// produced, unfiltered. Returns an empty slice if nothing was found.
	Detect(frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for the SSD detector.
type Config struct {
	// Model is the network weights file (e.g. frozen_inference_graph.pb).
	Model string

	// ModelConfig is the optional network description (e.g. a .pbtxt).
	ModelConfig string

	// InputSize is the square blob size fed to the network (default: 300).
	InputSize int

	// MinScore drops raw detections below this score before they leave
	// the detector (default: 0.1). The pipeline applies its own threshold.
	MinScore float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		InputSize: 300,
		MinScore:  0.1,
	}
}
