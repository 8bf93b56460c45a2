package detector

import (
	"fmt"
	"math"
)

// Filter returns the detections whose score is strictly above minScore,
// preserving order.
func Filter(dets []Detection, minScore float64) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Score > minScore {
			out = append(out, d)
		}
	}
	return out
}

// Persons returns only the person detections, preserving order.
func Persons(dets []Detection) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Class == PersonClass {
			out = append(out, d)
		}
	}
	return out
}

// Label formats a detection for display, e.g. "person - with 84% confidence.".
func Label(d Detection) string {
	return fmt.Sprintf("%s - with %d%% confidence.", d.Class, int(math.Round(d.Score*100)))
}
