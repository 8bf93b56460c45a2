// Package testdata builds synthetic camera frames for tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Background is the fill of every generated frame.
var Background = color.RGBA{R: 40, G: 40, B: 40, A: 255}

// Figure is the fill of the person-shaped block.
var Figure = color.RGBA{R: 200, G: 180, B: 160, A: 255}

// Frame returns a blank BGR frame of the given size.
func Frame(width, height int) *gocv.Mat {
	mat := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(Background.B), float64(Background.G), float64(Background.R), 0),
		height, width, gocv.MatTypeCV8UC3,
	)
	return &mat
}

// PersonFrame returns a frame with a filled block standing in for a person.
func PersonFrame(width, height int, figure image.Rectangle) *gocv.Mat {
	mat := Frame(width, height)
	gocv.Rectangle(mat, figure, Figure, -1)
	return mat
}

// WalkSequence returns n frames with the figure moving step pixels to the
// right each frame, so motion gating fires on every one.
func WalkSequence(n, width, height int, start image.Rectangle, step int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		frames = append(frames, PersonFrame(width, height, start.Add(image.Pt(i*step, 0))))
	}
	return frames
}

// CloseAll releases every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
