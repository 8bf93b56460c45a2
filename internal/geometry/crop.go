// Package geometry maps detection boxes onto square crop regions for
// fixed-size square model inputs.
package geometry

import (
	"image"
	"math"
)

// Box is an axis-aligned detection box in frame pixels, origin top-left.
// Values come straight from a detector and may lie partly or entirely
// outside the frame.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bounds are the fixed pixel dimensions of the video source.
type Bounds struct {
	Width  int `json:"width" validate:"gt=0"`
	Height int `json:"height" validate:"gt=0"`
}

// Region is a square sub-region of a frame. A Region returned by SquareCrop
// always lies inside the bounds it was computed for.
type Region struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Side int `json:"side"`
}

// BoxFromRect converts an integer rectangle into a Box.
func BoxFromRect(r image.Rectangle) Box {
	return Box{
		X:      float64(r.Min.X),
		Y:      float64(r.Min.Y),
		Width:  float64(r.Dx()),
		Height: float64(r.Dy()),
	}
}

// Rect returns the box as an integer rectangle, truncating fractional pixels.
func (b Box) Rect() image.Rectangle {
	x, y := int(b.X), int(b.Y)
	return image.Rect(x, y, x+int(b.Width), y+int(b.Height))
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.Side <= 0
}

// Rect returns the region as an image rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Side, r.Y+r.Side)
}

// Box returns the region as a Box, so it can be fed back into SquareCrop.
func (r Region) Box() Box {
	return Box{X: float64(r.X), Y: float64(r.Y), Width: float64(r.Side), Height: float64(r.Side)}
}

// MapPoint maps a point normalised to the region (0..1 on both axes) back
// into frame pixels.
func (r Region) MapPoint(nx, ny float64) (x, y float64) {
	side := float64(r.Side)
	return float64(r.X) + nx*side, float64(r.Y) + ny*side
}

// Contains reports whether the region lies fully inside the bounds.
func (r Region) Contains(b Bounds) bool {
	return r.X >= 0 && r.Y >= 0 && r.Side >= 0 &&
		r.X+r.Side <= b.Width && r.Y+r.Side <= b.Height
}

// SquareCrop computes the square region a fixed-size square model should see
// for the given detection box.
//
// The box is first clamped into the frame. A landscape box is then grown
// vertically around its centre until it is square, a portrait box
// horizontally. When the grown side would not fit in the frame the side is
// capped at the frame's short dimension and the region is recentred on the
// box along the long axis. All outputs are floored to whole pixels.
//
// A box with no area left inside the frame after clamping (either dimension
// zero) yields a zero-side region anchored at the clamped origin; callers
// check Empty before cropping.
func SquareCrop(box Box, bounds Bounds) Region {
	fw, fh := float64(bounds.Width), float64(bounds.Height)
	if fw <= 0 || fh <= 0 {
		return Region{}
	}

	x := clamp(finite(box.X), 0, fw)
	y := clamp(finite(box.Y), 0, fh)
	w := clamp(finite(box.Width), 0, fw-x)
	h := clamp(finite(box.Height), 0, fh-y)
	if w == 0 || h == 0 {
		return Region{X: int(math.Floor(x)), Y: int(math.Floor(y))}
	}

	var side float64
	switch {
	case w == h:
		side = w

	case w > h:
		if w > fh {
			side = fh
			x = clamp(x+w/2-fh/2, 0, fw-side)
			y = 0
		} else {
			side = w
			y = clamp(y-(w-h)/2, 0, fh-side)
		}

	default:
		if h > fw {
			side = fw
			y = clamp(y+h/2-fw/2, 0, fh-side)
			x = 0
		} else {
			side = h
			x = clamp(x-(h-w)/2, 0, fw-side)
		}
	}

	return Region{
		X:    int(math.Floor(x)),
		Y:    int(math.Floor(y)),
		Side: int(math.Floor(side)),
	}
}

// finite replaces NaN with zero. Infinities are left for clamp to absorb.
func finite(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
