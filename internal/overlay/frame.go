// Package overlay describes and renders the annotations drawn over a
// processed camera frame: detection boxes, labels and keypoint dots.
package overlay

import (
	"image"
	"math"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ayusman/posewatch/internal/detector"
	"github.com/ayusman/posewatch/internal/geometry"
	"github.com/ayusman/posewatch/internal/pose"
)

// DotSize is the side of the square drawn for a keypoint.
const DotSize = 4

// LabelOffset is how far above the box top the label baseline sits.
const LabelOffset = 10

// Box is a detection as shown to the viewer.
type Box struct {
	Class string       `json:"class"`
	Score float64      `json:"score"`
	Label string       `json:"label"`
	Box   geometry.Box `json:"box"`
}

// Point is a keypoint mapped into frame pixels.
type Point struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Person is one detected person with the crop the pose model saw and the
// confident keypoints found in it.
type Person struct {
	Box       geometry.Box    `json:"box"`
	Region    geometry.Region `json:"region"`
	Keypoints []Point         `json:"keypoints"`
}

// Frame is everything published for one processed camera frame. It holds
// encoded images and never a Mat, so it can be shared freely. JPEG has the
// annotations drawn in; Raw is the same frame without them.
type Frame struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	JPEG      []byte    `json:"-"`
	Raw       []byte    `json:"-"`
	Boxes     []Box     `json:"boxes"`
	People    []Person  `json:"people"`
}

// New creates an empty frame of the given size.
func New(seq uint64, ts time.Time, bounds geometry.Bounds) *Frame {
	return &Frame{
		Seq:       seq,
		Timestamp: ts,
		Width:     bounds.Width,
		Height:    bounds.Height,
		Boxes:     []Box{},
		People:    []Person{},
	}
}

// NewBox builds the display box for a detection.
func NewBox(d detector.Detection) Box {
	return Box{
		Class: d.Class,
		Score: d.Score,
		Label: detector.Label(d),
		Box:   d.Box,
	}
}

// NewPerson maps keypoints from crop space into frame pixels, keeping only
// those scoring above minScore.
func NewPerson(d detector.Detection, region geometry.Region, kps []pose.Keypoint, minScore float64) Person {
	p := Person{
		Box:       d.Box,
		Region:    region,
		Keypoints: make([]Point, 0, len(kps)),
	}
	for _, k := range pose.Confident(kps, minScore) {
		x, y := region.MapPoint(k.X, k.Y)
		p.Keypoints = append(p.Keypoints, Point{Name: k.Name, X: x, Y: y, Score: k.Score})
	}
	return p
}

// Dot returns the DotSize square centred on a point.
func Dot(p Point) image.Rectangle {
	x := int(math.Floor(p.X)) - DotSize/2
	y := int(math.Floor(p.Y)) - DotSize/2
	return image.Rect(x, y, x+DotSize, y+DotSize)
}

// LabelOrigin returns where a box label is drawn: LabelOffset above the box,
// or just inside it when that would leave the frame.
func LabelOrigin(b geometry.Box) image.Point {
	x := int(math.Floor(math.Max(b.X, 0)))
	y := int(math.Floor(b.Y)) - LabelOffset
	if y < LabelOffset {
		y = int(math.Floor(math.Max(b.Y, 0))) + 2*LabelOffset
	}
	return image.Pt(x, y)
}

// Empty reports whether the frame carries no annotations.
func (f *Frame) Empty() bool {
	return len(f.Boxes) == 0 && len(f.People) == 0
}

// Message returns the WebSocket payload for the frame.
func (f *Frame) Message() ([]byte, error) {
	return jsoniter.Marshal(struct {
		Type string `json:"type"`
		*Frame
	}{Type: "overlay", Frame: f})
}
