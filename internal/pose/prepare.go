package pose

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/posewatch/internal/geometry"
)

// Prepare cuts region out of frame and resizes it to a size x size square
// with bilinear interpolation. The caller owns the returned Mat.
func Prepare(frame *gocv.Mat, region geometry.Region, size int) (gocv.Mat, error) {
	if frame == nil || frame.Empty() {
		return gocv.NewMat(), fmt.Errorf("prepare: empty frame")
	}
	if region.Empty() {
		return gocv.NewMat(), fmt.Errorf("prepare: empty region")
	}
	if size <= 0 {
		size = DefaultInputSize
	}

	rect := region.Rect()
	if !rect.In(image.Rect(0, 0, frame.Cols(), frame.Rows())) {
		return gocv.NewMat(), fmt.Errorf("prepare: region %v outside frame %dx%d", rect, frame.Cols(), frame.Rows())
	}

	roi := frame.Region(rect)
	defer roi.Close()

	out := gocv.NewMat()
	gocv.Resize(roi, &out, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)
	return out, nil
}
