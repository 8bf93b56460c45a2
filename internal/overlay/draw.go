package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Colors shared by both renderers.
var (
	BoxColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	LabelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	DotColor   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	CropColor  = color.RGBA{R: 255, G: 204, B: 0, A: 255}
)

const boxStroke = 2

// DrawMat renders the frame annotations onto mat in place.
func DrawMat(mat *gocv.Mat, f *Frame) {
	if mat == nil || mat.Empty() || f == nil {
		return
	}

	for _, b := range f.Boxes {
		gocv.Rectangle(mat, b.Box.Rect(), BoxColor, boxStroke)
		gocv.PutText(mat, b.Label, LabelOrigin(b.Box), gocv.FontHersheySimplex, 0.5, LabelColor, 1)
	}

	for _, p := range f.People {
		for _, k := range p.Keypoints {
			gocv.Rectangle(mat, Dot(k), DotColor, -1)
		}
	}
}

// Encode stores the clean frame in f.Raw, draws the annotations onto mat
// and stores the result in f.JPEG.
func Encode(mat *gocv.Mat, f *Frame) error {
	raw, err := encodeJPEG(mat)
	if err != nil {
		return err
	}
	f.Raw = raw

	DrawMat(mat, f)

	f.JPEG, err = encodeJPEG(mat)
	return err
}

func encodeJPEG(mat *gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(".jpg", *mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	// The native buffer is freed on Close, so copy out.
	data := buf.GetBytes()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// DrawImage returns a copy of img with the frame annotations and, when
// showCrops is set, each person's crop region.
func DrawImage(img image.Image, f *Frame, showCrops bool) *image.NRGBA {
	out := imaging.Clone(img)
	if f == nil {
		return out
	}

	for _, b := range f.Boxes {
		strokeRect(out, b.Box.Rect(), BoxColor, boxStroke)
		drawLabel(out, b.Label, LabelOrigin(b.Box))
	}

	for _, p := range f.People {
		if showCrops && !p.Region.Empty() {
			strokeRect(out, p.Region.Rect(), CropColor, 1)
		}
		for _, k := range p.Keypoints {
			draw.Draw(out, Dot(k).Intersect(out.Bounds()), image.NewUniform(DotColor), image.Point{}, draw.Src)
		}
	}

	return out
}

func strokeRect(img *image.NRGBA, r image.Rectangle, c color.Color, stroke int) {
	src := image.NewUniform(c)
	bounds := img.Bounds()
	for s := 0; s < stroke; s++ {
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y+s, r.Max.X, r.Min.Y+s+1),
			image.Rect(r.Min.X, r.Max.Y-1-s, r.Max.X, r.Max.Y-s),
			image.Rect(r.Min.X+s, r.Min.Y, r.Min.X+s+1, r.Max.Y),
			image.Rect(r.Max.X-1-s, r.Min.Y, r.Max.X-s, r.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(img, e.Intersect(bounds), src, image.Point{}, draw.Src)
		}
	}
}

func drawLabel(img *image.NRGBA, text string, at image.Point) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(LabelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(text)
}
