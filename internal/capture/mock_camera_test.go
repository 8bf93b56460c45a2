package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/posewatch/internal/geometry"
)

func TestMockCamera_Playback(t *testing.T) {
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame1, &frame2}, false)

	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() before Open error = %v, want ErrCameraNotOpen", err)
	}

	if err := cam.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer cam.Close()

	for i := 0; i < 2; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() %d error = %v", i, err)
		}
		f.Close()
	}

	// Third read should fail (no loop)
	if _, err := cam.ReadFrame(); err == nil {
		t.Error("expected error after all frames consumed")
	}
}

func TestMockCamera_Loop(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.Open()
	defer cam.Close()

	for i := 0; i < 5; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		f.Close()
	}
}

func TestMockCamera_Bounds(t *testing.T) {
	t.Run("from first frame", func(t *testing.T) {
		frame := gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC3)
		defer frame.Close()

		cam := NewMockCamera([]*gocv.Mat{&frame}, true)
		want := geometry.Bounds{Width: 1280, Height: 720}
		if got := cam.Bounds(); got != want {
			t.Errorf("Bounds() = %+v, want %+v", got, want)
		}
	})

	t.Run("default without frames", func(t *testing.T) {
		cam := NewMockCamera(nil, false)
		want := geometry.Bounds{Width: DefaultWidth, Height: DefaultHeight}
		if got := cam.Bounds(); got != want {
			t.Errorf("Bounds() = %+v, want %+v", got, want)
		}
	})
}

func TestMockCamera_ImplementsCamera(t *testing.T) {
	var _ Camera = (*MockCamera)(nil)
}
