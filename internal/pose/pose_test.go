package pose

import (
	"context"
	"errors"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/posewatch/internal/geometry"
)

func TestFromTriples(t *testing.T) {
	t.Run("names in order", func(t *testing.T) {
		rows := make([][]float64, NumKeypoints)
		for i := range rows {
			rows[i] = []float64{float64(i) / 20, 0.5, 0.9}
		}

		kps, err := FromTriples(rows)
		if err != nil {
			t.Fatalf("FromTriples() error = %v", err)
		}
		if kps[Nose].Name != "nose" || kps[RightAnkle].Name != "right_ankle" {
			t.Errorf("unexpected names: %q, %q", kps[Nose].Name, kps[RightAnkle].Name)
		}
		if kps[LeftHip].Y != float64(LeftHip)/20 {
			t.Errorf("LeftHip.Y = %f, want %f", kps[LeftHip].Y, float64(LeftHip)/20)
		}
	})

	t.Run("wrong count", func(t *testing.T) {
		if _, err := FromTriples(make([][]float64, 5)); !errors.Is(err, ErrBadOutput) {
			t.Errorf("error = %v, want ErrBadOutput", err)
		}
	})

	t.Run("short row", func(t *testing.T) {
		rows := make([][]float64, NumKeypoints)
		for i := range rows {
			rows[i] = []float64{0, 0, 0}
		}
		rows[3] = []float64{0.1, 0.2}
		if _, err := FromTriples(rows); !errors.Is(err, ErrBadOutput) {
			t.Errorf("error = %v, want ErrBadOutput", err)
		}
	})
}

func TestFromFlat(t *testing.T) {
	values := make([]float32, NumKeypoints*3)
	values[LeftWrist*3] = 0.25
	values[LeftWrist*3+1] = 0.75
	values[LeftWrist*3+2] = 0.5

	kps, err := FromFlat(values)
	if err != nil {
		t.Fatalf("FromFlat() error = %v", err)
	}
	got := kps[LeftWrist]
	if got.Name != "left_wrist" || got.Y != 0.25 || got.X != 0.75 || got.Score != 0.5 {
		t.Errorf("LeftWrist = %+v", got)
	}

	if _, err := FromFlat(values[:10]); !errors.Is(err, ErrBadOutput) {
		t.Errorf("error = %v, want ErrBadOutput", err)
	}
}

func TestConfident(t *testing.T) {
	got := Confident(StandingPose(), 0.66)
	// Ears (0.40) and ankles (0.30) drop out
	if len(got) != NumKeypoints-4 {
		t.Errorf("Confident() kept %d keypoints, want %d", len(got), NumKeypoints-4)
	}
	for _, k := range got {
		if k.Score <= 0.66 {
			t.Errorf("keypoint %s score %f should have been dropped", k.Name, k.Score)
		}
	}
}

func TestPrepare(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	t.Run("crops and resizes", func(t *testing.T) {
		out, err := Prepare(&frame, geometry.Region{X: 80, Y: 0, Side: 480}, 192)
		if err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		defer out.Close()

		if out.Cols() != 192 || out.Rows() != 192 {
			t.Errorf("output size = %dx%d, want 192x192", out.Cols(), out.Rows())
		}
	})

	t.Run("default size", func(t *testing.T) {
		out, err := Prepare(&frame, geometry.Region{X: 0, Y: 0, Side: 50}, 0)
		if err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		defer out.Close()

		if out.Cols() != DefaultInputSize {
			t.Errorf("output width = %d, want %d", out.Cols(), DefaultInputSize)
		}
	})

	t.Run("empty region", func(t *testing.T) {
		out, err := Prepare(&frame, geometry.Region{X: 10, Y: 10}, 192)
		defer out.Close()
		if err == nil {
			t.Error("expected error for empty region")
		}
	})

	t.Run("region outside frame", func(t *testing.T) {
		out, err := Prepare(&frame, geometry.Region{X: 600, Y: 0, Side: 100}, 192)
		defer out.Close()
		if err == nil {
			t.Error("expected error for region outside frame")
		}
	})
}

func TestPrepare_EmptyFrame(t *testing.T) {
	out, err := Prepare(nil, geometry.Region{Side: 10}, 192)
	defer out.Close()
	if err == nil {
		t.Error("expected error for nil frame")
	}
}

func TestMockEstimator(t *testing.T) {
	m := NewMockEstimator()
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	kps, err := m.Estimate(nil)
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if len(kps) != NumKeypoints {
		t.Errorf("Estimate() returned %d keypoints", len(kps))
	}

	m.SetError(errors.New("boom"))
	if _, err := m.Estimate(nil); err == nil {
		t.Error("expected configured error")
	}
	if m.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", m.Calls())
	}
}

func TestEstimatorInterface(t *testing.T) {
	var _ Estimator = (*MockEstimator)(nil)
	var _ Estimator = (*DNNEstimator)(nil)
	var _ Estimator = (*ServiceEstimator)(nil)
}
