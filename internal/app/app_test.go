package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gocv.io/x/gocv"

	"github.com/ayusman/posewatch/internal/capture"
	"github.com/ayusman/posewatch/internal/detector"
	"github.com/ayusman/posewatch/internal/geometry"
	"github.com/ayusman/posewatch/internal/overlay"
	"github.com/ayusman/posewatch/internal/pose"
	"github.com/ayusman/posewatch/internal/store"
)

type fixture struct {
	app       *App
	camera    *capture.MockCamera
	detector  *detector.MockDetector
	estimator *pose.MockEstimator
	hook      *test.Hook
}

func newFixture(t *testing.T, frames []*gocv.Mat, st *store.Store) *fixture {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	f := &fixture{
		camera:    capture.NewMockCamera(frames, true),
		detector:  detector.NewMockDetector(),
		estimator: pose.NewMockEstimator(),
		hook:      hook,
	}
	f.app = New(Config{
		Camera:        f.camera,
		Detector:      f.detector,
		Estimator:     f.estimator,
		Store:         st,
		Record:        st != nil,
		Logger:        logger,
		MinScore:      0.66,
		KeypointScore: 0.66,
		PoseInputSize: 192,
		// Zero disables motion gating so every tick runs inference.
		MotionThreshold: 0,
	})
	t.Cleanup(func() { f.app.Close() })
	return f
}

func blankFrame(t *testing.T) *gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return &m
}

func TestApp_LoadModels(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	f.detector.SetLoadError(errors.New("no weights"))
	if err := f.app.LoadModels(ctx); err == nil {
		t.Fatal("expected LoadModels error")
	}
	if f.app.Readiness().State() != NotReady {
		t.Error("failed load should stay NotReady")
	}
	if st := f.app.Status(); st.Error == "" || st.Readiness != "not_ready" {
		t.Errorf("Status() = %+v, want not_ready with error", st)
	}

	// Retry after the problem is fixed
	f.detector.SetLoadError(nil)
	if err := f.app.LoadModels(ctx); err != nil {
		t.Fatalf("LoadModels() retry error = %v", err)
	}
	if f.app.Readiness().State() != Ready {
		t.Error("successful load should be Ready")
	}
	if !f.detector.Loaded() || !f.estimator.Loaded() {
		t.Error("both models should be loaded")
	}
}

func TestApp_LoadModels_EstimatorFailure(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.estimator.SetLoadError(errors.New("service missing"))

	err := f.app.LoadModels(context.Background())
	if err == nil {
		t.Fatal("expected LoadModels error")
	}
	if !errors.Is(f.app.Readiness().Err(), err) {
		t.Errorf("readiness error = %v, want %v", f.app.Readiness().Err(), err)
	}
}

func TestApp_SetCamera_NotReady(t *testing.T) {
	f := newFixture(t, nil, nil)

	err := f.app.SetCamera(context.Background(), true)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("SetCamera(true) error = %v, want ErrNotReady", err)
	}
	if f.camera.Opens() != 0 {
		t.Error("camera should not be opened before Ready")
	}
	if f.app.CameraEnabled() {
		t.Error("camera should stay disabled")
	}

	// Disabling is always allowed
	if err := f.app.SetCamera(context.Background(), false); err != nil {
		t.Errorf("SetCamera(false) error = %v", err)
	}
}

func TestApp_ProcessFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	f := newFixture(t, nil, nil)
	lowScore := detector.StandingPerson()
	lowScore.Score = 0.5
	f.detector.SetDetections([]detector.Detection{detector.StandingPerson(), detector.WideObject(), lowScore})

	out, err := f.app.ProcessFrame(blankFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}

	if len(out.Boxes) != 2 {
		t.Errorf("Boxes = %d, want 2 (low score filtered)", len(out.Boxes))
	}
	if len(out.People) != 1 {
		t.Fatalf("People = %d, want 1", len(out.People))
	}

	person := out.People[0]
	want := geometry.Region{X: 110, Y: 40, Side: 420}
	if person.Region != want {
		t.Errorf("Region = %+v, want %+v", person.Region, want)
	}
	// Ears and ankles fall below the keypoint threshold
	if len(person.Keypoints) != pose.NumKeypoints-4 {
		t.Errorf("Keypoints = %d, want %d", len(person.Keypoints), pose.NumKeypoints-4)
	}
	nose := person.Keypoints[0]
	if nose.X != 320 || nose.Y != 82 {
		t.Errorf("nose at (%f, %f), want (320, 82)", nose.X, nose.Y)
	}

	if sizes := f.estimator.Sizes(); len(sizes) != 1 || sizes[0] != [2]int{192, 192} {
		t.Errorf("estimator crop sizes = %v, want one 192x192", sizes)
	}
	if len(out.JPEG) == 0 {
		t.Error("frame should carry an encoded JPEG")
	}
	if out.Width != 640 || out.Height != 480 {
		t.Errorf("frame size = %dx%d", out.Width, out.Height)
	}
	if st := f.app.Status(); st.Persons != 1 || st.Frames != 1 {
		t.Errorf("Status() persons=%d frames=%d", st.Persons, st.Frames)
	}
}

func TestApp_ProcessFrame_EachPersonOwnCrop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	f := newFixture(t, nil, nil)
	left := detector.Detection{Class: "person", Score: 0.9, Box: geometry.Box{X: 10, Y: 100, Width: 100, Height: 200}}
	right := detector.Detection{Class: "person", Score: 0.8, Box: geometry.Box{X: 500, Y: 50, Width: 120, Height: 300}}
	f.detector.SetDetections([]detector.Detection{left, right})

	out, err := f.app.ProcessFrame(blankFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if len(out.People) != 2 {
		t.Fatalf("People = %d, want 2", len(out.People))
	}

	bounds := geometry.Bounds{Width: 640, Height: 480}
	for i, d := range []detector.Detection{left, right} {
		want := geometry.SquareCrop(d.Box, bounds)
		if out.People[i].Region != want {
			t.Errorf("person %d region = %+v, want %+v", i, out.People[i].Region, want)
		}
	}
	if f.estimator.Calls() != 2 {
		t.Errorf("estimator calls = %d, want 2", f.estimator.Calls())
	}
}

func TestApp_ProcessFrame_EmptyCropSkipsPose(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	f := newFixture(t, nil, nil)
	outside := detector.Detection{Class: "person", Score: 0.9, Box: geometry.Box{X: 700, Y: 100, Width: 50, Height: 80}}
	f.detector.SetDetections([]detector.Detection{outside})

	out, err := f.app.ProcessFrame(blankFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if len(out.Boxes) != 1 || len(out.People) != 0 {
		t.Errorf("boxes=%d people=%d, want 1 and 0", len(out.Boxes), len(out.People))
	}
	if f.estimator.Calls() != 0 {
		t.Error("pose estimation should be skipped for an empty crop")
	}
}

func TestApp_ProcessFrame_PoseErrorLogged(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	f := newFixture(t, nil, nil)
	f.detector.SetDetections([]detector.Detection{detector.StandingPerson()})
	f.estimator.SetError(errors.New("service crashed"))

	out, err := f.app.ProcessFrame(blankFrame(t))
	if err != nil {
		t.Fatalf("ProcessFrame() error = %v", err)
	}
	if len(out.Boxes) != 1 || len(out.People) != 0 {
		t.Errorf("boxes=%d people=%d", len(out.Boxes), len(out.People))
	}

	entry := f.hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel || entry.Message != "Pose estimation failed" {
		t.Errorf("last log entry = %+v", entry)
	}
}

func TestApp_ProcessFrame_DetectorError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	f := newFixture(t, nil, nil)
	f.detector.SetError(errors.New("inference failed"))

	if _, err := f.app.ProcessFrame(blankFrame(t)); err == nil {
		t.Error("expected detector error")
	}
}

func TestApp_ProcessFrame_EmptyFrame(t *testing.T) {
	f := newFixture(t, nil, nil)

	if _, err := f.app.ProcessFrame(nil); err == nil {
		t.Error("expected error for nil frame")
	}
}

func waitFrame(t *testing.T, read func() *overlay.Frame) *overlay.Frame {
	t.Helper()
	got := make(chan *overlay.Frame, 1)
	go func() { got <- read() }()
	select {
	case fr := <-got:
		return fr
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a published frame")
		return nil
	}
}

func TestApp_Pipeline_PublishesAndRecords(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer st.Close()

	f := newFixture(t, []*gocv.Mat{blankFrame(t)}, st)
	f.detector.SetDetections([]detector.Detection{detector.StandingPerson()})

	ctx := context.Background()
	if err := f.app.LoadModels(ctx); err != nil {
		t.Fatalf("LoadModels() error = %v", err)
	}

	read := f.app.Hub().Subscribe("test")
	if err := f.app.SetCamera(ctx, true); err != nil {
		t.Fatalf("SetCamera(true) error = %v", err)
	}
	if !f.app.CameraEnabled() {
		t.Error("camera should be enabled")
	}

	fr := waitFrame(t, read)
	if fr == nil || len(fr.People) != 1 {
		t.Fatalf("published frame = %+v, want one person", fr)
	}

	sessionID := f.app.Status().SessionID
	if sessionID == "" {
		t.Fatal("recording session should be open")
	}

	if err := f.app.SetCamera(ctx, false); err != nil {
		t.Fatalf("SetCamera(false) error = %v", err)
	}
	if f.camera.IsOpen() {
		t.Error("camera should be closed after disabling")
	}

	sess, err := st.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sess.EndedAt == nil || sess.Frames == 0 {
		t.Errorf("session = %+v, want ended with frames", sess)
	}

	dets, err := st.Detections().ListBySession(ctx, sessionID, 0)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(dets) == 0 || dets[0].Crop().Empty() || len(dets[0].Keypoints) == 0 {
		t.Errorf("recorded detections = %+v", dets)
	}

	enabled, err := st.Settings().Get(ctx, store.SettingCameraEnabled)
	if err != nil || enabled != "false" {
		t.Errorf("camera setting = %q (%v), want false", enabled, err)
	}
}

func TestApp_StartStopIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	f := newFixture(t, []*gocv.Mat{blankFrame(t)}, nil)
	ctx := context.Background()
	if err := f.app.LoadModels(ctx); err != nil {
		t.Fatal(err)
	}

	f.app.Start(ctx)
	f.app.Start(ctx)
	if f.camera.Opens() != 1 {
		t.Errorf("Opens() = %d, want 1", f.camera.Opens())
	}

	f.app.Stop(ctx)
	f.app.Stop(ctx)
	if f.app.CameraEnabled() {
		t.Error("camera should be disabled after Stop")
	}
}
