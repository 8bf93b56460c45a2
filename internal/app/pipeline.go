package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/posewatch/internal/detector"
	"github.com/ayusman/posewatch/internal/geometry"
	"github.com/ayusman/posewatch/internal/overlay"
	"github.com/ayusman/posewatch/internal/pose"
	"github.com/ayusman/posewatch/internal/store"
)

// runPipeline is the capture loop. It owns the camera until stop is closed
// and closes done on exit.
//
// Pipeline logic:
// 1. Start in idle mode (IdleFPS)
// 2. On motion detected, switch to active mode (ActiveFPS)
// 3. In active mode run detection and pose estimation on every frame
// 4. In idle mode redraw the last overlays on the fresh frame
// 5. After IdleTimeout without motion, switch back to idle mode
//
// A failed read or inference is logged and the next tick retries.
func (a *App) runPipeline(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	activeMode := false
	lastMotionTime := time.Now()

	ticker := time.NewTicker(time.Second / time.Duration(IdleFPS))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			frame, err := a.camera.ReadFrame()
			if err != nil {
				a.log.WithError(err).Debug("Error reading frame")
				continue
			}

			motionDetected, changed := a.motion.Detect(frame)
			if motionDetected {
				lastMotionTime = time.Now()

				if !activeMode {
					activeMode = true
					a.camera.SetFPS(ActiveFPS)
					ticker.Reset(time.Second / time.Duration(ActiveFPS))
					a.log.WithField("changed", changed).Debug("Switched to active mode")
				}
			} else if activeMode && time.Since(lastMotionTime) > IdleTimeout {
				activeMode = false
				a.camera.SetFPS(IdleFPS)
				ticker.Reset(time.Second / time.Duration(IdleFPS))
				a.log.Debug("Switched to idle mode")
			}

			var out *overlay.Frame
			if activeMode {
				out, err = a.ProcessFrame(frame)
			} else {
				out, err = a.redraw(frame)
			}
			frame.Close()

			if err != nil {
				a.log.WithError(err).Warn("Frame processing failed")
				continue
			}

			a.hub.Publish(out)
		}
	}
}

// ProcessFrame runs one frame through the full chain: detect, filter, crop
// each person, estimate the pose, build the overlay, encode and record. The
// frame is drawn on and must not be reused for inference afterwards.
func (a *App) ProcessFrame(frame *gocv.Mat) (*overlay.Frame, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("process: empty frame")
	}

	a.procMu.Lock()
	defer a.procMu.Unlock()

	bounds := geometry.Bounds{Width: frame.Cols(), Height: frame.Rows()}

	dets, err := a.detector.Detect(frame)
	if err != nil {
		return nil, err
	}
	dets = detector.Filter(dets, a.config.MinScore)

	out := overlay.New(a.seq.Add(1), time.Now(), bounds)
	persons := 0

	for _, d := range dets {
		out.Boxes = append(out.Boxes, overlay.NewBox(d))
		if d.Class != detector.PersonClass {
			continue
		}
		persons++

		// Each person gets its own crop, so poses never share a box.
		region := geometry.SquareCrop(d.Box, bounds)
		if region.Empty() {
			continue
		}

		kps, err := a.estimate(frame, region)
		if err != nil {
			a.log.WithFields(logrus.Fields{
				"region": region,
				"error":  err,
			}).Warn("Pose estimation failed")
			continue
		}
		out.People = append(out.People, overlay.NewPerson(d, region, kps, a.config.KeypointScore))
	}

	// Idle ticks redraw these annotations on fresh frames.
	a.last = out

	if err := overlay.Encode(frame, out); err != nil {
		return nil, err
	}

	a.frames.Add(1)
	a.persons.Store(int64(persons))
	a.record(out)

	return out, nil
}

func (a *App) estimate(frame *gocv.Mat, region geometry.Region) ([]pose.Keypoint, error) {
	crop, err := pose.Prepare(frame, region, a.config.PoseInputSize)
	if err != nil {
		return nil, err
	}
	defer crop.Close()

	return a.estimator.Estimate(&crop)
}

// redraw publishes a fresh frame carrying the last computed overlays, or
// none if nothing has been computed yet this session.
func (a *App) redraw(frame *gocv.Mat) (*overlay.Frame, error) {
	a.procMu.Lock()
	defer a.procMu.Unlock()

	bounds := geometry.Bounds{Width: frame.Cols(), Height: frame.Rows()}
	out := overlay.New(a.seq.Add(1), time.Now(), bounds)
	if a.last != nil {
		out.Boxes = a.last.Boxes
		out.People = a.last.People
	}

	if err := overlay.Encode(frame, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *App) record(f *overlay.Frame) {
	sessionID := a.currentSession()
	if sessionID == "" || len(f.Boxes) == 0 {
		return
	}

	// People are appended in the same order as their person boxes.
	people := f.People
	dets := make([]*store.Detection, 0, len(f.Boxes))
	for _, b := range f.Boxes {
		d := &store.Detection{Class: b.Class, Score: b.Score}
		d.SetBox(b.Box)
		if len(people) > 0 && people[0].Box == b.Box {
			p := people[0]
			people = people[1:]
			d.SetCrop(p.Region)
			for _, k := range p.Keypoints {
				d.Keypoints = append(d.Keypoints, store.Keypoint{Name: k.Name, X: k.X, Y: k.Y, Score: k.Score})
			}
		}
		dets = append(dets, d)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := a.config.Store.Detections().Record(ctx, sessionID, f.Seq, dets); err != nil {
		a.log.WithError(err).Warn("Failed to record detections")
	}
}
