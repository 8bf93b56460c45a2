// Package app ties camera capture, person detection, pose estimation and
// overlay publishing together.
package app

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/posewatch/internal/capture"
	"github.com/ayusman/posewatch/internal/detector"
	"github.com/ayusman/posewatch/internal/geometry"
	"github.com/ayusman/posewatch/internal/hub"
	"github.com/ayusman/posewatch/internal/logging"
	"github.com/ayusman/posewatch/internal/overlay"
	"github.com/ayusman/posewatch/internal/pose"
	"github.com/ayusman/posewatch/internal/store"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate when no motion is detected.
	IdleFPS = 5
	// ActiveFPS is the frame rate while people are moving in view.
	ActiveFPS = 15
	// IdleTimeout is how long without motion before dropping back to IdleFPS.
	IdleTimeout = 2 * time.Second
)

// Config holds configuration options for the application.
type Config struct {
	Camera    capture.Camera
	Detector  detector.Detector
	Estimator pose.Estimator
	Hub       *hub.Hub
	// Store enables recording when Record is set. It may be nil.
	Store  *store.Store
	Record bool
	Logger logrus.FieldLogger

	CameraID        int
	MinScore        float64
	KeypointScore   float64
	PoseInputSize   int
	MotionThreshold float64
}

// Status is a snapshot of the application state.
type Status struct {
	Readiness     string          `json:"readiness"`
	Error         string          `json:"error,omitempty"`
	CameraEnabled bool            `json:"camera_enabled"`
	Bounds        geometry.Bounds `json:"bounds"`
	SessionID     string          `json:"session_id,omitempty"`
	Frames        uint64          `json:"frames"`
	Persons       int             `json:"persons"`
	Hub           hub.Stats       `json:"hub"`
}

// App is the main application that orchestrates detection and publishing.
type App struct {
	config    Config
	log       logrus.FieldLogger
	camera    capture.Camera
	motion    *capture.MotionDetector
	detector  detector.Detector
	estimator pose.Estimator
	hub       *hub.Hub
	readiness *Readiness

	mu        sync.RWMutex
	enabled   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	sessionID string

	// procMu serialises frame processing and guards last.
	procMu sync.Mutex
	last   *overlay.Frame

	seq     atomic.Uint64
	frames  atomic.Uint64
	persons atomic.Int64
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	if config.Hub == nil {
		config.Hub = hub.New()
	}
	if config.PoseInputSize <= 0 {
		config.PoseInputSize = pose.DefaultInputSize
	}

	return &App{
		config:    config,
		log:       config.Logger.WithField("component", "app"),
		camera:    config.Camera,
		motion:    capture.NewMotionDetector(config.MotionThreshold),
		detector:  config.Detector,
		estimator: config.Estimator,
		hub:       config.Hub,
		readiness: NewReadiness(),
	}
}

// LoadModels loads the detector and the pose estimator and flips readiness
// to Ready once both succeed. It is safe to call again after a failure.
func (a *App) LoadModels(ctx context.Context) error {
	if a.readiness.State() == Ready {
		return nil
	}

	start := time.Now()

	if err := a.detector.Load(ctx); err != nil {
		err = fmt.Errorf("load detector: %w", err)
		a.readiness.MarkFailed(err)
		return err
	}
	if err := a.estimator.Load(ctx); err != nil {
		err = fmt.Errorf("load pose estimator: %w", err)
		a.readiness.MarkFailed(err)
		return err
	}

	a.readiness.MarkReady()
	a.log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("Models loaded")
	return nil
}

// Readiness returns the readiness machine.
func (a *App) Readiness() *Readiness {
	return a.readiness
}

// SetCamera turns capture on or off. Turning it on before the models are
// Ready fails with ErrNotReady.
func (a *App) SetCamera(ctx context.Context, enabled bool) error {
	if enabled {
		if a.readiness.State() != Ready {
			return ErrNotReady
		}
		if err := a.Start(ctx); err != nil {
			return err
		}
	} else {
		a.Stop(ctx)
	}

	if a.config.Store != nil {
		if err := a.config.Store.Settings().Set(ctx, store.SettingCameraEnabled, strconv.FormatBool(enabled)); err != nil {
			a.log.WithError(err).Warn("Failed to persist camera setting")
		}
	}
	return nil
}

// CameraEnabled reports whether capture is running.
func (a *App) CameraEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Start opens the camera and begins the capture pipeline.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	a.camera.SetFPS(IdleFPS)
	a.motion.Reset()
	a.frames.Store(0)

	if a.config.Record && a.config.Store != nil {
		sess, err := a.config.Store.Sessions().Start(ctx, a.config.CameraID, a.camera.Bounds())
		if err != nil {
			a.log.WithError(err).Warn("Failed to start recording session")
		} else {
			a.sessionID = sess.ID
		}
	}

	a.enabled = true
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	a.log.WithFields(logrus.Fields{
		"bounds":  a.camera.Bounds(),
		"session": a.sessionID,
	}).Info("Capture pipeline started")
	return nil
}

// Stop halts the capture pipeline and closes the camera. Models stay loaded.
func (a *App) Stop(ctx context.Context) {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}

	close(stopCh)
	<-doneCh

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.camera.Close(); err != nil {
		a.log.WithError(err).Warn("Error closing camera")
	}

	if a.sessionID != "" {
		if err := a.config.Store.Sessions().End(ctx, a.sessionID, int(a.frames.Load())); err != nil {
			a.log.WithError(err).Warn("Failed to end recording session")
		}
		a.sessionID = ""
	}

	a.enabled = false
	a.persons.Store(0)

	a.procMu.Lock()
	a.last = nil
	a.procMu.Unlock()

	a.log.Info("Capture pipeline stopped")
}

// Close stops capture and releases the models, the hub and the motion
// detector.
func (a *App) Close() error {
	a.Stop(context.Background())
	a.motion.Close()
	a.hub.Close()

	var firstErr error
	if err := a.detector.Close(); err != nil {
		firstErr = err
	}
	if err := a.estimator.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Hub returns the frame hub.
func (a *App) Hub() *hub.Hub {
	return a.hub
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Bounds returns the frame size of the current (or next) session.
func (a *App) Bounds() geometry.Bounds {
	return a.camera.Bounds()
}

// Status returns a snapshot of the application state.
func (a *App) Status() Status {
	a.mu.RLock()
	st := Status{
		Readiness:     a.readiness.State().String(),
		CameraEnabled: a.enabled,
		Bounds:        a.camera.Bounds(),
		SessionID:     a.sessionID,
	}
	a.mu.RUnlock()

	if err := a.readiness.Err(); err != nil {
		st.Error = err.Error()
	}
	st.Frames = a.frames.Load()
	st.Persons = int(a.persons.Load())
	st.Hub = a.hub.Stats()
	return st
}

func (a *App) currentSession() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}
