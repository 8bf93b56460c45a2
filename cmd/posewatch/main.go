package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/posewatch/internal/app"
	"github.com/ayusman/posewatch/internal/capture"
	"github.com/ayusman/posewatch/internal/config"
	"github.com/ayusman/posewatch/internal/detector"
	"github.com/ayusman/posewatch/internal/logging"
	"github.com/ayusman/posewatch/internal/pose"
	"github.com/ayusman/posewatch/internal/server"
	"github.com/ayusman/posewatch/internal/store"
	"github.com/ayusman/posewatch/internal/tray"
)

const shutdownTimeout = 5 * time.Second

// The tray needs the main OS thread on macOS.
func init() {
	runtime.LockOSThread()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "posewatch: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Options{Level: cfg.LogLevel, Dir: cfg.LogDir()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "posewatch: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("posewatch exited")
	}
}

func run(cfg *config.Config, log *logrus.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer st.Close()

	a := app.New(app.Config{
		Camera:          capture.NewCamera(cfg.CameraID, cfg.FrameWidth, cfg.FrameHeight),
		Detector:        newDetector(cfg, log),
		Estimator:       newEstimator(cfg, log),
		Store:           st,
		Record:          cfg.Record,
		Logger:          log,
		CameraID:        cfg.CameraID,
		MinScore:        cfg.MinScore,
		KeypointScore:   cfg.KeypointScore,
		PoseInputSize:   cfg.PoseInputSize,
		MotionThreshold: cfg.MotionThreshold,
	})
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go loadModels(ctx, a, st, log)

	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir(cfg.DataDir)
	}
	if webDir != "" {
		log.WithField("dir", webDir).Info("Serving static files")
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: server.New(server.Config{
			StaticDir:     webDir,
			Logger:        log,
			Hub:           a.Hub(),
			Store:         st,
			Controller:    a,
			RateLimit:     cfg.RateLimit,
			RateBurst:     cfg.RateBurst,
			PoseInputSize: cfg.PoseInputSize,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Server failed")
			serveErr <- err
		}
		close(serveErr)
	}()

	if cfg.Tray {
		runTray(ctx, cfg, a, log)
	} else {
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
		}
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server shutdown incomplete")
	}
	return nil
}

// loadModels loads both models, then restores the persisted camera state.
func loadModels(ctx context.Context, a *app.App, st *store.Store, log logrus.FieldLogger) {
	start := time.Now()
	if err := a.LoadModels(ctx); err != nil {
		log.WithError(err).Error("Failed to load models")
		return
	}
	log.WithField("took", time.Since(start).Round(time.Millisecond).String()).Info("Models loaded")

	enabled, err := st.Settings().Get(ctx, store.SettingCameraEnabled)
	if err != nil || enabled != "true" {
		return
	}
	if err := a.SetCamera(ctx, true); err != nil {
		log.WithError(err).Warn("Failed to restore camera")
	}
}

// runTray blocks on the system tray until Quit or ctx is done.
func runTray(ctx context.Context, cfg *config.Config, a *app.App, log logrus.FieldLogger) {
	t := tray.New()
	t.SetEnabled(a.CameraEnabled())
	t.OnToggle(func(enabled bool) error {
		if err := a.SetCamera(ctx, enabled); err != nil {
			log.WithError(err).Warn("Camera toggle failed")
			return err
		}
		return nil
	})
	t.OnOpenViewer(func() {
		if err := openBrowser(viewerURL(cfg.Addr)); err != nil {
			log.WithError(err).Warn("Failed to open viewer")
		}
	})

	t.WatchReadiness(a.Readiness().Done(), ctx.Done())
	t.WatchHub(a.Hub())
	defer t.Unwatch(a.Hub())

	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	t.Run()
}

func newDetector(cfg *config.Config, log logrus.FieldLogger) detector.Detector {
	if cfg.DetectorModel == "" {
		log.Warn("No detector model configured, using mock detector")
		return detector.NewMockDetector()
	}

	dc := detector.DefaultConfig()
	dc.Model = cfg.DetectorModel
	dc.ModelConfig = cfg.DetectorConfig

	d, err := detector.NewSSDDetector(dc)
	if err != nil {
		log.WithError(err).Warn("SSD detector unavailable, using mock detector")
		return detector.NewMockDetector()
	}
	return d
}

func newEstimator(cfg *config.Config, log logrus.FieldLogger) pose.Estimator {
	if cfg.PoseModel != "" {
		e, err := pose.NewDNNEstimator(cfg.PoseModel, cfg.PoseInputSize)
		if err == nil {
			return e
		}
		log.WithError(err).Warn("Pose model unavailable")
	}

	sc := pose.ServiceConfig{Stderr: log.WithField("component", "pose_service").WriterLevel(logrus.WarnLevel)}
	if cfg.PoseService != "" {
		sc.Command = strings.Fields(cfg.PoseService)
	}
	e, err := pose.NewServiceEstimator(sc)
	if err != nil {
		log.WithError(err).Warn("Pose service unavailable, using mock estimator")
		return pose.NewMockEstimator()
	}
	return e
}

func viewerURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <dataDir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := filepath.Join(dataDir, "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
