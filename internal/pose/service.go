package pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gocv.io/x/gocv"
)

// DefaultIdleTimeout is how long the service process may sit unused before
// it is shut down. The next Estimate restarts it.
const DefaultIdleTimeout = 30 * time.Second

// ServiceConfig configures a ServiceEstimator.
type ServiceConfig struct {
	// Command is the program and arguments to run. Empty means python3 (or a
	// venv interpreter) running scripts/pose_service.py.
	Command []string
	// Env is appended to the inherited environment.
	Env []string
	// IdleTimeout overrides DefaultIdleTimeout.
	IdleTimeout time.Duration
	// Stderr receives the process stderr. Defaults to os.Stderr.
	Stderr io.Writer
}

// ServiceEstimator implements Estimator using a long-lived subprocess. Each
// request is a 4-byte big-endian length followed by a JPEG of the crop on
// stdin; each reply is one JSON line on stdout.
type ServiceEstimator struct {
	config    ServiceConfig
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	loaded    bool
	started   bool
	starts    int
	idleTimer *time.Timer
}

type serviceResponse struct {
	Keypoints [][]float64 `json:"keypoints"`
	Error     string      `json:"error,omitempty"`
}

// NewServiceEstimator creates a new service-backed estimator. The process is
// started lazily on first estimate.
func NewServiceEstimator(config ServiceConfig) (*ServiceEstimator, error) {
	if len(config.Command) == 0 {
		scriptPath := findPoseScript()
		if scriptPath == "" {
			return nil, fmt.Errorf("pose_service.py not found")
		}
		pythonPath := findVenvPython()
		if pythonPath == "" {
			pythonPath = "python3"
		}
		config.Command = []string{pythonPath, scriptPath}
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}

	return &ServiceEstimator{config: config}, nil
}

// Load checks that the service command resolves. The process itself starts
// on first use.
func (e *ServiceEstimator) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := exec.LookPath(e.config.Command[0]); err != nil {
		return fmt.Errorf("pose service: %w", err)
	}
	e.loaded = true
	return nil
}

// Estimate sends a crop to the service and parses its keypoints.
func (e *ServiceEstimator) Estimate(crop *gocv.Mat) ([]Keypoint, error) {
	if crop == nil || crop.Empty() {
		return nil, fmt.Errorf("estimate: empty crop")
	}

	// Encode outside the lock
	buf, err := gocv.IMEncode(".jpg", *crop)
	if err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	defer buf.Close()

	return e.roundTrip(buf.GetBytes())
}

func (e *ServiceEstimator) roundTrip(data []byte) ([]Keypoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return nil, ErrNotLoaded
	}

	if err := e.ensureStarted(); err != nil {
		return nil, err
	}

	// Write length (4 bytes big-endian) + data
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := e.stdin.Write(length); err != nil {
		e.shutdown()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := e.stdin.Write(data); err != nil {
		e.shutdown()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := e.stdout.ReadBytes('\n')
	if err != nil {
		e.shutdown()
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response serviceResponse
	if err := jsoniter.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("pose service: %s", response.Error)
	}

	e.resetIdleTimer()

	return FromTriples(response.Keypoints)
}

// Starts reports how many times the process has been launched.
func (e *ServiceEstimator) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// Running reports whether the process is currently up.
func (e *ServiceEstimator) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Close shuts down the service process.
func (e *ServiceEstimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = false
	return e.shutdown()
}

func (e *ServiceEstimator) ensureStarted() error {
	if e.started {
		return nil
	}

	e.cmd = exec.Command(e.config.Command[0], e.config.Command[1:]...)
	e.cmd.Env = append(os.Environ(), e.config.Env...)
	e.cmd.Stderr = e.config.Stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := e.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	if err := e.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	e.stdin = stdin
	e.stdout = bufio.NewReader(stdout)
	e.started = true
	e.starts++

	return nil
}

func (e *ServiceEstimator) shutdown() error {
	if !e.started {
		return nil
	}

	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}

	if e.stdin != nil {
		e.stdin.Close()
	}

	err := e.cmd.Wait()
	e.started = false
	e.cmd = nil
	e.stdin = nil
	e.stdout = nil

	return err
}

func (e *ServiceEstimator) resetIdleTimer() {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.idleTimer = time.AfterFunc(e.config.IdleTimeout, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.shutdown()
	})
}

func findPoseScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/pose_service.py",
		"../scripts/pose_service.py",
		filepath.Join(execDir, "scripts/pose_service.py"),
		filepath.Join(os.Getenv("HOME"), ".posewatch/scripts/pose_service.py"),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".posewatch/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
