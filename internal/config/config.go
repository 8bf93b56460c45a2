// Package config loads posewatch settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every setting's environment variable name.
const EnvPrefix = "POSEWATCH_"

// Config holds the application configuration.
type Config struct {
	Addr     string `validate:"required"`
	CameraID int    `validate:"gte=0"`

	FrameWidth  int `validate:"gt=0"`
	FrameHeight int `validate:"gt=0"`

	// DetectorModel and DetectorConfig locate the SSD person detector
	// weights. Empty selects the mock detector.
	DetectorModel  string
	DetectorConfig string

	// PoseModel is a network file for the in-process estimator. PoseService is
	// a script speaking the pose service protocol. PoseModel wins when both
	// are set; with neither, the mock estimator is used.
	PoseModel     string
	PoseService   string
	PoseInputSize int `validate:"gt=0,lte=1024"`

	MinScore        float64 `validate:"gte=0,lte=1"`
	KeypointScore   float64 `validate:"gte=0,lte=1"`
	MotionThreshold float64 `validate:"gte=0,lte=100"`

	DataDir string `validate:"required"`
	WebDir  string

	Record bool
	Tray   bool

	LogLevel string `validate:"oneof=trace debug info warn warning error fatal panic"`

	// RateLimit is the sustained requests per second allowed per client on
	// the crop API, RateBurst its bucket size.
	RateLimit float64 `validate:"gt=0"`
	RateBurst int     `validate:"gt=0"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		CameraID:        0,
		FrameWidth:      640,
		FrameHeight:     480,
		PoseInputSize:   192,
		MinScore:        0.66,
		KeypointScore:   0.66,
		MotionThreshold: 1.0,
		DataDir:         defaultDataDir(),
		LogLevel:        "info",
		RateLimit:       20,
		RateBurst:       40,
	}
}

// Load reads an optional .env file, applies POSEWATCH_* environment
// variables on top of the defaults and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LogDir is where rotated log files are written.
func (c *Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// DBPath is the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "posewatch.db")
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"ADDR":            &c.Addr,
		"DETECTOR_MODEL":  &c.DetectorModel,
		"DETECTOR_CONFIG": &c.DetectorConfig,
		"POSE_MODEL":      &c.PoseModel,
		"POSE_SERVICE":    &c.PoseService,
		"DATA_DIR":        &c.DataDir,
		"WEB_DIR":         &c.WebDir,
		"LOG_LEVEL":       &c.LogLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	ints := map[string]*int{
		"CAMERA_ID":       &c.CameraID,
		"FRAME_WIDTH":     &c.FrameWidth,
		"FRAME_HEIGHT":    &c.FrameHeight,
		"POSE_INPUT_SIZE": &c.PoseInputSize,
		"RATE_BURST":      &c.RateBurst,
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"MIN_SCORE":        &c.MinScore,
		"KEYPOINT_SCORE":   &c.KeypointScore,
		"MOTION_THRESHOLD": &c.MotionThreshold,
		"RATE_LIMIT":       &c.RateLimit,
	}
	for key, dst := range floats {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
		}
		*dst = f
	}

	bools := map[string]*bool{
		"RECORD": &c.Record,
		"TRAY":   &c.Tray,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".posewatch"
	}
	return filepath.Join(home, ".posewatch")
}
