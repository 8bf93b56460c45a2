package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	t.Run("writes to console at configured level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Level: "warn", Stderr: &buf})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		logger.Info("hidden")
		logger.WithFields(Fields{"persons": 2}).Warn("visible")

		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Error("info message should be filtered at warn level")
		}
		if !strings.Contains(out, "visible") {
			t.Errorf("warn message missing from output: %q", out)
		}
		if !strings.Contains(out, "persons") {
			t.Errorf("fields missing from output: %q", out)
		}
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		if _, err := New(Options{Level: "chatty"}); err == nil {
			t.Error("expected error for unknown level")
		}
	})

	t.Run("creates log directory", func(t *testing.T) {
		t.Setenv("APP_ENV", "")
		dir := t.TempDir() + "/logs"

		logger, err := New(Options{Level: "info", Dir: dir, Stderr: &bytes.Buffer{}})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		logger.Info("hello")

		if _, err := os.Stat(dir); err != nil {
			t.Errorf("log dir not created: %v", err)
		}
	})

	t.Run("skips file output in test env", func(t *testing.T) {
		t.Setenv("APP_ENV", "test")
		dir := t.TempDir() + "/logs"

		if _, err := New(Options{Level: "info", Dir: dir, Stderr: &bytes.Buffer{}}); err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Error("log dir should not be created when APP_ENV=test")
		}
	})
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped")

	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", logger.GetLevel())
	}
}
