package api

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ayusman/posewatch/internal/app"
	"github.com/ayusman/posewatch/internal/geometry"
	"github.com/ayusman/posewatch/internal/store"
)

// fakeController records camera switches and reports a fixed status.
type fakeController struct {
	mu      sync.Mutex
	status  app.Status
	bounds  geometry.Bounds
	err     error
	history []bool
}

func newFakeController() *fakeController {
	return &fakeController{
		status: app.Status{Readiness: app.Ready.String()},
		bounds: geometry.Bounds{Width: 640, Height: 480},
	}
}

func (c *fakeController) Status() app.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeController) SetCamera(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.history = append(c.history, enabled)
	c.status.CameraEnabled = enabled
	return nil
}

func (c *fakeController) Bounds() geometry.Bounds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bounds
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}
