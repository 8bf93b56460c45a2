// Package tray provides a system tray interface for posewatch.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/posewatch/internal/hub"
)

// subscriberID is the hub subscription used for the status item.
const subscriberID = "tray"

// Tray represents the system tray application.
type Tray struct {
	onToggle func(enabled bool) error
	onOpen   func()
	onQuit   func()
	enabled  bool
	ready    bool
	persons  int
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLast   *systray.MenuItem
}

// New creates a new Tray with capture off and the toggle disabled until
// SetReady is called.
func New() *Tray {
	return &Tray{persons: -1}
}

// OnToggle sets the callback run when the camera item is clicked. The
// displayed state only changes when it returns nil.
func (t *Tray) OnToggle(fn func(enabled bool) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpenViewer sets the callback for the "Open Viewer" item.
func (t *Tray) OnOpenViewer(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu loop.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("posewatch")
	systray.SetTooltip("posewatch person and pose detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled, t.ready), "Turn the camera on or off")
	if !t.ready {
		t.menuToggle.Disable()
	}
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(statusTitle(t.persons), "People in the latest frame")
	t.menuLast.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Viewer", "Open the live viewer in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit posewatch")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// SetReady enables the camera item. It is called once models are loaded.
func (t *Tray) SetReady() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ready = true
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(t.enabled, t.ready))
		t.menuToggle.Enable()
	}
}

// WatchReadiness calls SetReady when done is closed, or returns when stop is.
func (t *Tray) WatchReadiness(done, stop <-chan struct{}) {
	go func() {
		select {
		case <-done:
			t.SetReady()
		case <-stop:
		}
	}()
}

// WatchHub keeps the status item in step with published frames until the
// hub closes or Unwatch is called.
func (t *Tray) WatchHub(h *hub.Hub) {
	next := h.Subscribe(subscriberID)
	go func() {
		for f := next(); f != nil; f = next() {
			t.SetPersons(len(f.People))
		}
	}()
}

// Unwatch stops a WatchHub loop.
func (t *Tray) Unwatch(h *hub.Hub) {
	h.Unsubscribe(subscriberID)
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	if !t.ready {
		t.mu.RUnlock()
		return
	}
	want := !t.enabled
	callback := t.onToggle
	t.mu.RUnlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		if err := callback(want); err != nil {
			return
		}
	}

	t.SetEnabled(want)
}

// SetEnabled updates the camera item without running the callback, for
// changes made through the HTTP API.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(t.enabled, t.ready))
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetPersons updates the status item. Unchanged counts skip the menu update.
func (t *Tray) SetPersons(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n == t.persons {
		return
	}
	t.persons = n
	if t.menuLast != nil {
		t.menuLast.SetTitle(statusTitle(n))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// IsReady reports whether the camera item is enabled.
func (t *Tray) IsReady() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Persons returns the last count shown, or -1 before any frame.
func (t *Tray) Persons() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.persons
}

func toggleTitle(enabled, ready bool) string {
	switch {
	case !ready:
		return "Loading models..."
	case enabled:
		return "● Camera On"
	default:
		return "○ Enable Camera"
	}
}

func statusTitle(persons int) string {
	switch {
	case persons < 0:
		return "Last: none"
	case persons == 1:
		return "Last: 1 person"
	default:
		return fmt.Sprintf("Last: %d people", persons)
	}
}
