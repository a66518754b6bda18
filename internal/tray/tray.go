// Package tray provides the menu-bar interface for blinkwatch.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/blinkwatch/internal/eye"
)

const (
	titleIdle   = "◌"
	titleOpen   = "◉"
	titleClosed = "◎"
	titleFaded  = "◉ blink"
)

// Tray represents the menu-bar application.
type Tray struct {
	onToggle      func(enabled bool)
	onSensitivity func(s eye.Sensitivity)
	onSettings    func()
	onQuit        func()
	enabled       bool
	eyeOpen       bool
	faded         bool
	sensitivity   eye.Sensitivity
	mu            sync.RWMutex
	quitOnce      sync.Once

	// Menu items stored for later updates
	menuToggle      *systray.MenuItem
	menuStatus      *systray.MenuItem
	menuSensitivity map[eye.Sensitivity]*systray.MenuItem
}

// New creates a new Tray instance. Tracking starts disabled until the
// engine confirms it is running.
func New(sensitivity eye.Sensitivity) *Tray {
	return &Tray{sensitivity: sensitivity}
}

// OnToggle sets the callback function to be called when tracking is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnSensitivity sets the callback for the sensitivity submenu.
func (t *Tray) OnSensitivity(fn func(s eye.Sensitivity)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSensitivity = fn
}

// OnSettings sets the callback function to be called when the settings menu item is clicked.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
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

// Quit stops the tray loop. It is safe to call more than once.
func (t *Tray) Quit() {
	t.quitOnce.Do(systray.Quit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle(titleIdle)
	systray.SetTooltip("Blinkwatch")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Toggle blink tracking")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem("Status: inactive", "Tracking status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	menuSens := systray.AddMenuItem("Sensitivity", "Eye openness threshold")
	t.menuSensitivity = make(map[eye.Sensitivity]*systray.MenuItem)
	for _, s := range []eye.Sensitivity{eye.SensitivityLow, eye.SensitivityMedium, eye.SensitivityHigh} {
		item := menuSens.AddSubMenuItemCheckbox(s.String(), "", s == t.sensitivity)
		t.menuSensitivity[s] = item
		go t.watchSensitivity(s, item)
	}

	menuSettings := systray.AddMenuItem("Open Diagnostics...", "Open diagnostics in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Blinkwatch")
	t.mu.Unlock()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) watchSensitivity(s eye.Sensitivity, item *systray.MenuItem) {
	for range item.ClickedCh {
		t.handleSensitivity(s)
	}
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Tracking"
	}
	return "○ Paused"
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.RLock()
	enabled := !t.enabled
	callback := t.onToggle
	t.mu.RUnlock()

	// The engine reports the outcome through SetActive.
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleSensitivity(s eye.Sensitivity) {
	t.mu.RLock()
	callback := t.onSensitivity
	t.mu.RUnlock()

	if callback != nil {
		callback(s)
	}
}

// handleSettings handles the settings menu item click.
func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
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

	t.Quit()
}

// SetActive updates the toggle to the engine's tracking state.
func (t *Tray) SetActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = active
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(active))
	}
	t.updateTitleLocked()
}

// SetEyeOpen updates the icon title.
func (t *Tray) SetEyeOpen(open bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eyeOpen = open
	t.updateTitleLocked()
}

// SetStatus updates the status line in the menu.
func (t *Tray) SetStatus(status string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuStatus != nil {
		t.menuStatus.SetTitle("Status: " + status)
	}
}

// SetSensitivity checks the current sensitivity in the submenu.
func (t *Tray) SetSensitivity(s eye.Sensitivity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sensitivity = s
	for level, item := range t.menuSensitivity {
		if level == s {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

// FadeIn marks the fade in the title.
func (t *Tray) FadeIn() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faded = true
	t.updateTitleLocked()
}

// FadeOut clears the fade mark.
func (t *Tray) FadeOut() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faded = false
	t.updateTitleLocked()
}

func (t *Tray) updateTitleLocked() {
	if t.menuToggle == nil {
		return
	}
	systray.SetTitle(t.title())
}

func (t *Tray) title() string {
	switch {
	case !t.enabled:
		return titleIdle
	case t.faded:
		return titleFaded
	case t.eyeOpen:
		return titleOpen
	default:
		return titleClosed
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
