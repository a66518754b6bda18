package app

import (
	"context"
	"log"

	"github.com/ayusman/blinkwatch/internal/eye"
	"github.com/ayusman/blinkwatch/internal/prefs"
)

// startConsumers connects the engine's signals to the fade controller and
// the tray. Every consumer exits when ctx is canceled or the engine closes
// its signals, whichever comes first.
func (a *App) startConsumers(ctx context.Context) {
	eyes, _ := a.engine.SubscribeEyeOpen(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.fade.Run(ctx, eyes)
	}()

	if a.tray == nil {
		return
	}

	trayEyes, _ := a.engine.SubscribeEyeOpen(4)
	active, _ := a.engine.SubscribeActive(4)
	transitions, _ := a.engine.SubscribeTransitions(16)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for trayEyes != nil || active != nil || transitions != nil {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-trayEyes:
				if !ok {
					trayEyes = nil
					continue
				}
				a.tray.SetEyeOpen(v)
			case v, ok := <-active:
				if !ok {
					active = nil
					continue
				}
				a.tray.SetActive(v)
			case t, ok := <-transitions:
				if !ok {
					transitions = nil
					continue
				}
				a.tray.SetStatus(t.To.String())
			}
		}
	}()
}

// bindTray routes menu actions to the engine and preferences.
func (a *App) bindTray(ctx context.Context, quit func()) {
	a.tray.OnToggle(func(enabled bool) {
		go a.toggle(ctx, enabled)
	})

	a.tray.OnSensitivity(func(s eye.Sensitivity) {
		next := a.prefs.Snapshot()
		next.Sensitivity = s
		if err := a.prefs.Update(next); err != nil {
			log.Printf("Failed to save sensitivity: %v", err)
		}
	})
	a.prefs.Subscribe(func(s prefs.Snapshot) {
		a.tray.SetSensitivity(s.Sensitivity)
	})

	a.tray.OnSettings(func() {
		if a.config.Addr == "" {
			log.Println("Diagnostics server is disabled")
			return
		}
		log.Printf("Diagnostics at http://%s/api/status", a.config.Addr)
	})

	a.tray.OnQuit(quit)
}
