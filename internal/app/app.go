// Package app wires the blinkwatch engine to its camera, analyzer, store
// and consumers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/ayusman/blinkwatch/internal/capture"
	"github.com/ayusman/blinkwatch/internal/engine"
	"github.com/ayusman/blinkwatch/internal/fade"
	"github.com/ayusman/blinkwatch/internal/frame"
	"github.com/ayusman/blinkwatch/internal/governor"
	"github.com/ayusman/blinkwatch/internal/hook"
	"github.com/ayusman/blinkwatch/internal/landmark"
	"github.com/ayusman/blinkwatch/internal/landmark/facemesh"
	"github.com/ayusman/blinkwatch/internal/landmark/yunet"
	"github.com/ayusman/blinkwatch/internal/permissions"
	"github.com/ayusman/blinkwatch/internal/prefs"
	"github.com/ayusman/blinkwatch/internal/server"
	"github.com/ayusman/blinkwatch/internal/store"
	"github.com/ayusman/blinkwatch/internal/tray"
)

// ShutdownTimeout bounds PrepareForTermination on exit.
const ShutdownTimeout = 5 * time.Second

// Config holds configuration options for the application.
type Config struct {
	Store        *store.Store
	CameraID     int
	FPS          int
	MotionThresh float64

	// YuNetModel enables the YuNet face finder when the file exists.
	YuNetModel string
	// FaceMeshScript and Python locate the landmark service.
	FaceMeshScript string
	Python         string

	// Addr is the diagnostics server address; empty disables it.
	Addr string
	// Headless runs without the tray until the context is canceled.
	Headless  bool
	AutoStart bool
	// HookDir holds external fade hooks. Empty disables them.
	HookDir string

	// Camera and Analyzer replace the device camera and the detected
	// analyzer.
	Camera      capture.Camera
	Analyzer    landmark.Analyzer
	Permissions permissions.Provider
	// Engine overrides the engine tunables. Nil uses the defaults.
	Engine *engine.Config
}

// App is the running application.
type App struct {
	config Config
	source *capture.Source
	motion *capture.MotionDetector
	engine *engine.Engine
	prefs  *prefs.Persistent
	fade   *fade.Controller
	tray   *tray.Tray
	hooks  *hook.Renderer
	server *server.Server

	wg sync.WaitGroup
}

// New creates a new App instance with the given configuration.
func New(config Config) (*App, error) {
	if config.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if config.MotionThresh <= 0 {
		config.MotionThresh = capture.DefaultSceneChangePercent
	}

	a := &App{
		config: config,
		motion: capture.NewMotionDetector(config.MotionThresh),
		prefs:  prefs.Load(config.Store.Settings()),
	}

	camera := config.Camera
	if camera == nil {
		camera = capture.NewCamera(config.CameraID)
	}
	a.source = capture.NewSource(camera, capture.SourceConfig{FPS: config.FPS})

	analyzer := config.Analyzer
	if analyzer == nil {
		analyzer = selectAnalyzer(config)
	}

	perms := config.Permissions
	if perms == nil {
		perms = defaultPermissions(config.CameraID)
	}

	ec := engine.DefaultConfig()
	if config.Engine != nil {
		ec = *config.Engine
	}
	ec.Source = a.source
	ec.Analyzer = analyzer
	ec.Permissions = perms
	ec.Preferences = a.prefs
	ec.Journal = engine.NewStoreJournal(config.Store.Sessions())
	ec.Power = governor.DefaultPowerSource()
	ec.Memory = governor.VirtualMemoryMonitor{}
	ec.SceneChange = a.motion.Changed
	a.engine = engine.New(ec)

	renderers := fade.Multi{fade.LogRenderer{}}
	if !config.Headless {
		a.tray = tray.New(a.prefs.Snapshot().Sensitivity)
		renderers = append(renderers, a.tray)
	}
	if config.HookDir != "" {
		if r := loadHooks(config.HookDir); r != nil {
			a.hooks = r
			renderers = append(renderers, r)
		}
	}
	a.fade = fade.NewController(renderers, a.engine.BlinkThreshold)

	if config.Addr != "" {
		a.server = server.New(server.Config{
			Store:       config.Store,
			Engine:      a.engine,
			Preferences: a.prefs,
		})
	}

	return a, nil
}

// selectAnalyzer prefers the face-mesh service, paired with YuNet when the
// model is present, and falls back to a mock analyzer that never sees a face.
func selectAnalyzer(config Config) landmark.Analyzer {
	fm, err := facemesh.New(facemesh.Config{Script: config.FaceMeshScript, Python: config.Python})
	if err != nil {
		log.Printf("Face mesh not available (%v), using mock analyzer", err)
		return landmark.NewMockAnalyzer()
	}

	if config.YuNetModel == "" {
		log.Println("Using face mesh for face and eye detection")
		return fm
	}
	yc := yunet.DefaultConfig()
	yc.ModelPath = config.YuNetModel
	finder, err := yunet.New(yc)
	if err != nil {
		log.Printf("YuNet not available (%v), using face mesh for faces", err)
		return fm
	}
	log.Println("Using YuNet faces with face mesh landmarks")
	return &landmark.Split{Faces: finder, Marks: fm}
}

func loadHooks(dir string) *hook.Renderer {
	m := hook.NewManager(dir)
	if err := m.Discover(); err != nil {
		log.Printf("Failed to load hooks from %s: %v", dir, err)
		return nil
	}
	hooks := m.List()
	if len(hooks) == 0 {
		return nil
	}
	for _, h := range hooks {
		log.Printf("Loaded hook %s %s", h.Manifest.Name, h.Manifest.Version)
	}
	return hook.NewRenderer(m, hook.NewExecutor(hook.DefaultTimeout))
}

func defaultPermissions(cameraID int) permissions.Provider {
	if runtime.GOOS == "linux" {
		return permissions.NewDeviceProvider(cameraID)
	}
	// Other platforms prompt from the OS when the device is opened.
	return permissions.NewStatic(permissions.StatusAuthorized, true)
}

// Engine returns the engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Preferences returns the preference store.
func (a *App) Preferences() *prefs.Persistent {
	return a.prefs
}

// Fade returns the fade controller.
func (a *App) Fade() *fade.Controller {
	return a.fade
}

// Run starts the consumers and blocks until ctx is canceled or the tray
// quits, then shuts the engine down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.startConsumers(ctx)

	if a.server != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			log.Printf("Diagnostics server on %s", a.config.Addr)
			if err := a.server.ListenAndServe(ctx, a.config.Addr); err != nil {
				log.Printf("Server failed: %v", err)
			}
		}()
	}

	if a.config.AutoStart {
		a.toggle(ctx, true)
	}

	if a.tray != nil {
		a.bindTray(ctx, cancel)
		go func() {
			<-ctx.Done()
			a.tray.Quit()
		}()
		a.tray.Run()
		cancel()
	} else {
		<-ctx.Done()
	}

	return a.shutdown()
}

func (a *App) toggle(ctx context.Context, enabled bool) {
	if !enabled {
		a.engine.Stop()
		return
	}
	if err := a.engine.Start(ctx); err != nil {
		if errors.Is(err, frame.ErrPermissionDenied) {
			log.Printf("Camera access denied; grant access and try again")
			return
		}
		if errors.Is(err, frame.ErrDeviceUnavailable) {
			log.Printf("No camera found; connect one and try again")
			return
		}
		log.Printf("Failed to start tracking: %v", err)
	}
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	err := a.engine.PrepareForTermination(ctx)
	a.wg.Wait()
	if a.hooks != nil {
		a.hooks.Close()
	}
	a.motion.Close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
