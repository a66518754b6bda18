package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ayusman/blinkwatch/internal/app"
	"github.com/ayusman/blinkwatch/internal/capture"
	"github.com/ayusman/blinkwatch/internal/landmark/yunet"
)

type runOptions struct {
	CameraID       int
	FPS            int
	Addr           string
	Headless       bool
	AutoStart      bool
	YuNetModel     string
	FaceMeshScript string
	Python         string
	HookDir        string
	MotionThresh   float64
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Track blinks and fade the screen when the eyes stay open",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookDir := runOpts.HookDir
		if hookDir == "" {
			hookDir = filepath.Join(dataDir, "hooks")
		}

		model := runOpts.YuNetModel
		if _, err := os.Stat(model); err != nil {
			model = ""
		}

		a, err := app.New(app.Config{
			Store:          DB,
			CameraID:       runOpts.CameraID,
			FPS:            runOpts.FPS,
			MotionThresh:   runOpts.MotionThresh,
			YuNetModel:     model,
			FaceMeshScript: runOpts.FaceMeshScript,
			Python:         runOpts.Python,
			Addr:           runOpts.Addr,
			Headless:       runOpts.Headless,
			AutoStart:      runOpts.AutoStart,
			HookDir:        hookDir,
		})
		if err != nil {
			return err
		}
		return a.Run(cmd.Context())
	},
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&runOpts.CameraID, "camera", 0, "camera device index")
	f.IntVar(&runOpts.FPS, "fps", capture.DefaultFPS, "capture frame rate")
	f.StringVar(&runOpts.Addr, "addr", "127.0.0.1:8080", "diagnostics server address (empty to disable)")
	f.BoolVar(&runOpts.Headless, "headless", false, "run without the menu-bar icon")
	f.BoolVar(&runOpts.AutoStart, "autostart", false, "start tracking immediately")
	f.StringVar(&runOpts.YuNetModel, "yunet-model", yunet.DefaultConfig().ModelPath, "YuNet face detection model")
	f.StringVar(&runOpts.FaceMeshScript, "facemesh-script", "", "face mesh landmark service script (default: search)")
	f.StringVar(&runOpts.Python, "python", "", "python interpreter for the landmark service (default: virtualenv or python3)")
	f.StringVar(&runOpts.HookDir, "hook-dir", "", "directory of fade hooks (default: <data-dir>/hooks)")
	f.Float64Var(&runOpts.MotionThresh, "motion-threshold", capture.DefaultSceneChangePercent, "percent of changed pixels that invalidates the face cache")

	rootCmd.AddCommand(runCmd)
}
