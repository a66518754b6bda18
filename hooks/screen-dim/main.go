// Command screen-dim is a blinkwatch hook that lowers the display brightness
// on fade_in and raises it back on fade_out. It uses AppleScript key codes
// on macOS and brightnessctl on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the hook executor.
type Request struct {
	Event     string          `json:"event"`
	Timestamp int64           `json:"timestamp"`
	Config    json.RawMessage `json:"config"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type config struct {
	// Steps is how many brightness steps a fade covers.
	Steps int `json:"steps"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	cfg := config{Steps: 4}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(fmt.Errorf("invalid config: %w", err))
			return
		}
	}
	if cfg.Steps < 1 {
		cfg.Steps = 1
	}

	switch req.Event {
	case "fade_in":
		writeResponse(adjust(-cfg.Steps))
	case "fade_out":
		writeResponse(adjust(cfg.Steps))
	default:
		writeResponse(fmt.Errorf("unknown event: %s", req.Event))
	}
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// adjust moves the brightness by steps; negative dims.
func adjust(steps int) error {
	switch runtime.GOOS {
	case "darwin":
		key := 144
		if steps < 0 {
			key, steps = 145, -steps
		}
		for i := 0; i < steps; i++ {
			if err := run("osascript", "-e", fmt.Sprintf("tell application \"System Events\" to key code %d", key)); err != nil {
				return err
			}
		}
		return nil
	case "linux":
		change := fmt.Sprintf("%d%%+", steps*10)
		if steps < 0 {
			change = fmt.Sprintf("%d%%-", -steps*10)
		}
		return run("brightnessctl", "--quiet", "set", change)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

func run(name string, args ...string) error {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}
