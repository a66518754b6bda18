package hook

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// writeHook writes a shell script hook into dir and returns it.
func writeHook(t *testing.T, dir, name, script string) *Hook {
	t.Helper()
	path := filepath.Join(dir, name+".sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return &Hook{
		Manifest:   Manifest{Name: name, Version: "1.0.0", Executable: name + ".sh"},
		Path:       dir,
		Executable: path,
	}
}

func TestExecutor_Execute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tests := []struct {
		name        string
		script      string
		wantErr     bool
		wantSuccess bool
		wantError   string
	}{
		{
			name:        "success",
			script:      "echo '{\"success\":true,\"data\":{\"message\":\"dimmed\"}}'\n",
			wantSuccess: true,
		},
		{
			name:      "error response",
			script:    "echo '{\"success\":false,\"error\":\"no display\"}'\n",
			wantError: "no display",
		},
		{
			name:    "invalid json",
			script:  "echo 'not valid json'\n",
			wantErr: true,
		},
		{
			name:    "non-zero exit",
			script:  "echo 'Error: something failed' >&2\nexit 1\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := writeHook(t, t.TempDir(), "test-hook", tt.script)
			resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, &Request{Event: EventFadeIn})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if resp.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", resp.Success, tt.wantSuccess)
			}
			if resp.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	script := `INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`
	h := writeHook(t, t.TempDir(), "echo-hook", script)
	req := &Request{
		Event:     EventFadeOut,
		Timestamp: 42,
		Config:    json.RawMessage(`{"level":0.3}`),
	}

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), h, req)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data struct {
		Received Request `json:"received"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data.Received.Event != EventFadeOut || data.Received.Timestamp != 42 {
		t.Errorf("received %+v, want event %q at 42", data.Received, EventFadeOut)
	}
	if string(data.Received.Config) != `{"level":0.3}` {
		t.Errorf("received config %s", data.Received.Config)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	h := writeHook(t, t.TempDir(), "slow-hook", "sleep 10\necho '{\"success\":true}'\n")
	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), h, &Request{Event: EventFadeIn})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() error = %v, want ErrTimeout", err)
	}
}

func TestNewExecutor_DefaultTimeout(t *testing.T) {
	if e := NewExecutor(0); e.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", e.timeout, DefaultTimeout)
	}
}
