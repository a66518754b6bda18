package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/blinkwatch/internal/eye"
	"github.com/ayusman/blinkwatch/internal/prefs"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := prefs.Load(DB.Settings()).Snapshot()
		fmt.Printf("%s = %s\n", prefs.KeySensitivity, s.Sensitivity)
		fmt.Printf("%s = %s\n", prefs.KeyBlinkThreshold, s.BlinkThreshold)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a preference (sensitivity or blink_threshold)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := prefs.Load(DB.Settings())
		next, err := applySetting(p.Snapshot(), args[0], args[1])
		if err != nil {
			return err
		}
		if err := p.Update(next); err != nil {
			return fmt.Errorf("failed to save preferences: %w", err)
		}
		fmt.Printf("%s = %s\n", args[0], args[1])
		return nil
	},
}

func applySetting(s prefs.Snapshot, key, value string) (prefs.Snapshot, error) {
	switch key {
	case prefs.KeySensitivity:
		v, err := eye.ParseSensitivity(value)
		if err != nil {
			return s, err
		}
		s.Sensitivity = v
	case prefs.KeyBlinkThreshold:
		d, err := time.ParseDuration(value)
		if err != nil {
			return s, fmt.Errorf("%w: %v", prefs.ErrInvalid, err)
		}
		s.BlinkThreshold = d
	default:
		return s, fmt.Errorf("unknown preference %q", key)
	}
	return s, s.Validate()
}

func init() {
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
