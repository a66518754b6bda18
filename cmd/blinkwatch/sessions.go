package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var sessionLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded tracking sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := DB.Sessions().List(sessionLimit)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tEND")
		fmt.Fprintln(w, "--\t-------\t--------\t---")
		for _, s := range sessions {
			duration, end := "-", "running"
			if !s.EndedAt.IsZero() {
				duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
				end = s.EndReason
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04"), duration, end)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the transitions recorded in a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := DB.Sessions().GetByID(args[0])
		if err != nil {
			return fmt.Errorf("failed to load session: %w", err)
		}
		events, err := DB.Sessions().Events(s.ID)
		if err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}

		fmt.Printf("Session %s started %s\n", s.ID, s.StartedAt.Local().Format(time.DateTime))
		if len(s.Summary) > 0 {
			fmt.Printf("Summary: %s\n", s.Summary)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIME\tFROM\tTO")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.At.Local().Format("15:04:05.000"), e.From, e.To)
		}
		return w.Flush()
	},
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionLimit, "limit", 20, "maximum number of sessions")
	sessionsCmd.AddCommand(sessionShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
