/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one escalation sweep",
	Long: `Evaluate every pending approval request once and apply the escalation
action of each step whose SLA has elapsed. Intended for an external cron
when the server's built-in schedule is disabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctr, err := newContainer()
		if err != nil {
			return err
		}
		defer ctr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		result, err := ctr.EscalationService().Sweep(ctx, "cli")
		if err != nil {
			return fmt.Errorf("escalation sweep failed: %w", err)
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().Duration("timeout", 10*time.Minute, "Sweep timeout")
}
