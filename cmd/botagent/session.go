package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage a user's conversation state",
	}
	cmd.AddCommand(buildSessionClearCmd())
	return cmd
}

// buildSessionClearCmd clears a user's mid-term memory (the rolling
// dialogue summaries), leaving anything already promoted to long-term
// memory untouched.
func buildSessionClearCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear a user's mid-term conversation memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(configPath)
			if err != nil {
				return err
			}

			if err := rt.manager.ClearMidTerm(cmd.Context(), rt.cfg.BotID, userID); err != nil {
				return err
			}

			fmt.Printf("Cleared mid-term memory for bot=%s user=%s\n", rt.cfg.BotID, userID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&userID, "user", "default", "User id whose session to clear")
	return cmd
}
