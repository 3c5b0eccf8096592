package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/session"
)

func buildChatCmd() *cobra.Command {
	var configPath, userID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run one dialogue turn through the memory/character/system agent pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(configPath)
			if err != nil {
				return err
			}

			message := strings.Join(args, " ")
			pipeline := rt.sessions.GetOrCreate(session.Key{BotID: rt.cfg.BotID, UserID: userID})

			resp := pipeline.Invoke(cmd.Context(), protocol.AgentMessage{
				Content:  message,
				Metadata: map[string]any{"user_id": userID},
			})
			if !resp.Success {
				return fmt.Errorf("chat: %s", resp.Error)
			}

			rt.manager.PromoteDue(context.Background(), rt.cfg.BotID, userID)

			fmt.Println(resp.Content)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&userID, "user", "default", "User id for this conversation")
	return cmd
}
