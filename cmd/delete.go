package cmd

import (
	"context"
	"fmt"

	"github.com/iksnae/mcp-station/internal"
	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a chat session",
	Long:  `Delete a chat session and all of its messages. The id may be a unique prefix.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()
		sessions, err := c.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		info, err := matchSession(sessions, args[0])
		if err != nil {
			return err
		}
		if err := c.DeleteSession(ctx, info.ID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		internal.PrintSuccess(fmt.Sprintf("Deleted session %s (%s)", info.ID, info.Title))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
