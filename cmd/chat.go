package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/console"
	"github.com/iksnae/mcp-station/internal/tui"
	"github.com/spf13/cobra"
)

var chatProvider string

// chatCmd opens the interactive console
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive chat console",
	Long: `Open the interactive chat console against a running station server.

Type a message to chat, or /help for commands. When the model asks to run a
tool the console stops and waits; press y to run it. Log output goes to
~/.mcp-station/logs/station.log while the console is open.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, paths, err := loadConfig()
		if err != nil {
			return err
		}
		if err := paths.Ensure(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c := newClientFor(cfg)
		err = internal.ShowProgress(ctx, "Connecting to "+cfg.Client.ServerURL, func() error {
			_, err := c.Health(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("station server is not reachable (start it with 'mcp-station serve'): %w", err)
		}

		logFile, err := os.OpenFile(paths.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer logFile.Close()
		internal.SetLogOutput(logFile)
		defer internal.SetLogOutput(os.Stderr)

		con := console.New(c, internal.NewStateManager(paths.StatePath()))
		return tui.Run(ctx, con, tui.Options{Provider: chatProvider})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatProvider, "provider", "p", "", "Model provider for this console (default: the server's active provider)")
}
