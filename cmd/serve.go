package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/backend"
	"github.com/iksnae/mcp-station/internal/toolserver"
	"github.com/spf13/cobra"
)

var (
	serveListen   string
	serveDatabase string
	serveProvider string
)

// serveCmd runs the station backend
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the station server",
	Long: `Run the station server. It stores chat history in SQLite, streams model
replies and owns the tool-server connections listed under 'connections' in
the config file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, paths, err := loadConfig()
		if err != nil {
			return err
		}
		if serveListen != "" {
			cfg.Server.Listen = serveListen
		}
		if serveProvider != "" {
			cfg.Providers.Active = serveProvider
		}

		dbPath := serveDatabase
		if dbPath == "" {
			dbPath = cfg.Server.DatabasePath
		}
		if dbPath == "" {
			dbPath = paths.DatabasePath()
		}

		srv, err := backend.NewFromConfig(cfg, dbPath, version)
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		defer srv.Close()
		internal.LogInfo("Chat history: %s", dbPath)
		internal.LogInfo("Model provider: %s", srv.Providers().Active())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv.Bootstrap(ctx, cfg.Connections)
		return srv.ListenAndServe(ctx, cfg.Server.Listen)
	},
}

// toolServerCmd serves the built-in demo tools over stdio
var toolServerCmd = &cobra.Command{
	Use:   "tool-server",
	Short: "Serve the built-in demo tools over stdio",
	Long: `Serve the built-in MCP tool server on stdin/stdout. Connect it from the
station with:

  mcp-station connect "mcp-station tool-server"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol
		internal.SetLogOutput(os.Stderr)
		return toolserver.ServeStdio(version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(toolServerCmd)
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Listen address (default from config, 127.0.0.1:8000)")
	serveCmd.Flags().StringVar(&serveDatabase, "db", "", "Chat database path (default ~/.mcp-station/chat_history.db)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "Active model provider (openai, echo)")
}
