package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/client"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	serverURL  string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcp-station",
	Short: "Chat with language models that call tools on MCP servers",
	Long: `A terminal console and backend for chatting with language models that
can call tools hosted on Model Context Protocol (MCP) servers.

The server owns chat history, model providers and tool-server connections.
The console streams replies, asks before any tool runs and keeps the
session list in sync.

Features:
  • Streaming chat with per-call tool approval
  • stdio, streamable HTTP and SSE tool servers
  • Regenerate, retry and edit turns
  • Export sessions (JSONL, Markdown, YAML, JSON, zstd-compressed)
  • A built-in demo tool server

Quick Start:
  mcp-station serve                          # Start the backend
  mcp-station connect "mcp-station tool-server"
  mcp-station chat                           # Open the console
  mcp-station ask "hash the word hello" --yes`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.mcp-station/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Station server URL (overrides client.server_url)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadConfig resolves the station paths and reads the config file
func loadConfig() (*internal.Config, internal.StationPaths, error) {
	paths, err := internal.DetectStationPaths()
	if err != nil {
		return nil, paths, err
	}
	path := configPath
	if path == "" {
		path = paths.ConfigPath()
	}
	cfg, err := internal.LoadConfig(path)
	if err != nil {
		return nil, paths, err
	}
	if serverURL != "" {
		cfg.Client.ServerURL = serverURL
	}
	return cfg, paths, nil
}

// newClient returns a client for the configured server
func newClient() (*client.Client, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newClientFor(cfg), nil
}

func newClientFor(cfg *internal.Config) *client.Client {
	internal.LogDebug("Using server %s", cfg.Client.ServerURL)
	return client.New(cfg.Client.ServerURL)
}
