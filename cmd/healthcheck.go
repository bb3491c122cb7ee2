package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/mcp-station/internal"
	"github.com/spf13/cobra"
)

var (
	healthcheckVerbose bool
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that the station is configured and reachable",
	Long: `Check the health of mcp-station by verifying:
  • Station directory and config file
  • Chat database presence
  • Server reachability
  • Model provider availability
  • Connected tool servers

This command is useful for debugging setup issues, especially in CI/CD environments.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHealthcheck(cmd.OutOrStdout())
	},
}

func runHealthcheck(out io.Writer) error {
	fmt.Fprintln(out, sectionStyle.Render("🔍 MCP Station Health Check"))
	fmt.Fprintln(out)

	// Step 1: configuration
	fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration..."))
	cfg, paths, err := loadConfig()
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Configuration is invalid:"), err)
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
	if healthcheckVerbose {
		fmt.Fprintf(out, "   Station dir: %s\n", paths.BaseDir)
		fmt.Fprintf(out, "   Config file: %s\n", paths.ConfigPath())
		fmt.Fprintf(out, "   Server URL: %s\n", cfg.Client.ServerURL)
		fmt.Fprintf(out, "   Startup connections: %d\n", len(cfg.Connections))
	}
	fmt.Fprintln(out)

	// Step 2: local chat database
	fmt.Fprintln(out, infoStyle.Render("Step 2: Checking the chat database..."))
	dbPath := cfg.Server.DatabasePath
	if dbPath == "" {
		dbPath = paths.DatabasePath()
	}
	if cfg.Server.DatabasePath != "" || paths.DatabaseExists() {
		fmt.Fprintln(out, successStyle.Render("✅ Chat database configured"))
	} else {
		fmt.Fprintln(out, warningStyle.Render("⚠️  No chat database yet (created by 'mcp-station serve')"))
	}
	if healthcheckVerbose {
		fmt.Fprintf(out, "   Database: %s\n", dbPath)
	}
	fmt.Fprintln(out)

	// Step 3: server
	fmt.Fprintln(out, infoStyle.Render("Step 3: Contacting the station server..."))
	c := newClientFor(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	health, err := c.Health(ctx)
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Server is not reachable:"), err)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Start it with 'mcp-station serve', or point --server at a running one.")
		if internal.IsCIEnvironment() {
			fmt.Fprintln(out, "Note: In CI the server has to be started before this check.")
		}
		return fmt.Errorf("health check failed: server unreachable")
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Server %s is up (version %s)", cfg.Client.ServerURL, health.Version)))
	fmt.Fprintln(out)

	// Step 4: providers
	fmt.Fprintln(out, infoStyle.Render("Step 4: Checking model providers..."))
	providers, err := c.ProviderStatus(ctx)
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Could not read provider status:"), err)
		return fmt.Errorf("health check failed: %w", err)
	}
	active, ok := providers.Providers[providers.ActiveProvider]
	switch {
	case ok && active.Available:
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Active provider %s is available", providers.ActiveProvider)))
	default:
		fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠️  Active provider %q is not available", providers.ActiveProvider)))
		fmt.Fprintln(out, "   Set OPENAI_API_KEY or GROQ_API_KEY, or switch with 'mcp-station provider echo'")
	}
	if healthcheckVerbose {
		displayProviders(out, providers)
	}
	fmt.Fprintln(out)

	// Step 5: tool servers
	fmt.Fprintln(out, infoStyle.Render("Step 5: Checking tool servers..."))
	status, err := c.MCPStatus(ctx)
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Could not read connection status:"), err)
		return fmt.Errorf("health check failed: %w", err)
	}
	tools := 0
	for _, conn := range status.Connections {
		tools += conn.Tools
	}
	if len(status.Connections) > 0 {
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ %d tool server(s), %d tool(s)", len(status.Connections), tools)))
	} else {
		fmt.Fprintln(out, warningStyle.Render("⚠️  No tool servers connected"))
	}
	if healthcheckVerbose && len(status.Connections) > 0 {
		displayConnections(out, status.Connections)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
	fmt.Fprintln(out)
	if ok && active.Available {
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		return nil
	}
	fmt.Fprintln(out, warningStyle.Render("⚠️  Server is up but the active provider cannot answer"))
	return nil
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckVerbose, "verbose", "v", false, "Show detailed diagnostic information")
}
