package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
	"github.com/iksnae/mcp-station/internal/console"
	"github.com/spf13/cobra"
)

var (
	connectID   string
	connectType string
)

// connectCmd attaches a tool server to the station
var connectCmd = &cobra.Command{
	Use:   "connect <target>",
	Short: "Connect a tool server",
	Long: `Connect an MCP tool server to the station server. The target is a command
line for stdio servers or a URL for http and sse servers. Without --type a
URL target uses http and anything else uses stdio.

Examples:
  mcp-station connect "mcp-station tool-server"
  mcp-station connect "npx -y @modelcontextprotocol/server-everything" --id everything
  mcp-station connect https://gitmcp.io/docs --type sse`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := strings.Join(args, " ")
		typ := internal.TransportStdio
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			typ = internal.TransportHTTP
		}
		if connectType != "" {
			var err error
			if typ, err = internal.ParseTransportType(connectType); err != nil {
				return err
			}
		}
		id := connectID
		if id == "" {
			id = console.DeriveConnectionID(target)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()
		var resp api.ConnectResponse
		err = internal.ShowProgress(ctx, fmt.Sprintf("Connecting %s (%s)", id, typ), func() error {
			var connErr error
			resp, connErr = c.Connect(ctx, api.ConnectRequest{ID: id, Target: target, Type: typ})
			return connErr
		})
		if err != nil {
			return err
		}
		internal.PrintSuccess(fmt.Sprintf("Connected %s: %d tools, %d resources, %d prompts", id, resp.Tools, resp.Resources, resp.Prompts))
		return nil
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <id>",
	Short: "Disconnect a tool server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Disconnect(context.Background(), args[0]); err != nil {
			return err
		}
		internal.PrintSuccess("Disconnected " + args[0])
		return nil
	},
}

// statusCmd shows the server, its providers and its connections
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server, provider and tool-server status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()
		health, err := c.Health(ctx)
		if err != nil {
			return fmt.Errorf("station server is not reachable: %w", err)
		}
		providers, err := c.ProviderStatus(ctx)
		if err != nil {
			return err
		}
		status, err := c.MCPStatus(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("Server"))
		fmt.Fprintf(out, "  %s  version %s\n", c.BaseURL(), health.Version)
		fmt.Fprintln(out)
		displayProviders(out, providers)
		fmt.Fprintln(out)
		displayConnections(out, status.Connections)
		return nil
	},
}

func displayProviders(out io.Writer, status api.LLMStatusResponse) {
	fmt.Fprintln(out, sectionStyle.Render("Providers"))
	for _, name := range sortedKeys(status.Providers) {
		info := status.Providers[name]
		marker := " "
		if name == status.ActiveProvider {
			marker = "*"
		}
		state := successStyle.Render("available")
		if !info.Available {
			state = warningStyle.Render("unavailable")
		}
		fmt.Fprintf(out, "%s %s  %s  %s\n", marker, name, dateStyle.Render(info.Model), state)
	}
}

func displayConnections(out io.Writer, conns []api.ConnectionInfo) {
	fmt.Fprintln(out, sectionStyle.Render("Tool servers"))
	if len(conns) == 0 {
		fmt.Fprintln(out, "  none (connect one with 'mcp-station connect <target>')")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("ID")+"\t"+titleStyle.Render("Type")+"\t"+titleStyle.Render("Tools")+"\t"+titleStyle.Render("Resources")+"\t"+titleStyle.Render("Prompts")+"\t"+titleStyle.Render("Target")+"\t")
	for _, conn := range conns {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t\n", conn.ID, conn.Type, countStyle.Render(fmt.Sprint(conn.Tools)), conn.Resources, conn.Prompts, idStyle.Render(conn.Target))
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	rootCmd.AddCommand(statusCmd)
	connectCmd.Flags().StringVar(&connectID, "id", "", "Connection id (default derived from the target)")
	connectCmd.Flags().StringVarP(&connectType, "type", "t", "", "Transport: stdio, http or sse")
}
