package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/iksnae/mcp-station/internal"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools of every connected server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		tools, err := c.ListTools(context.Background())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(tools) == 0 {
			fmt.Fprintln(out, headerStyle.Render("🔧 No tools available"))
			return nil
		}
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("🔧 %d tool(s)", len(tools))))
		for _, t := range tools {
			fmt.Fprintf(out, "\n%s  %s\n", titleStyle.Render(t.Name), idStyle.Render(t.ConnectionID))
			if t.Description != "" {
				fmt.Fprintln(out, messageContentStyle.Render(t.Description))
			}
			if params := describeParams(t.InputSchema); params != "" {
				fmt.Fprintln(out, messageContentStyle.Render(dateStyle.Render(params)))
			}
		}
		return nil
	},
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List the resources of every connected server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		resources, err := c.ListResources(context.Background())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(resources) == 0 {
			fmt.Fprintln(out, headerStyle.Render("📄 No resources available"))
			return nil
		}
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📄 %d resource(s)", len(resources))))
		for _, r := range resources {
			fmt.Fprintf(out, "\n%s  %s  %s\n", titleStyle.Render(r.Name), r.URI, idStyle.Render(r.ConnectionID))
			if r.Description != "" {
				fmt.Fprintln(out, messageContentStyle.Render(r.Description))
			}
		}
		return nil
	},
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List the prompt templates of every connected server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		prompts, err := c.ListPrompts(context.Background())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(prompts) == 0 {
			fmt.Fprintln(out, headerStyle.Render("💡 No prompts available"))
			return nil
		}
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("💡 %d prompt(s)", len(prompts))))
		for _, p := range prompts {
			fmt.Fprintf(out, "\n%s  %s\n", titleStyle.Render(p.Name), idStyle.Render(p.ConnectionID))
			if p.Description != "" {
				fmt.Fprintln(out, messageContentStyle.Render(p.Description))
			}
			for _, a := range p.Arguments {
				line := "• " + a.Name
				if a.Required {
					line += " (required)"
				}
				if a.Description != "" {
					line += ": " + a.Description
				}
				fmt.Fprintln(out, messageContentStyle.Render(dateStyle.Render(line)))
			}
		}
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read <connection-id> <uri>",
	Short: "Read a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		text, err := c.ReadResource(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

var promptCmd = &cobra.Command{
	Use:   "prompt <connection-id> <name> [key=value...]",
	Short: "Render a prompt template",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		promptArgs, err := parseKeyValues(args[2:])
		if err != nil {
			return err
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		text, err := c.GetPrompt(context.Background(), args[0], args[1], promptArgs)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

// parseKeyValues turns key=value arguments into a map
func parseKeyValues(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[k] = v
	}
	return out, nil
}

// describeParams summarises a JSON schema's properties as "name: type" pairs
func describeParams(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return ""
	}
	required := map[string]bool{}
	if list, ok := schema["required"].([]any); ok {
		for _, r := range list {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}
	parts := make([]string, 0, len(props))
	for _, name := range sortedKeys(props) {
		typ := "any"
		if p, ok := props[name].(map[string]any); ok {
			if s, ok := p["type"].(string); ok {
				typ = s
			}
		}
		if required[name] {
			name += "*"
		}
		parts = append(parts, name+": "+typ)
	}
	return "params: " + strings.Join(parts, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var providerCmd = &cobra.Command{
	Use:   "provider [name]",
	Short: "Show model providers or switch the server's active one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()
		if len(args) == 1 {
			active, err := c.SwitchProvider(ctx, args[0])
			if err != nil {
				return err
			}
			internal.PrintSuccess("Active provider: " + active)
			return nil
		}
		status, err := c.ProviderStatus(ctx)
		if err != nil {
			return err
		}
		displayProviders(cmd.OutOrStdout(), status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(providerCmd)
}
