package cmd

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/console"
	"github.com/spf13/cobra"
)

var (
	askSession  string
	askProvider string
	askImage    string
	askYes      bool
)

var (
	toolCallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	toolResultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 2)
)

// askCmd runs one turn without the console
var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message and print the reply",
	Long: `Send one message and print the model's reply. Without --session a new
session is created. When the model asks to run a tool you are prompted to
approve it, or every call is approved with --yes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var image *internal.ImageAttachment
		if askImage != "" {
			if image, err = loadImage(askImage); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		con := console.New(c, nil, console.WithProvider(askProvider))
		orch := con.Orchestrator
		if askSession != "" {
			if err := orch.RefreshSessions(ctx); err != nil {
				return err
			}
			if _, ok := con.Projection().SessionInfo(askSession); !ok {
				return fmt.Errorf("%w: %s (use 'mcp-station list' to see available sessions)", internal.ErrSessionNotFound, askSession)
			}
			if err := orch.SelectSession(ctx, askSession); err != nil {
				return err
			}
		}

		printed := len(con.Projection().Messages(askSession))
		var state console.TurnState
		err = internal.ShowProgress(ctx, "Waiting for the model", func() error {
			var sendErr error
			state, sendErr = orch.Send(ctx, strings.Join(args, " "), image)
			return sendErr
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		in := bufio.NewReader(cmd.InOrStdin())
		for {
			sessionID := con.Projection().ActiveID()
			msgs := con.Projection().Messages(sessionID)
			printMessages(out, msgs[min(printed, len(msgs)):])
			printed = len(msgs)

			switch state {
			case console.TurnAborted:
				return errors.New("cancelled")
			case console.TurnFailed:
				view := con.Projection().View(sessionID)
				return fmt.Errorf("turn failed: %s", view.Error)
			case console.TurnAwaitingApproval:
			default:
				fmt.Fprintln(out, sessionMetaStyle.Render("session "+sessionID))
				return nil
			}

			pending, ok := orch.Gate().Pending(sessionID)
			if !ok {
				return nil
			}
			if !askYes && !confirm(out, in, fmt.Sprintf("Run %s?", pending.Call.Name)) {
				internal.PrintInfo("Tool call left pending; continue with 'mcp-station chat'")
				return nil
			}
			err = internal.ShowProgress(ctx, "Running "+pending.Call.Name, func() error {
				var approveErr error
				state, approveErr = orch.Approve(ctx, sessionID, pending.Call.ID)
				return approveErr
			})
			if err != nil {
				return err
			}
			// the placeholder is re-printed with the result and the resumed text
			printed = min(printed, indexOf(con.Projection().Messages(sessionID), pending.MessageID))
		}
	},
}

func printMessages(w io.Writer, msgs []internal.Message) {
	for _, m := range msgs {
		switch {
		case m.IsToolResult:
			fmt.Fprintln(w, toolResultStyle.Render(m.Content))
		case m.Role == internal.RoleModel:
			if m.Content != "" {
				fmt.Fprintln(w, m.Content)
			}
			for _, tc := range m.ToolCalls {
				line := fmt.Sprintf("⚙ %s %s [%s]", tc.Name, string(tc.Args), tc.State)
				if tc.Error != "" {
					line += ": " + tc.Error
				}
				fmt.Fprintln(w, toolCallStyle.Render(line))
			}
		}
	}
}

func indexOf(msgs []internal.Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return len(msgs)
}

func confirm(w io.Writer, r *bufio.Reader, question string) bool {
	fmt.Fprintf(w, "%s [y/N] ", question)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// loadImage reads an image file into an attachment
func loadImage(path string) (*internal.ImageAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%s does not look like an image", path)
	}
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return &internal.ImageAttachment{
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "Continue an existing session")
	askCmd.Flags().StringVarP(&askProvider, "provider", "p", "", "Model provider (default: the server's active provider)")
	askCmd.Flags().StringVar(&askImage, "image", "", "Attach an image file")
	askCmd.Flags().BoolVarP(&askYes, "yes", "y", false, "Approve every tool call without asking")
}
