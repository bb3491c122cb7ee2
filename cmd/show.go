package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/client"
	"github.com/spf13/cobra"
)

var (
	limit int
	since string
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243"))

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	modelMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				Width(84)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show messages for a specific session",
	Long: `Display the messages of one chat session. The id may be shortened to any
unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sinceTime time.Time
		if since != "" {
			var err error
			if sinceTime, err = time.Parse(time.RFC3339, since); err != nil {
				return fmt.Errorf("invalid --since %q (want RFC3339): %w", since, err)
			}
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		session, err := fetchSession(context.Background(), c, args[0])
		if err != nil {
			return err
		}

		msgs := session.Messages
		if !sinceTime.IsZero() {
			filtered := make([]internal.Message, 0, len(msgs))
			for _, m := range msgs {
				if !m.CreatedAt.Before(sinceTime) {
					filtered = append(filtered, m)
				}
			}
			msgs = filtered
		}

		out := cmd.OutOrStdout()
		displaySessionHeader(out, session)
		total := len(msgs)
		shown := msgs
		if limit > 0 && limit < total {
			shown = msgs[:limit]
		}
		for i, m := range shown {
			displayMessage(out, i+1, m, total)
		}
		if len(shown) < total {
			fmt.Fprintln(out, timestampStyle.Render(fmt.Sprintf("... (%d more message(s))", total-len(shown))))
		}
		return nil
	},
}

// fetchSession resolves an id or unique id prefix and loads the session's messages
func fetchSession(ctx context.Context, c *client.Client, ref string) (*internal.Session, error) {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	info, err := matchSession(sessions, ref)
	if err != nil {
		return nil, err
	}
	msgs, err := c.ListMessages(ctx, info.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return &internal.Session{SessionInfo: info, Messages: msgs}, nil
}

func matchSession(sessions []internal.SessionInfo, ref string) (internal.SessionInfo, error) {
	var matches []internal.SessionInfo
	for _, s := range sessions {
		if s.ID == ref {
			return s, nil
		}
		if strings.HasPrefix(s.ID, ref) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return internal.SessionInfo{}, fmt.Errorf("%w: %s (use 'mcp-station list' to see available sessions)", internal.ErrSessionNotFound, ref)
	case 1:
		return matches[0], nil
	default:
		return internal.SessionInfo{}, fmt.Errorf("session id %q matches %d sessions", ref, len(matches))
	}
}

func displaySessionHeader(out io.Writer, session *internal.Session) {
	title := session.Title
	if title == "" {
		title = "Untitled"
	}
	fmt.Fprintln(out, sessionHeaderStyle.Render("💬 "+title))

	metaParts := []string{"ID: " + session.ID}
	if !session.CreatedAt.IsZero() {
		metaParts = append(metaParts, "Created: "+session.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	metaParts = append(metaParts, fmt.Sprintf("Messages: %d", len(session.Messages)))
	fmt.Fprintln(out, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Fprintln(out)
}

func displayMessage(out io.Writer, index int, msg internal.Message, total int) {
	var header string
	switch {
	case msg.IsToolResult:
		header = toolCallStyle.Render("🔧 Tool result")
	case msg.Role == internal.RoleModel:
		header = modelMessageStyle.Render("🤖 Model")
	default:
		header = userMessageStyle.Render("👤 User")
	}
	header += " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if !msg.CreatedAt.IsZero() {
		header += " " + timestampStyle.Render(msg.CreatedAt.Local().Format("15:04:05"))
	}
	switch msg.Feedback {
	case internal.FeedbackLiked:
		header += " 👍"
	case internal.FeedbackDisliked:
		header += " 👎"
	}
	fmt.Fprintln(out, header)

	content := strings.TrimSpace(msg.Content)
	switch {
	case msg.IsToolResult:
		fmt.Fprintln(out, toolResultStyle.Render(content))
	case content != "":
		fmt.Fprintln(out, messageContentStyle.Render(content))
	case len(msg.ToolCalls) == 0:
		fmt.Fprintln(out, messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	}
	if msg.Image != nil {
		fmt.Fprintln(out, messageContentStyle.Render(timestampStyle.Render("[image: "+msg.Image.MIMEType+"]")))
	}
	for _, tc := range msg.ToolCalls {
		line := fmt.Sprintf("⚙ %s %s [%s]", tc.Name, string(tc.Args), tc.State)
		if tc.Error != "" {
			line += ": " + tc.Error
		}
		fmt.Fprintln(out, messageContentStyle.Render(toolCallStyle.Render(line)))
	}
	fmt.Fprintln(out)
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
	showCmd.Flags().StringVar(&since, "since", "", "Show messages since timestamp (RFC3339)")
}
