package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/mcp-station/internal"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	_, _ = fmt.Fprintf(w, "# %s\n\n", session.Title)
	_, _ = fmt.Fprintf(w, "**Session:** %s  \n", session.ID)
	if !session.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", session.CreatedAt.UTC().Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(session.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range session.Messages {
		writeMessage(w, msg)

		if i < len(session.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

func writeMessage(w io.Writer, msg internal.Message) {
	if msg.IsToolResult {
		_, _ = fmt.Fprintf(w, "**Tool result** (`%s`):\n\n```\n%s\n```\n\n", msg.ToolCallID, msg.Content)
		return
	}

	label := "User"
	if msg.Role == internal.RoleModel {
		label = "Model"
	}
	timestamp := ""
	if !msg.CreatedAt.IsZero() {
		timestamp = fmt.Sprintf(" (%s)", msg.CreatedAt.UTC().Format(time.DateTime))
	}
	_, _ = fmt.Fprintf(w, "**%s:**%s\n\n", label, timestamp)
	if msg.Content != "" {
		_, _ = fmt.Fprintf(w, "%s\n\n", escapeMarkdown(msg.Content))
	}
	if msg.Image != nil {
		_, _ = fmt.Fprintf(w, "_[image: %s]_\n\n", msg.Image.MIMEType)
	}

	for _, tc := range msg.ToolCalls {
		_, _ = fmt.Fprintf(w, "> Tool call `%s` (%s)\n\n", tc.Name, tc.State)
		if len(tc.Args) > 0 {
			_, _ = fmt.Fprintf(w, "```json\n%s\n```\n\n", tc.Args)
		}
		if tc.Error != "" {
			_, _ = fmt.Fprintf(w, "> Error: %s\n\n", tc.Error)
		}
	}

	if msg.Artifact != nil {
		_, _ = fmt.Fprintf(w, "_Artifact: %s (%s)_\n\n", msg.Artifact.Title, msg.Artifact.Type)
	}
	if msg.Feedback != internal.FeedbackNone {
		_, _ = fmt.Fprintf(w, "_Feedback: %s_\n\n", msg.Feedback)
	}
}

// escapeMarkdown escapes emphasis markers outside code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
