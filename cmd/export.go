package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/export"
	"github.com/spf13/cobra"
)

var (
	format    string
	outputDir string
	sessionID string
	exportDB  string

	exportImages bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export sessions to file",
	Long: `Export chat sessions to various formats (` + export.Formats + `),
e.g. --format jsonl.zst for zstd-compressed JSONL.

You can export all sessions or a specific session by ID. Sessions are read
from the station server, or straight from a chat database with --db.
Use 'mcp-station list' to see available session IDs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Validate the format before touching any storage
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}
		if exportImages {
			exporter = export.WithImages(exporter)
		}

		ctx := context.Background()
		var sessions []*internal.Session
		err = internal.ShowProgress(ctx, "Loading sessions", func() error {
			var loadErr error
			if exportDB != "" {
				sessions, loadErr = loadSessionsFromDB(ctx, exportDB, sessionID)
			} else {
				sessions, loadErr = loadSessionsFromServer(ctx, sessionID)
			}
			return loadErr
		})
		if err != nil {
			return err
		}

		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		exported := 0
		err = internal.ShowProgress(ctx, fmt.Sprintf("Exporting %d session(s) to %s", len(sessions), outputDir), func() error {
			for _, session := range sessions {
				path, err := export.WriteFile(exporter, session, outputDir)
				if err != nil {
					internal.LogError("Failed to export session %s: %v", session.ID, err)
					continue
				}
				internal.LogDebug("Wrote %s", path)
				exported++
			}
			return nil
		})
		if err != nil {
			return err
		}
		if exported < len(sessions) {
			return fmt.Errorf("exported %d of %d session(s)", exported, len(sessions))
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d session(s) exported to %s", exported, outputDir))
		return nil
	},
}

func loadSessionsFromServer(ctx context.Context, only string) ([]*internal.Session, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	if only != "" {
		session, err := fetchSession(ctx, c, only)
		if err != nil {
			return nil, err
		}
		return []*internal.Session{session}, nil
	}

	infos, err := c.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions := make([]*internal.Session, 0, len(infos))
	for _, info := range infos {
		msgs, err := c.ListMessages(ctx, info.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load session %s: %w", info.ID, err)
		}
		sessions = append(sessions, &internal.Session{SessionInfo: info, Messages: msgs})
	}
	return sessions, nil
}

// loadSessionsFromDB reads a chat database directly, without a running server
func loadSessionsFromDB(ctx context.Context, path, only string) ([]*internal.Session, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("chat database not found: %w", err)
	}
	store, err := internal.OpenChatStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	infos, err := store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if only != "" {
		info, err := matchSession(infos, only)
		if err != nil {
			return nil, err
		}
		infos = []internal.SessionInfo{info}
	}

	sessions := make([]*internal.Session, 0, len(infos))
	for _, info := range infos {
		msgs, err := store.ListMessages(ctx, info.ID)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, &internal.Session{SessionInfo: info, Messages: msgs})
	}
	return sessions, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format ("+export.Formats+")")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringVar(&sessionID, "session-id", "", "Export a specific session by ID")
	exportCmd.Flags().StringVar(&exportDB, "db", "", "Read sessions from this chat database instead of the server")
	exportCmd.Flags().BoolVar(&exportImages, "images", false, "Keep inline image data in json exports")
}
