package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChatStore persists sessions and their message logs in sqlite
type ChatStore struct {
	db *sql.DB
}

// NewChatStore wraps an open database
func NewChatStore(db *sql.DB) *ChatStore {
	return &ChatStore{db: db}
}

// OpenChatStore opens the database at path and returns a store over it
func OpenChatStore(path string) (*ChatStore, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return NewChatStore(db), nil
}

// Close closes the underlying database
func (s *ChatStore) Close() error {
	return s.db.Close()
}

// ListSessions returns every session, newest first
func (s *ChatStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at FROM sessions ORDER BY created_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]SessionInfo, 0)
	for rows.Next() {
		var info SessionInfo
		if err := rows.Scan(&info.ID, &info.Title, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return sessions, nil
}

// GetSession returns a single session's listing view
func (s *ChatStore) GetSession(ctx context.Context, id string) (SessionInfo, error) {
	var info SessionInfo
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at FROM sessions WHERE id = ?", id).
		Scan(&info.ID, &info.Title, &info.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return info, fmt.Errorf("query session: %w", err)
	}
	return info, nil
}

// CreateSession inserts a session; an empty title becomes the placeholder
func (s *ChatStore) CreateSession(ctx context.Context, id, title string) (SessionInfo, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultSessionTitle
	}
	info := SessionInfo{ID: id, Title: title, CreatedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)",
		info.ID, info.Title, info.CreatedAt)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("insert session: %w", err)
	}
	return info, nil
}

// EnsureSession creates the session when it does not exist yet
func (s *ChatStore) EnsureSession(ctx context.Context, id string) (SessionInfo, error) {
	info, err := s.GetSession(ctx, id)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return info, err
	}
	return s.CreateSession(ctx, id, "")
}

// UpdateSessionTitle renames a session
func (s *ChatStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE sessions SET title = ? WHERE id = ?", title, id)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

// DeleteSession removes a session and its messages
func (s *ChatStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return tx.Commit()
}

// ListMessages returns a session's messages in insertion order
func (s *ChatStore) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, image_data, tool_calls, is_tool_result, tool_call_id,
		       feedback, artifact, created_at
		FROM messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return messages, nil
}

// GetMessage loads one message by id
func (s *ChatStore) GetMessage(ctx context.Context, id string) (Message, string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, role, content, image_data, tool_calls, is_tool_result, tool_call_id,
		       feedback, artifact, created_at, session_id
		FROM messages WHERE id = ?`, id)

	var sessionID string
	msg, err := scanMessage(row, &sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, "", fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	return msg, sessionID, err
}

// SaveMessage inserts or replaces a message; an existing row keeps its position and creation time
func (s *ChatStore) SaveMessage(ctx context.Context, sessionID string, msg Message) error {
	if msg.ID == "" {
		return errors.New("message id is required")
	}
	if msg.Artifact != nil {
		if err := msg.Artifact.Validate(); err != nil {
			return err
		}
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	imageData, toolCalls, artifact, err := encodeMessageColumns(msg)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, image_data, tool_calls,
		                      is_tool_result, tool_call_id, feedback, artifact, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			content = excluded.content,
			image_data = excluded.image_data,
			tool_calls = excluded.tool_calls,
			is_tool_result = excluded.is_tool_result,
			tool_call_id = excluded.tool_call_id,
			feedback = excluded.feedback,
			artifact = excluded.artifact`,
		msg.ID, sessionID, string(msg.Role), msg.Content, imageData, toolCalls,
		boolToInt(msg.IsToolResult), nullString(msg.ToolCallID), string(msg.Feedback),
		artifact, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("save message %s: %w", msg.ID, err)
	}
	return nil
}

// ReplaceMessages rewrites a session's log with the given messages
func (s *ChatStore) ReplaceMessages(ctx context.Context, sessionID string, messages []Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, image_data, tool_calls,
		                      is_tool_result, tool_call_id, feedback, artifact, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, msg := range messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		imageData, toolCalls, artifact, err := encodeMessageColumns(msg)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, msg.ID, sessionID, string(msg.Role), msg.Content,
			imageData, toolCalls, boolToInt(msg.IsToolResult), nullString(msg.ToolCallID),
			string(msg.Feedback), artifact, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message %s: %w", msg.ID, err)
		}
	}
	return tx.Commit()
}

// TruncateBefore deletes the message with the given id and everything after it
func (s *ChatStore) TruncateBefore(ctx context.Context, sessionID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM messages WHERE session_id = ? AND seq >= (
			SELECT seq FROM messages WHERE id = ? AND session_id = ?
		)`, sessionID, messageID, sessionID)
	if err != nil {
		return fmt.Errorf("truncate messages: %w", err)
	}
	return nil
}

// UpdateToolCall applies fn to the tool call with the given id in the message that owns it
func (s *ChatStore) UpdateToolCall(ctx context.Context, sessionID, toolCallID string, fn func(*ToolCall)) error {
	messages, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		for j := range msg.ToolCalls {
			if msg.ToolCalls[j].ID != toolCallID {
				continue
			}
			fn(&msg.ToolCalls[j])
			msg.SyncAwaitingApproval()
			return s.SaveMessage(ctx, sessionID, msg)
		}
	}
	return fmt.Errorf("%w: tool call %s", ErrMessageNotFound, toolCallID)
}

// SetFeedback updates the rating of a single message
func (s *ChatStore) SetFeedback(ctx context.Context, messageID string, feedback Feedback) error {
	res, err := s.db.ExecContext(ctx, "UPDATE messages SET feedback = ? WHERE id = ?", string(feedback), messageID)
	if err != nil {
		return fmt.Errorf("update feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, extra ...any) (Message, error) {
	var (
		msg          Message
		role         string
		imageData    sql.NullString
		toolCalls    sql.NullString
		isToolResult int
		toolCallID   sql.NullString
		feedback     string
		artifact     sql.NullString
	)
	dest := []any{&msg.ID, &role, &msg.Content, &imageData, &toolCalls, &isToolResult,
		&toolCallID, &feedback, &artifact, &msg.CreatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return msg, err
		}
		return msg, fmt.Errorf("scan message: %w", err)
	}

	msg.Role = NormalizeRole(role)
	msg.IsToolResult = isToolResult != 0
	msg.ToolCallID = toolCallID.String
	msg.Feedback = Feedback(feedback)

	if imageData.Valid && imageData.String != "" {
		var img ImageAttachment
		if err := json.Unmarshal([]byte(imageData.String), &img); err != nil {
			LogWarn("Message %s has unreadable image data: %v", msg.ID, err)
		} else {
			msg.Image = &img
		}
	}
	if toolCalls.Valid && toolCalls.String != "" {
		if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
			LogWarn("Message %s has unreadable tool calls: %v", msg.ID, err)
		}
	}
	if artifact.Valid && artifact.String != "" {
		var a Artifact
		if err := json.Unmarshal([]byte(artifact.String), &a); err != nil {
			LogWarn("Message %s has unreadable artifact: %v", msg.ID, err)
		} else {
			msg.Artifact = &a
		}
	}
	msg.SyncAwaitingApproval()
	return msg, nil
}

func encodeMessageColumns(msg Message) (image, toolCalls, artifact sql.NullString, err error) {
	if msg.Image != nil {
		if image, err = jsonColumn(msg.Image); err != nil {
			return
		}
	}
	if len(msg.ToolCalls) > 0 {
		if toolCalls, err = jsonColumn(msg.ToolCalls); err != nil {
			return
		}
	}
	if msg.Artifact != nil {
		artifact, err = jsonColumn(msg.Artifact)
	}
	return
}

func jsonColumn(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode column: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
