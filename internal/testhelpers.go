package internal

import (
	"encoding/json"
	"time"
)

// CreateTestSession creates a session with a short tool-using exchange
func CreateTestSession(id string) *Session {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Session{
		SessionInfo: SessionInfo{ID: id, Title: "Password help", CreatedAt: created},
		Messages: []Message{
			{ID: id + "-u1", Role: RoleUser, Content: "Generate a password", CreatedAt: created},
			{
				ID:      id + "-m1",
				Role:    RoleModel,
				Content: "Let me generate one.",
				ToolCalls: []ToolCall{{
					ID:     "call-1",
					Name:   "tools__generate_secure_password",
					Args:   json.RawMessage(`{"length":16}`),
					State:  ToolCallCompleted,
					Result: "s3cr3t-Pa55word!",
				}},
				Feedback:  FeedbackLiked,
				CreatedAt: created.Add(time.Second),
			},
			{
				ID:           id + "-r1",
				Role:         RoleUser,
				Content:      "s3cr3t-Pa55word!",
				IsToolResult: true,
				ToolCallID:   "call-1",
				CreatedAt:    created.Add(2 * time.Second),
			},
		},
	}
}

// CreateTestSessionWithMessages creates a session holding the given messages
func CreateTestSessionWithMessages(id string, messages []Message) *Session {
	return &Session{
		SessionInfo: SessionInfo{ID: id, Title: DefaultSessionTitle, CreatedAt: time.Now().UTC()},
		Messages:    messages,
	}
}
