package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriter_ReadBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw, err := NewWriter(w, r)
		if err != nil {
			t.Errorf("NewWriter() error = %v", err)
			return
		}
		events := []Event{
			TextEvent{Content: "Hel"},
			TextEvent{Content: "lo"},
			ToolApprovalRequestEvent{Tool: ToolRequest{ID: "c1", Name: "tools__calculate_hash"}},
		}
		for _, ev := range events {
			if err := sw.Send(ev); err != nil {
				t.Errorf("Send() error = %v", err)
			}
		}
		if err := sw.Done(); err != nil {
			t.Errorf("Done() error = %v", err)
		}
	}))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", nil)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	var text string
	var approvals int
	res, err := Read(context.Background(), resp.Body, func(ev Event) {
		switch e := ev.(type) {
		case TextEvent:
			text += e.Content
		case ToolApprovalRequestEvent:
			approvals++
		}
	})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if res != ResultDone {
		t.Errorf("Read() result = %v, want done", res)
	}
	if text != "Hello" || approvals != 1 {
		t.Errorf("text = %q approvals = %d", text, approvals)
	}
}
