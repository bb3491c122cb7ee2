package console

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/iksnae/mcp-station/internal"
	"github.com/iksnae/mcp-station/internal/api"
	"github.com/iksnae/mcp-station/testutil"
)

func TestSend_ConcatenatesTextInOrder(t *testing.T) {
	deltas := []string{"He", "llo", "", " wor", "ld", "!\n"}
	fb := newFakeBackend()
	fb.chatBody = func(api.ChatRequest) (io.ReadCloser, error) {
		var frames []string
		for _, d := range deltas {
			frames = append(frames, testutil.TextFrame(t, d))
		}
		return body(append(frames, testutil.DoneFrame)...), nil
	}
	o := newTestOrchestrator(t, fb)

	state, err := o.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if state != TurnSettled {
		t.Errorf("Send() state = %v, want settled", state)
	}

	sessionID := o.Projection().ActiveID()
	if sessionID == "" {
		t.Fatal("Send() did not create a session")
	}
	msgs := o.Projection().Messages(sessionID)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].Role != internal.RoleUser || msgs[0].Content != "hi" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if got := msgs[1].Content; got != "Hello world!\n" {
		t.Errorf("placeholder content = %q, want %q", got, "Hello world!\n")
	}

	req := fb.lastChat(t)
	if req.ReplyID != msgs[1].ID {
		t.Errorf("reply_id = %q, want placeholder id %q", req.ReplyID, msgs[1].ID)
	}
	if req.History != nil {
		t.Errorf("plain send should not override history, got %v", req.History)
	}
	if view := o.Projection().View(sessionID); view.Busy || view.Error != "" {
		t.Errorf("view after settle = busy %v error %q", view.Busy, view.Error)
	}
}

func TestSend_Validation(t *testing.T) {
	o := newTestOrchestrator(t, newFakeBackend())
	if _, err := o.Send(context.Background(), "   ", nil); err == nil {
		t.Error("Send() of blank text should fail")
	}
	if o.Projection().ActiveID() != "" {
		t.Error("rejected send should not create a session")
	}
}

func TestSend_StreamErrorKeepsPartialText(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"typed error", testutil.ErrorFrame(t, "rate limited")},
		{"legacy error", `data: {"error":"rate limited"}` + "\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBackend()
			fb.chatBody = func(api.ChatRequest) (io.ReadCloser, error) {
				return body(testutil.TextFrame(t, "partial"), tt.frame, testutil.DoneFrame), nil
			}
			o := newTestOrchestrator(t, fb)
			state, _ := o.Send(context.Background(), "hi", nil)
			if state != TurnFailed {
				t.Errorf("state = %v, want failed", state)
			}
			id := o.Projection().ActiveID()
			view := o.Projection().View(id)
			if view.Error != "rate limited" {
				t.Errorf("session error = %q", view.Error)
			}
			if got := lastMessage(t, o.Projection(), id).Content; got != "partial" {
				t.Errorf("placeholder = %q, want partial text kept", got)
			}
		})
	}
}

func TestSend_TransportFailure(t *testing.T) {
	fb := newFakeBackend()
	fb.chatBody = func(api.ChatRequest) (io.ReadCloser, error) {
		return nil, &internal.TransportError{Endpoint: api.PathChat, StatusCode: 500, Detail: "No LLM provider initialized"}
	}
	o := newTestOrchestrator(t, fb)
	state, err := o.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("Send() error = %v, failures belong on the session", err)
	}
	if state != TurnFailed {
		t.Errorf("state = %v, want failed", state)
	}
	view := o.Projection().View(o.Projection().ActiveID())
	if view.Error == "" || view.Busy {
		t.Errorf("view = error %q busy %v", view.Error, view.Busy)
	}
}

func TestStop_PreservesPartialAndClearsError(t *testing.T) {
	pr, pw := io.Pipe()
	fb := newFakeBackend()
	fb.chatBody = func(api.ChatRequest) (io.ReadCloser, error) { return pr, nil }
	o := newTestOrchestrator(t, fb)

	done := make(chan TurnState, 1)
	go func() {
		state, _ := o.Send(context.Background(), "hi", nil)
		done <- state
	}()

	go pw.Write([]byte(testutil.TextFrame(t, "partial ans")))
	waitFor(t, "partial text", func() bool {
		id := o.Projection().ActiveID()
		msgs := o.Projection().Messages(id)
		return len(msgs) == 2 && msgs[1].Content == "partial ans"
	})

	o.Stop()
	if state := <-done; state != TurnAborted {
		t.Errorf("state = %v, want aborted", state)
	}
	id := o.Projection().ActiveID()
	view := o.Projection().View(id)
	if view.Error != "" {
		t.Errorf("cancel set session error %q", view.Error)
	}
	if got := view.Messages[1].Content; got != "partial ans" {
		t.Errorf("placeholder = %q after cancel", got)
	}
	if o.Running() {
		t.Error("live handle not released after cancel")
	}

	o.Stop()
	o.Stop()
}

func TestSend_TurnInProgress(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	fb := newFakeBackend()
	fb.chatBody = func(api.ChatRequest) (io.ReadCloser, error) { return pr, nil }
	o := newTestOrchestrator(t, fb)
	info, _ := o.CreateSession(context.Background())

	go o.Send(context.Background(), "first", nil)
	waitFor(t, "live turn", o.Running)

	if _, err := o.Send(context.Background(), "second", nil); !errors.Is(err, internal.ErrTurnInProgress) {
		t.Errorf("second Send() error = %v, want ErrTurnInProgress", err)
	}
	if n := len(o.Projection().Messages(info.ID)); n != 2 {
		t.Errorf("rejected send changed the log: %d messages", n)
	}
	o.Stop()
}

func TestSend_DropsEventsAfterSessionSwitch(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	fb := newFakeBackend()
	fb.chatBody = func(api.ChatRequest) (io.ReadCloser, error) { return pr, nil }
	o := newTestOrchestrator(t, fb)
	ctx := context.Background()
	first, _ := o.CreateSession(ctx)

	done := make(chan TurnState, 1)
	go func() {
		state, _ := o.Send(ctx, "hi", nil)
		done <- state
	}()
	pw.Write([]byte(testutil.TextFrame(t, "before ")))
	waitFor(t, "first chunk", func() bool {
		msgs := o.Projection().Messages(first.ID)
		return len(msgs) == 2 && msgs[1].Content == "before "
	})

	second, err := o.CreateSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pw.Write([]byte(testutil.TextFrame(t, "after")))
	pw.Write([]byte(testutil.DoneFrame))
	if state := <-done; state != TurnSettled {
		t.Errorf("state = %v, want settled", state)
	}

	if got := o.Projection().Messages(first.ID)[1].Content; got != "before " {
		t.Errorf("first session placeholder = %q, want no text after the switch", got)
	}
	if msgs := o.Projection().Messages(second.ID); len(msgs) != 0 {
		t.Errorf("second session gained messages: %+v", msgs)
	}
	if o.Projection().ActiveID() != second.ID {
		t.Errorf("active = %s, want %s", o.Projection().ActiveID(), second.ID)
	}
}

func seedSession(o *Orchestrator, id string, msgs ...internal.Message) {
	p := o.Projection()
	p.AddSession(internal.SessionInfo{ID: id, Title: "seeded"})
	p.SetMessages(id, msgs)
	p.SetActive(id)
}

func TestRegenerate_TruncatesBeforeLatestUser(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(t, fb)
	seedSession(o, "s1",
		internal.Message{ID: "u1", Role: internal.RoleUser, Content: "hi"},
		internal.Message{ID: "m1", Role: internal.RoleModel, Content: "hello"},
	)

	if _, err := o.Regenerate(context.Background()); err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	req := fb.lastChat(t)
	if req.History == nil || len(req.History) != 0 {
		t.Errorf("history override = %v, want empty list", req.History)
	}
	if req.NewMessage.Content != "hi" || req.NewMessage.ID != "u1" {
		t.Errorf("new message = %+v", req.NewMessage)
	}
	if req.TruncateFrom != "u1" {
		t.Errorf("truncate_from = %q, want u1", req.TruncateFrom)
	}
	msgs := o.Projection().Messages("s1")
	if len(msgs) != 2 || msgs[0].ID != "u1" || msgs[1].ID == "m1" {
		t.Errorf("log after regenerate = %v", msgIDs(msgs))
	}
}

func TestEdit_TruncatesBeforeEditedMessage(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(t, fb)
	seedSession(o, "s1",
		internal.Message{ID: "u1", Role: internal.RoleUser, Content: "hi"},
		internal.Message{ID: "m1", Role: internal.RoleModel, Content: "hello"},
	)

	if _, err := o.Edit(context.Background(), "u1", "hi there"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	req := fb.lastChat(t)
	if req.History == nil || len(req.History) != 0 {
		t.Errorf("history override = %v, want empty list", req.History)
	}
	if req.NewMessage.Content != "hi there" || req.NewMessage.ID == "u1" {
		t.Errorf("new message = %+v", req.NewMessage)
	}
	if req.TruncateFrom != "u1" {
		t.Errorf("truncate_from = %q, want the edited message u1", req.TruncateFrom)
	}
	msgs := o.Projection().Messages("s1")
	if len(msgs) != 2 || msgs[0].Content != "hi there" {
		t.Errorf("log after edit = %+v", msgs)
	}

	if _, err := o.Edit(context.Background(), msgs[1].ID, "x"); err == nil {
		t.Error("Edit() of a model message should fail")
	}
	if _, err := o.Edit(context.Background(), "nope", "x"); !errors.Is(err, internal.ErrMessageNotFound) {
		t.Errorf("Edit() unknown id error = %v", err)
	}
}

func TestRetry_SkipsToolResultsAndClearsError(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(t, fb)
	seedSession(o, "s1",
		internal.Message{ID: "u0", Role: internal.RoleUser, Content: "earlier"},
		internal.Message{ID: "m0", Role: internal.RoleModel, Content: "ok"},
		internal.Message{ID: "u1", Role: internal.RoleUser, Content: "run the tool"},
		internal.Message{ID: "m1", Role: internal.RoleModel, ToolCalls: []internal.ToolCall{{ID: "c1", Name: "t", State: internal.ToolCallFailed}}},
		internal.Message{ID: "r1", Role: internal.RoleUser, Content: "Tool 't' Output", IsToolResult: true},
	)
	o.Projection().SetError("s1", "boom")

	if _, err := o.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	req := fb.lastChat(t)
	if req.NewMessage.ID != "u1" || len(req.History) != 2 {
		t.Errorf("retry request = new %s history %d", req.NewMessage.ID, len(req.History))
	}
	if e := o.Projection().View("s1").Error; e != "" {
		t.Errorf("error after retry = %q", e)
	}
}

func TestToggleFeedback(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(t, fb)
	seedSession(o, "s1", internal.Message{ID: "m1", Role: internal.RoleModel, Content: "hello"})
	ctx := context.Background()

	steps := []struct {
		set  internal.Feedback
		want internal.Feedback
	}{
		{internal.FeedbackLiked, internal.FeedbackLiked},
		{internal.FeedbackLiked, internal.FeedbackNone},
		{internal.FeedbackDisliked, internal.FeedbackDisliked},
		{internal.FeedbackLiked, internal.FeedbackLiked},
	}
	for i, s := range steps {
		if err := o.ToggleFeedback(ctx, "m1", s.set); err != nil {
			t.Fatalf("step %d: ToggleFeedback() error = %v", i, err)
		}
		if got := o.Projection().Messages("s1")[0].Feedback; got != s.want {
			t.Errorf("step %d: feedback = %q, want %q", i, got, s.want)
		}
	}
	if len(fb.saved) != len(steps) {
		t.Errorf("persisted %d times, want %d", len(fb.saved), len(steps))
	}
	if err := o.ToggleFeedback(ctx, "missing", internal.FeedbackLiked); !errors.Is(err, internal.ErrMessageNotFound) {
		t.Errorf("ToggleFeedback() unknown id error = %v", err)
	}
}

func TestSessions_SelectCreateDelete(t *testing.T) {
	fb := newFakeBackend()
	o := newTestOrchestrator(t, fb)
	ctx := context.Background()

	first, _ := o.CreateSession(ctx)
	second, _ := o.CreateSession(ctx)
	fb.messages[first.ID] = []internal.Message{{ID: "u1", Role: internal.RoleUser, Content: "stored"}}

	if got := o.Projection().ActiveID(); got != second.ID {
		t.Errorf("active after create = %s, want %s", got, second.ID)
	}
	if err := o.SelectSession(ctx, first.ID); err != nil {
		t.Fatalf("SelectSession() error = %v", err)
	}
	if msgs := o.Projection().Messages(first.ID); len(msgs) != 1 || msgs[0].Content != "stored" {
		t.Errorf("loaded messages = %+v", msgs)
	}

	if err := o.DeleteSession(ctx, first.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if got := o.Projection().ActiveID(); got != second.ID {
		t.Errorf("active after delete = %q, want %q", got, second.ID)
	}
	if n := len(o.Projection().Sessions()); n != 1 {
		t.Errorf("sessions after delete = %d", n)
	}
}

func TestSend_RefreshesPlaceholderTitle(t *testing.T) {
	fb := newFakeBackend()
	fb.chatBody = func(req api.ChatRequest) (io.ReadCloser, error) {
		fb.mu.Lock()
		fb.sessions[0].Title = "Greeting"
		fb.mu.Unlock()
		return body(testutil.TextFrame(t, "hey"), testutil.DoneFrame), nil
	}
	o := newTestOrchestrator(t, fb)
	if _, err := o.Send(context.Background(), "hi", nil); err != nil {
		t.Fatal(err)
	}
	info, _ := o.Projection().SessionInfo(o.Projection().ActiveID())
	if info.Title != "Greeting" {
		t.Errorf("title = %q, want refreshed title", info.Title)
	}
}

func msgIDs(msgs []internal.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
