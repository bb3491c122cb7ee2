package internal

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestShowProgress(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		tty      bool
		fn       func() error
		wantErr  bool
		wantMark string
	}{
		{name: "plain success", fn: func() error { return nil }},
		{name: "plain error", fn: func() error { return errors.New("boom") }, wantErr: true},
		{
			name:     "terminal success",
			tty:      true,
			fn:       func() error { time.Sleep(150 * time.Millisecond); return nil },
			wantMark: "✓",
		},
		{name: "terminal error", tty: true, fn: func() error { return errors.New("boom") }, wantErr: true, wantMark: "✗"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := showProgress(ctx, &buf, tt.tty, "Connecting", tt.fn)
			if (err != nil) != tt.wantErr {
				t.Errorf("showProgress() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantMark != "" && !strings.Contains(buf.String(), tt.wantMark) {
				t.Errorf("output %q missing %q", buf.String(), tt.wantMark)
			}
			if !tt.tty && buf.Len() != 0 {
				t.Errorf("non-terminal output = %q, want none", buf.String())
			}
		})
	}
}

func TestShowProgress_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	var buf bytes.Buffer
	err := showProgress(ctx, &buf, true, "Waiting", func() error {
		<-release
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("showProgress() error = %v, want context.Canceled", err)
	}
}

func TestIsTerminal_Buffer(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Error("isTerminal(buffer) = true")
	}
}

func TestIsCIEnvironment(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"none", map[string]string{}, false},
		{"ci true", map[string]string{"CI": "true"}, true},
		{"ci false", map[string]string{"CI": "false"}, false},
		{"github", map[string]string{"GITHUB_ACTIONS": "true"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "BUILDKITE"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := IsCIEnvironment(); got != tt.want {
				t.Errorf("IsCIEnvironment() = %v, want %v", got, tt.want)
			}
		})
	}
}
