// Package toolserver is the bundled demo MCP server: utilities a model cannot
// do reliably on its own, served over stdio.
package toolserver

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	Name        = "station-tools"
	AboutURI    = "station://about"
	maxPassword = 64
	maxUUIDs    = 10
	symbols     = "!@#$%^&*()_+-="
	alphanum    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Option configures the tool set
type Option func(*tools)

// WithClock replaces the time source used by date_calculation
func WithClock(now func() time.Time) Option {
	return func(t *tools) { t.now = now }
}

type tools struct {
	now func() time.Time
}

// New builds the MCP server with every tool, the about resource and the
// credentials prompt registered
func New(version string, opts ...Option) *server.MCPServer {
	t := &tools{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}

	s := server.NewMCPServer(Name, version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("generate_secure_password",
		mcp.WithDescription("Generates a cryptographically secure random password."),
		mcp.WithNumber("length",
			mcp.Description("Password length"),
			mcp.DefaultNumber(16),
			mcp.Min(4),
			mcp.Max(maxPassword),
		),
		mcp.WithBoolean("include_symbols",
			mcp.Description("Include punctuation characters"),
			mcp.DefaultBool(true),
		),
	), t.handlePassword)

	s.AddTool(mcp.NewTool("calculate_hash",
		mcp.WithDescription("Calculates the hash of a string. Supported algorithms: md5, sha1, sha256, sha512."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to hash"),
		),
		mcp.WithString("algorithm",
			mcp.Description("Hash algorithm"),
			mcp.Enum("md5", "sha1", "sha256", "sha512"),
			mcp.DefaultString("sha256"),
		),
	), t.handleHash)

	s.AddTool(mcp.NewTool("generate_uuid",
		mcp.WithDescription("Generates random version 4 UUIDs."),
		mcp.WithNumber("count",
			mcp.Description("How many to generate (at most 10)"),
			mcp.DefaultNumber(1),
			mcp.Min(1),
		),
	), t.handleUUID)

	s.AddTool(mcp.NewTool("date_calculation",
		mcp.WithDescription("Calculates the date a number of days from now and reports the current server time."),
		mcp.WithNumber("days_offset",
			mcp.Required(),
			mcp.Description("Days to add; negative values go back"),
		),
		mcp.WithString("format",
			mcp.Description("Go time layout for the target date"),
			mcp.DefaultString(time.DateOnly),
		),
	), t.handleDate)

	s.AddResource(mcp.NewResource(AboutURI, "about",
		mcp.WithResourceDescription("What this server offers"),
		mcp.WithMIMEType("text/plain"),
	), func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      AboutURI,
			MIMEType: "text/plain",
			Text: fmt.Sprintf("%s %s: password generation, hashing, UUIDs and date arithmetic.",
				Name, version),
		}}, nil
	})

	s.AddPrompt(mcp.NewPrompt("generate_credentials",
		mcp.WithPromptDescription("Template to create a set of dummy credentials for testing."),
		mcp.WithArgument("username", mcp.ArgumentDescription("Optional user name to include")),
	), handleCredentialsPrompt)

	return s
}

// ServeStdio serves the tool server on stdin/stdout until the client goes away
func ServeStdio(version string) error {
	return server.ServeStdio(New(version))
}

func (t *tools) handlePassword(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	length := req.GetInt("length", 16)
	if length > maxPassword {
		return mcp.NewToolResultError("length too long"), nil
	}
	if length < 1 {
		return mcp.NewToolResultError("length must be positive"), nil
	}
	chars := alphanum
	if req.GetBool("include_symbols", true) {
		chars += symbols
	}
	password, err := randomString(chars, length)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(fmt.Sprintf("Generated password: %s", password)), nil
}

func randomString(chars string, n int) (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(chars)))
	for range n {
		i, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read randomness: %w", err)
		}
		b.WriteByte(chars[i.Int64()])
	}
	return b.String(), nil
}

func (t *tools) handleHash(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	algorithm := strings.ToLower(req.GetString("algorithm", "sha256"))
	var h hash.Hash
	switch algorithm {
	case "md5":
		h = md5.New()
	case "sha1":
		h = sha1.New()
	case "sha256":
		h = sha256.New()
	case "sha512":
		h = sha512.New()
	default:
		return mcp.NewToolResultError(fmt.Sprintf("algorithm %q not supported", algorithm)), nil
	}
	h.Write([]byte(text))
	return mcp.NewToolResultText(fmt.Sprintf("%s hash:\n%s", strings.ToUpper(algorithm), hex.EncodeToString(h.Sum(nil)))), nil
}

func (t *tools) handleUUID(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	count := min(max(req.GetInt("count", 1), 1), maxUUIDs)
	lines := make([]string, count)
	for i := range lines {
		lines[i] = "- " + uuid.NewString()
	}
	return mcp.NewToolResultText("UUIDs:\n" + strings.Join(lines, "\n")), nil
}

func (t *tools) handleDate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days, err := req.RequireInt("days_offset")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	layout := req.GetString("format", time.DateOnly)
	now := t.now()
	target := now.AddDate(0, 0, days)
	return mcp.NewToolResultText(fmt.Sprintf("Date calculation:\n- Current time: %s\n- Target date (%d days): %s\n- Day of week: %s",
		now.Format(time.DateTime), days, target.Format(layout), target.Weekday())), nil
}

func handleCredentialsPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	text := "Please generate a set of test credentials for a new user.\n" +
		"1. Create a secure 16-char password.\n" +
		"2. Generate a UUID for their User ID.\n" +
		"3. Calculate the SHA256 hash of the password (for DB storage simulation)."
	if name := req.Params.Arguments["username"]; name != "" {
		text = fmt.Sprintf("The user name is %s.\n%s", name, text)
	}
	return mcp.NewGetPromptResult("Test credentials", []mcp.PromptMessage{
		mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text)),
	}), nil
}
