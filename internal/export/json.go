package export

import (
	"encoding/json"
	"io"

	"github.com/iksnae/mcp-station/internal"
)

// JSONExporter exports a session as one pretty-printed JSON document with a
// per-tool usage summary appended
type JSONExporter struct {
	// KeepImages retains inline image data; otherwise only the MIME type is written
	KeepImages bool
}

type toolUsage struct {
	Name   string `json:"name"`
	Calls  int    `json:"calls"`
	Failed int    `json:"failed,omitempty"`
}

type jsonDocument struct {
	*internal.Session
	Tools []toolUsage `json:"tools,omitempty"`
}

// Export exports a session to JSON format
func (e *JSONExporter) Export(session *internal.Session, w io.Writer) error {
	doc := jsonDocument{Session: session, Tools: summarizeTools(session.Messages)}
	if !e.KeepImages {
		doc.Session = withoutImageData(session)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Extension returns the file extension for this format
func (e *JSONExporter) Extension() string {
	return "json"
}

// summarizeTools counts calls per tool in order of first use
func summarizeTools(messages []internal.Message) []toolUsage {
	var usage []toolUsage
	index := map[string]int{}
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			i, ok := index[tc.Name]
			if !ok {
				i = len(usage)
				index[tc.Name] = i
				usage = append(usage, toolUsage{Name: tc.Name})
			}
			usage[i].Calls++
			if tc.State == internal.ToolCallFailed {
				usage[i].Failed++
			}
		}
	}
	return usage
}

func withoutImageData(session *internal.Session) *internal.Session {
	out := &internal.Session{SessionInfo: session.SessionInfo, Messages: session.Messages}
	copied := false
	for i, msg := range session.Messages {
		if msg.Image == nil || msg.Image.Data == "" {
			continue
		}
		if !copied {
			out.Messages = append([]internal.Message(nil), session.Messages...)
			copied = true
		}
		out.Messages[i].Image = &internal.ImageAttachment{MIMEType: msg.Image.MIMEType}
	}
	return out
}
