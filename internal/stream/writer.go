package stream

import (
	"fmt"
	"net/http"

	"github.com/tmaxmax/go-sse"
)

// Writer emits events to an HTTP response using the same framing Read expects
type Writer struct {
	sess *sse.Session
}

// NewWriter upgrades the response to an event stream
func NewWriter(w http.ResponseWriter, r *http.Request) (*Writer, error) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade session: %w", err)
	}
	return &Writer{sess: sess}, nil
}

// Send writes and flushes a single event
func (w *Writer) Send(ev Event) error {
	payload, err := MarshalEvent(ev)
	if err != nil {
		return err
	}
	return w.send(string(payload))
}

// Done writes the end-of-stream sentinel
func (w *Writer) Done() error {
	return w.send(doneSentinel)
}

func (w *Writer) send(data string) error {
	msg := &sse.Message{}
	msg.AppendData(data)
	if err := w.sess.Send(msg); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := w.sess.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	return nil
}
