package stream

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/iksnae/mcp-station/internal"
)

const (
	framePrefix  = "data: "
	doneSentinel = "[DONE]"
)

var frameDelim = []byte("\n\n")

// Result says how a stream ended
type Result int

const (
	// ResultDone means the end-of-stream sentinel arrived
	ResultDone Result = iota
	// ResultEOF means the transport closed without a sentinel
	ResultEOF
	// ResultCanceled means the caller's context was cancelled
	ResultCanceled
)

func (r Result) String() string {
	switch r {
	case ResultDone:
		return "done"
	case ResultEOF:
		return "eof"
	case ResultCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Decoder turns arbitrarily split chunks into events. It is not safe for
// concurrent use.
type Decoder struct {
	buf  []byte
	done bool
}

// NewDecoder returns an empty decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether the end-of-stream sentinel has been seen
func (d *Decoder) Done() bool {
	return d.done
}

// Pending returns the buffered, not yet delimited, tail
func (d *Decoder) Pending() string {
	return string(d.buf)
}

// Feed appends chunk and dispatches every complete frame to handle.
// It returns true once the sentinel is seen; anything after it is discarded.
func (d *Decoder) Feed(chunk []byte, handle func(Event)) bool {
	if d.done {
		return true
	}
	d.buf = append(d.buf, chunk...)

	for {
		idx := bytes.Index(d.buf, frameDelim)
		if idx < 0 {
			return false
		}
		segment := bytes.TrimSpace(d.buf[:idx])
		d.buf = d.buf[idx+len(frameDelim):]

		if len(segment) == 0 {
			continue
		}
		if !bytes.HasPrefix(segment, []byte(framePrefix)) {
			internal.LogWarn("Skipping frame without data prefix: %v", &internal.DecodeError{Frame: string(segment), Err: errors.New("missing data prefix")})
			continue
		}
		payload := bytes.TrimSpace(segment[len(framePrefix):])
		if string(payload) == doneSentinel {
			d.done = true
			d.buf = nil
			return true
		}

		ev, err := ParseEvent(payload)
		if err != nil {
			internal.LogWarn("Skipping malformed frame: %v", &internal.DecodeError{Frame: string(payload), Err: err})
			continue
		}
		handle(ev)
	}
}

// Read decodes r until the sentinel, end of input or cancellation of ctx.
// Cancellation closes r when it is an io.Closer so a blocked read returns;
// it is reported as ResultCanceled with a nil error and no further events
// are delivered. Transport failures are returned as errors.
func Read(ctx context.Context, r io.Reader, handle func(Event)) (Result, error) {
	if ctx.Err() != nil {
		return ResultCanceled, nil
	}
	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	dec := NewDecoder()
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if ctx.Err() != nil {
			return ResultCanceled, nil
		}
		if n > 0 {
			done := dec.Feed(chunk[:n], func(ev Event) {
				if ctx.Err() == nil {
					handle(ev)
				}
			})
			if ctx.Err() != nil {
				return ResultCanceled, nil
			}
			if done {
				return ResultDone, nil
			}
		}
		if errors.Is(err, io.EOF) {
			if rest := bytes.TrimSpace(dec.buf); len(rest) > 0 {
				internal.LogDebug("Stream closed with %d undelimited bytes", len(rest))
			}
			return ResultEOF, nil
		}
		if err != nil {
			return ResultEOF, err
		}
	}
}
