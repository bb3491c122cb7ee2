package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/iksnae/mcp-station/internal"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(session *internal.Session, w io.Writer) error
	Extension() string
}

// Formats lists the accepted format names
const Formats = "jsonl, md, yaml, json (append .zst to compress)"

// NewExporter creates a new exporter based on format. A ".zst" suffix wraps
// the exporter in zstd compression.
func NewExporter(format string) (Exporter, error) {
	if base, ok := strings.CutSuffix(format, ".zst"); ok {
		inner, err := NewExporter(base)
		if err != nil {
			return nil, err
		}
		return &ZstdExporter{Inner: inner}, nil
	}
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: %s)", format, Formats)
	}
}

// WithImages makes formats that drop inline image data keep it
func WithImages(e Exporter) Exporter {
	switch x := e.(type) {
	case *JSONExporter:
		x.KeepImages = true
	case *ZstdExporter:
		WithImages(x.Inner)
	}
	return e
}

// ZstdExporter compresses the output of another exporter
type ZstdExporter struct {
	Inner Exporter
}

// Export streams the inner format through a zstd encoder
func (e *ZstdExporter) Export(session *internal.Session, w io.Writer) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	if err := e.Inner.Export(session, enc); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Extension returns the inner extension with .zst appended
func (e *ZstdExporter) Extension() string {
	return e.Inner.Extension() + ".zst"
}

// Decompress wraps r in a zstd decoder, for reading back compressed exports
func Decompress(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// FileName is the name an exported session is written under
func FileName(e Exporter, sessionID string) string {
	return fmt.Sprintf("session_%s.%s", sessionID, e.Extension())
}

// WriteFile exports session into dir and returns the file path
func WriteFile(e Exporter, session *internal.Session, dir string) (string, error) {
	path := filepath.Join(dir, FileName(e, session.ID))
	file, err := os.Create(path)
	if err != nil {
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	if err := e.Export(session, file); err != nil {
		_ = file.Close()
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	return path, nil
}
