// Package extract pulls plain text out of uploaded document files.
//
// Plain text and Markdown are passed through unchanged. PDF files are
// recognised by their magic bytes or extension and reduced to their text
// layer.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/carebuddy/core"
)

// MaxFileSize is the largest upload accepted.
const MaxFileSize = 10 << 20

var (
	// ErrUnsupportedFormat is returned for files that are neither text nor PDF.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrNoText is returned when a PDF has no extractable text layer.
	ErrNoText = errors.New("no text extracted")

	// ErrTooLarge is returned for files over MaxFileSize.
	ErrTooLarge = errors.New("document too large")
)

var pdfMagic = []byte("%PDF-")

var textExtensions = map[string]bool{
	"":          true,
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

// DocumentID returns the default document ID of the file at path: its
// cleaned absolute path, so files sharing a name in different directories
// stay distinct.
func DocumentID(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// FromFile reads the document at path and returns its text.
func FromFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("%w: %w: %s is %d bytes", core.ErrChunking, ErrTooLarge, path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return FromBytes(filepath.Base(path), data)
}

// FromBytes returns the text of an uploaded document. name is only used
// for its extension. Failures wrap core.ErrChunking.
func FromBytes(name string, data []byte) (string, error) {
	if len(data) > MaxFileSize {
		return "", fmt.Errorf("%w: %w: %d bytes", core.ErrChunking, ErrTooLarge, len(data))
	}
	ext := strings.ToLower(filepath.Ext(name))
	if bytes.HasPrefix(data, pdfMagic) || ext == ".pdf" {
		return fromPDF(data)
	}
	if !textExtensions[ext] {
		return "", fmt.Errorf("%w: %w: %q", core.ErrChunking, ErrUnsupportedFormat, ext)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %w", core.ErrChunking, core.ErrInvalidEncoding)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: %w", core.ErrChunking, core.ErrBinaryContent)
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

func fromPDF(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf: %v", core.ErrChunking, r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %w", core.ErrChunking, err)
	}
	plain, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: read pdf text: %w", core.ErrChunking, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("%w: read pdf text: %w", core.ErrChunking, err)
	}
	if strings.TrimSpace(buf.String()) == "" {
		return "", fmt.Errorf("%w: %w", core.ErrChunking, ErrNoText)
	}
	return buf.String(), nil
}
