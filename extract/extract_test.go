package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/carebuddy/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromBytes(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		data    []byte
		want    string
		wantErr error
	}{
		{"plain text", "notes.txt", []byte("Take medication Y."), "Take medication Y.", nil},
		{"markdown", "GUIDE.MD", []byte("# Diet\nLow sodium."), "# Diet\nLow sodium.", nil},
		{"no extension", "notes", []byte("hello"), "hello", nil},
		{"byte order mark stripped", "bom.txt", []byte("\ufeffhello"), "hello", nil},
		{"invalid utf8", "bad.txt", []byte{0xff, 0xfe, 'a'}, "", core.ErrInvalidEncoding},
		{"binary", "bin.txt", []byte("ab\x00cd"), "", core.ErrBinaryContent},
		{"unsupported", "scan.png", []byte("png"), "", ErrUnsupportedFormat},
		{"malformed pdf by magic", "upload", []byte("%PDF-1.4 not really"), "", core.ErrChunking},
		{"malformed pdf by extension", "doc.pdf", []byte("garbage"), "", core.ErrChunking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromBytes(tt.file, tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, core.ErrChunking)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromBytes_TooLarge(t *testing.T) {
	_, err := FromBytes("big.txt", make([]byte, MaxFileSize+1))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guidance.txt")
	require.NoError(t, os.WriteFile(path, []byte("Walk daily."), 0o600))

	text, err := FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Walk daily.", text)

	_, err = FromFile(filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDocumentID(t *testing.T) {
	a := DocumentID(filepath.Join("clinic", "a", "notes.txt"))
	b := DocumentID(filepath.Join("clinic", "b", "notes.txt"))
	assert.NotEqual(t, a, b)
	assert.True(t, filepath.IsAbs(a))
	assert.Equal(t, a, DocumentID(filepath.Join("clinic", "a", ".", "notes.txt")))
}
