package core

import (
	"errors"
	"testing"
)

func TestValidateText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{name: "plain text", text: "Take ibuprofen with food.", wantErr: nil},
		{name: "unicode text", text: "Prenez le médicament après le repas.", wantErr: nil},
		{name: "empty", text: "", wantErr: ErrEmptyContent},
		{name: "whitespace only", text: " \n\t ", wantErr: ErrEmptyContent},
		{name: "invalid utf8", text: "abc\xff\xfe", wantErr: ErrInvalidEncoding},
		{name: "nul byte", text: "abc\x00def", wantErr: ErrBinaryContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText(tt.text)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateText() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateText() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrChunking) {
				t.Errorf("ValidateText() error = %v, want it to wrap ErrChunking", err)
			}
		})
	}
}

func TestValidateDocument(t *testing.T) {
	if err := ValidateDocument(nil); !errors.Is(err, ErrChunking) {
		t.Errorf("ValidateDocument(nil) error = %v", err)
	}
	if err := ValidateDocument(&Document{Text: "x"}); !errors.Is(err, ErrEmptyDocumentID) {
		t.Errorf("ValidateDocument() missing id error = %v", err)
	}
	if err := ValidateDocument(&Document{ID: "d", Text: "x"}); err != nil {
		t.Errorf("ValidateDocument() error = %v", err)
	}
}

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		ns      string
		wantErr bool
	}{
		{ns: "medical", wantErr: false},
		{ns: "buddy-42", wantErr: false},
		{ns: "", wantErr: true},
		{ns: "a:b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ns, func(t *testing.T) {
			err := ValidateNamespace(tt.ns)
			if tt.wantErr && !errors.Is(err, ErrInvalidNamespace) {
				t.Errorf("ValidateNamespace(%q) error = %v, want ErrInvalidNamespace", tt.ns, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateNamespace(%q) error = %v", tt.ns, err)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	valid := Chunk{DocumentID: "d", Text: "t", Vector: []float32{1}}

	tests := []struct {
		name    string
		mutate  func(c *Chunk)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Chunk) {}, wantErr: false},
		{name: "missing document", mutate: func(c *Chunk) { c.DocumentID = "" }, wantErr: true},
		{name: "negative ordinal", mutate: func(c *Chunk) { c.Ordinal = -1 }, wantErr: true},
		{name: "empty text", mutate: func(c *Chunk) { c.Text = "" }, wantErr: true},
		{name: "missing vector", mutate: func(c *Chunk) { c.Vector = nil }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := ValidateChunk(&c)
			if tt.wantErr != (err != nil) {
				t.Errorf("ValidateChunk() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidChunk) {
				t.Errorf("ValidateChunk() error = %v, want ErrInvalidChunk", err)
			}
		})
	}

	if err := ValidateChunk(nil); !errors.Is(err, ErrInvalidChunk) {
		t.Errorf("ValidateChunk(nil) error = %v", err)
	}
}
