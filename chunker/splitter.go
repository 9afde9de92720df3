package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxSize is the target maximum chunk size in characters.
	DefaultMaxSize = 500
	// DefaultOverlap is the number of characters shared by consecutive chunks.
	DefaultOverlap = 100
)

// DefaultSeparators are tried in order, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", ";"}

// ErrInvalidConfig indicates an unusable splitter configuration.
var ErrInvalidConfig = errors.New("invalid splitter configuration")

// Splitter splits text into overlapping chunks. The zero value is not
// usable; call New or fill in every field.
type Splitter struct {
	MaxSize    int
	Overlap    int
	Separators []string
}

// Option configures a Splitter.
type Option func(*Splitter) error

// WithMaxSize sets the maximum chunk size in characters.
func WithMaxSize(size int) Option {
	return func(s *Splitter) error {
		s.MaxSize = size
		return nil
	}
}

// WithOverlap sets the overlap between consecutive chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) error {
		s.Overlap = overlap
		return nil
	}
}

// WithSeparators replaces the separator preference list.
func WithSeparators(seps ...string) Option {
	return func(s *Splitter) error {
		s.Separators = seps
		return nil
	}
}

// New creates a Splitter with the default configuration modified by opts.
func New(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		MaxSize:    DefaultMaxSize,
		Overlap:    DefaultOverlap,
		Separators: DefaultSeparators,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the splitter configuration.
func (s *Splitter) Validate() error {
	if s.MaxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, s.MaxSize)
	}
	if s.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, s.Overlap)
	}
	if s.Overlap >= s.MaxSize {
		return fmt.Errorf("%w: overlap %d must be smaller than max size %d", ErrInvalidConfig, s.Overlap, s.MaxSize)
	}
	for _, sep := range s.Separators {
		if sep == "" {
			return fmt.Errorf("%w: empty separator", ErrInvalidConfig)
		}
	}
	return nil
}

// Split returns the chunks of text in document order. Empty input yields no
// chunks and any other input yields at least one. A chunk only exceeds
// MaxSize when it is a single unit that no separator could break.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	units := s.atomize(text, 0, nil)
	chunks := s.merge(units)

	kept := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return []string{text}
	}
	return kept
}

// atomize breaks text into units no longer than MaxSize, using separators
// from level onwards. Units that no separator can break are kept whole.
func (s *Splitter) atomize(text string, level int, units []string) []string {
	if size(text) <= s.MaxSize || level >= len(s.Separators) {
		return append(units, text)
	}
	sep := s.Separators[level]
	if !strings.Contains(text, sep) {
		return s.atomize(text, level+1, units)
	}
	for _, piece := range strings.SplitAfter(text, sep) {
		if piece == "" {
			continue
		}
		if size(piece) > s.MaxSize {
			units = s.atomize(piece, level+1, units)
		} else {
			units = append(units, piece)
		}
	}
	return units
}

// merge packs consecutive units into chunks of at most MaxSize, carrying
// trailing units of up to Overlap characters into the next chunk.
func (s *Splitter) merge(units []string) []string {
	var (
		chunks  []string
		window  []string
		winSize int
	)
	flush := func() {
		if len(window) > 0 {
			chunks = append(chunks, strings.Join(window, ""))
		}
	}
	for _, unit := range units {
		n := size(unit)
		if winSize+n > s.MaxSize && len(window) > 0 {
			flush()
			// Keep the longest suffix that fits the overlap and still leaves
			// room for the incoming unit.
			for len(window) > 0 && (winSize > s.Overlap || winSize+n > s.MaxSize) {
				winSize -= size(window[0])
				window = window[1:]
			}
		}
		window = append(window, unit)
		winSize += n
	}
	flush()
	return chunks
}

func size(s string) int {
	return utf8.RuneCountInString(s)
}
