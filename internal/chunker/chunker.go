package chunker

import (
	"fmt"

	"mitey/internal/domain"
)

const (
	DefaultSize    = 800
	DefaultOverlap = 100
)

// Options control the window length and the overlap between
// consecutive chunks, both measured in runes.
type Options struct {
	Size    int
	Overlap int
}

func DefaultOptions() Options {
	return Options{Size: DefaultSize, Overlap: DefaultOverlap}
}

func (o Options) validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, o.Size)
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrInvalidInput, o.Size, o.Overlap)
	}
	return nil
}

// New returns a chunker for the named policy: "recursive" (default) or "fixed".
func New(kind string, opts Options) (domain.Chunker, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	switch kind {
	case "fixed":
		return &FixedChunker{opts: opts}, nil
	case "", "recursive":
		return &RecursiveChunker{opts: opts, separators: defaultSeparators}, nil
	default:
		return nil, fmt.Errorf("%w: unknown chunker type %q", domain.ErrInvalidInput, kind)
	}
}

func newChunk(source string, runes []rune, start, end, position int) domain.Chunk {
	return domain.Chunk{
		Source:   source,
		Text:     string(runes[start:end]),
		Position: position,
		Offset:   start,
	}
}
