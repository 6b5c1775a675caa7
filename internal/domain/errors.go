package domain

import "errors"

var (
	// ErrScanIO means a file in the project tree could not be read.
	ErrScanIO = errors.New("scan i/o error")

	// ErrEmbeddingUnavailable means the embedding backend failed or was unreachable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrIndexNotFound means no persisted index exists at the configured path.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexCorrupt means a persisted index exists but cannot be decoded.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrIndexIncompatible means the index was built with a different embedding model.
	ErrIndexIncompatible = errors.New("index built with a different embedding model")

	// ErrModelUnavailable means the chat model failed or was unreachable.
	ErrModelUnavailable = errors.New("chat model unavailable")

	// ErrInvalidInput means an argument or setting is out of range.
	ErrInvalidInput = errors.New("invalid input")
)
