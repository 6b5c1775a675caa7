package domain

import "context"

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder is implemented by embedders that accept several texts per request.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel produces one reply for an ordered list of messages.
type ChatModel interface {
	Name() string
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Chunker splits a document into chunks suitable for retrieval indexing.
type Chunker interface {
	Split(doc Document) []Chunk
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
