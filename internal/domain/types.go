package domain

import (
	"strings"
	"time"
)

// Document is a single source file loaded from the project tree.
type Document struct {
	Source string
	Text   string
}

// Chunk is a contiguous window of a document's text.
type Chunk struct {
	Source   string
	Text     string
	Position int // order within the document
	Offset   int // rune offset into the document
}

// Record is an embedded chunk as stored in the vector index.
type Record struct {
	ID     string
	Seq    int
	Source string
	Text   string
	Vector []float32
}

// SearchResult is a record matched by a similarity query.
// Distance is cosine distance; Score is 1 - Distance.
type SearchResult struct {
	Record   Record
	Distance float64
	Score    float64
}

// Manifest lists the distinct sources of an index in first-seen order.
type Manifest []string

// NewManifest collects chunk sources, dropping repeats but keeping order.
func NewManifest(chunks []Chunk) Manifest {
	seen := make(map[string]struct{}, len(chunks))
	out := make(Manifest, 0)
	for _, c := range chunks {
		if _, ok := seen[c.Source]; ok {
			continue
		}
		seen[c.Source] = struct{}{}
		out = append(out, c.Source)
	}
	return out
}

func (m Manifest) String() string {
	return strings.Join(m, ", ")
}

// Snapshot is the output of one indexing pass. Records and manifest
// are persisted together so they always describe the same build.
type Snapshot struct {
	BuildID   string
	Model     string
	Dimension int
	CreatedAt time.Time
	Manifest  Manifest
	Records   []Record
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat prompt. History turns use the same shape.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type RetrievalMode string

const (
	ModeDirect   RetrievalMode = "direct"
	ModeSemantic RetrievalMode = "semantic"
	ModeEmpty    RetrievalMode = "empty"
)

// EmptyContext is sent to the model when nothing could be retrieved.
const EmptyContext = "No context found."

// RetrievedContext is the formatted context block handed to the prompt builder.
type RetrievedContext struct {
	Text    string
	Sources []string
	Mode    RetrievalMode
}
