// Package hashing implements an offline embedder that maps word features into
// a fixed number of buckets. It needs no corpus preparation, so the same
// instance embeds documents at scan time and questions at query time.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const DefaultDimension = 512

// Embedder implements a signed feature-hashing vectorizer with sublinear term frequency.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder producing vectors of the given size.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}[\p{L}\p{N}_]*(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Embedder) Name() string { return fmt.Sprintf("hashing/%d", e.dimension) }

func (e *Embedder) Dimension() int { return e.dimension }

// Embed never fails; text without tokens maps to the zero vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, tok := range e.tokenize(text) {
		counts[tok]++
	}
	acc := make([]float64, e.dimension)
	for tok, n := range counts {
		idx, sign := e.bucket(tok)
		acc[idx] += sign * (1 + math.Log(float64(n)))
	}
	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec, nil
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (e *Embedder) bucket(tok string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1
	}
	return int(sum % uint64(e.dimension)), sign
}

// tokenize lower-cases text, drops stopwords and also emits the parts of
// snake_case and camelCase identifiers.
func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		parts := splitIdentifier(t)
		if len(parts) > 1 {
			out = append(out, strings.ToLower(t))
		}
		for _, p := range parts {
			p = strings.ToLower(p)
			if _, isStop := e.stopwords[p]; isStop {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

func splitIdentifier(tok string) []string {
	var parts []string
	for _, seg := range strings.Split(tok, "_") {
		if seg == "" {
			continue
		}
		start := 0
		runes := []rune(seg)
		for i := 1; i < len(runes); i++ {
			if isUpper(runes[i]) && !isUpper(runes[i-1]) {
				parts = append(parts, string(runes[start:i]))
				start = i
			}
		}
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
