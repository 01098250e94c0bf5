package similarity

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder turns text into a unit-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// HashEmbedder is a feature-hashing bag-of-words embedder. Texts sharing
// vocabulary land close together, which is all reconciliation needs, and it
// runs without a model runtime.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns an embedder producing vectors of the given size.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Dimensions returns the vector size.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed hashes each content word (and adjacent word pair) into a bucket with
// a hash-derived sign, then L2-normalises. Text with no content words yields
// the zero vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)

	var prev string
	for _, w := range Words(text) {
		if len(w) < 2 || IsStopWord(w) {
			continue
		}
		e.add(vec, w, 1)
		if prev != "" {
			e.add(vec, prev+" "+w, 0.5)
		}
		prev = w
	}

	normalize(vec)
	return vec, nil
}

func (e *HashEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dimensions))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}

// Cosine returns the cosine similarity of two unit vectors, clamped to [0, 1].
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return math.Max(0, math.Min(1, dot))
}
