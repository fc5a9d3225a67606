package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// FakeEmbedderDims is the vector size produced by HashEmbedder.
const FakeEmbedderDims = 64

// HashEmbedder is a deterministic bag-of-words embedder: each lower-cased word
// is hashed into one of FakeEmbedderDims buckets and the vector is
// L2-normalised. Texts sharing words get high cosine similarity, which is all
// retrieval tests need.
type HashEmbedder struct {
	// FailTimes makes the first N calls return Err (transient failure).
	FailTimes int32
	Err       error

	calls atomic.Int32
	mu    sync.Mutex
	texts []string
}

// Name returns "hash".
func (e *HashEmbedder) Name() string { return "hash" }

// Dimensions returns FakeEmbedderDims.
func (e *HashEmbedder) Dimensions() int { return FakeEmbedderDims }

// Embed returns the bag-of-words vector for text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := e.calls.Add(1)
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil && n <= e.FailTimes {
		return nil, e.Err
	}
	return HashVector(text), nil
}

// Calls returns how many times Embed was invoked.
func (e *HashEmbedder) Calls() int { return int(e.calls.Load()) }

// HashVector computes the vector HashEmbedder returns for text.
func HashVector(text string) []float32 {
	vec := make([]float32, FakeEmbedderDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%FakeEmbedderDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
