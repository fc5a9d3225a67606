package retrieval

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

var (
	// ErrIndexEmpty is returned when an index is built or loaded without chunks.
	ErrIndexEmpty = errors.New("index has no chunks")
	// ErrDimensionMismatch is returned when vectors disagree on size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Candidate is one search hit with its inner-product similarity.
type Candidate struct {
	Chunk *Chunk
	Score float64
}

// Filter selects chunks eligible for a search.
type Filter func(*Chunk) bool

// IntentFilter keeps chunks tagged with in.
func IntentFilter(in intent.Intent) Filter {
	return func(c *Chunk) bool { return c.Metadata.HasIntent(in) }
}

// Index is an immutable flat inner-product index over L2-normalised
// vectors. It is safe for concurrent use without locking because nothing
// mutates it after NewIndex returns.
type Index struct {
	chunks   []Chunk
	dims     int
	embedder string
	tagged   map[intent.Intent]int
}

// NewIndex copies and normalises chunks. embedder names the model that
// produced the vectors so queries can be checked against it.
func NewIndex(chunks []Chunk, embedder string) (*Index, error) {
	if len(chunks) == 0 {
		return nil, ErrIndexEmpty
	}
	ix := &Index{
		chunks:   make([]Chunk, len(chunks)),
		dims:     len(chunks[0].Embedding),
		embedder: embedder,
		tagged:   make(map[intent.Intent]int),
	}
	for i, c := range chunks {
		if len(c.Embedding) != ix.dims {
			return nil, fmt.Errorf("chunk %s: %w (%d != %d)", c.ID, ErrDimensionMismatch, len(c.Embedding), ix.dims)
		}
		c.Embedding = normalized(c.Embedding)
		ix.chunks[i] = c
		for _, in := range c.Metadata.Intents {
			ix.tagged[in]++
		}
	}
	return ix, nil
}

// Len returns the number of chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Dimensions returns the vector size.
func (ix *Index) Dimensions() int { return ix.dims }

// Embedder returns the name of the embedder that built the index.
func (ix *Index) Embedder() string { return ix.embedder }

// Tagged reports how many chunks carry the intent tag.
func (ix *Index) Tagged(in intent.Intent) int { return ix.tagged[in] }

// Chunks returns the indexed chunks. Callers must not modify them.
func (ix *Index) Chunks() []Chunk { return ix.chunks }

// Search returns up to k chunks with the highest similarity to query,
// restricted by filter when it is non-nil. Ties are broken by chunk id.
func (ix *Index) Search(query []float32, k int, filter Filter) ([]Candidate, error) {
	if len(query) != ix.dims {
		return nil, fmt.Errorf("query: %w (%d != %d)", ErrDimensionMismatch, len(query), ix.dims)
	}
	if k <= 0 {
		return nil, nil
	}
	q := normalized(query)

	cands := make([]Candidate, 0, len(ix.chunks))
	for i := range ix.chunks {
		c := &ix.chunks[i]
		if filter != nil && !filter(c) {
			continue
		}
		cands = append(cands, Candidate{Chunk: c, Score: dot(q, c.Embedding)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].Chunk.ID < cands[j].Chunk.ID
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func normalized(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	inv := 1 / math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
