package retrieval

import (
	"sort"
	"time"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

// Rerank weights.
const (
	IntentMatchBoost = 0.10
	PolicyDocBoost   = 0.05
	MaxFreshBoost    = 0.02
	FreshnessWindow  = 180 * 24 * time.Hour
)

// Result is a reranked candidate.
type Result struct {
	Chunk *Chunk
	// Similarity is the raw inner product from the index.
	Similarity float64
	// Score is Similarity plus metadata boosts.
	Score float64
}

// Rerank scores candidates with metadata signals, sorts them descending and
// keeps at most topK. Equal scores fall back to the higher base similarity
// and then the chunk id.
func Rerank(cands []Candidate, in intent.Intent, topK int, now time.Time) []Result {
	if topK <= 0 {
		return nil
	}
	out := make([]Result, 0, len(cands))
	for _, c := range cands {
		out = append(out, Result{
			Chunk:      c.Chunk,
			Similarity: c.Score,
			Score:      c.Score + boost(&c.Chunk.Metadata, in, now),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Chunk.ID < out[j].Chunk.ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func boost(m *Metadata, in intent.Intent, now time.Time) float64 {
	var b float64
	if m.HasIntent(in) {
		b += IntentMatchBoost
	}
	if m.DocumentType == DocTypePolicy {
		b += PolicyDocBoost
	}
	return b + freshness(m.UpdatedAt, now)
}

// freshness decays linearly from MaxFreshBoost at now to zero at
// FreshnessWindow. Unknown or future dates score zero.
func freshness(updated, now time.Time) float64 {
	if updated.IsZero() {
		return 0
	}
	age := now.Sub(updated)
	if age < 0 || age >= FreshnessWindow {
		return 0
	}
	return MaxFreshBoost * (1 - float64(age)/float64(FreshnessWindow))
}
