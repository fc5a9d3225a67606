package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
)

// Retriever defaults.
const (
	DefaultTopK                = 3
	DefaultSimilarityThreshold = 0.5
)

var skipIntents = map[intent.Intent]bool{
	intent.Greeting:  true,
	intent.Farewell:  true,
	intent.ThankYou:  true,
	intent.SmallTalk: true,
}

// Skips reports whether retrieval is skipped for the intent.
func Skips(in intent.Intent) bool { return skipIntents[in] }

// Context is the grounding produced for one request.
type Context struct {
	Text    string   `json:"-"`
	Sources []Source `json:"sources,omitempty"`
	Results []Result `json:"-"`

	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`
	// IntentFiltered is true when the search was restricted to chunks
	// tagged with the request intent.
	IntentFiltered bool `json:"intent_filtered,omitempty"`
}

// Empty reports whether no grounding text was produced.
func (c Context) Empty() bool { return c.Text == "" }

// Stats are running retrieval counters.
type Stats struct {
	Retrievals int64   `json:"retrieval_count"`
	Results    int64   `json:"total_results"`
	Skips      int64   `json:"skip_count"`
	AvgResults float64 `json:"avg_results_per_query"`
}

// Retriever is the process-wide retrieval service. It holds a read-only
// index and is safe for concurrent use.
type Retriever struct {
	embedder      Embedder
	index         *Index
	topK          int
	threshold     float64
	maxContextLen int
	now           func() time.Time

	retrievals atomic.Int64
	results    atomic.Int64
	skips      atomic.Int64
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK sets how many chunks are kept after rerank.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithSimilarityThreshold drops candidates below min before rerank.
func WithSimilarityThreshold(min float64) Option {
	return func(r *Retriever) { r.threshold = min }
}

// WithMaxContextLength caps the formatted context in characters.
func WithMaxContextLength(n int) Option {
	return func(r *Retriever) { r.maxContextLen = n }
}

// WithClock overrides the clock used for freshness scoring.
func WithClock(now func() time.Time) Option {
	return func(r *Retriever) { r.now = now }
}

// NewRetriever creates a retriever. A nil index is allowed; every retrieval
// is then skipped as "knowledge base not loaded".
func NewRetriever(embedder Embedder, index *Index, opts ...Option) (*Retriever, error) {
	if index != nil && embedder != nil && embedder.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("embedder %s produces %d dimensions, index %s has %d: %w",
			embedder.Name(), embedder.Dimensions(), index.Embedder(), index.Dimensions(), ErrDimensionMismatch)
	}
	r := &Retriever{
		embedder:      embedder,
		index:         index,
		topK:          DefaultTopK,
		threshold:     DefaultSimilarityThreshold,
		maxContextLen: DefaultMaxContextLen,
		now:           time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Index returns the loaded index, or nil.
func (r *Retriever) Index() *Index { return r.index }

// Retrieve grounds query for the resolved intent. Conversational intents,
// empty queries and a missing index produce a skipped Context and no error.
// An embedding failure is returned as an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, in intent.Intent) (Context, error) {
	ctx, span := tracer.Start(ctx, "retrieval.retrieve")
	defer span.End()
	span.SetAttributes(svcotel.Intent.String(string(in)))

	skip := func(reason string) (Context, error) {
		r.skips.Add(1)
		span.SetAttributes(attribute.Bool("retrieval.skipped", true), attribute.String("retrieval.skip_reason", reason))
		return Context{Skipped: true, SkipReason: reason}, nil
	}
	switch {
	case Skips(in):
		return skip(fmt.Sprintf("intent %s does not require the knowledge base", in.Name()))
	case strings.TrimSpace(query) == "":
		return skip("no user message")
	case r.index == nil || r.embedder == nil:
		return skip("knowledge base not loaded")
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query embedding failed")
		return Context{}, fmt.Errorf("embedding query: %w", err)
	}

	var filter Filter
	out := Context{}
	if r.index.Tagged(in) > 0 {
		filter = IntentFilter(in)
		out.IntentFiltered = true
	}
	cands, err := r.index.Search(vec, 2*r.topK, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return Context{}, fmt.Errorf("searching index: %w", err)
	}

	kept := cands[:0]
	for _, c := range cands {
		if c.Score >= r.threshold {
			kept = append(kept, c)
		}
	}

	out.Results = Rerank(kept, in, r.topK, r.now())
	out.Text, out.Sources = Format(out.Results, r.maxContextLen)
	// Results past the length cap never reach the prompt.
	out.Results = out.Results[:len(out.Sources)]

	r.retrievals.Add(1)
	r.results.Add(int64(len(out.Results)))
	span.SetAttributes(
		attribute.Int("retrieval.candidates", len(cands)),
		attribute.Int("retrieval.results", len(out.Results)),
		attribute.Bool("retrieval.intent_filtered", out.IntentFiltered),
	)
	return out, nil
}

// Stats returns a snapshot of the retrieval counters.
func (r *Retriever) Stats() Stats {
	s := Stats{
		Retrievals: r.retrievals.Load(),
		Results:    r.results.Load(),
		Skips:      r.skips.Load(),
	}
	if s.Retrievals > 0 {
		s.AvgResults = float64(s.Results) / float64(s.Retrievals)
	}
	return s
}
