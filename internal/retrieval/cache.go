package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/sushiva/omni-channel-ai-servicing/internal/requestctx"
)

// Embedding retry defaults.
const (
	DefaultEmbedAttempts       = 3
	DefaultEmbedInitialBackoff = 2 * time.Second
	DefaultEmbedMaxBackoff     = 10 * time.Second
)

// CachedEmbedder memoises an Embedder by exact input text and retries
// transient failures with bounded exponential backoff. Two concurrent misses
// for the same text may both reach the backend; the last write wins.
type CachedEmbedder struct {
	inner Embedder

	mu    sync.RWMutex
	cache map[string][]float32

	attempts    int
	initial     time.Duration
	maxInterval time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// CacheOption configures a CachedEmbedder.
type CacheOption func(*CachedEmbedder)

// WithRetry sets the attempt count and backoff bounds.
func WithRetry(attempts int, initial, maxInterval time.Duration) CacheOption {
	return func(c *CachedEmbedder) {
		if attempts > 0 {
			c.attempts = attempts
		}
		c.initial = initial
		c.maxInterval = maxInterval
	}
}

// NewCachedEmbedder wraps inner.
func NewCachedEmbedder(inner Embedder, opts ...CacheOption) *CachedEmbedder {
	c := &CachedEmbedder{
		inner:       inner,
		cache:       make(map[string][]float32),
		attempts:    DefaultEmbedAttempts,
		initial:     DefaultEmbedInitialBackoff,
		maxInterval: DefaultEmbedMaxBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name returns the wrapped embedder's name.
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Dimensions returns the wrapped embedder's vector size.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Embed returns the cached vector for text or computes it. Returned slices
// are shared and must not be modified.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)

	c.mu.RLock()
	vec, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.maxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.attempts-1)), ctx)

	op := func() error {
		v, err := c.inner.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		vec = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().
			Str("correlation_id", requestctx.CorrelationID(ctx)).
			Str("embedder", c.inner.Name()).
			Dur("retry_in", wait).
			Err(err).
			Msg("embedding_retry")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("embedding after %d attempts: %w", c.attempts, err)
	}

	c.mu.Lock()
	c.cache[key] = vec
	c.mu.Unlock()
	return vec, nil
}

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// CacheStats reports hit and miss counts.
func (c *CachedEmbedder) CacheStats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
