package embedding

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/coresight/coresight/internal/types"
)

// Gateway is the only way the engines obtain embeddings.
type Gateway struct {
	provider Provider
	cfg      Config
	limiter  *rate.Limiter
	cache    Cache
	logger   *zap.Logger

	providerCalls atomic.Int64
	fallbacks     atomic.Int64
	cacheHits     atomic.Int64
}

// Stats summarizes gateway activity since construction.
type Stats struct {
	ProviderCalls int64
	Fallbacks     int64
	CacheHits     int64
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithCache replaces the default in-memory cache.
func WithCache(c Cache) Option {
	return func(g *Gateway) { g.cache = c }
}

// NewGateway wraps provider. A nil provider serves only fallback vectors.
func NewGateway(provider Provider, cfg Config, logger *zap.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		provider: provider,
		cfg:      cfg,
		logger:   logger.Named("embedding"),
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	if cfg.CacheSize > 0 {
		g.cache = NewMemoryCache(cfg.CacheSize)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dimensions is the deployment-wide vector length.
func (g *Gateway) Dimensions() int {
	return g.cfg.Dimensions
}

// Stats returns a snapshot of the counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		ProviderCalls: g.providerCalls.Load(),
		Fallbacks:     g.fallbacks.Load(),
		CacheHits:     g.cacheHits.Load(),
	}
}

// Embed returns the embedding for text. It never fails: provider errors,
// timeouts, cancellation and wrong-length vectors all yield the hash
// fallback with Fallback set. Empty text yields a zero vector, also
// flagged as a fallback, without calling the provider.
func (g *Gateway) Embed(ctx context.Context, text string) types.Embedding {
	dims := g.cfg.Dimensions
	if strings.TrimSpace(text) == "" {
		return types.Embedding{Values: make([]float32, dims), Fallback: true}
	}
	if g.provider == nil {
		g.fallbacks.Add(1)
		return g.fallback(text)
	}

	key := ContentHash(g.provider.Name(), text)
	if g.cache != nil {
		if vec, ok := g.cache.Get(ctx, key); ok && len(vec) == dims {
			g.cacheHits.Add(1)
			return types.Embedding{Values: vec}
		}
	}

	vec, err := g.call(ctx, text)
	if err != nil {
		g.fallbacks.Add(1)
		g.logger.Warn("embedding provider failed, using hash fallback",
			zap.String("provider", g.provider.Name()),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			zap.Error(err))
		return g.fallback(text)
	}
	if len(vec) != dims {
		g.fallbacks.Add(1)
		g.logger.Warn("embedding provider returned wrong dimensionality, using hash fallback",
			zap.String("provider", g.provider.Name()),
			zap.Int("want", dims),
			zap.Int("got", len(vec)))
		return g.fallback(text)
	}

	if g.cache != nil {
		g.cache.Put(ctx, key, vec)
	}
	return types.Embedding{Values: vec}
}

// EmbedSkills embeds the canonical text form of a skill list.
func (g *Gateway) EmbedSkills(ctx context.Context, skills []string) types.Embedding {
	return g.Embed(ctx, types.SkillText(skills))
}

func (g *Gateway) call(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(callCtx); err != nil {
			return nil, err
		}
	}
	g.providerCalls.Add(1)
	return g.provider.Embed(callCtx, text)
}

func (g *Gateway) fallback(text string) types.Embedding {
	return types.Embedding{Values: HashVector(text, g.cfg.Dimensions), Fallback: true}
}
