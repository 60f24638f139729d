package market

import (
	"context"
	"strconv"
	"sync"
	"time"

	"optflow/internal/logger"
	"optflow/internal/market/circuit"

	"github.com/shopspring/decimal"
)

// ProviderConfig tunes one registered provider's guard rails.
type ProviderConfig struct {
	// MaxRequests per rolling Window; non-positive disables the limiter.
	MaxRequests int
	Window      time.Duration
	// BreakerThreshold consecutive failures trip the circuit; non-positive
	// disables the breaker.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

type slot struct {
	provider Provider
	limiter  *rateLimiter
	breaker  *circuit.Breaker

	statsMu sync.Mutex
	stats   SourceStats
}

// absent is the cached marker for "every provider came up empty this
// cycle", so repeated lookups of a missing value stay cheap and consistent.
type absent struct{}

// Gateway fans requests out over an ordered provider list. Every lookup
// returns (value, ok); ok=false means unavailable and is never an error.
type Gateway struct {
	slots []*slot
	cache *cycleCache
}

func NewGateway() *Gateway {
	return &Gateway{cache: newCycleCache()}
}

// Register appends a provider at the end of the fallback order.
func (g *Gateway) Register(p Provider, cfg ProviderConfig) {
	s := &slot{provider: p}
	if cfg.MaxRequests > 0 && cfg.Window > 0 {
		s.limiter = newRateLimiter(cfg.MaxRequests, cfg.Window)
	}
	if cfg.BreakerThreshold > 0 {
		cooldown := cfg.BreakerCooldown
		if cooldown <= 0 {
			cooldown = time.Minute
		}
		s.breaker = circuit.New(p.Name(), cfg.BreakerThreshold, cooldown)
	}
	g.slots = append(g.slots, s)
}

// StartNewCycle discards the entire cache and returns the new cycle id.
func (g *Gateway) StartNewCycle() uint64 {
	return g.cache.startNewCycle()
}

// Cycle returns the current cache generation.
func (g *Gateway) Cycle() uint64 { return g.cache.cycle() }

// Providers returns the registered provider names in fallback order.
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.slots))
	for i, s := range g.slots {
		names[i] = s.provider.Name()
	}
	return names
}

// Stats snapshots per-provider counters.
func (g *Gateway) Stats() map[string]SourceStats {
	out := make(map[string]SourceStats, len(g.slots))
	for _, s := range g.slots {
		s.statsMu.Lock()
		out[s.provider.Name()] = s.stats
		s.statsMu.Unlock()
	}
	return out
}

// fetch runs the fallback chain for one cache key. The first provider that
// yields a value wins and later providers are never called; exhaustion
// caches an absent marker for the remainder of the cycle.
func (g *Gateway) fetch(key string, call func(Provider) (any, error)) (any, bool) {
	if v, ok := g.cache.get(key); ok {
		if _, miss := v.(absent); miss {
			return nil, false
		}
		return v, true
	}
	for _, s := range g.slots {
		name := s.provider.Name()
		if s.breaker != nil && !s.breaker.Allow() {
			s.count(func(st *SourceStats) { st.Tripped++ })
			continue
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.count(func(st *SourceStats) { st.RateLimited++ })
			logger.Debugf("market: %s rate-limited for %s, trying next provider", name, key)
			continue
		}
		s.count(func(st *SourceStats) { st.Requests++ })
		v, err := call(s.provider)
		if err != nil {
			s.count(func(st *SourceStats) { st.Misses++ })
			if s.breaker != nil && err != ErrUnsupported {
				s.breaker.RecordFailure()
			}
			logger.Debugf("market: %s miss for %s: %v", name, key, err)
			continue
		}
		if s.breaker != nil {
			s.breaker.RecordSuccess()
		}
		stored := g.cache.set(key, v)
		if _, miss := stored.(absent); miss {
			return nil, false
		}
		return stored, true
	}
	g.cache.set(key, absent{})
	return nil, false
}

func (s *slot) count(fn func(*SourceStats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

// GetPrice returns the current underlying price, or ok=false when no
// provider can serve it this cycle.
func (g *Gateway) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	v, ok := g.fetch(cacheKey(KindPrice, symbol), func(p Provider) (any, error) {
		return p.GetPrice(ctx, symbol)
	})
	if !ok {
		return decimal.Decimal{}, false
	}
	return v.(decimal.Decimal), true
}

// GetOptionQuote returns the quote for one option contract.
func (g *Gateway) GetOptionQuote(ctx context.Context, contractID string) (OptionQuote, bool) {
	v, ok := g.fetch(cacheKey(KindOptionQuote, contractID), func(p Provider) (any, error) {
		return p.GetOptionQuote(ctx, contractID)
	})
	if !ok {
		return OptionQuote{}, false
	}
	return v.(OptionQuote), true
}

// GetBars returns historical OHLCV bars for indicator screens.
func (g *Gateway) GetBars(ctx context.Context, symbol, interval string, lookbackDays int) ([]Bar, bool) {
	key := cacheKey(KindBars, symbol, interval, strconv.Itoa(lookbackDays))
	v, ok := g.fetch(key, func(p Provider) (any, error) {
		return p.GetBars(ctx, symbol, interval, lookbackDays)
	})
	if !ok {
		return nil, false
	}
	return v.([]Bar), true
}

// GetExpirations returns the known option expiration dates for a symbol.
func (g *Gateway) GetExpirations(ctx context.Context, symbol string) ([]time.Time, bool) {
	v, ok := g.fetch(cacheKey(KindExpirations, symbol), func(p Provider) (any, error) {
		return p.GetExpirations(ctx, symbol)
	})
	if !ok {
		return nil, false
	}
	return v.([]time.Time), true
}
