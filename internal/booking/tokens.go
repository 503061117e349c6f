package booking

import (
	"math/rand"
	"sync"
)

// DefaultPlaceholderToken is looked up when no token has been issued yet.
const DefaultPlaceholderToken = "PORTO-2025-TESTTOKEN"

// TokenPool is a bounded ring of recently issued access tokens shared by
// every VU. Scenarios that need an existing booking draw from it.
type TokenPool struct {
	mu     sync.Mutex
	ring   []string
	next   int
	filled int

	defaultToken string
}

// NewTokenPool creates a pool holding at most size tokens. defaultToken is
// returned by Pick when the pool is empty; an empty defaultToken disables
// the fallback.
func NewTokenPool(size int, defaultToken string) *TokenPool {
	if size < 1 {
		size = 1
	}
	return &TokenPool{
		ring:         make([]string, size),
		defaultToken: defaultToken,
	}
}

// Add records a newly issued token, evicting the oldest when full.
func (p *TokenPool) Add(token string) {
	if token == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.ring[p.next] = token
	p.next = (p.next + 1) % len(p.ring)
	if p.filled < len(p.ring) {
		p.filled++
	}
}

// Latest returns the most recently added token.
func (p *TokenPool) Latest() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.filled == 0 {
		return "", false
	}
	idx := (p.next - 1 + len(p.ring)) % len(p.ring)
	return p.ring[idx], true
}

// Recent returns a random token from the pool.
func (p *TokenPool) Recent(rng *rand.Rand) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.filled == 0 {
		return "", false
	}
	return p.ring[rng.Intn(p.filled)], true
}

// Pick returns a random recent token, or the default token when the pool
// is empty. ok is false only when both are unavailable.
func (p *TokenPool) Pick(rng *rand.Rand) (string, bool) {
	if token, ok := p.Recent(rng); ok {
		return token, true
	}
	if p.defaultToken != "" {
		return p.defaultToken, true
	}
	return "", false
}

// Len returns the number of tokens held.
func (p *TokenPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filled
}
