package policy

import "sync"

// Provider hands out the current engine and allows it to be replaced
// atomically on configuration reload. Requests that already obtained an
// engine keep evaluating against it; only subsequent requests see the
// replacement.
type Provider struct {
	mu     sync.RWMutex
	engine Engine
}

// NewProvider creates a provider serving the given engine.
func NewProvider(engine Engine) *Provider {
	return &Provider{engine: engine}
}

// Engine returns the current engine.
func (p *Provider) Engine() Engine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine
}

// Swap replaces the current engine and returns the previous one.
func (p *Provider) Swap(engine Engine) Engine {
	p.mu.Lock()
	defer p.mu.Unlock()
	previous := p.engine
	p.engine = engine
	return previous
}
