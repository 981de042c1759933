// Package engine manages the fast and refinement sherpa-onnx offline
// recognizers (spec.md §4.4). Construction of any sherpa recognizer touches
// a process-wide hardware-acceleration context (CoreML/CUDA); building two
// concurrently has been observed to deadlock in that layer, so every handle
// a Pool builds, regardless of role, is built under that Pool's single init
// gate. The gate belongs to the Pool: two separate Pools do not serialize
// against each other. Decoding with an already-built handle has no such restriction and runs
// fully concurrently across handles.
package engine

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Pool owns the fast engine handle (singular, pinned while any session is
// recording) and an LRU of refinement handles bounded by handle count. When
// that bound is reached the least-recently-used refinement handle is
// evicted; the fast handle is never evicted that way. Eviction does not
// look at memory usage.
type Pool struct {
	initGate chan struct{} // 1-buffered; acts as a mutex over every handle build in this Pool

	mu           sync.Mutex
	fast         *Handle
	fastSpec     ModelSpec
	fastLastUsed time.Time
	pinCount     int

	refinement *lru.Cache[string, *refEntry]
}

type refEntry struct {
	handle   *Handle
	spec     ModelSpec
	lastUsed time.Time
}

// NewPool creates a pool whose refinement tier holds at most refinementSize
// concurrently-live handles. Evicted entries are closed immediately.
func NewPool(refinementSize int) (*Pool, error) {
	if refinementSize < 1 {
		refinementSize = 1
	}
	p := &Pool{initGate: make(chan struct{}, 1)}
	p.initGate <- struct{}{}

	cache, err := lru.NewWithEvict[string, *refEntry](refinementSize, func(_ string, e *refEntry) {
		e.handle.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("engine: new refinement lru: %w", err)
	}
	p.refinement = cache
	return p, nil
}

func (p *Pool) lock()   { <-p.initGate }
func (p *Pool) unlock() { p.initGate <- struct{}{} }

// AcquireFast returns the singleton fast-tier handle, building it on first
// use. A call that has to build a handle serializes against every other
// build in the pool; a call that finds the handle cached returns at once.
func (p *Pool) AcquireFast(spec ModelSpec) (*Handle, error) {
	spec.Role = RoleFast

	p.mu.Lock()
	if p.fast != nil && p.fastSpec.key() == spec.key() {
		p.fastLastUsed = time.Now()
		h := p.fast
		p.mu.Unlock()
		return h, nil
	}
	stale := p.fast
	p.mu.Unlock()

	p.lock()
	defer p.unlock()

	p.mu.Lock()
	if p.fast != nil && p.fastSpec.key() == spec.key() {
		h := p.fast
		p.fastLastUsed = time.Now()
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	h, err := newHandle(spec)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.fast = h
	p.fastSpec = spec
	p.fastLastUsed = time.Now()
	p.mu.Unlock()

	if stale != nil {
		stale.Close()
	}
	return h, nil
}

// AcquireRefinement returns a cached or newly built refinement-tier handle
// for spec. Acquiring may evict the least-recently-used refinement handle
// (never the fast handle) once the pool is at capacity.
func (p *Pool) AcquireRefinement(spec ModelSpec) (*Handle, error) {
	spec.Role = RoleRefinement
	key := spec.key()

	p.mu.Lock()
	if e, ok := p.refinement.Get(key); ok {
		e.lastUsed = time.Now()
		h := e.handle
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	p.lock()
	defer p.unlock()

	p.mu.Lock()
	if e, ok := p.refinement.Get(key); ok {
		h := e.handle
		p.mu.Unlock()
		return h, nil
	}
	p.mu.Unlock()

	h, err := newHandle(spec)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.refinement.Add(key, &refEntry{handle: h, spec: spec, lastUsed: time.Now()})
	p.mu.Unlock()

	return h, nil
}

// Pin marks the fast handle as in-use by an active session, deferring idle
// eviction until every pinning session calls Unpin.
func (p *Pool) Pin() {
	p.mu.Lock()
	p.pinCount++
	p.mu.Unlock()
}

// Unpin releases one pin taken by Pin.
func (p *Pool) Unpin() {
	p.mu.Lock()
	if p.pinCount > 0 {
		p.pinCount--
	}
	p.mu.Unlock()
}

// IdleEvict closes the fast handle if it is unpinned and has been idle
// longer than idleFor, and evicts any refinement handle idle longer than
// idleFor. cmd/scout calls it periodically (spec.md §6
// engine_idle_evict_seconds).
func (p *Pool) IdleEvict(idleFor time.Duration) {
	now := time.Now()

	p.mu.Lock()
	var staleFast *Handle
	if p.fast != nil && p.pinCount == 0 && now.Sub(p.fastLastUsed) >= idleFor {
		staleFast = p.fast
		p.fast = nil
		p.fastSpec = ModelSpec{}
	}

	var staleKeys []string
	for _, key := range p.refinement.Keys() {
		e, ok := p.refinement.Peek(key)
		if ok && now.Sub(e.lastUsed) >= idleFor {
			staleKeys = append(staleKeys, key)
		}
	}
	p.mu.Unlock()

	if staleFast != nil {
		staleFast.Close()
	}
	for _, key := range staleKeys {
		p.mu.Lock()
		p.refinement.Remove(key) // triggers the evict callback, which Closes it
		p.mu.Unlock()
	}
}

// Close releases every live handle, fast and refinement alike.
func (p *Pool) Close() {
	p.mu.Lock()
	fast := p.fast
	p.fast = nil
	p.mu.Unlock()
	if fast != nil {
		fast.Close()
	}
	p.refinement.Purge()
}
