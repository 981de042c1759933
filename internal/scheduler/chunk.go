// Package scheduler slices the ring buffer's growing sample range into
// overlapping fast-tier and non-overlapping refinement-tier chunks, and
// dispatches them to worker pools with tier-specific back-pressure
// (spec.md §4.3).
package scheduler

import (
	"context"
	"time"
)

// Tier is the chunk's transcription tier.
type Tier int

const (
	TierFast Tier = iota
	TierRefinement
)

func (t Tier) String() string {
	if t == TierRefinement {
		return "refinement"
	}
	return "fast"
}

// Chunk is a half-open sample range dispatched to one of the engine worker
// pools. Ctx is shared across every chunk of the same tier within a session
// run — canceling it makes every not-yet-started chunk be skipped. A chunk
// whose decode has already started is not interrupted: the engine checks
// Ctx only before decoding begins (spec.md §4.3).
type Chunk struct {
	Tier     Tier
	Lo, Hi   uint64
	Deadline time.Time
	Ctx      context.Context
	Final    bool // true for the tail chunk flushed at session stop
}

// Duration reports the chunk's length in samples.
func (c *Chunk) Duration() uint64 { return c.Hi - c.Lo }

// Warning mirrors the spec's Warning event payload for scheduler-originated
// conditions. The scheduler emits it only for refinement back-pressure
// drops; short-input padding happens in the format adapter and raises no
// Warning.
type Warning struct {
	Kind   string
	Detail string
}
