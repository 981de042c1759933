package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// pollInterval is how often the scheduler checks the ring's write cursor
// for newly-covered windows. Short enough that fast chunks dispatch close
// to the instant their range becomes available.
const pollInterval = 20 * time.Millisecond

// RingSource is the narrow slice of ring.Buffer the scheduler depends on —
// it never reads samples itself, only the write cursor, so it takes no
// dependency on the ring package's concrete type.
type RingSource interface {
	Written() uint64
}

// Config holds the windowing parameters from spec.md §6. Samples, not
// seconds, are computed once at New from the session's native SampleRate.
type Config struct {
	SampleRate              int
	FastWindowSeconds       int     // one of {3, 5, 10}
	FastOverlapRatio        float64 // [0, 0.5]
	RefinementWindowSeconds int     // [5, 30]
	MaxInflightFast         int
	MaxInflightRefinements  int
}

// Scheduler polls a RingSource and emits Chunk jobs on two channels, one
// per tier, each with its own back-pressure policy.
type Scheduler struct {
	cfg    Config
	source RingSource

	fastWindow       uint64
	fastStep         uint64
	refinementWindow uint64

	fastCh       chan *Chunk
	refinementCh chan *Chunk

	mu     sync.Mutex
	onWarn func(Warning)

	nextFastLo       uint64
	nextRefinementLo uint64
}

// New builds a Scheduler. onWarning may be nil.
func New(cfg Config, source RingSource, onWarning func(Warning)) *Scheduler {
	fastWindow := uint64(cfg.FastWindowSeconds * cfg.SampleRate)
	overlap := uint64(float64(fastWindow) * cfg.FastOverlapRatio)
	step := fastWindow - overlap
	if step == 0 {
		step = fastWindow
	}

	maxFast := cfg.MaxInflightFast
	if maxFast < 1 {
		maxFast = 4
	}
	maxRefinement := cfg.MaxInflightRefinements
	if maxRefinement < 1 {
		maxRefinement = 1
	}

	return &Scheduler{
		cfg:              cfg,
		source:           source,
		fastWindow:       fastWindow,
		fastStep:         step,
		refinementWindow: uint64(cfg.RefinementWindowSeconds * cfg.SampleRate),
		fastCh:           make(chan *Chunk, maxFast),
		refinementCh:     make(chan *Chunk, maxRefinement),
		onWarn:           onWarning,
	}
}

// FastChunks returns the channel fast-tier chunks are delivered on.
func (s *Scheduler) FastChunks() <-chan *Chunk { return s.fastCh }

// RefinementChunks returns the channel refinement-tier chunks are delivered
// on.
func (s *Scheduler) RefinementChunks() <-chan *Chunk { return s.refinementCh }

// Run polls the ring until ctx is done, dispatching fast chunks against
// fastCtx and refinement chunks against refinementCtx. Passing distinct
// contexts lets the controller let the fast tier drain briefly after stop
// while refinement work is canceled immediately (spec.md §4.6).
func (s *Scheduler) Run(ctx context.Context, fastCtx, refinementCtx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchFast(fastCtx)
			s.dispatchRefinement(refinementCtx)
		}
	}
}

func (s *Scheduler) dispatchFast(ctx context.Context) {
	written := s.source.Written()
	for s.nextFastLo+s.fastWindow <= written {
		chunk := &Chunk{
			Tier:     TierFast,
			Lo:       s.nextFastLo,
			Hi:       s.nextFastLo + s.fastWindow,
			Deadline: time.Now().Add(time.Duration(s.cfg.FastWindowSeconds) * time.Second / 10),
			Ctx:      ctx,
		}
		select {
		case s.fastCh <- chunk:
		case <-ctx.Done():
			return
		}
		s.nextFastLo += s.fastStep
	}
}

func (s *Scheduler) dispatchRefinement(ctx context.Context) {
	written := s.source.Written()
	for s.nextRefinementLo+s.refinementWindow <= written {
		chunk := &Chunk{
			Tier: TierRefinement,
			Lo:   s.nextRefinementLo,
			Hi:   s.nextRefinementLo + s.refinementWindow,
			Ctx:  ctx,
		}
		s.enqueueRefinement(chunk)
		s.nextRefinementLo += s.refinementWindow
	}
}

// enqueueRefinement drops the oldest queued (not yet started) refinement
// chunk when the bounded channel is full, per spec.md §4.3: refinement
// chunks may be dropped under back-pressure, fast chunks never are.
func (s *Scheduler) enqueueRefinement(chunk *Chunk) {
	select {
	case s.refinementCh <- chunk:
		return
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case old := <-s.refinementCh:
		s.warn(Warning{
			Kind:   "refinement_dropped",
			Detail: fmt.Sprintf("dropped refinement chunk [%d,%d) under back-pressure", old.Lo, old.Hi),
		})
	default:
	}

	select {
	case s.refinementCh <- chunk:
	default:
		s.warn(Warning{
			Kind:   "refinement_dropped",
			Detail: fmt.Sprintf("dropped refinement chunk [%d,%d) under back-pressure", chunk.Lo, chunk.Hi),
		})
	}
}

// FlushFinal dispatches whatever tail of the session hasn't been covered
// by a full window yet. Called once by the controller after capture has
// ceased (spec.md §4.3 short-recording edge case and final refinement
// coverage).
func (s *Scheduler) FlushFinal(fastCtx, refinementCtx context.Context) {
	written := s.source.Written()

	if s.nextFastLo < written {
		chunk := &Chunk{Tier: TierFast, Lo: s.nextFastLo, Hi: written, Ctx: fastCtx, Final: true}
		select {
		case s.fastCh <- chunk:
		case <-fastCtx.Done():
		}
		s.nextFastLo = written
	}

	if s.nextRefinementLo < written {
		chunk := &Chunk{Tier: TierRefinement, Lo: s.nextRefinementLo, Hi: written, Ctx: refinementCtx, Final: true}
		s.enqueueRefinement(chunk)
		s.nextRefinementLo = written
	}
}

func (s *Scheduler) warn(w Warning) {
	if s.onWarn != nil {
		s.onWarn(w)
	}
}
