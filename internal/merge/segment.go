// Package merge combines fast and refinement Segments into a monotonic,
// deduplicated transcript (spec.md §4.5).
package merge

import "github.com/arach/scout/internal/scheduler"

// Tier mirrors scheduler.Tier for ordering purposes (refinement outranks
// fast when breaking ties at the same start time).
type Tier = scheduler.Tier

const (
	TierFast       = scheduler.TierFast
	TierRefinement = scheduler.TierRefinement
)

// Segment is a partial transcript over a sample range, produced by one
// engine tier.
type Segment struct {
	ID         uint64
	Text       string
	Lo, Hi     uint64 // sample range [lo, hi) at the session's native rate
	Confidence float32
	Tier       Tier
	Revision   uint64
	Retracted  bool
	Padded     bool // carried from formatadapter.Result.Padded
}

func (s Segment) tierRank() int {
	if s.Tier == TierRefinement {
		return 1
	}
	return 0
}

// less orders segments by (start, tier rank, revision) per spec.md §5.
func less(a, b Segment) bool {
	if a.Lo != b.Lo {
		return a.Lo < b.Lo
	}
	if a.tierRank() != b.tierRank() {
		return a.tierRank() < b.tierRank()
	}
	return a.Revision < b.Revision
}
