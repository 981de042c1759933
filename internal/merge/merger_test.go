package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerger_IngestAssignsMonotonicRevisions(t *testing.T) {
	m := New(nil)

	m.Ingest(Segment{Text: "hello", Lo: 0, Hi: 100, Tier: TierFast})
	m.Ingest(Segment{Text: "world", Lo: 100, Hi: 200, Tier: TierFast})

	segs := m.Segments()
	require.Len(t, segs, 2)
	assert.Less(t, segs[0].Revision, segs[1].Revision)
	assert.Equal(t, uint64(1), segs[0].ID)
	assert.Equal(t, uint64(2), segs[1].ID)
}

func TestMerger_RefinementSupersedesContainedFastSegment(t *testing.T) {
	var events []Event
	m := New(func(ev Event) { events = append(events, ev) })

	m.Ingest(Segment{Text: "hi there", Lo: 0, Hi: 100, Tier: TierFast})
	m.Ingest(Segment{Text: "hi there friend", Lo: 0, Hi: 100, Tier: TierRefinement})

	segs := m.Segments()
	require.Len(t, segs, 2)
	assert.True(t, segs[0].Retracted)
	assert.False(t, segs[1].Retracted)

	var replaced bool
	for _, ev := range events {
		if ev.Kind == EventSegmentReplaced {
			replaced = true
			assert.Equal(t, uint64(1), ev.ReplacedOldID)
		}
	}
	assert.True(t, replaced, "expected a SegmentReplaced event")
}

func TestMerger_RefinementDoesNotSupersedePartialOverlap(t *testing.T) {
	m := New(nil)

	m.Ingest(Segment{Text: "alpha beta", Lo: 0, Hi: 200, Tier: TierFast})
	m.Ingest(Segment{Text: "beta gamma", Lo: 100, Hi: 300, Tier: TierRefinement})

	segs := m.Segments()
	require.Len(t, segs, 2)
	assert.False(t, segs[0].Retracted, "partial overlap must not retract the fast segment")
}

func TestMerger_BoundaryDedupCollapsesSharedTokens(t *testing.T) {
	m := New(nil)

	m.Ingest(Segment{Text: "the quick brown fox", Lo: 0, Hi: 100, Tier: TierFast})
	m.Ingest(Segment{Text: "brown fox jumps", Lo: 80, Hi: 180, Tier: TierFast})

	segs := m.Segments()
	require.Len(t, segs, 2)
	// Both segments are the same tier; dedup favors the earlier segment on
	// a tie, trimming the later segment's leading duplicate tokens.
	assert.Equal(t, "jumps", segs[1].Text)
	assert.Equal(t, "the quick brown fox", segs[0].Text)
}

func TestMerger_FinalizeIsIdempotentAndEmitsOnce(t *testing.T) {
	var finalizedCount int
	m := New(func(ev Event) {
		if ev.Kind == EventTranscriptFinalized {
			finalizedCount++
		}
	})

	m.Ingest(Segment{Text: "one", Lo: 0, Hi: 10, Tier: TierFast})
	m.Ingest(Segment{Text: "two", Lo: 10, Hi: 20, Tier: TierFast})

	first := m.Finalize(nil)
	second := m.Finalize(nil)

	assert.Equal(t, "one two", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, finalizedCount)
}

func TestMerger_CoverageSamplesExcludesPaddedSegments(t *testing.T) {
	m := New(nil)

	m.Ingest(Segment{Text: "one", Lo: 0, Hi: 100, Tier: TierFast})
	m.Ingest(Segment{Text: "", Lo: 100, Hi: 150, Tier: TierFast, Padded: true})

	assert.Equal(t, uint64(100), m.CoverageSamples())
}

func TestMerger_CoverageSamplesMergesOverlappingSpans(t *testing.T) {
	m := New(nil)

	m.Ingest(Segment{Text: "alpha beta", Lo: 0, Hi: 200, Tier: TierFast})
	m.Ingest(Segment{Text: "beta gamma", Lo: 100, Hi: 300, Tier: TierRefinement})

	assert.Equal(t, uint64(300), m.CoverageSamples())
}

func TestMerger_CoverageSamplesExcludesRetractedSegments(t *testing.T) {
	m := New(nil)

	m.Ingest(Segment{Text: "hi there", Lo: 0, Hi: 100, Tier: TierFast})
	m.Ingest(Segment{Text: "hi there friend", Lo: 0, Hi: 100, Tier: TierRefinement})

	assert.Equal(t, uint64(100), m.CoverageSamples(), "the retracted fast segment must not double-count the span")
}

func TestMerger_IngestAfterFinalizeIsNoOp(t *testing.T) {
	m := New(nil)
	m.Ingest(Segment{Text: "one", Lo: 0, Hi: 10, Tier: TierFast})
	m.Finalize(nil)

	m.Ingest(Segment{Text: "late", Lo: 10, Hi: 20, Tier: TierFast})
	assert.Len(t, m.Segments(), 1)
}
