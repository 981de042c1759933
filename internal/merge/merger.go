package merge

import (
	"sort"
	"strings"
	"sync"
)

// boundaryTokenWindow is the maximum number of trailing/leading tokens
// compared when collapsing an overlap between two adjacent segments,
// resolving the spec's open question at whitespace-token granularity.
const boundaryTokenWindow = 3

// Merger holds the ordered segments for one session and emits Append/
// Replace/Finalize events as they arrive (spec.md §4.5).
type Merger struct {
	mu       sync.Mutex
	onEvent  func(Event)
	segments []Segment

	nextID       uint64
	nextRevision uint64
	finalized    bool
	finalText    string
}

// New creates a Merger. onEvent may be nil (events are simply dropped).
func New(onEvent func(Event)) *Merger {
	return &Merger{onEvent: onEvent}
}

// Ingest adds a completed Segment from either tier. Refinement segments
// that fully cover a prior fast segment retract it; adjacent overlapping
// segments have their shared boundary tokens collapsed.
func (m *Merger) Ingest(seg Segment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return
	}

	m.nextID++
	seg.ID = m.nextID
	m.nextRevision++
	seg.Revision = m.nextRevision

	if seg.Tier == TierRefinement {
		for i := range m.segments {
			old := &m.segments[i]
			if old.Retracted || old.Tier == TierRefinement {
				continue
			}
			if old.Lo >= seg.Lo && old.Hi <= seg.Hi {
				old.Retracted = true
				m.emit(Event{Kind: EventSegmentReplaced, ReplacedOldID: old.ID, ReplacedNew: seg})
			}
		}
	}

	idx := sort.Search(len(m.segments), func(i int) bool { return less(seg, m.segments[i]) })
	m.segments = append(m.segments, Segment{})
	copy(m.segments[idx+1:], m.segments[idx:])
	m.segments[idx] = seg

	if p := m.prevNonRetracted(idx); p != nil {
		dedupBoundary(p, &m.segments[idx])
	}
	if n := m.nextNonRetracted(idx); n != nil {
		dedupBoundary(&m.segments[idx], n)
	}

	m.emit(Event{Kind: EventSegmentAppended, Appended: m.segments[idx]})
}

func (m *Merger) prevNonRetracted(idx int) *Segment {
	for i := idx - 1; i >= 0; i-- {
		if !m.segments[i].Retracted {
			return &m.segments[i]
		}
	}
	return nil
}

func (m *Merger) nextNonRetracted(idx int) *Segment {
	for i := idx + 1; i < len(m.segments); i++ {
		if !m.segments[i].Retracted {
			return &m.segments[i]
		}
	}
	return nil
}

// dedupBoundary collapses an exact-match run of whitespace tokens shared
// between the end of earlier and the start of later, when their sample
// ranges overlap. The higher tier wins the boundary; on a tier tie the
// earlier segment in start order wins, whichever was ingested first.
func dedupBoundary(earlier, later *Segment) {
	if earlier.Hi <= later.Lo {
		return
	}
	te := strings.Fields(earlier.Text)
	tl := strings.Fields(later.Text)
	if len(te) == 0 || len(tl) == 0 {
		return
	}

	n := boundaryTokenWindow
	if len(te) < n {
		n = len(te)
	}
	if len(tl) < n {
		n = len(tl)
	}
	if n == 0 {
		return
	}

	for ; n > 0; n-- {
		if equalTokens(te[len(te)-n:], tl[:n]) {
			break
		}
	}
	if n == 0 {
		return
	}

	if earlier.tierRank() >= later.tierRank() {
		later.Text = strings.Join(tl[n:], " ")
	} else {
		earlier.Text = strings.Join(te[:len(te)-n], " ")
	}
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Finalize emits TranscriptFinalized exactly once, returning the transcript
// text formed by concatenating non-retracted segments in start-time order.
// Subsequent calls are no-ops that return the same text (spec.md §8
// idempotence law).
func (m *Merger) Finalize(metadata map[string]any) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return m.finalText
	}
	m.finalized = true

	var parts []string
	for _, s := range m.segments {
		if s.Retracted || s.Text == "" {
			continue
		}
		parts = append(parts, s.Text)
	}
	m.finalText = strings.Join(parts, " ")

	m.emit(Event{Kind: EventTranscriptFinalized, FinalText: m.finalText, Metadata: metadata})
	return m.finalText
}

// Segments returns a snapshot of all segments, retracted ones included, in
// start-time order.
func (m *Merger) Segments() []Segment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Segment, len(m.segments))
	copy(out, m.segments)
	return out
}

// CoverageSamples returns the total native-rate sample span covered by
// non-retracted segments, merged into non-overlapping intervals. Segments
// built from a padded adapter window (Segment.Padded) are excluded: their
// [Lo,Hi) range reflects the window the scheduler requested, not how much
// of it was real audio — most of a padded window is synthesized trailing
// silence — so counting it would overstate how much of the session has
// actually been transcribed (spec.md §4.8).
func (m *Merger) CoverageSamples() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	type span struct{ lo, hi uint64 }
	spans := make([]span, 0, len(m.segments))
	for _, s := range m.segments {
		if s.Retracted || s.Padded {
			continue
		}
		spans = append(spans, span{s.Lo, s.Hi})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].lo < spans[j].lo })

	var total uint64
	var open bool
	var curLo, curHi uint64
	for _, sp := range spans {
		switch {
		case !open:
			curLo, curHi = sp.lo, sp.hi
			open = true
		case sp.lo <= curHi:
			if sp.hi > curHi {
				curHi = sp.hi
			}
		default:
			total += curHi - curLo
			curLo, curHi = sp.lo, sp.hi
		}
	}
	if open {
		total += curHi - curLo
	}
	return total
}

func (m *Merger) emit(ev Event) {
	if m.onEvent != nil {
		m.onEvent(ev)
	}
}
