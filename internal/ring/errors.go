package ring

import "errors"

// ErrOutOfWindow is returned by ReadRange when the requested range has
// already fallen outside the ring's live window (spec.md §7 RingOutOfWindow
// — this is a reader bug, not a transient condition).
var ErrOutOfWindow = errors.New("ring: requested range is out of window")
