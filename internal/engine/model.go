package engine

import "fmt"

// Role identifies which tier of the two-tier transcription pipeline a
// recognizer serves (spec.md §4.4/§4.5).
type Role int

const (
	RoleFast Role = iota
	RoleRefinement
)

func (r Role) String() string {
	switch r {
	case RoleFast:
		return "fast"
	case RoleRefinement:
		return "refinement"
	default:
		return "unknown"
	}
}

// ModelSpec names a Whisper-family ONNX model and the knobs the offline
// recognizer is built with. Fast and refinement engines are both Whisper
// models at different sizes (tiny vs. small/base) rather than different
// architectures, so one config shape serves both roles.
type ModelSpec struct {
	Role Role

	Encoder string
	Decoder string
	Tokens  string

	// Language is a BCP-47-ish hint ("en", "es", ...). Empty means
	// auto-detect.
	Language string

	Provider   string
	NumThreads int
}

// key identifies a spec for caching purposes. Two specs with the same
// model files and language/provider/threads resolve to the same handle.
func (m ModelSpec) key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d", m.Role, m.Encoder, m.Decoder, m.Tokens, m.Language, m.Provider, m.NumThreads)
}
