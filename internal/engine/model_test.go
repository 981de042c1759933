package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModelSpec_KeyIsStableForIdenticalSpecs(t *testing.T) {
	a := ModelSpec{Role: RoleFast, Encoder: "enc", Decoder: "dec", Tokens: "tok", Language: "en", Provider: "cpu", NumThreads: 1}
	b := a
	assert.Equal(t, a.key(), b.key())
}

func TestModelSpec_KeyDiffersOnAnyField(t *testing.T) {
	base := ModelSpec{Role: RoleFast, Encoder: "enc", Decoder: "dec", Tokens: "tok", Language: "en", Provider: "cpu", NumThreads: 1}

	variants := []ModelSpec{
		{Role: RoleRefinement, Encoder: "enc", Decoder: "dec", Tokens: "tok", Language: "en", Provider: "cpu", NumThreads: 1},
		{Role: RoleFast, Encoder: "other", Decoder: "dec", Tokens: "tok", Language: "en", Provider: "cpu", NumThreads: 1},
		{Role: RoleFast, Encoder: "enc", Decoder: "other", Tokens: "tok", Language: "en", Provider: "cpu", NumThreads: 1},
		{Role: RoleFast, Encoder: "enc", Decoder: "dec", Tokens: "other", Language: "en", Provider: "cpu", NumThreads: 1},
		{Role: RoleFast, Encoder: "enc", Decoder: "dec", Tokens: "tok", Language: "es", Provider: "cpu", NumThreads: 1},
		{Role: RoleFast, Encoder: "enc", Decoder: "dec", Tokens: "tok", Language: "en", Provider: "cuda", NumThreads: 1},
		{Role: RoleFast, Encoder: "enc", Decoder: "dec", Tokens: "tok", Language: "en", Provider: "cpu", NumThreads: 4},
	}

	for _, v := range variants {
		assert.NotEqual(t, base.key(), v.key())
	}
}

func TestRole_String(t *testing.T) {
	assert.Equal(t, "fast", RoleFast.String())
	assert.Equal(t, "refinement", RoleRefinement.String())
}
