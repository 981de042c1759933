package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEmptyFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, nil, 0o644)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ModelDir = dir

	for _, rel := range []string{
		"fast/whisper-tiny-encoder.int8.onnx",
		"fast/whisper-tiny-decoder.int8.onnx",
		"fast/whisper-tiny-tokens.txt",
		"refinement/whisper-small-encoder.int8.onnx",
		"refinement/whisper-small-decoder.int8.onnx",
		"refinement/whisper-small-tokens.txt",
	} {
		path := filepath.Join(dir, rel)
		require.NoError(t, writeEmptyFile(path))
	}

	cfg.FastEncoder = filepath.Join(dir, "fast", "whisper-tiny-encoder.int8.onnx")
	cfg.FastDecoder = filepath.Join(dir, "fast", "whisper-tiny-decoder.int8.onnx")
	cfg.FastTokens = filepath.Join(dir, "fast", "whisper-tiny-tokens.txt")
	cfg.RefinementEncoder = filepath.Join(dir, "refinement", "whisper-small-encoder.int8.onnx")
	cfg.RefinementDecoder = filepath.Join(dir, "refinement", "whisper-small-decoder.int8.onnx")
	cfg.RefinementTokens = filepath.Join(dir, "refinement", "whisper-small-tokens.txt")

	return cfg
}

func TestValidate_AcceptsDefaultsWithModelFilesPresent(t *testing.T) {
	cfg := validConfig(t)
	assert.NoError(t, cfg.validate())
}

func TestValidate_RejectsBadFastWindow(t *testing.T) {
	cfg := validConfig(t)
	cfg.FastWindowSeconds = 7
	assert.Error(t, cfg.validate())
}

func TestValidate_RejectsOutOfRangeOverlapRatio(t *testing.T) {
	cfg := validConfig(t)
	cfg.FastWindowOverlapRatio = 0.75
	assert.Error(t, cfg.validate())
}

func TestValidate_RejectsOutOfRangeRefinementWindow(t *testing.T) {
	cfg := validConfig(t)
	cfg.RefinementWindowSeconds = 2
	assert.Error(t, cfg.validate())

	cfg.RefinementWindowSeconds = 31
	assert.Error(t, cfg.validate())
}

func TestValidate_RejectsMissingModelFile(t *testing.T) {
	cfg := validConfig(t)
	cfg.RefinementTokens = filepath.Join(t.TempDir(), "missing.txt")
	assert.Error(t, cfg.validate())
}

func TestSetRefinementWindowSeconds_ValidatesRange(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.SetRefinementWindowSeconds(20))
	assert.Equal(t, 20, cfg.RefinementWindowSeconds)

	assert.Error(t, cfg.SetRefinementWindowSeconds(4))
	assert.Error(t, cfg.SetRefinementWindowSeconds(31))
}

func TestNormalizeThreadCounts_FastTierStaysSingleThreaded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.normalizeThreadCounts()

	assert.Equal(t, 1, cfg.FastThreads)
	assert.GreaterOrEqual(t, cfg.NumThreads, 1)
	assert.Equal(t, cfg.NumThreads, cfg.RefinementThreads)
}
