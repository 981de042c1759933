// Package config provides configuration and CLI argument parsing for Scout's
// recording-and-transcription core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/pflag"

	"github.com/arach/scout/internal/sherpa"
)

// Config holds all configuration for the pipeline. Populated from CLI flags
// or defaults; the windowing fields map to named entries in spec.md §6's
// configuration surface.
type Config struct {
	// Model paths
	ModelDir string // base directory containing all model files

	FastEncoder       string
	FastDecoder       string
	FastTokens        string
	RefinementEncoder string
	RefinementDecoder string
	RefinementTokens  string

	// Language hint passed to the engines ("auto" -> empty, triggers
	// Whisper auto-detection).
	Language string

	// Windowing (spec.md §6)
	FastWindowSeconds       int     // one of {3, 5, 10}
	FastWindowOverlapRatio  float64 // [0, 0.5]
	RefinementWindowSeconds int     // [5, 30]
	RingCapacitySeconds     int     // [30, 600]
	EngineIdleEvictSeconds  int
	MaxInflightRefinements  int
	StopDrainDeadlineMs     int
	ShortUtterancePadMs     int // not read: formatadapter pads below a fixed 0.3 s

	// Hardware acceleration provider (cpu, cuda, coreml); auto-detected if
	// empty.
	Provider string

	// Thread counts (0 = auto-detect based on CPU cores).
	NumThreads         int
	FastThreads        int
	RefinementThreads  int
	RefinementPoolSize int // LRU size for the refinement engine tier

	// Output
	OutputDir string // directory WAV files are written to

	Verbose bool
}

// DefaultConfig returns a configuration with sensible defaults, matching
// the ranges and defaults enumerated in spec.md §6.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultModelDir := filepath.Join(homeDir, ".scout", "models")
	defaultOutputDir := filepath.Join(homeDir, ".scout", "recordings")

	return &Config{
		ModelDir:  defaultModelDir,
		OutputDir: defaultOutputDir,

		Language: "en",

		FastWindowSeconds:       5,
		FastWindowOverlapRatio:  0.25,
		RefinementWindowSeconds: 15,
		RingCapacitySeconds:     300,
		EngineIdleEvictSeconds:  60,
		MaxInflightRefinements:  1,
		StopDrainDeadlineMs:     300,
		ShortUtterancePadMs:     300,

		Provider: "",

		NumThreads:         0,
		FastThreads:        0,
		RefinementThreads:  0,
		RefinementPoolSize: 2,

		Verbose: false,
	}
}

// ParseFlags parses command-line flags and returns a Config.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	pflag.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "directory containing model files (fast and refinement Whisper models)")
	pflag.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory WAV recordings are written to")
	pflag.StringVar(&cfg.Language, "language", cfg.Language, "speech recognition language code (e.g. 'en', 'es', 'auto')")

	pflag.IntVar(&cfg.FastWindowSeconds, "fast-window-seconds", cfg.FastWindowSeconds, "fast-tier window size in seconds (3, 5, or 10)")
	pflag.Float64Var(&cfg.FastWindowOverlapRatio, "fast-window-overlap-ratio", cfg.FastWindowOverlapRatio, "fast-tier window overlap ratio (0.0-0.5)")
	pflag.IntVar(&cfg.RefinementWindowSeconds, "refinement-window-seconds", cfg.RefinementWindowSeconds, "refinement-tier window size in seconds (5-30)")
	pflag.IntVar(&cfg.RingCapacitySeconds, "ring-capacity-seconds", cfg.RingCapacitySeconds, "in-memory ring capacity in seconds (30-600)")
	pflag.IntVar(&cfg.EngineIdleEvictSeconds, "engine-idle-evict-seconds", cfg.EngineIdleEvictSeconds, "seconds an engine handle may sit idle before eviction")
	pflag.IntVar(&cfg.MaxInflightRefinements, "max-inflight-refinements", cfg.MaxInflightRefinements, "max outstanding refinement chunks")
	pflag.IntVar(&cfg.StopDrainDeadlineMs, "stop-drain-deadline-ms", cfg.StopDrainDeadlineMs, "grace period for the fast tier to drain on stop")
	pflag.IntVar(&cfg.ShortUtterancePadMs, "short-utterance-pad-threshold-ms", cfg.ShortUtterancePadMs, "short-utterance padding threshold; not read (the format adapter pads below a fixed 300 ms)")

	pflag.StringVar(&cfg.Provider, "provider", cfg.Provider, "hardware acceleration provider (cpu, cuda, coreml); auto-detected if empty")
	pflag.IntVar(&cfg.NumThreads, "num-threads", cfg.NumThreads, "default thread count for all engines (0 = auto-detect)")
	pflag.IntVar(&cfg.FastThreads, "fast-threads", cfg.FastThreads, "fast-engine threads (0 = single-threaded)")
	pflag.IntVar(&cfg.RefinementThreads, "refinement-threads", cfg.RefinementThreads, "refinement-engine threads (0 = use num-threads)")
	pflag.IntVar(&cfg.RefinementPoolSize, "refinement-pool-size", cfg.RefinementPoolSize, "max concurrently live refinement engine handles")

	pflag.BoolVar(&cfg.Verbose, "verbose", cfg.Verbose, "enable verbose logging")

	pflag.Parse()

	if cfg.Provider == "" {
		cfg.Provider = detectProvider()
	}
	cfg.normalizeThreadCounts()

	cfg.FastEncoder = filepath.Join(cfg.ModelDir, "fast", "whisper-tiny-encoder.int8.onnx")
	cfg.FastDecoder = filepath.Join(cfg.ModelDir, "fast", "whisper-tiny-decoder.int8.onnx")
	cfg.FastTokens = filepath.Join(cfg.ModelDir, "fast", "whisper-tiny-tokens.txt")
	cfg.RefinementEncoder = filepath.Join(cfg.ModelDir, "refinement", "whisper-small-encoder.int8.onnx")
	cfg.RefinementDecoder = filepath.Join(cfg.ModelDir, "refinement", "whisper-small-decoder.int8.onnx")
	cfg.RefinementTokens = filepath.Join(cfg.ModelDir, "refinement", "whisper-small-tokens.txt")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// normalizeThreadCounts auto-detects and sets reasonable thread counts based
// on CPU cores, mirroring the teacher's per-role thread split.
func (c *Config) normalizeThreadCounts() {
	cpuCores := runtime.NumCPU()

	if c.NumThreads == 0 {
		c.NumThreads = max(1, cpuCores/3)
	}
	if c.FastThreads == 0 {
		c.FastThreads = 1 // the fast tier favors latency over throughput
	}
	if c.RefinementThreads == 0 {
		c.RefinementThreads = c.NumThreads
	}
}

func (c *Config) validate() error {
	switch c.FastWindowSeconds {
	case 3, 5, 10:
	default:
		return fmt.Errorf("fast-window-seconds must be 3, 5, or 10, got %d", c.FastWindowSeconds)
	}
	if c.FastWindowOverlapRatio < 0 || c.FastWindowOverlapRatio > 0.5 {
		return fmt.Errorf("fast-window-overlap-ratio must be in [0, 0.5], got %v", c.FastWindowOverlapRatio)
	}
	if c.RefinementWindowSeconds < 5 || c.RefinementWindowSeconds > 30 {
		return fmt.Errorf("refinement-window-seconds must be in [5, 30], got %d", c.RefinementWindowSeconds)
	}
	if c.RingCapacitySeconds < 30 || c.RingCapacitySeconds > 600 {
		return fmt.Errorf("ring-capacity-seconds must be in [30, 600], got %d", c.RingCapacitySeconds)
	}

	requiredFiles := []string{
		c.FastEncoder, c.FastDecoder, c.FastTokens,
		c.RefinementEncoder, c.RefinementDecoder, c.RefinementTokens,
	}
	for _, path := range requiredFiles {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("required model file not found: %s", path)
		}
	}

	return nil
}

// SetRefinementWindowSeconds validates and applies a runtime update to the
// refinement window (Control API set_refinement_window, spec.md §6).
func (c *Config) SetRefinementWindowSeconds(seconds int) error {
	if seconds < 5 || seconds > 30 {
		return fmt.Errorf("refinement window must be in [5, 30], got %d", seconds)
	}
	c.RefinementWindowSeconds = seconds
	return nil
}

// detectProvider auto-detects the best hardware acceleration provider for
// the current platform.
func detectProvider() string {
	switch runtime.GOOS {
	case "darwin":
		return "coreml"
	case "linux":
		if sherpa.HasNvidiaGPU() {
			return "cuda"
		}
		return "cpu"
	default:
		return "cpu"
	}
}
