//go:build linux

// Package sherpa provides platform-specific sherpa-onnx bindings.
// This file contains Linux-specific imports.
//
// By default, this uses the pre-built CPU-only sherpa-onnx-go-linux package.
// For CUDA/GPU support on Linux, use the build script with --cuda flag which
// will build sherpa-onnx from source with GPU support enabled.
package sherpa

import (
	"os"

	impl "github.com/k2-fsa/sherpa-onnx-go-linux"
)

// Re-export the offline recognizer types and functions for cross-platform
// use. The actual implementation comes from the platform-specific package.
// Scout only needs the offline (non-streaming) recognizer — chunks arrive
// pre-windowed from the scheduler, so VAD and TTS have no caller here.

type OfflineRecognizer = impl.OfflineRecognizer
type OfflineRecognizerConfig = impl.OfflineRecognizerConfig
type OfflineStream = impl.OfflineStream
type OfflineRecognizerResult = impl.OfflineRecognizerResult

var NewOfflineRecognizer = impl.NewOfflineRecognizer
var DeleteOfflineRecognizer = impl.DeleteOfflineRecognizer
var NewOfflineStream = impl.NewOfflineStream
var DeleteOfflineStream = impl.DeleteOfflineStream

// DefaultProvider returns the recommended provider for this platform.
// On Linux, returns "cuda" if NVIDIA GPU is likely available, otherwise "cpu".
func DefaultProvider() string {
	if HasNvidiaGPU() {
		return "cuda"
	}
	return "cpu"
}

// AvailableProviders returns the list of available providers on this platform.
func AvailableProviders() []string {
	return []string{"cpu", "cuda"}
}

// HasNvidiaGPU checks for NVIDIA GPU availability on Linux.
// Supports both discrete GPUs and Jetson SOC devices (Nano, Orin, etc.).
func HasNvidiaGPU() bool {
	nvidiaSmiPaths := []string{
		"/usr/bin/nvidia-smi",
		"/usr/local/bin/nvidia-smi",
		"/opt/nvidia/bin/nvidia-smi",
	}
	for _, path := range nvidiaSmiPaths {
		if fileExists(path) {
			return true
		}
	}

	if fileExists("/dev/nvidia0") {
		return true
	}

	jetsonIndicators := []string{
		"/dev/nvhost-gpu",
		"/dev/nvhost-ctrl-gpu",
		"/dev/nvmap",
		"/etc/nv_tegra_release",
		"/sys/devices/gpu.0",
		"/sys/devices/17000000.ga10b",
		"/sys/devices/17000000.gv11b",
	}
	for _, path := range jetsonIndicators {
		if fileExists(path) {
			return true
		}
	}

	if data, err := os.ReadFile("/proc/device-tree/compatible"); err == nil {
		compatible := string(data)
		if contains(compatible, "nvidia,tegra") || contains(compatible, "nvidia,jetson") {
			return true
		}
	}

	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
