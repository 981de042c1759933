package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectQuirk_FlagsLowRateBluetoothDevices(t *testing.T) {
	detail, ok := DetectQuirk("AirPods Pro Hands-Free", 16000)
	assert.True(t, ok)
	assert.Contains(t, detail, "AirPods Pro Hands-Free")
}

func TestDetectQuirk_IgnoresKnownNameAtNormalRate(t *testing.T) {
	_, ok := DetectQuirk("Bluetooth Headset", 48000)
	assert.False(t, ok)
}

func TestDetectQuirk_IgnoresUnrelatedDeviceNames(t *testing.T) {
	_, ok := DetectQuirk("Built-in Microphone", 16000)
	assert.False(t, ok)
}

func TestDetectQuirk_CaseInsensitive(t *testing.T) {
	_, ok := DetectQuirk("SONY WH-1000XM4 HEADSET", 8000)
	assert.True(t, ok)
}
