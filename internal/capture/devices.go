package capture

import (
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

// DeviceDescriptor summarizes a capture-capable input device.
type DeviceDescriptor struct {
	ID        string
	Name      string
	IsDefault bool
}

// ListDevices enumerates the capture-capable input devices known to the
// backend (spec.md §6 list_devices).
func ListDevices() ([]DeviceDescriptor, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	descriptors := make([]DeviceDescriptor, 0, len(infos))
	for _, info := range infos {
		descriptors = append(descriptors, DeviceDescriptor{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return descriptors, nil
}

// knownQuirkyNamePatterns are device-name substrings that are known to
// misreport their actual streaming rate — most commonly Bluetooth headsets
// that advertise an 8-24kHz HFP profile rate but actually deliver 48kHz
// once the A2DP/HFP negotiation settles. We never "fix" the rate; we just
// surface it (spec.md §4.1).
var knownQuirkyNamePatterns = []string{
	"airpods",
	"bluetooth",
	"hands-free",
	"hfp",
	"headset",
}

// DetectQuirk inspects a device's name and reported sample rate for known
// problem patterns. It returns a human-readable warning detail and true if
// a quirk was detected.
func DetectQuirk(deviceName string, reportedSampleRate int) (string, bool) {
	lower := strings.ToLower(deviceName)
	for _, pattern := range knownQuirkyNamePatterns {
		if strings.Contains(lower, pattern) {
			if reportedSampleRate > 0 && reportedSampleRate < 24000 {
				return fmt.Sprintf(
					"device %q reports %d Hz, a known Bluetooth profile quirk — it will likely actually deliver 48kHz once connected",
					deviceName, reportedSampleRate,
				), true
			}
		}
	}
	return "", false
}
