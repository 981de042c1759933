// Package capture opens the selected input device in its native format and
// delivers frames into the ring buffer and WAV sink with no heap allocation
// on the callback path (spec.md §4.1).
package capture

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"

	"github.com/arach/scout/internal/pcm"
)

// ringChunkSlots is the number of chunk slots in the lock-free hand-off
// ring between the OS capture callback and the drain goroutine — generalized
// from the teacher's fixed-size chunk ring (internal/audio/capture.go).
const ringChunkSlots = 128

// maxFrameBytes is the fixed size of every pre-allocated slot. Slots never
// grow: a callback frame larger than this is truncated to its first
// maxFrameBytes bytes.
const maxFrameBytes = 64 * 1024

// preferredBufferFrames are tried in ascending order until the backend
// accepts one (spec.md §4.1 buffer size selection).
var preferredBufferFrames = []uint32{128, 256, 512, 1024}

// chunkSlot holds one callback's worth of raw native-format bytes.
type chunkSlot struct {
	bytes []byte
	len   int
}

// handoffRing is a lock-free SPSC ring of raw native-format byte chunks,
// directly grounded on the teacher's ringBuffer (internal/audio/capture.go)
// — atomic head/tail, pre-allocated slots. When every slot is full, the
// incoming chunk is dropped (and counted); queued chunks are kept.
type handoffRing struct {
	slots     [ringChunkSlots]chunkSlot
	head      atomic.Uint64
	tail      atomic.Uint64
	dropCount atomic.Uint64
}

func newHandoffRing() *handoffRing {
	r := &handoffRing{}
	for i := range r.slots {
		r.slots[i].bytes = make([]byte, maxFrameBytes)
	}
	return r
}

func (r *handoffRing) push(data []byte) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= ringChunkSlots {
		r.dropCount.Add(1)
		return false
	}
	slot := &r.slots[head%ringChunkSlots]
	n := copy(slot.bytes, data)
	slot.len = n
	r.head.Add(1)
	return true
}

func (r *handoffRing) pop() []byte {
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return nil
	}
	slot := &r.slots[tail%ringChunkSlots]
	data := slot.bytes[:slot.len]
	r.tail.Add(1)
	return data
}

// Sink receives decoded mono samples and raw native frames from the
// capture path. ring.Buffer and ring.Sink both satisfy the split naturally;
// this interface keeps the capture package independent of the ring
// package's concrete types.
type Sink interface {
	Push(samples []float32)
	EnqueueNative(frame []byte) bool
}

// FinalStats summarizes a completed capture session.
type FinalStats struct {
	TotalFrames          uint64
	Duration             time.Duration
	AcceptedBufferFrames uint32
}

// DeviceSelector identifies which input device to open. A zero value opens
// the backend's default device.
type DeviceSelector struct {
	DeviceID string
}

// FormatPolicy controls device negotiation. Scout never forces a rate —
// forcing 16kHz on a 48kHz device produces garbled output (spec.md §4.1) —
// so this only tunes buffer-size probing.
type FormatPolicy struct {
	PreferredBufferFrames []uint32
}

// Warning mirrors the spec's device-quirk Warning event payload.
type Warning struct {
	Kind   string
	Detail string
}

// Capturer owns one device's open/start/stop lifecycle.
type Capturer struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	format               pcm.Format
	acceptedBufferFrames uint32

	handoff  *handoffRing
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
	stopOnce sync.Once

	levelBits    atomic.Uint32 // IEEE-754 bits of the current normalized RMS
	totalSamples atomic.Uint64
	startedAt    time.Time

	onFatal func(error)

	warnings []Warning
	monoBuf  []float32
}

// Open initializes the audio context and negotiates a buffer size against
// the selected device without forcing any particular sample rate. The
// returned Capturer has not started streaming yet.
func Open(selector DeviceSelector, policy FormatPolicy) (*Capturer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	sizes := policy.PreferredBufferFrames
	if len(sizes) == 0 {
		sizes = preferredBufferFrames
	}

	c := &Capturer{
		ctx:      ctx,
		handoff:  newHandoffRing(),
		stopChan: make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 0 // 0 = device default channel count
	if selector.DeviceID != "" {
		// A specific device was requested; resolve it by re-enumerating and
		// matching DeviceInfo.ID.String() against the selector.
		infos, ierr := ctx.Devices(malgo.Capture)
		if ierr == nil {
			for _, info := range infos {
				if info.ID.String() == selector.DeviceID {
					id := info.ID
					deviceConfig.Capture.DeviceID = &id
					break
				}
			}
		}
	}

	var acceptedSize uint32
	var probeErr error
	for _, size := range append(append([]uint32{}, sizes...), 0) {
		trial := deviceConfig
		if size > 0 {
			trial.PeriodSizeInFrames = size
		}
		tempDevice, err := malgo.InitDevice(ctx.Context, trial, malgo.DeviceCallbacks{})
		if err != nil {
			probeErr = err
			continue
		}
		c.format = pcm.Format{
			SampleRate: int(tempDevice.SampleRate()),
			Channels:   int(tempDevice.CaptureChannels()),
			Encoding:   pcm.EncodingFloat32,
			BitDepth:   32,
		}
		acceptedSize = size
		tempDevice.Uninit()
		probeErr = nil
		break
	}
	if probeErr != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("%w: %v", ErrFormatUnsupported, probeErr)
	}
	c.acceptedBufferFrames = acceptedSize

	if detail, ok := DetectQuirk(deviceDisplayName(ctx, selector), c.format.SampleRate); ok {
		c.warnings = append(c.warnings, Warning{Kind: "device_quirk", Detail: detail})
	}

	c.monoBuf = make([]float32, 0, 8192)

	return c, nil
}

// Format returns the session's immutable native AudioFormat, captured at
// open time.
func (c *Capturer) Format() pcm.Format { return c.format }

// AcceptedBufferFrames returns the negotiated callback buffer size.
func (c *Capturer) AcceptedBufferFrames() uint32 { return c.acceptedBufferFrames }

// Warnings returns device-quirk warnings detected at open time.
func (c *Capturer) Warnings() []Warning { return c.warnings }

// Start begins streaming from the device into sink. The device callback
// only copies bytes into the lock-free handoff ring; all decoding and I/O
// happens on the dedicated drain goroutine started here. onFatal, if
// non-nil, is invoked (from a fresh goroutine, never from the malgo
// callback thread) when the backend tears the stream down on its own —
// device unplugged, Bluetooth dropout — so the caller can fail the session
// instead of silently going quiet (spec.md §4.1/§7).
func (c *Capturer) Start(sink Sink, onFatal func(error)) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyActive
	}
	c.onFatal = onFatal

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(c.format.Channels)
	deviceConfig.SampleRate = uint32(c.format.SampleRate)
	if c.acceptedBufferFrames > 0 {
		deviceConfig.PeriodSizeInFrames = c.acceptedBufferFrames
	}

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		if !c.running.Load() {
			return
		}
		if !c.handoff.push(pInputSamples) {
			// Throttled to every 100th drop: this runs on the malgo audio
			// thread, and charmbracelet/log takes a mutex per call.
			if c.handoff.dropCount.Load()%100 == 0 {
				log.Warn("capture: handoff ring full, dropping frame", "total_dropped", c.handoff.dropCount.Load())
			}
		}
	}

	onStop := func() {
		// The backend tore the stream down on its own (device unplugged,
		// Bluetooth dropout) rather than via our own Stop(). running is
		// still true in that case — Stop() always flips it first — so the
		// CAS below distinguishes the two and fires onFatal only here.
		if c.running.CompareAndSwap(true, false) {
			log.Error("capture: device stopped unexpectedly")
			if c.onFatal != nil {
				go c.onFatal(ErrDeviceLost)
			}
		}
	}

	callbacks := malgo.DeviceCallbacks{
		Data: onRecvFrames,
		Stop: onStop,
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		c.running.Store(false)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	c.device = device
	c.startedAt = time.Now()

	c.wg.Add(1)
	go c.drainLoop(sink)

	if err := device.Start(); err != nil {
		c.running.Store(false)
		return fmt.Errorf("%w: %v", ErrDeviceLost, err)
	}

	return nil
}

// drainLoop decodes native-format bytes into mono float32 (for the ring)
// and forwards the original native bytes (for the WAV sink). It runs off
// the OS callback thread so decoding and channel sends never block audio
// capture.
func (c *Capturer) drainLoop(sink Sink) {
	defer c.wg.Done()

	bytesPerSample := 4
	if c.format.Encoding == pcm.EncodingInt16 {
		bytesPerSample = 2
	}
	channels := c.format.Channels
	if channels < 1 {
		channels = 1
	}

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		data := c.handoff.pop()
		if data == nil {
			select {
			case <-c.stopChan:
				return
			case <-time.After(100 * time.Microsecond):
			}
			continue
		}

		frame := pcm.Frame{Format: c.format, Samples: data}
		c.monoBuf = pcm.DecodeMonoInto(frame, c.monoBuf[:0])
		c.updateLevel(c.monoBuf)

		sink.Push(append([]float32(nil), c.monoBuf...))
		// A full WAV queue is back-pressure: wait for room rather than
		// dropping the frame, so the WAV keeps the same samples as the ring.
		for !sink.EnqueueNative(data) {
			select {
			case <-c.stopChan:
				return
			case <-time.After(time.Millisecond):
			}
		}

		frames := len(data) / (bytesPerSample * channels)
		c.totalSamples.Add(uint64(frames))
	}
}

// updateLevel computes RMS over the current callback's mono samples and
// publishes it as raw IEEE-754 bits, readable without locks (spec.md §4.1).
func (c *Capturer) updateLevel(mono []float32) {
	if len(mono) == 0 {
		return
	}
	var sumSquares float64
	for _, s := range mono {
		sumSquares += float64(s) * float64(s)
	}
	rms := float32(math.Sqrt(sumSquares / float64(len(mono))))
	c.levelBits.Store(math.Float32bits(rms))
}

// Level returns the current normalized RMS, read lock-free.
func (c *Capturer) Level() float32 {
	return math.Float32frombits(c.levelBits.Load())
}

// Stop halts capture. Idempotent; guarantees the callback has ceased before
// returning — including when the backend already tore the stream down on
// its own and reported it through onFatal (running is then already false,
// but the stopOnce-gated cleanup below still runs exactly once).
func (c *Capturer) Stop() FinalStats {
	c.running.Store(false)

	c.stopOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()

		if c.device != nil {
			c.device.Stop()
			c.device.Uninit()
			c.device = nil
		}
	})

	return FinalStats{
		TotalFrames:          c.totalSamples.Load(),
		Duration:             time.Since(c.startedAt),
		AcceptedBufferFrames: c.acceptedBufferFrames,
	}
}

// Close releases all audio resources, stopping capture first if needed.
func (c *Capturer) Close() {
	c.Stop()
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

func deviceDisplayName(ctx *malgo.AllocatedContext, selector DeviceSelector) string {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return ""
	}
	for _, info := range infos {
		if selector.DeviceID == "" && info.IsDefault != 0 {
			return info.Name()
		}
		if info.ID.String() == selector.DeviceID {
			return info.Name()
		}
	}
	return ""
}
