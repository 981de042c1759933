// Package session owns the recording session state machine, the Control
// API, and the typed event bus external callers consume (spec.md §4.6,
// §6). It is adapted from the teacher's cmd/assistant/main.go goroutine
// wiring: a context-cancellation + sync.WaitGroup + timeout-race shutdown
// shape, generalized from a one-shot chat loop into a repeatable session
// lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/arach/scout/internal/capture"
	"github.com/arach/scout/internal/config"
	"github.com/arach/scout/internal/engine"
	"github.com/arach/scout/internal/formatadapter"
	"github.com/arach/scout/internal/merge"
	"github.com/arach/scout/internal/ring"
	"github.com/arach/scout/internal/scheduler"
)

// TriggerKind identifies what started a recording session.
type TriggerKind int

const (
	TriggerManual TriggerKind = iota
	TriggerPushToTalk
	TriggerVoiceActivated
)

// wavQueueSize bounds the hand-off channel between the capture callback and
// the WAV writer goroutine.
const wavQueueSize = 256

// levelSampleInterval is how often AudioLevel events are published; the
// underlying RMS itself updates every callback, but the event stream only
// needs a sampled view (spec.md §6).
const levelSampleInterval = 100 * time.Millisecond

// active holds everything one in-flight session owns. The Controller holds
// at most one of these at a time (spec.md §4.7: at most one session
// Recording or Stopping at any instant).
type active struct {
	id      uuid.UUID
	device  capture.DeviceDescriptor
	trigger TriggerKind
	outPath string
	started time.Time

	cfg *config.Config

	capturer *capture.Capturer
	ringBuf  *ring.Buffer
	wavSink  *ring.Sink
	sink     *ring.SessionSink

	adapter *formatadapter.Adapter
	sched   *scheduler.Scheduler
	merger  *merge.Merger

	fastHandle       *engine.Handle
	refinementHandle *engine.Handle

	ctx        context.Context
	cancel     context.CancelFunc
	fastCtx    context.Context
	fastCancel context.CancelFunc
	refCtx     context.Context
	refCancel  context.CancelFunc

	// eg supervises the scheduler and tier workers for the session's
	// lifetime; it has no context of its own (a.ctx already governs their
	// exit) so Go only ever collects nil errors.
	eg *errgroup.Group

	armOnce sync.Once
}

// Controller implements the Control API (spec.md §6) and owns the state
// machine. It is the only component permitted to mutate session state.
type Controller struct {
	cfg  *config.Config
	pool *engine.Pool
	log  *log.Logger

	mu      sync.Mutex
	state   State
	current *active

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New builds a Controller. pool is the shared engine.Pool every session
// acquires fast/refinement handles from.
func New(cfg *config.Config, pool *engine.Pool) *Controller {
	return &Controller{
		cfg:  cfg,
		pool: pool,
		log:  log.NewWithOptions(os.Stderr, log.Options{Prefix: "session"}),
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a new event consumer. Callers must Unsubscribe when
// done to release the channel.
func (c *Controller) Subscribe() (int, <-chan Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, 64)
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a consumer registered with Subscribe.
func (c *Controller) Unsubscribe(id int) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// classifyErr maps a build()/capture failure to the session.ErrorKind a UI
// can act on (spec.md §7: "grant mic permission" vs "install the model" vs
// an internal bug are distinct signals). Only a genuinely unrecognized
// failure falls back to ErrInternal.
func classifyErr(err error) ErrorKind {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return ErrPermissionDenied
	case errors.Is(err, capture.ErrFormatUnsupported):
		return ErrFormatUnsupported
	case errors.Is(err, capture.ErrDeviceLost):
		return ErrDeviceLostKind
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return ErrDeviceUnavailable
	case errors.Is(err, engine.ErrInitFailed):
		return ErrEngineInitFailed
	case errors.Is(err, syscall.ENOSPC):
		return ErrDiskFull
	default:
		return ErrInternal
	}
}

// transitionLocked applies to, logging when canTransition rejects the edge.
// Callers must already hold c.mu.
func (c *Controller) transitionLocked(to State) {
	if !canTransition(c.state, to) {
		c.log.Error("invalid state transition", "from", c.state, "to", to)
	}
	c.state = to
}

// setState is transitionLocked for callers that don't already hold c.mu.
func (c *Controller) setState(to State) {
	c.mu.Lock()
	c.transitionLocked(to)
	c.mu.Unlock()
}

func (c *Controller) emit(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.log.Warn("event subscriber channel full, dropping event", "kind", ev.Kind)
		}
	}
}

// ListDevices enumerates capture-capable input devices.
func (c *Controller) ListDevices() ([]capture.DeviceDescriptor, error) {
	return capture.ListDevices()
}

// SetRefinementWindow updates the refinement window for subsequent
// sessions (spec.md §6, valid range [5, 30]).
func (c *Controller) SetRefinementWindow(seconds int) error {
	return c.cfg.SetRefinementWindowSeconds(seconds)
}

// Level returns the current normalized RMS for the active session.
func (c *Controller) Level(id uuid.UUID) (float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.id != id {
		return 0, ErrNoActiveSession
	}
	return c.current.capturer.Level(), nil
}

// Start opens the named device (empty string = default) and begins
// recording. Returns the new session's identifier.
func (c *Controller) Start(deviceID string, trigger TriggerKind) (uuid.UUID, error) {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return uuid.UUID{}, ErrAlreadyRecording
	}
	c.transitionLocked(Arming)
	c.mu.Unlock()

	id := uuid.New()

	a, err := c.build(id, deviceID, trigger)
	if err != nil {
		c.setState(Failed)
		c.emit(Event{Kind: EventFailed, SessionID: id, ErrKind: classifyErr(err), ErrDetail: err.Error()})
		return uuid.UUID{}, err
	}

	c.mu.Lock()
	c.current = a
	c.mu.Unlock()

	c.emit(Event{Kind: EventRecordingStateChanged, SessionID: id, State: Arming})

	onFatal := func(fatalErr error) {
		c.failSession(a, classifyErr(fatalErr), fatalErr)
	}
	if err := a.capturer.Start(a.sink, onFatal); err != nil {
		c.failSession(a, classifyErr(err), err)
		return uuid.UUID{}, err
	}

	a.armOnce.Do(func() {
		c.setState(Recording)
		c.emit(Event{Kind: EventRecordingStateChanged, SessionID: id, State: Recording})
	})

	a.eg.Go(func() error { a.sched.Run(a.ctx, a.fastCtx, a.refCtx); return nil })
	a.eg.Go(func() error { c.runFastWorker(a); return nil })
	a.eg.Go(func() error { c.runRefinementWorker(a); return nil })
	a.eg.Go(func() error { c.runLevelSampler(a); return nil })

	return id, nil
}

func (c *Controller) build(id uuid.UUID, deviceID string, trigger TriggerKind) (*active, error) {
	policy := capture.FormatPolicy{}
	capturer, err := capture.Open(capture.DeviceSelector{DeviceID: deviceID}, policy)
	if err != nil {
		return nil, fmt.Errorf("session: open capture device: %w", err)
	}

	format := capturer.Format()
	if format.SampleRate <= 0 {
		capturer.Close()
		return nil, fmt.Errorf("session: %w", ErrInvalidTransition)
	}

	ringCapacity := c.cfg.RingCapacitySeconds * format.SampleRate
	ringBuf := ring.New(ringCapacity)

	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		capturer.Close()
		return nil, fmt.Errorf("session: create output dir: %w", err)
	}
	outPath := filepath.Join(c.cfg.OutputDir, fmt.Sprintf("scout-%s.wav", id.String()))

	wavSink, err := ring.NewSink(outPath, format, wavQueueSize)
	if err != nil {
		capturer.Close()
		return nil, err
	}

	sessionSink := &ring.SessionSink{Buf: ringBuf, WAV: wavSink}

	fastHandle, err := c.pool.AcquireFast(engine.ModelSpec{
		Encoder: c.cfg.FastEncoder, Decoder: c.cfg.FastDecoder, Tokens: c.cfg.FastTokens,
		Language: c.cfg.Language, Provider: c.cfg.Provider, NumThreads: c.cfg.FastThreads,
	})
	if err != nil {
		wavSink.Close()
		capturer.Close()
		return nil, fmt.Errorf("session: acquire fast engine: %w", engine.ErrInitFailed)
	}
	c.pool.Pin()

	refinementHandle, err := c.pool.AcquireRefinement(engine.ModelSpec{
		Encoder: c.cfg.RefinementEncoder, Decoder: c.cfg.RefinementDecoder, Tokens: c.cfg.RefinementTokens,
		Language: c.cfg.Language, Provider: c.cfg.Provider, NumThreads: c.cfg.RefinementThreads,
	})
	if err != nil {
		c.pool.Unpin()
		wavSink.Close()
		capturer.Close()
		return nil, fmt.Errorf("session: acquire refinement engine: %w", engine.ErrInitFailed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	fastCtx, fastCancel := context.WithCancel(ctx)
	refCtx, refCancel := context.WithCancel(ctx)

	sched := scheduler.New(scheduler.Config{
		SampleRate:              format.SampleRate,
		FastWindowSeconds:       c.cfg.FastWindowSeconds,
		FastOverlapRatio:        c.cfg.FastWindowOverlapRatio,
		RefinementWindowSeconds: c.cfg.RefinementWindowSeconds,
		MaxInflightRefinements:  c.cfg.MaxInflightRefinements,
	}, ringBuf, func(w scheduler.Warning) {
		c.emit(Event{Kind: EventWarning, SessionID: id, WarnKind: w.Kind, WarnDetail: w.Detail})
	})

	merger := merge.New(func(ev merge.Event) {
		c.bridgeMergeEvent(id, ev)
	})

	device := capture.DeviceDescriptor{ID: deviceID}
	for _, d := range mustListDevices() {
		if d.ID == deviceID || (deviceID == "" && d.IsDefault) {
			device = d
			break
		}
	}
	for _, w := range capturer.Warnings() {
		c.emit(Event{Kind: EventWarning, SessionID: id, WarnKind: w.Kind, WarnDetail: w.Detail})
	}

	return &active{
		id:               id,
		device:           device,
		trigger:          trigger,
		outPath:          outPath,
		started:          time.Now(),
		cfg:              c.cfg,
		capturer:         capturer,
		ringBuf:          ringBuf,
		wavSink:          wavSink,
		sink:             sessionSink,
		adapter:          formatadapter.New(),
		sched:            sched,
		merger:           merger,
		fastHandle:       fastHandle,
		refinementHandle: refinementHandle,
		ctx:              ctx,
		cancel:           cancel,
		fastCtx:          fastCtx,
		fastCancel:       fastCancel,
		refCtx:           refCtx,
		refCancel:        refCancel,
		eg:               &errgroup.Group{},
	}, nil
}

func mustListDevices() []capture.DeviceDescriptor {
	devices, err := capture.ListDevices()
	if err != nil {
		return nil
	}
	return devices
}

func (c *Controller) bridgeMergeEvent(id uuid.UUID, ev merge.Event) {
	switch ev.Kind {
	case merge.EventSegmentAppended:
		c.emit(Event{Kind: EventSegmentAppended, SessionID: id, Segment: ev.Appended})
	case merge.EventSegmentReplaced:
		c.emit(Event{Kind: EventSegmentReplaced, SessionID: id, OldID: ev.ReplacedOldID, Segment: ev.ReplacedNew})
	case merge.EventTranscriptFinalized:
		c.emit(Event{Kind: EventTranscriptFinalized, SessionID: id, Text: ev.FinalText, Metadata: ev.Metadata})
	}
}

func (c *Controller) runFastWorker(a *active) {
	for {
		select {
		case <-a.fastCtx.Done():
			return
		case chunk, ok := <-a.sched.FastChunks():
			if !ok {
				return
			}
			c.processChunk(a, chunk, a.fastHandle)
		}
	}
}

func (c *Controller) runRefinementWorker(a *active) {
	for {
		select {
		case <-a.refCtx.Done():
			return
		case chunk, ok := <-a.sched.RefinementChunks():
			if !ok {
				return
			}
			c.processChunk(a, chunk, a.refinementHandle)
		}
	}
}

// processChunk reads a sample range, adapts it to 16kHz mono, transcribes
// it, and feeds the result to the merger. Engine errors on a chunk are
// local and the tier continues: a failed fast chunk is merged as an empty
// placeholder segment, a failed refinement chunk emits a warning (spec.md
// §4.4/§7).
func (c *Controller) processChunk(a *active, chunk *scheduler.Chunk, handle *engine.Handle) {
	select {
	case <-chunk.Ctx.Done():
		return
	default:
	}

	view, err := a.ringBuf.ReadRange(chunk.Lo, chunk.Hi)
	if err != nil {
		c.emit(Event{Kind: EventWarning, SessionID: a.id, WarnKind: "ring_out_of_window", WarnDetail: err.Error()})
		return
	}

	result := a.adapter.Adapt(view.Samples, a.capturer.Format().SampleRate)
	defer a.adapter.Release(result)

	text, err := handle.Transcribe(chunk.Ctx, result.Samples, formatadapter.TargetSampleRate)
	if err != nil {
		if chunk.Tier == scheduler.TierFast {
			a.merger.Ingest(merge.Segment{Text: "", Lo: chunk.Lo, Hi: chunk.Hi, Tier: chunk.Tier, Padded: result.Padded})
		} else {
			c.emit(Event{Kind: EventWarning, SessionID: a.id, WarnKind: "engine_error", WarnDetail: err.Error()})
		}
		return
	}

	a.merger.Ingest(merge.Segment{
		Text: text, Lo: chunk.Lo, Hi: chunk.Hi, Tier: chunk.Tier, Padded: result.Padded,
		Confidence: confidenceFor(text),
	})
}

func confidenceFor(text string) float32 {
	if text == "" {
		return 0
	}
	return 1
}

func (c *Controller) runLevelSampler(a *active) {
	ticker := time.NewTicker(levelSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			lvl := a.capturer.Level()
			if !math.IsNaN(float64(lvl)) {
				c.emit(Event{Kind: EventAudioLevel, SessionID: a.id, RMS: lvl})
			}
		}
	}
}

// Stop requests the final transcript: capture ceases, the fast tier drains
// for a bounded grace period, refinement work already queued is canceled,
// and TranscriptFinalized is emitted from whatever merged so far.
func (c *Controller) Stop(id uuid.UUID) error {
	c.mu.Lock()
	a := c.current
	if a == nil || a.id != id {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.transitionLocked(Stopping)
	c.mu.Unlock()
	c.emit(Event{Kind: EventRecordingStateChanged, SessionID: id, State: Stopping})

	a.capturer.Stop()
	a.refCancel()
	a.sched.FlushFinal(a.fastCtx, a.refCtx)

	drain := time.Duration(c.cfg.StopDrainDeadlineMs) * time.Millisecond
	fastDone := make(chan struct{})
	go func() {
		time.Sleep(drain)
		close(fastDone)
	}()
	<-fastDone
	a.fastCancel()

	c.setState(Finalizing)
	c.emit(Event{Kind: EventRecordingStateChanged, SessionID: id, State: Finalizing})

	a.merger.Finalize(map[string]any{
		"device":          a.device,
		"trigger":         a.trigger,
		"output_path":     a.outPath,
		"started_at":      a.started,
		"sample_rate":     a.capturer.Format().SampleRate,
		"channels":        a.capturer.Format().Channels,
		"covered_samples": a.merger.CoverageSamples(),
	})

	c.teardown(a, Complete)
	return nil
}

// Cancel stops capture and discards all pending work; no transcript is
// surfaced. The partial WAV file is retained for diagnostics.
func (c *Controller) Cancel(id uuid.UUID) error {
	c.mu.Lock()
	a := c.current
	if a == nil || a.id != id {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.transitionLocked(Stopping)
	c.mu.Unlock()
	c.emit(Event{Kind: EventRecordingStateChanged, SessionID: id, State: Stopping})

	a.capturer.Stop()
	a.cancel()

	c.teardown(a, Failed)
	c.emit(Event{Kind: EventFailed, SessionID: id, ErrKind: ErrCanceled, ErrDetail: "canceled by caller"})
	return nil
}

func (c *Controller) failSession(a *active, kind ErrorKind, cause error) {
	a.cancel()
	c.teardown(a, Failed)
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	c.emit(Event{Kind: EventFailed, SessionID: a.id, ErrKind: kind, ErrDetail: detail})
}

// teardown releases every resource the session owns, on every exit path,
// and leaves the controller resting at final until the next Start (spec.md
// §4.6 resource ownership).
func (c *Controller) teardown(a *active, final State) {
	a.cancel()
	a.eg.Wait() //nolint:errcheck // workers only ever return nil

	if err := a.wavSink.Close(); err != nil {
		c.log.Error("wav sink close failed", "session", a.id, "err", err)
	}
	a.capturer.Close()

	c.pool.Unpin()

	c.mu.Lock()
	c.transitionLocked(final)
	c.current = nil
	c.mu.Unlock()
	c.emit(Event{Kind: EventRecordingStateChanged, SessionID: a.id, State: final})
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
