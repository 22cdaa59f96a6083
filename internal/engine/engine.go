package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"resono.click/internal/decode"
	"resono.click/internal/event"
)

// Engine errors
var (
	// ErrDeviceInit indicates the output device could not be opened
	ErrDeviceInit = errors.New("failed to initialize output device")
	// ErrPacketInvalid indicates too many consecutive structurally
	// invalid packets
	ErrPacketInvalid = errors.New("too many consecutive invalid packets")
	// ErrDeviceLost indicates the device halted outside an explicit stop
	ErrDeviceLost = errors.New("output device lost")
)

// State is the playback stream lifecycle state
type State int32

const (
	// StateInactive: device open, no packet received yet
	StateInactive State = iota
	// StateVerifying: packets arriving, structural validity being confirmed
	StateVerifying
	// StateActive: enough consecutive valid packets observed
	StateActive
	// StateError: invalid packet threshold exceeded or device lost;
	// only a fresh engine restarts the cycle
	StateError
	// StateClosed: terminal, entered only via explicit Close
	StateClosed
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateVerifying:
		return "verifying"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config fixes the stream parameters at init
type Config struct {
	Channels   uint32
	SampleRate uint32
	// ValidThreshold is the number of consecutive structurally valid
	// packets required before the stream is declared active (N >= 1)
	ValidThreshold int
	// InvalidThreshold is the number of consecutive invalid packets
	// tolerated; exceeding it moves the stream to StateError
	InvalidThreshold int
	// FeedCapacity bounds the device feed queue, in chunks
	FeedCapacity int
}

func (c *Config) applyDefaults() {
	if c.Channels == 0 {
		c.Channels = 2
	}
	if c.SampleRate == 0 {
		c.SampleRate = 44100
	}
	if c.ValidThreshold < 1 {
		c.ValidThreshold = 3
	}
	if c.InvalidThreshold < 1 {
		c.InvalidThreshold = 4
	}
	if c.FeedCapacity <= 0 {
		c.FeedCapacity = 8
	}
}

// Engine owns the output device stream. Chunks are pushed in bulk by a
// single producer goroutine, which exclusively owns the verification
// state machine; other goroutines observe state only through atomic
// snapshots and published events. Failures never print anywhere; they
// are observable exclusively through the event bus.
type Engine struct {
	opener DeviceOpener
	device Device
	bus    *event.Bus

	channels   uint32
	sampleRate uint32

	validThreshold   int
	invalidThreshold int

	state atomic.Int32

	// verification counters, owned by the pushing goroutine
	validRun   int
	invalidRun int
	failedSent bool

	// feed carries validated chunks to the device callback; tap fans
	// the same chunks out to the analyzer. Both are bounded and never
	// block the push path.
	feed chan decode.Chunk
	tap  chan<- decode.Chunk

	feedDropped atomic.Uint64
	tapDropped  atomic.Uint64

	// pending holds the partially consumed chunk between device
	// callbacks; owned exclusively by the callback
	pending    []int16
	pendingOff int

	closing   atomic.Bool
	closeOnce sync.Once
}

// New opens the default playback device and returns an engine in
// StateInactive. Fails with ErrDeviceInit if the device cannot be opened.
func New(cfg Config, bus *event.Bus) (*Engine, error) {
	opener, err := NewMalgoOpener()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}
	e, err := NewWithOpener(cfg, bus, opener)
	if err != nil {
		opener.Close()
		return nil, err
	}
	return e, nil
}

// NewWithOpener is New with an injectable device opener
func NewWithOpener(cfg Config, bus *event.Bus, opener DeviceOpener) (*Engine, error) {
	cfg.applyDefaults()

	e := &Engine{
		opener:           opener,
		bus:              bus,
		channels:         cfg.Channels,
		sampleRate:       cfg.SampleRate,
		validThreshold:   cfg.ValidThreshold,
		invalidThreshold: cfg.InvalidThreshold,
		feed:             make(chan decode.Chunk, cfg.FeedCapacity),
	}
	e.state.Store(int32(StateInactive))

	device, err := opener.Open(cfg.Channels, cfg.SampleRate, e.fillOutput, e.onDeviceStop)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}
	e.device = device

	slog.Info("audio engine initialized",
		"channels", cfg.Channels,
		"sample_rate", cfg.SampleRate,
		"valid_threshold", cfg.ValidThreshold,
		"invalid_threshold", cfg.InvalidThreshold)

	return e, nil
}

// SetTap registers the analyzer fan-out channel. Must be called before
// the first PushChunk.
func (e *Engine) SetTap(tap chan<- decode.Chunk) {
	e.tap = tap
}

// Channels returns the fixed channel count. Valid only after New.
func (e *Engine) Channels() uint32 { return e.channels }

// SampleRate returns the fixed sample rate. Valid only after New.
func (e *Engine) SampleRate() uint32 { return e.sampleRate }

// State returns a snapshot of the stream state
func (e *Engine) State() State { return State(e.state.Load()) }

// IsActive reports whether the stream has been verified active
func (e *Engine) IsActive() bool { return e.State() == StateActive }

// Dropped returns how many validated chunks overflowed the device feed
func (e *Engine) Dropped() uint64 { return e.feedDropped.Load() }

// PushChunk delivers one chunk of samples to the device. An empty chunk
// is a no-op and never changes state. Structurally invalid chunks
// advance the failure counter; once the threshold is exceeded the engine
// moves to StateError and emits exactly one failed event. Must be called
// from a single goroutine.
func (e *Engine) PushChunk(c decode.Chunk) {
	if c.Empty() {
		return
	}

	state := e.State()
	if state == StateError || state == StateClosed {
		return
	}

	if state == StateInactive {
		e.transition(StateVerifying, event.AudioStateEvent{Kind: event.AudioVerifying})
	}

	if !e.structurallyValid(c) {
		e.validRun = 0
		e.invalidRun++
		if e.invalidRun > e.invalidThreshold && !e.failedSent {
			e.failedSent = true
			e.transition(StateError, event.AudioStateEvent{
				Kind: event.AudioFailed,
				Err:  ErrPacketInvalid,
			})
		}
		return
	}

	e.invalidRun = 0
	e.validRun++
	if e.State() == StateVerifying && e.validRun >= e.validThreshold {
		e.transition(StateActive, event.AudioStateEvent{Kind: event.AudioActive})
	}

	// Forward to the device; a full feed drops the chunk rather than
	// stalling the producer.
	select {
	case e.feed <- c:
	default:
		e.feedDropped.Add(1)
	}

	// Fan out to the analyzer by value. Display lags are tolerated;
	// playback is not.
	if e.tap != nil {
		select {
		case e.tap <- c:
		default:
			e.tapDropped.Add(1)
		}
	}
}

func (e *Engine) structurallyValid(c decode.Chunk) bool {
	if c.Corrupt {
		return false
	}
	if len(c.Samples) == 0 || c.Frames <= 0 {
		return false
	}
	if len(c.Samples)%int(e.channels) != 0 {
		return false
	}
	return c.Frames == len(c.Samples)/int(e.channels)
}

// transition stores the new state and publishes it without blocking
func (e *Engine) transition(next State, ev event.AudioStateEvent) {
	e.state.Store(int32(next))
	if e.bus != nil {
		e.bus.TryPublishState(ev)
	}
}

// fillOutput runs on the device's real-time thread. It drains pending
// samples and the feed queue into the hardware buffer and fills the
// remainder with silence. No blocking, no allocation, no logging.
func (e *Engine) fillOutput(out []byte, frames uint32) {
	needed := int(frames) * int(e.channels)
	written := 0

	for written < needed {
		if e.pendingOff >= len(e.pending) {
			select {
			case c := <-e.feed:
				e.pending = c.Samples
				e.pendingOff = 0
			default:
				// Underrun: silence the rest of the buffer
				for i := written * 2; i < needed*2; i++ {
					out[i] = 0
				}
				return
			}
		}

		s := e.pending[e.pendingOff]
		out[written*2] = byte(s)
		out[written*2+1] = byte(s >> 8)
		e.pendingOff++
		written++
	}
}

// onDeviceStop fires when the device halts on its own. An explicit Close
// is not a device loss.
func (e *Engine) onDeviceStop() {
	if e.closing.Load() {
		return
	}
	state := e.State()
	if state == StateClosed || state == StateError {
		return
	}
	e.state.Store(int32(StateError))
	if e.bus != nil {
		e.bus.TryPublishState(event.AudioStateEvent{
			Kind: event.AudioFailed,
			Err:  ErrDeviceLost,
		})
	}
}

// Close releases the device handle unconditionally and moves the stream
// to its terminal state. Safe to call more than once; only a fresh New
// restarts the cycle.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closing.Store(true)

		if e.device != nil {
			e.device.Stop()
			e.device.Uninit()
		}
		err = e.opener.Close()

		e.state.Store(int32(StateClosed))
		if e.bus != nil {
			e.bus.TryPublishState(event.AudioStateEvent{Kind: event.AudioClosed})
		}

		slog.Info("audio engine closed",
			"feed_dropped", e.feedDropped.Load(),
			"tap_dropped", e.tapDropped.Load())
	})
	return err
}
