package event

import "time"

// Kind identifies the category of an event envelope
type Kind int

const (
	KindInput Kind = iota
	KindAudioState
	KindSpectrum
	KindTick
	KindShutdown
)

// String returns a human-readable name for the event kind
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindAudioState:
		return "audio_state"
	case KindSpectrum:
		return "spectrum"
	case KindTick:
		return "tick"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// AudioStateKind identifies what happened to the playback stream
type AudioStateKind int

const (
	// AudioVerifying is published when the first packet arrives and the
	// stream starts structural verification
	AudioVerifying AudioStateKind = iota
	// AudioActive is published once enough consecutive valid packets
	// have been observed
	AudioActive
	// AudioFailed is published exactly once when the stream gives up
	// after too many consecutive invalid packets
	AudioFailed
	// AudioClosed is published when the stream is shut down explicitly
	AudioClosed
	// WaveformDisabled is published once per session when the decoder
	// capability probe fails and waveform generation is switched off
	WaveformDisabled
)

// String returns a human-readable name for the audio state kind
func (k AudioStateKind) String() string {
	switch k {
	case AudioVerifying:
		return "verifying"
	case AudioActive:
		return "active"
	case AudioFailed:
		return "failed"
	case AudioClosed:
		return "closed"
	case WaveformDisabled:
		return "waveform_disabled"
	default:
		return "unknown"
	}
}

// InputEvent carries one key press from the input reader
type InputEvent struct {
	Key rune
}

// AudioStateEvent reports a playback stream transition. Err is set only
// for AudioFailed and WaveformDisabled.
type AudioStateEvent struct {
	Kind AudioStateKind
	Err  error
}

// SpectrumEvent carries one published spectrum frame. Bars is immutable
// once published; superseded frames are dropped, never merged.
type SpectrumEvent struct {
	Bars []float64
	Seq  uint64
	At   time.Time
}

// TickEvent is the periodic UI refresh signal
type TickEvent struct {
	At time.Time
}

// Envelope is the tagged variant delivered by the multiplexed consumer.
// Only the field matching Kind is meaningful.
type Envelope struct {
	Kind       Kind
	Input      InputEvent
	AudioState AudioStateEvent
	Spectrum   SpectrumEvent
	Tick       TickEvent
}
